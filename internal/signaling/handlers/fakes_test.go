package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/broadcast"
	"github.com/speakeasy-rtc/speakeasy/internal/config"
	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/groupkey"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/kv"
	"github.com/speakeasy-rtc/speakeasy/internal/permission"
	"github.com/speakeasy-rtc/speakeasy/internal/presence"
	"github.com/speakeasy-rtc/speakeasy/internal/router"
	"github.com/speakeasy-rtc/speakeasy/internal/session"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
)

// fakeUsers is an in-memory UserRepo.
type fakeUsers struct {
	byID   map[identifiers.UserID]models.User
	byName map[string]identifiers.UserID
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[identifiers.UserID]models.User{}, byName: map[string]identifiers.UserID{}}
}

func (f *fakeUsers) add(u models.User) {
	if u.ID.IsNil() {
		u.ID = identifiers.NewUserID()
	}
	f.byID[u.ID] = u
	f.byName[u.Name] = u.ID
}

func (f *fakeUsers) FindByID(id identifiers.UserID) (models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return models.User{}, errors.New("not found")
	}
	return u, nil
}

func (f *fakeUsers) FindByName(name string) (models.User, error) {
	id, ok := f.byName[name]
	if !ok {
		return models.User{}, errors.New("not found")
	}
	return f.byID[id], nil
}

func (f *fakeUsers) Create(u *models.User) error {
	f.add(*u)
	return nil
}

func (f *fakeUsers) UpdatePasswordHash(id identifiers.UserID, hash string, mustChangePw bool) error {
	u := f.byID[id]
	u.PasswordHash = hash
	u.MustChangePw = mustChangePw
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) UpdateLastLogin(id identifiers.UserID, at time.Time) error {
	u := f.byID[id]
	u.LastLoginAt = &at
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) Count() (int64, error) { return int64(len(f.byID)), nil }

// fakeChannels is an in-memory ChannelRepo.
type fakeChannels struct {
	byID map[identifiers.ChannelID]models.Channel
}

func newFakeChannels() *fakeChannels {
	return &fakeChannels{byID: map[identifiers.ChannelID]models.Channel{}}
}

func (f *fakeChannels) add(ch models.Channel) models.Channel {
	if ch.ID.IsNil() {
		ch.ID = identifiers.NewChannelID()
	}
	f.byID[ch.ID] = ch
	return ch
}

func (f *fakeChannels) FindByID(id identifiers.ChannelID) (models.Channel, error) {
	ch, ok := f.byID[id]
	if !ok {
		return models.Channel{}, errors.New("not found")
	}
	return ch, nil
}

func (f *fakeChannels) FindDefault() (models.Channel, error) {
	for _, ch := range f.byID {
		if ch.Default {
			return ch, nil
		}
	}
	return models.Channel{}, errors.New("no default channel")
}

func (f *fakeChannels) List() ([]models.Channel, error) {
	out := make([]models.Channel, 0, len(f.byID))
	for _, ch := range f.byID {
		out = append(out, ch)
	}
	return out, nil
}

func (f *fakeChannels) Create(ch *models.Channel) error {
	*ch = f.add(*ch)
	return nil
}

func (f *fakeChannels) Delete(id identifiers.ChannelID) error {
	delete(f.byID, id)
	return nil
}

// fakeBans is an in-memory BanRepo.
type fakeBans struct {
	entries []models.Ban
}

func (f *fakeBans) IsBanned(user *identifiers.UserID, ip string, now time.Time) (models.Ban, bool, error) {
	for _, b := range f.entries {
		if !b.Active(now) {
			continue
		}
		if user != nil && b.UserID != nil && *b.UserID == *user {
			return b, true, nil
		}
		if ip != "" && b.IP == ip {
			return b, true, nil
		}
	}
	return models.Ban{}, false, nil
}

func (f *fakeBans) Create(ban *models.Ban) error {
	f.entries = append(f.entries, *ban)
	return nil
}

func (f *fakeBans) List() ([]models.Ban, error) { return f.entries, nil }

// fakeChat is an in-memory ChatRepo.
type fakeChat struct {
	messages []models.ChatMessage
}

func (f *fakeChat) SaveMessage(msg *models.ChatMessage) error {
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeChat) History(channel identifiers.ChannelID, limit int) ([]models.ChatMessage, error) {
	out := make([]models.ChatMessage, 0)
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if f.messages[i].ChannelID == channel {
			out = append(out, f.messages[i])
		}
	}
	return out, nil
}

// fakeAudit is an in-memory AuditRepo that records every entry for
// assertions, including permission-deny entries (§8 scenario 5).
type fakeAudit struct {
	entries []models.AuditEntry
}

func (f *fakeAudit) Write(entry *models.AuditEntry) error {
	f.entries = append(f.entries, *entry)
	return nil
}

// fakeGroupKeys is an in-memory GroupKeyRepo.
type fakeGroupKeys struct {
	records []models.GroupKeyRecord
}

func (f *fakeGroupKeys) SaveWrapped(rec *models.GroupKeyRecord) error {
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeGroupKeys) FindWrapped(channel identifiers.ChannelID, epoch uint32, user identifiers.UserID) (models.GroupKeyRecord, bool, error) {
	for _, r := range f.records {
		if r.ChannelID == channel && r.Epoch == epoch && r.RecipientUser == user {
			return r, true, nil
		}
	}
	return models.GroupKeyRecord{}, false, nil
}

// fakeFiles is an in-memory FileRepo.
type fakeFiles struct {
	byID map[uint64]models.FileMetadata
}

func (f *fakeFiles) SaveMetadata(m *models.FileMetadata) error {
	if f.byID == nil {
		f.byID = map[uint64]models.FileMetadata{}
	}
	f.byID[m.ID] = *m
	return nil
}

func (f *fakeFiles) Get(id uint64) (models.FileMetadata, error) {
	m, ok := f.byID[id]
	if !ok {
		return models.FileMetadata{}, errors.New("not found")
	}
	return m, nil
}

// fakeServerSettings is an in-memory ServerRepo.
type fakeServerSettings struct {
	settings models.ServerSettings
}

func (f *fakeServerSettings) Get() (models.ServerSettings, error) { return f.settings, nil }

func (f *fakeServerSettings) Update(settings models.ServerSettings) error {
	f.settings = settings
	return nil
}

// fakeIdentities is an in-memory IdentityRepo.
type fakeIdentities struct {
	byUser map[identifiers.UserID]models.Identity
}

func (f *fakeIdentities) Upsert(identity *models.Identity) error {
	if f.byUser == nil {
		f.byUser = map[identifiers.UserID]models.Identity{}
	}
	f.byUser[identity.UserID] = *identity
	return nil
}

func (f *fakeIdentities) FindByUser(user identifiers.UserID) (models.Identity, bool, error) {
	id, ok := f.byUser[user]
	return id, ok, nil
}

// fakePermStore grants everything in allow and denies everything else,
// mirroring internal/signaling's own dispatch test double.
type fakePermStore struct {
	allow map[string]bool
}

func (s *fakePermStore) UserChannelPermission(identifiers.UserID, identifiers.ChannelID, string) (permission.Value, bool, error) {
	return permission.Value{}, false, nil
}

func (s *fakePermStore) UserServerPermission(_ identifiers.UserID, perm string) (permission.Value, bool, error) {
	if s.allow[perm] {
		return permission.Value{Kind: permission.Allow}, true, nil
	}
	return permission.Value{Kind: permission.Deny}, true, nil
}

func (s *fakePermStore) ChannelGroup(identifiers.UserID, identifiers.ChannelID) (permission.GroupID, bool, error) {
	return 0, false, nil
}

func (s *fakePermStore) ChannelGroupPermission(permission.GroupID, string) (permission.Value, bool, error) {
	return permission.Value{}, false, nil
}

func (s *fakePermStore) ServerGroupsForUser(identifiers.UserID) ([]permission.GroupID, error) {
	return nil, nil
}

func (s *fakePermStore) ServerGroupPermission(permission.GroupID, string) (permission.Value, bool, error) {
	return permission.Value{}, false, nil
}

func (s *fakePermStore) DefaultGrant(string) bool { return false }

// testFixture bundles a fully-wired Dependencies over in-memory fakes, for
// handler tests that need real permission resolution, presence, routing,
// and session issuance without a database.
type testFixture struct {
	deps       *Dependencies
	users      *fakeUsers
	channels   *fakeChannels
	bans       *fakeBans
	chat       *fakeChat
	audit      *fakeAudit
	keys       *fakeGroupKeys
	identities *fakeIdentities
}

func newTestFixture(allow map[string]bool) *testFixture {
	users := newFakeUsers()
	channels := newFakeChannels()
	bans := &fakeBans{}
	chat := &fakeChat{}
	audit := &fakeAudit{}
	keys := &fakeGroupKeys{}
	files := &fakeFiles{}
	serverSettings := &fakeServerSettings{settings: models.ServerSettings{ID: models.SingletonServerSettingsID, Name: "Test Server", MaxClients: 100}}
	identities := &fakeIdentities{}

	resolver := permission.New(&fakePermStore{allow: allow}, 16, time.Minute)
	pres := presence.New()
	sessions := session.New(kv.NewInMemory(), time.Hour)

	deps := &Dependencies{
		Users:          users,
		Channels:       channels,
		Bans:           bans,
		Chat:           chat,
		Audit:          audit,
		GroupKeys:      keys,
		Files:          files,
		ServerSettings: serverSettings,
		Identities:     identities,

		Presence:    pres,
		Router:      router.New(),
		Permissions: resolver,
		GroupKeyMgr: groupkey.New(config.GroupKeyAlgorithmChaCha20Poly1305),
		Sessions:    sessions,
		Broadcaster: broadcast.New(pres, nil, nil, nil, nil),

		VoiceUDPPort: 5000,
		CryptoMode:   config.CryptoModeE2E,
	}

	return &testFixture{deps: deps, users: users, channels: channels, bans: bans, chat: chat, audit: audit, keys: keys, identities: identities}
}

// loginSession logs user in via the real Login handler, returning the
// now-authenticated session the way a live connection would have one.
func (f *testFixture) loginSession(username, password string) (*signaling.Session, *signaling.WireError) {
	sess := signaling.NewSession(signaling.DefaultSendQueueDepth)

	raw, _ := json.Marshal(LoginRequest{Username: username, Password: password})
	req := signaling.Envelope{ID: 1, Kind: signaling.KindRequest, Cmd: signaling.CmdLogin, Payload: raw}

	_, wireErr := f.deps.Login(sess, req)
	return sess, wireErr
}

// mustRequestEnvelope builds a Request envelope carrying body as its
// JSON payload, for tests that call a handler directly rather than
// through the Dispatcher.
func mustRequestEnvelope(t testingT, cmd string, body any) signaling.Envelope {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling test payload: %v", err)
	}
	return signaling.Envelope{ID: 1, Kind: signaling.KindRequest, Cmd: cmd, Payload: raw}
}

// testingT is the subset of *testing.T this file's helpers need, so they
// don't have to import "testing" just for the type.
type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}
