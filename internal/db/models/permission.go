package models

import (
	"time"

	gorm_seeder "github.com/kachit/gorm-seeder"
	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/permission"
)

// GroupScope distinguishes a server-wide group (evaluated in priority
// order) from a channel-local group (assigned to at most one per member
// per channel).
type GroupScope string

const (
	GroupScopeServer  GroupScope = "server"
	GroupScopeChannel GroupScope = "channel"
)

// Group is a named collection of permission grants, either server-wide
// (ordered by Priority, descending) or scoped to one Channel.
type Group struct {
	ID        permission.GroupID     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string                 `json:"name"`
	Scope     GroupScope             `json:"scope"`
	ChannelID *identifiers.ChannelID `json:"channel_id,omitempty" gorm:"type:uuid;index"`
	Priority  int                    `json:"priority"`
	CreatedAt time.Time              `json:"created_at"`
}

func (Group) TableName() string { return "groups" }

// GroupMembership assigns a user to a group. For a channel-group this
// membership only applies while the user is in that specific channel.
type GroupMembership struct {
	GroupID permission.GroupID `json:"group_id" gorm:"primaryKey"`
	UserID  identifiers.UserID `json:"user_id" gorm:"primaryKey;type:uuid"`
}

func (GroupMembership) TableName() string { return "group_memberships" }

// PermissionGrant is one stored permission value (§3), attached either to
// a user or to a group, either server-wide or scoped to one channel.
type PermissionGrant struct {
	ID           uint64                 `json:"id" gorm:"primaryKey;autoIncrement"`
	SubjectUser  *identifiers.UserID    `json:"subject_user,omitempty" gorm:"type:uuid;index"`
	SubjectGroup *permission.GroupID    `json:"subject_group,omitempty" gorm:"index"`
	ScopeChannel *identifiers.ChannelID `json:"scope_channel,omitempty" gorm:"type:uuid;index"`
	Perm         string                 `json:"perm" gorm:"index"`
	Kind         permission.Decision    `json:"kind"`
	IntLimit     int64                  `json:"int_limit"`
	Skip         bool                   `json:"skip"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

func (PermissionGrant) TableName() string { return "permission_grants" }

// ToValue converts the stored row into a permission.Value.
func (g PermissionGrant) ToValue() permission.Value {
	return permission.Value{Kind: g.Kind, IntLimit: g.IntLimit, Skip: g.Skip}
}

// GroupsSeeder creates the default server-wide "everyone" group the first
// time a fresh database is bootstrapped, so a new deployment has somewhere
// to grant baseline permissions before an operator defines their own groups.
type GroupsSeeder struct {
	gorm_seeder.SeederAbstract
}

// DefaultGroupID is the "everyone" group every authenticated user implicitly
// belongs to until an operator assigns more specific groups.
const DefaultGroupID permission.GroupID = 1

func NewGroupsSeeder(cfg gorm_seeder.SeederConfiguration) GroupsSeeder {
	return GroupsSeeder{gorm_seeder.NewSeederAbstract(cfg)}
}

func (s *GroupsSeeder) Seed(db *gorm.DB) error {
	groups := []Group{
		{ID: DefaultGroupID, Name: "everyone", Scope: GroupScopeServer, Priority: 0},
	}
	return db.CreateInBatches(groups, s.Configuration.Rows).Error
}

func (s *GroupsSeeder) Clear(db *gorm.DB) error {
	return db.Where("id = ?", DefaultGroupID).Delete(&Group{}).Error
}
