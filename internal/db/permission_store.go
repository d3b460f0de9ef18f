package db

import (
	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/permission"
)

// defaultGrants lists the permissions whose schema declares a default
// Allow when no layer of §4.3's resolution order has an opinion. Every
// other permission defaults Deny.
var defaultGrants = map[string]bool{
	"b_chat_send":     true,
	"b_voice_speak":   true,
	"b_channel_view":  true,
}

// PermissionStore is the gorm-backed implementation of
// internal/permission.Store, backing the Resolver's cache misses.
type PermissionStore struct {
	db *gorm.DB
}

func (s *PermissionStore) UserChannelPermission(user identifiers.UserID, ch identifiers.ChannelID, perm string) (permission.Value, bool, error) {
	var g models.PermissionGrant
	err := s.db.Where("subject_user = ? AND scope_channel = ? AND perm = ?", user, ch, perm).First(&g).Error
	if err == gorm.ErrRecordNotFound {
		return permission.Value{}, false, nil
	}
	if err != nil {
		return permission.Value{}, false, err
	}
	return g.ToValue(), true, nil
}

func (s *PermissionStore) UserServerPermission(user identifiers.UserID, perm string) (permission.Value, bool, error) {
	var g models.PermissionGrant
	err := s.db.Where("subject_user = ? AND scope_channel IS NULL AND perm = ?", user, perm).First(&g).Error
	if err == gorm.ErrRecordNotFound {
		return permission.Value{}, false, nil
	}
	if err != nil {
		return permission.Value{}, false, err
	}
	return g.ToValue(), true, nil
}

func (s *PermissionStore) ChannelGroup(user identifiers.UserID, ch identifiers.ChannelID) (permission.GroupID, bool, error) {
	var m models.GroupMembership
	err := s.db.Joins("JOIN groups ON groups.id = group_memberships.group_id").
		Where("group_memberships.user_id = ? AND groups.scope = ? AND groups.channel_id = ?", user, models.GroupScopeChannel, ch).
		First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return m.GroupID, true, nil
}

func (s *PermissionStore) ChannelGroupPermission(group permission.GroupID, perm string) (permission.Value, bool, error) {
	var g models.PermissionGrant
	err := s.db.Where("subject_group = ? AND perm = ?", group, perm).First(&g).Error
	if err == gorm.ErrRecordNotFound {
		return permission.Value{}, false, nil
	}
	if err != nil {
		return permission.Value{}, false, err
	}
	return g.ToValue(), true, nil
}

func (s *PermissionStore) ServerGroupsForUser(user identifiers.UserID) ([]permission.GroupID, error) {
	var memberships []models.GroupMembership
	err := s.db.Joins("JOIN groups ON groups.id = group_memberships.group_id").
		Where("group_memberships.user_id = ? AND groups.scope = ?", user, models.GroupScopeServer).
		Order("groups.priority DESC").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	ids := make([]permission.GroupID, len(memberships))
	for i, m := range memberships {
		ids[i] = m.GroupID
	}
	return ids, nil
}

func (s *PermissionStore) ServerGroupPermission(group permission.GroupID, perm string) (permission.Value, bool, error) {
	var g models.PermissionGrant
	err := s.db.Where("subject_group = ? AND perm = ?", group, perm).First(&g).Error
	if err == gorm.ErrRecordNotFound {
		return permission.Value{}, false, nil
	}
	if err != nil {
		return permission.Value{}, false, err
	}
	return g.ToValue(), true, nil
}

func (s *PermissionStore) DefaultGrant(perm string) bool {
	return defaultGrants[perm]
}
