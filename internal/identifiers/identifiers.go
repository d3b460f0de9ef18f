// Package identifiers defines the opaque 128-bit identifier types used
// throughout the core. Each kind of entity gets its own Go type so that
// passing a ChannelID where a UserID is expected is a compile error.
package identifiers

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// UserID identifies a registered user.
type UserID uuid.UUID

// ChannelID identifies a channel (voice or text), possibly nested.
type ChannelID uuid.UUID

// ServerID identifies a server instance.
type ServerID uuid.UUID

// PluginID identifies a loaded plugin, as notified to the external plugin host.
type PluginID uuid.UUID

// Nil is the zero value shared by all four types' underlying representation.
var Nil = uuid.Nil

// NewUserID mints a random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewChannelID mints a random ChannelID.
func NewChannelID() ChannelID { return ChannelID(uuid.New()) }

// NewServerID mints a random ServerID.
func NewServerID() ServerID { return ServerID(uuid.New()) }

// NewPluginID mints a random PluginID.
func NewPluginID() PluginID { return PluginID(uuid.New()) }

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id ChannelID) String() string { return uuid.UUID(id).String() }
func (id ServerID) String() string  { return uuid.UUID(id).String() }
func (id PluginID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ChannelID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText implements encoding.TextMarshaler so these types serialize as
// plain UUID strings in JSON control frames.
func (id UserID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id ChannelID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ServerID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id PluginID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ChannelID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ServerID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PluginID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }

// Value/Scan make these types usable as gorm/database-sql columns directly.
func (id UserID) Value() (driver.Value, error)    { return uuid.UUID(id).String(), nil }
func (id ChannelID) Value() (driver.Value, error) { return uuid.UUID(id).String(), nil }
func (id ServerID) Value() (driver.Value, error)  { return uuid.UUID(id).String(), nil }
func (id PluginID) Value() (driver.Value, error)  { return uuid.UUID(id).String(), nil }

func (id *UserID) Scan(src any) error    { return scanUUID((*uuid.UUID)(id), src) }
func (id *ChannelID) Scan(src any) error { return scanUUID((*uuid.UUID)(id), src) }
func (id *ServerID) Scan(src any) error  { return scanUUID((*uuid.UUID)(id), src) }
func (id *PluginID) Scan(src any) error  { return scanUUID((*uuid.UUID)(id), src) }

func scanUUID(dst *uuid.UUID, src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return fmt.Errorf("identifiers: scan string: %w", err)
		}
		*dst = parsed
		return nil
	case []byte:
		parsed, err := uuid.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("identifiers: scan bytes: %w", err)
		}
		*dst = parsed
		return nil
	case nil:
		*dst = uuid.Nil
		return nil
	default:
		return fmt.Errorf("identifiers: unsupported scan type %T", src)
	}
}

// ParseUserID parses a UUID string into a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	return UserID(u), err
}

// ParseChannelID parses a UUID string into a ChannelID.
func ParseChannelID(s string) (ChannelID, error) {
	u, err := uuid.Parse(s)
	return ChannelID(u), err
}
