package models

// ServerSettings is the single mutable row holding server-wide editable
// settings (name, welcome message, max clients). Always ID=1; ServerEdit
// upserts this row rather than maintaining a separate settings store,
// per the Open Question decision recorded in DESIGN.md.
type ServerSettings struct {
	ID         uint64 `json:"id" gorm:"primaryKey"`
	Name       string `json:"name"`
	Welcome    string `json:"welcome"`
	MaxClients int    `json:"max_clients"`

	// HasSeeded gates the one-time default-group seeder (see
	// GroupsSeeder), mirroring the teacher's AppSettings.HasSeeded flag.
	HasSeeded bool `json:"-"`
}

func (ServerSettings) TableName() string { return "server_settings" }

// SingletonServerSettingsID is the fixed primary key of the one
// ServerSettings row.
const SingletonServerSettingsID = 1
