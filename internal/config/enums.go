package config

// LogLevel represents the logging level for the application.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat represents the log output encoding.
type LogFormat string

const (
	LogFormatConsole LogFormat = "console"
	LogFormatJSON    LogFormat = "json"
)

// DatabaseDriver represents the type of database driver used in the application.
type DatabaseDriver string

const (
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
)

// CryptoMode selects the voice-plane confidentiality mode.
type CryptoMode string

const (
	// CryptoModeNone sends voice payloads unencrypted on the wire.
	CryptoModeNone CryptoMode = "none"
	// CryptoModeDTLS would secure the UDP voice plane with DTLS. Not
	// implemented — rejected by Validate. See DESIGN.md Open Question #2.
	CryptoModeDTLS CryptoMode = "dtls"
	// CryptoModeE2E is per-channel group-key AEAD, §4.5.
	CryptoModeE2E CryptoMode = "e2e"
)

// GroupKeyAlgorithm selects the AEAD used for a channel's group key.
type GroupKeyAlgorithm string

const (
	GroupKeyAlgorithmAES256GCM        GroupKeyAlgorithm = "aes-256-gcm"
	GroupKeyAlgorithmChaCha20Poly1305 GroupKeyAlgorithm = "chacha20-poly1305"
)
