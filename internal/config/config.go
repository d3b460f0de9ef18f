// Package config loads Speakeasy's server configuration from config.toml
// (path overridable via SPEAKEASY_CONFIG) with environment variable
// overrides, using configulator as the loader.
package config

import "time"

// Config is the root configuration object, loaded once at startup.
type Config struct {
	Server   Server   `koanf:"server"`
	Network  Network  `koanf:"network"`
	Database Database `koanf:"database"`
	Redis    Redis    `koanf:"redis"`
	Logging  Logging  `koanf:"logging"`
	Crypto   Crypto   `koanf:"crypto"`
	Metrics  Metrics  `koanf:"metrics"`
	PProf    PProf    `koanf:"pprof"`
	Security Security `koanf:"security"`
}

// Server holds server-identity and limits settings.
type Server struct {
	Name       string `koanf:"name"`
	MaxClients int    `koanf:"max_clients"`
	Welcome    string `koanf:"welcome"`
}

// Network holds the three listening ports the core binds, plus the
// allowed-origins list for the ops HTTP surface's CORS middleware.
type Network struct {
	TCPPort   int      `koanf:"tcp_port"`
	UDPPort   int      `koanf:"udp_port"`
	APIPort   int      `koanf:"api_port"`
	CORSHosts []string `koanf:"cors_hosts"`
}

// Database holds persistence connection settings.
type Database struct {
	Driver         DatabaseDriver `koanf:"driver"`
	URL            string         `koanf:"url"`
	Host           string         `koanf:"host"`
	Port           int            `koanf:"port"`
	Database       string         `koanf:"database"`
	Username       string         `koanf:"username"`
	Password       string         `koanf:"password"`
	MaxConnections int            `koanf:"max_connections"`
}

// Redis holds the optional Redis connection used for the KV store (login
// sessions, rate limits) and pubsub. When disabled, in-memory equivalents are used instead,
// which only make sense for a single-process deployment.
type Redis struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// Logging controls the slog/tint setup.
type Logging struct {
	Level  LogLevel  `koanf:"level"`
	Format LogFormat `koanf:"format"`
}

// Crypto controls the voice-plane confidentiality mode.
type Crypto struct {
	Mode             CryptoMode        `koanf:"mode"`
	GroupKeyAlgo     GroupKeyAlgorithm `koanf:"group_key_algorithm"`
	CertPath         string            `koanf:"cert_path"`
	KeyPath          string            `koanf:"key_path"`
	KeyMaxLifetime   time.Duration     `koanf:"key_max_lifetime"`
	RetainedEpochs   int               `koanf:"retained_epochs"`
}

// Metrics controls the Prometheus endpoint and optional OTLP trace export.
type Metrics struct {
	Enabled      bool   `koanf:"enabled"`
	Bind         string `koanf:"bind"`
	Port         int    `koanf:"port"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

// PProf controls the optional pprof debug endpoint.
type PProf struct {
	Enabled bool   `koanf:"enabled"`
	Bind    string `koanf:"bind"`
	Port    int    `koanf:"port"`
}

// Security holds credential-hardening settings outside the core login flow.
type Security struct {
	// HIBPAPIKey, when set, enables checking new passwords against the
	// Have I Been Pwned breach corpus during the setup-wizard password
	// change. Left empty, the check is skipped.
	HIBPAPIKey string `koanf:"hibp_api_key"`
}

// Default returns a Config populated with the defaults documented in
// spec.md §6, used as the configulator base before file/env overlay.
func Default() Config {
	return Config{
		Server: Server{
			Name:       "Speakeasy Server",
			MaxClients: 512,
			Welcome:    "Welcome to Speakeasy",
		},
		Network: Network{
			TCPPort:   9987,
			UDPPort:   9987,
			APIPort:   8080,
			CORSHosts: []string{"http://localhost:5173"},
		},
		Database: Database{
			Driver:         DatabaseDriverSQLite,
			Database:       "speakeasy.db",
			MaxConnections: 10,
		},
		Redis: Redis{
			Enabled: false,
			Host:    "localhost",
			Port:    6379,
		},
		Logging: Logging{
			Level:  LogLevelInfo,
			Format: LogFormatConsole,
		},
		Crypto: Crypto{
			Mode:           CryptoModeE2E,
			GroupKeyAlgo:   GroupKeyAlgorithmChaCha20Poly1305,
			KeyMaxLifetime: 24 * time.Hour,
			RetainedEpochs: 2,
		},
		Metrics: Metrics{
			Enabled: true,
			Bind:    "0.0.0.0",
			Port:    9090,
		},
		PProf: PProf{
			Enabled: false,
			Bind:    "127.0.0.1",
			Port:    6060,
		},
	}
}
