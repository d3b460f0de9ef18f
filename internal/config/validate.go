package config

import "errors"

var (
	ErrInvalidLogLevel          = errors.New("invalid log level provided")
	ErrInvalidLogFormat         = errors.New("invalid log format provided")
	ErrInvalidDatabaseDriver    = errors.New("invalid database driver provided")
	ErrInvalidDatabaseName      = errors.New("invalid database name provided")
	ErrInvalidRedisHost         = errors.New("invalid redis host provided")
	ErrInvalidRedisPort         = errors.New("invalid redis port provided")
	ErrInvalidTCPPort           = errors.New("invalid network.tcp_port provided")
	ErrInvalidUDPPort           = errors.New("invalid network.udp_port provided")
	ErrInvalidAPIPort           = errors.New("invalid network.api_port provided")
	ErrInvalidMaxClients        = errors.New("server.max_clients must be positive")
	ErrInvalidCryptoMode        = errors.New("invalid crypto.mode provided")
	ErrDTLSNotImplemented       = errors.New("crypto.mode=dtls is not implemented; use \"none\" or \"e2e\"")
	ErrInvalidGroupKeyAlgorithm = errors.New("invalid crypto.group_key_algorithm provided")
	ErrInvalidMetricsBind       = errors.New("invalid metrics.bind provided")
	ErrInvalidMetricsPort       = errors.New("invalid metrics.port provided")
	ErrInvalidPProfBind         = errors.New("invalid pprof.bind provided")
	ErrInvalidPProfPort         = errors.New("invalid pprof.port provided")
)

func validPort(p int) bool { return p > 0 && p <= 65535 }

func (r Redis) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.Host == "" {
		return ErrInvalidRedisHost
	}
	if !validPort(r.Port) {
		return ErrInvalidRedisPort
	}
	return nil
}

func (d Database) Validate() error {
	switch d.Driver {
	case DatabaseDriverSQLite, DatabaseDriverPostgres, DatabaseDriverMySQL:
	default:
		return ErrInvalidDatabaseDriver
	}
	if d.Database == "" {
		return ErrInvalidDatabaseName
	}
	return nil
}

func (n Network) Validate() error {
	if !validPort(n.TCPPort) {
		return ErrInvalidTCPPort
	}
	if !validPort(n.UDPPort) {
		return ErrInvalidUDPPort
	}
	if !validPort(n.APIPort) {
		return ErrInvalidAPIPort
	}
	return nil
}

func (s Server) Validate() error {
	if s.MaxClients <= 0 {
		return ErrInvalidMaxClients
	}
	return nil
}

func (l Logging) Validate() error {
	switch l.Level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return ErrInvalidLogLevel
	}
	switch l.Format {
	case LogFormatConsole, LogFormatJSON:
	default:
		return ErrInvalidLogFormat
	}
	return nil
}

func (c Crypto) Validate() error {
	switch c.Mode {
	case CryptoModeNone, CryptoModeE2E:
	case CryptoModeDTLS:
		return ErrDTLSNotImplemented
	default:
		return ErrInvalidCryptoMode
	}
	if c.Mode == CryptoModeE2E {
		switch c.GroupKeyAlgo {
		case GroupKeyAlgorithmAES256GCM, GroupKeyAlgorithmChaCha20Poly1305:
		default:
			return ErrInvalidGroupKeyAlgorithm
		}
	}
	return nil
}

func (m Metrics) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Bind == "" {
		return ErrInvalidMetricsBind
	}
	if !validPort(m.Port) {
		return ErrInvalidMetricsPort
	}
	return nil
}

// Validate is a no-op: an empty HIBPAPIKey just disables the pwned-password
// check rather than being a configuration error.
func (s Security) Validate() error { return nil }

func (p PProf) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.Bind == "" {
		return ErrInvalidPProfBind
	}
	if !validPort(p.Port) {
		return ErrInvalidPProfPort
	}
	return nil
}

// Validate checks every section in turn, returning the first error found.
func (c Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Network.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Crypto.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	if err := c.PProf.Validate(); err != nil {
		return err
	}
	if err := c.Security.Validate(); err != nil {
		return err
	}
	return nil
}
