package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/qpnet/internal/api"
	"github.com/danmuck/qpnet/internal/auth"
	"github.com/danmuck/qpnet/internal/logging"
	"github.com/danmuck/qpnet/internal/protocol/frame"
	"github.com/danmuck/qpnet/internal/protocol/session"
	"github.com/danmuck/qpnet/internal/server"
)

var ErrInvalid = errors.New("config: invalid")

// Duration is a time.Duration written as "250ms" or "5s" in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type BackoffConfig struct {
	InitialDelay Duration `toml:"initial_delay"`
	Multiplier   float64  `toml:"multiplier"`
	MaxDelay     Duration `toml:"max_delay"`
	Jitter       bool     `toml:"jitter"`
}

// ServerConfig is the qpackd config file.
type ServerConfig struct {
	ID              string            `toml:"id"`
	Listen          string            `toml:"listen"`
	APIAddr         string            `toml:"api_addr"`
	CORSOrigins     []string          `toml:"cors_origins"`
	TeePipe         string            `toml:"tee_pipe"`
	TeeReconnect    BackoffConfig     `toml:"tee_reconnect"`
	MaxPayloadBytes uint32            `toml:"max_payload_bytes"`
	LogLevel        string            `toml:"log_level"`
	SecurityMode    string            `toml:"security_mode"`
	TLS             session.TLSConfig `toml:"tls"`
	Databases       []string          `toml:"databases"`
	Users           []auth.User       `toml:"users"`
}

func DefaultServerConfig() ServerConfig {
	sess := session.DefaultConfig()
	return ServerConfig{
		ID:          "qpackd",
		Listen:      ":9000",
		APIAddr:     ":9020",
		CORSOrigins: []string{"http://localhost:3000"},
		TeeReconnect: BackoffConfig{
			InitialDelay: Duration(sess.Backoff.InitialDelay),
			Multiplier:   sess.Backoff.Multiplier,
			MaxDelay:     Duration(sess.Backoff.MaxDelay),
			Jitter:       sess.Backoff.Jitter,
		},
		MaxPayloadBytes: frame.DefaultLimits().MaxPayloadBytes,
		LogLevel:        "info",
		SecurityMode:    string(session.SecurityModeDevelopment),
		Databases:       []string{"dbtest"},
		Users:           []auth.User{{Name: "admin", Password: "change-me"}},
	}
}

// LoadServerConfig reads path on top of DefaultServerConfig. Keys missing
// from the file keep their default.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	var raw ServerConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("load server config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ServerConfig{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	if meta.IsDefined("id") {
		cfg.ID = strings.TrimSpace(raw.ID)
	}
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("api_addr") {
		cfg.APIAddr = strings.TrimSpace(raw.APIAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("tee_pipe") {
		cfg.TeePipe = strings.TrimSpace(raw.TeePipe)
	}
	if meta.IsDefined("tee_reconnect", "initial_delay") {
		cfg.TeeReconnect.InitialDelay = raw.TeeReconnect.InitialDelay
	}
	if meta.IsDefined("tee_reconnect", "multiplier") {
		cfg.TeeReconnect.Multiplier = raw.TeeReconnect.Multiplier
	}
	if meta.IsDefined("tee_reconnect", "max_delay") {
		cfg.TeeReconnect.MaxDelay = raw.TeeReconnect.MaxDelay
	}
	if meta.IsDefined("tee_reconnect", "jitter") {
		cfg.TeeReconnect.Jitter = raw.TeeReconnect.Jitter
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("security_mode") {
		cfg.SecurityMode = strings.TrimSpace(raw.SecurityMode)
	}
	if meta.IsDefined("tls") {
		cfg.TLS = raw.TLS
		cfg.TLS.CertFile = strings.TrimSpace(cfg.TLS.CertFile)
		cfg.TLS.KeyFile = strings.TrimSpace(cfg.TLS.KeyFile)
		cfg.TLS.CAFile = strings.TrimSpace(cfg.TLS.CAFile)
	}
	if meta.IsDefined("databases") {
		cfg.Databases = raw.Databases
	}
	if meta.IsDefined("users") {
		cfg.Users = raw.Users
	}

	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, fmt.Errorf("load server config %s: %w", path, err)
	}
	return cfg, nil
}

func (c ServerConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen is required", ErrInvalid)
	}
	if c.MaxPayloadBytes == 0 {
		return fmt.Errorf("%w: max_payload_bytes must be positive", ErrInvalid)
	}
	if c.LogLevel != "" {
		if _, ok := logging.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("%w: unknown log_level %q", ErrInvalid, c.LogLevel)
		}
	}
	if c.TeeReconnect.Multiplier < 1 {
		return fmt.Errorf("%w: tee_reconnect.multiplier must be >= 1", ErrInvalid)
	}
	if c.TeeReconnect.InitialDelay <= 0 || c.TeeReconnect.MaxDelay < c.TeeReconnect.InitialDelay {
		return fmt.Errorf("%w: tee_reconnect delays out of range", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(c.Users))
	for i, u := range c.Users {
		name := strings.TrimSpace(u.Name)
		if name == "" {
			return fmt.Errorf("%w: users[%d] missing name", ErrInvalid, i)
		}
		if u.Password == "" {
			return fmt.Errorf("%w: users[%d] %q missing password", ErrInvalid, i, name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate user %q", ErrInvalid, name)
		}
		seen[name] = struct{}{}
	}
	for i, db := range c.Databases {
		if strings.TrimSpace(db) == "" {
			return fmt.Errorf("%w: databases[%d] is empty", ErrInvalid, i)
		}
	}
	return c.Session().ValidateServerTransport()
}

func (c ServerConfig) Session() session.Config {
	sess := session.DefaultConfig()
	sess.Limits = frame.Limits{MaxPayloadBytes: c.MaxPayloadBytes}
	sess.SecurityMode = session.SecurityMode(c.SecurityMode)
	sess.TLS = c.TLS
	sess.Backoff = session.BackoffConfig{
		InitialDelay: time.Duration(c.TeeReconnect.InitialDelay),
		Multiplier:   c.TeeReconnect.Multiplier,
		MaxDelay:     time.Duration(c.TeeReconnect.MaxDelay),
		Jitter:       c.TeeReconnect.Jitter,
	}
	return sess
}

func (c ServerConfig) Server() server.Config {
	return server.Config{
		ListenAddr: c.Listen,
		Session:    c.Session(),
	}
}

func (c ServerConfig) API() api.Config {
	return api.Config{
		ID:              c.ID,
		CORSOrigins:     c.CORSOrigins,
		MaxPayloadBytes: int64(c.MaxPayloadBytes),
	}
}

func (c ServerConfig) Authenticator() *auth.StaticCredentials {
	return auth.NewStaticCredentials(c.Users, c.Databases)
}
