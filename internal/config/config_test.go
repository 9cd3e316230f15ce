package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/qpnet/internal/auth"
	"github.com/danmuck/qpnet/internal/protocol"
	"github.com/danmuck/qpnet/internal/protocol/session"
	"github.com/danmuck/qpnet/internal/qpack"
	"github.com/danmuck/qpnet/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServerConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
listen = "127.0.0.1:9443"
tee_pipe = "/tmp/qpack.sock"
max_payload_bytes = 4096
log_level = "debug"
databases = ["dbtest", "metrics"]

[tee_reconnect]
max_delay = "30s"

[[users]]
name = "iris"
password = "siri"
`)
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := DefaultServerConfig()
	if cfg.Listen != "127.0.0.1:9443" {
		t.Fatalf("unexpected listen: %q", cfg.Listen)
	}
	if cfg.APIAddr != def.APIAddr {
		t.Fatalf("api_addr default lost: %q", cfg.APIAddr)
	}
	if cfg.TeePipe != "/tmp/qpack.sock" {
		t.Fatalf("unexpected tee pipe: %q", cfg.TeePipe)
	}
	if cfg.MaxPayloadBytes != 4096 {
		t.Fatalf("unexpected max payload: %d", cfg.MaxPayloadBytes)
	}
	if time.Duration(cfg.TeeReconnect.MaxDelay) != 30*time.Second {
		t.Fatalf("unexpected max delay: %v", time.Duration(cfg.TeeReconnect.MaxDelay))
	}
	if cfg.TeeReconnect.InitialDelay != def.TeeReconnect.InitialDelay {
		t.Fatalf("initial delay default lost: %v", time.Duration(cfg.TeeReconnect.InitialDelay))
	}
	if diff := cmp.Diff([]auth.User{{Name: "iris", Password: "siri"}}, cfg.Users); diff != "" {
		t.Fatalf("users mismatch (-want +got):\n%s", diff)
	}

	sess := cfg.Session()
	if sess.Limits.MaxPayloadBytes != 4096 {
		t.Fatalf("session limit not applied: %d", sess.Limits.MaxPayloadBytes)
	}
	if sess.Backoff.MaxDelay != 30*time.Second {
		t.Fatalf("session backoff not applied: %v", sess.Backoff.MaxDelay)
	}
	if got := cfg.Server().ListenAddr; got != "127.0.0.1:9443" {
		t.Fatalf("server listen addr: %q", got)
	}
	if got := cfg.API().MaxPayloadBytes; got != 4096 {
		t.Fatalf("api max payload: %d", got)
	}
}

func TestLoadServerConfigAuthenticator(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
databases = ["dbtest"]
[[users]]
name = "iris"
password = "siri"
`)
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	payload, err := qpack.Marshal([]any{"iris", "siri", "dbtest"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	res, err := auth.Request(cfg.Authenticator(), payload)
	if err != nil {
		t.Fatalf("auth request: %v", err)
	}
	if res.Type != protocol.ResAuthSuccess {
		t.Fatalf("unexpected auth result: %s", res.Type)
	}
}

func TestLoadServerConfigRejects(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{name: "unknown key", content: `lisen = ":9000"`, want: ErrInvalid},
		{name: "bad log level", content: `log_level = "loud"`, want: ErrInvalid},
		{name: "zero payload limit", content: `max_payload_bytes = 0`, want: ErrInvalid},
		{name: "empty listen", content: `listen = "  "`, want: ErrInvalid},
		{name: "duplicate user", content: `
[[users]]
name = "iris"
password = "a"
[[users]]
name = "iris"
password = "b"
`, want: ErrInvalid},
		{name: "user without password", content: `
[[users]]
name = "iris"
`, want: ErrInvalid},
		{name: "production without tls", content: `security_mode = "production"`, want: session.ErrTLSRequired},
		{name: "unknown security mode", content: `security_mode = "lab"`, want: session.ErrInvalidSecurityMode},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadServerConfig(writeConfig(t, tc.content))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadServerConfigBadDuration(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
[tee_reconnect]
initial_delay = "soon"
`)
	if _, err := LoadServerConfig(path); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func TestTemplateLoadsAsDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteTemplate(path, "server", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if diff := cmp.Diff(DefaultServerConfig(), cfg); diff != "" {
		t.Fatalf("template mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read template: %v", err)
	}
	if !strings.Contains(string(data), "[[users]]") {
		t.Fatalf("template missing users table:\n%s", data)
	}
	if err := WriteTemplate(path, "server", false); err == nil {
		t.Fatalf("expected existing config to be kept")
	}
	if err := WriteTemplate(path, "server", true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}
}

func TestTemplateUnknownKind(t *testing.T) {
	testlog.Start(t)
	if _, err := Template("client"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
