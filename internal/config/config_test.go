package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("BRK_JWT_SECRET", "from-env")
	t.Setenv("BRK_SERVER_PORT", "9000")

	c, err := load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		// explicit paths must exist
		t.Fatalf("load with missing explicit file should fail, got %+v", c)
	}

	t.Chdir(t.TempDir())
	c, err = load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.JWT.Secret != "from-env" || c.Server.Port != 9000 {
		t.Errorf("env overrides not applied: %+v", c)
	}
	if c.Presence.OnlineTTL != 45*time.Second || c.Presence.GracePeriod != 30*time.Second ||
		c.Presence.HeartbeatInterval != 5*time.Second || c.Presence.SweepInterval != 10*time.Second {
		t.Errorf("presence defaults = %+v", c.Presence)
	}
	if c.Status.DefaultBreakCapacity != 2 || c.Status.ExtendedBreakMinutes != 15 {
		t.Errorf("status defaults = %+v", c.Status)
	}
	if len(c.Warnings()) != 0 {
		t.Errorf("defaults produce warnings: %v", c.Warnings())
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
jwt:
  secret: file-secret
presence:
  online_ttl: 8s
  grace_period: 1m
status:
  default_break_capacity: 4
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.JWT.Secret != "file-secret" || c.Presence.GracePeriod != time.Minute || c.Status.DefaultBreakCapacity != 4 {
		t.Errorf("file values not applied: %+v", c)
	}
	if w := c.Warnings(); len(w) != 1 {
		t.Errorf("Warnings = %v, want one about online_ttl", w)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			JWT:      JWTConfig{Secret: "s"},
			Presence: PresenceConfig{HeartbeatInterval: 5 * time.Second, OnlineTTL: 45 * time.Second, GracePeriod: 30 * time.Second, SweepInterval: 10 * time.Second},
			Status:   StatusConfig{DefaultBreakCapacity: 2},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no secret", func(c *Config) { c.JWT.Secret = "" }, true},
		{"zero grace", func(c *Config) { c.Presence.GracePeriod = 0 }, true},
		{"negative ttl", func(c *Config) { c.Presence.OnlineTTL = -time.Second }, true},
		{"negative capacity", func(c *Config) { c.Status.DefaultBreakCapacity = -1 }, true},
		{"zero capacity", func(c *Config) { c.Status.DefaultBreakCapacity = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
