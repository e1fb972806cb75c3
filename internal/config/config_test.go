package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Fatalf("expected sqlite driver, got %q", cfg.Database.Driver)
	}
	if cfg.StaleAfter() != 30*time.Minute {
		t.Fatalf("expected 30m stale-after, got %v", cfg.StaleAfter())
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", cfg.Location())
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
env = "development"
timezone = "Europe/Berlin"
default-user = "alice"

[database]
driver = "postgres"
url = "postgres://localhost/worklog"

[server]
addr = ":9000"
stale-after-minutes = 10

[payroll]
default-hourly-rate = 42.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("expected development mode")
	}
	if cfg.DefaultUser != "alice" {
		t.Fatalf("default user = %q", cfg.DefaultUser)
	}
	if cfg.Database.Driver != DriverPostgres || cfg.Database.URL != "postgres://localhost/worklog" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Server.Addr != ":9000" || cfg.StaleAfter() != 10*time.Minute {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Server.ReapIntervalSec != 60 {
		t.Fatalf("expected default reap interval to survive, got %d", cfg.Server.ReapIntervalSec)
	}
	if cfg.Payroll.DefaultHourlyRate != 42.5 {
		t.Fatalf("rate = %v", cfg.Payroll.DefaultHourlyRate)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Fatalf("location = %v", cfg.Location())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `default-user = "alice"`)
	t.Setenv("WORKLOG_USER", "bob")
	t.Setenv("WORKLOG_DB_PATH", "/tmp/x.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultUser != "bob" {
		t.Fatalf("expected env to win, got %q", cfg.DefaultUser)
	}
	if cfg.Database.Path != "/tmp/x.db" {
		t.Fatalf("db path = %q", cfg.Database.Path)
	}
}

func TestConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, `default-user = "carol"`)
	t.Setenv("WORKLOG_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultUser != "carol" {
		t.Fatalf("default user = %q", cfg.DefaultUser)
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := writeConfig(t, `env = `)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
		{name: "postgres without url", mutate: func(c *Config) { c.Database.Driver = DriverPostgres }, wantErr: true},
		{name: "zero stale", mutate: func(c *Config) { c.Server.StaleAfterMinutes = 0 }, wantErr: true},
		{name: "zero reap interval", mutate: func(c *Config) { c.Server.ReapIntervalSec = 0 }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.Payroll.DefaultHourlyRate = -1 }, wantErr: true},
		{name: "empty timezone", mutate: func(c *Config) { c.Timezone = "" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
