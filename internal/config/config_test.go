package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	// Point at an empty directory so no config.yaml is found.
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v, want nil (missing file is valid)", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Redis.Enabled() {
		t.Error("redis enabled by default, want disabled (in-process fallback)")
	}
	if cfg.Security.EnumerationGuard.MaxProbes != 30 {
		t.Errorf("enumeration_guard.max_probes = %d, want 30", cfg.Security.EnumerationGuard.MaxProbes)
	}
	if cfg.Security.EnumerationGuard.Window != time.Minute {
		t.Errorf("enumeration_guard.window = %s, want 1m", cfg.Security.EnumerationGuard.Window)
	}
	if cfg.Database.AcquireTimeout != 5*time.Second {
		t.Errorf("database.acquire_timeout = %s, want 5s", cfg.Database.AcquireTimeout)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9000
redis:
  host: cache.internal
security:
  enumeration_guard:
    max_probes: 5
    window: 30s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("server.port = %d, want 9000", cfg.Server.Port)
	}
	if !cfg.Redis.Enabled() {
		t.Error("redis not enabled despite host being set")
	}
	if cfg.Redis.Addr() != "cache.internal:6379" {
		t.Errorf("redis addr = %s, want cache.internal:6379", cfg.Redis.Addr())
	}
	if cfg.Security.EnumerationGuard.MaxProbes != 5 {
		t.Errorf("max_probes = %d, want 5", cfg.Security.EnumerationGuard.MaxProbes)
	}
	if cfg.Security.EnumerationGuard.Window != 30*time.Second {
		t.Errorf("window = %s, want 30s", cfg.Security.EnumerationGuard.Window)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })

	t.Setenv("AGD_DATABASE_HOST", "db.internal")
	t.Setenv("AGD_SECURITY_ENUMERATION_GUARD_MAX_PROBES", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("database.host = %s, want db.internal", cfg.Database.Host)
	}
	if cfg.Security.EnumerationGuard.MaxProbes != 7 {
		t.Errorf("max_probes = %d, want 7", cfg.Security.EnumerationGuard.MaxProbes)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max connections", func(c *Config) { c.Database.MaxConnections = 0 }},
		{"zero acquire timeout", func(c *Config) { c.Database.AcquireTimeout = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"zero enum probes", func(c *Config) { c.Security.EnumerationGuard.MaxProbes = 0 }},
		{"zero enum window", func(c *Config) { c.Security.EnumerationGuard.Window = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{MaxConnections: 25, AcquireTimeout: 5 * time.Second},
		Security: SecurityConfig{
			EnumerationGuard: EnumerationGuardConfig{MaxProbes: 30, Window: time.Minute},
		},
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	want := "host=h port=5432 user=u password=p dbname=n sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
