package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("MAINTENANCE_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.StoreDriver != DriverPostgres || cfg.MaintenanceInterval != time.Minute {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
port: "9090"
store_driver: sqlite
sqlite_path: /var/lib/scm/listings.db
maintenance_interval: 30s
log_level: debug
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("MAINTENANCE_INTERVAL", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"env wins over file", cfg.Port, "7070"},
		{"file overrides default driver", cfg.StoreDriver, DriverSQLite},
		{"file path", cfg.SQLitePath, "/var/lib/scm/listings.db"},
		{"file duration", cfg.MaintenanceInterval, 30 * time.Second},
		{"file log level", cfg.LogLevel, "debug"},
		{"untouched default", cfg.RedisURL, "redis://localhost:6379"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}, ""},
		{"malformed yaml", nil, "port: [unclosed"},
		{"missing file", map[string]string{"CONFIG_FILE": "/does/not/exist.yaml"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv("STORE_DRIVER", "")
			if tt.file != "" {
				t.Setenv("CONFIG_FILE", writeFile(t, tt.file))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}

func TestGetDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "not-a-duration")
	if got := getDuration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("malformed duration = %s, want fallback", got)
	}
	t.Setenv("TEST_DURATION", "90s")
	if got := getDuration("TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Errorf("duration = %s, want 1m30s", got)
	}
}
