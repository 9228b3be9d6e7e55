package store

import (
	"path/filepath"
	"testing"
	"time"
)

func TestPoolSettingsSQLiteStaysOnOneConnection(t *testing.T) {
	t.Setenv(maxOpenConnsEnvKey, "8")
	t.Setenv(maxIdleConnsEnvKey, "4")
	t.Setenv(connMaxLifetimeEnvKey, "")

	got := poolSettings(DriverSQLite)
	if got.maxOpen != 1 || got.maxIdle != 1 {
		t.Fatalf("expected a single sqlite connection, got %+v", got)
	}
	if got.maxLifetime != connMaxLifetime {
		t.Fatalf("expected default lifetime, got %v", got.maxLifetime)
	}
}

func TestPoolSettingsPostgres(t *testing.T) {
	tests := []struct {
		name     string
		open     string
		idle     string
		lifetime string
		want     poolConfig
	}{
		{name: "defaults", want: poolConfig{maxOpen: 10, maxIdle: 5, maxLifetime: 5 * time.Minute}},
		{name: "env overrides", open: "20", idle: "8", lifetime: "90s", want: poolConfig{maxOpen: 20, maxIdle: 8, maxLifetime: 90 * time.Second}},
		{name: "idle clamped to open", open: "3", idle: "8", want: poolConfig{maxOpen: 3, maxIdle: 3, maxLifetime: 5 * time.Minute}},
		{name: "lifetime in seconds", lifetime: "30", want: poolConfig{maxOpen: 10, maxIdle: 5, maxLifetime: 30 * time.Second}},
		{name: "invalid values fall back", open: "bad", idle: "0", lifetime: "soon", want: poolConfig{maxOpen: 10, maxIdle: 5, maxLifetime: 5 * time.Minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(maxOpenConnsEnvKey, tt.open)
			t.Setenv(maxIdleConnsEnvKey, tt.idle)
			t.Setenv(connMaxLifetimeEnvKey, tt.lifetime)
			if got := poolSettings(DriverPostgres); got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestOpenSQLiteIgnoresPoolOverride(t *testing.T) {
	t.Setenv(maxOpenConnsEnvKey, "6")
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "pool.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	if got := st.DB().Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("expected 1 open connection, got %d", got)
	}
}
