package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configDirEnvKey, trustProjectConfigEnv, dbEnvKey, dbDriverEnvKey,
		storageRootEnvKey, logLevelEnvKey, maxEntriesEnvKey, treeDepthEnvKey, metricsFileEnvKey,
	} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", cfg.Database.Driver)
	}
	if cfg.Storage.MaxEntriesPerDirectory != 1000 || cfg.Storage.TreeDepth != 3 {
		t.Fatalf("unexpected tree defaults %+v", cfg.Storage)
	}
	if cfg.Storage.SweepGrace.Duration != 24*time.Hour {
		t.Fatalf("expected 24h sweep grace, got %v", cfg.Storage.SweepGrace)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	if err := os.WriteFile(path, []byte(`log_level = "warn"

[database]
driver = "postgres"
dsn = "postgres://localhost/media"

[storage]
root = "/srv/media"
max_entries_per_directory = 500
tree_depth = 2
sweep_grace = "36h"
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log_level 'warn', got %q", cfg.LogLevel)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://localhost/media" {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if cfg.Storage.Root != "/srv/media" || cfg.Storage.MaxEntriesPerDirectory != 500 || cfg.Storage.TreeDepth != 2 {
		t.Fatalf("unexpected storage config %+v", cfg.Storage)
	}
	if cfg.Storage.SweepGrace.Duration != 36*time.Hour {
		t.Fatalf("expected 36h grace, got %v", cfg.Storage.SweepGrace)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/.mediastore.toml", &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Storage.TreeDepth != DefaultTreeDepth {
		t.Fatalf("defaults should be preserved")
	}
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	if err := os.WriteFile(path, []byte("[storage]\nsweep_grace = \"soon\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range AllowedKeys() {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	if IsAllowedKey("attachments.gc_batch_size") {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestGetKey(t *testing.T) {
	cfg := Config{
		LogLevel:    "debug",
		MetricsFile: "/var/lib/node_exporter/mediastore.prom",
		Database:    DatabaseConfig{Driver: "sqlite", DSN: "/tmp/meta.db"},
		Storage: StorageConfig{
			Root:                   "/srv/media",
			MaxEntriesPerDirectory: 250,
			TreeDepth:              4,
			SweepGrace:             Duration{90 * time.Minute},
		},
	}
	cases := map[string]string{
		"log_level":                         "debug",
		"metrics_file":                      "/var/lib/node_exporter/mediastore.prom",
		"database.driver":                   "sqlite",
		"database.dsn":                      "/tmp/meta.db",
		"storage.root":                      "/srv/media",
		"storage.max_entries_per_directory": "250",
		"storage.tree_depth":                "4",
		"storage.sweep_grace":               "1h30m0s",
	}
	for key, want := range cases {
		got, err := cfg.Get(key)
		if err != nil || got != want {
			t.Fatalf("%s: expected %q, got %q (err: %v)", key, want, got, err)
		}
	}
	if _, err := cfg.Get("invalid"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestSetKeyCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "new.toml")
	if err := SetKey(path, "storage.tree_depth", "2"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.TreeDepth != 2 {
		t.Fatalf("expected depth 2, got %d", cfg.Storage.TreeDepth)
	}
}

func TestSetKeyUpdatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.toml")
	if err := os.WriteFile(path, []byte("log_level = \"warn\"\n[storage]\nroot = \"/keep\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := SetKey(path, "storage.sweep_grace", "3600"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := SetKey(path, "log_level", "error"); err != nil {
		t.Fatalf("set log_level: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("expected log_level 'error', got %q", cfg.LogLevel)
	}
	if cfg.Storage.Root != "/keep" {
		t.Fatalf("expected preserved root '/keep', got %q", cfg.Storage.Root)
	}
	if cfg.Storage.SweepGrace.Duration != time.Hour {
		t.Fatalf("expected 1h grace, got %v", cfg.Storage.SweepGrace)
	}
}

func TestSetKeyValidatesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.toml")
	for key, value := range map[string]string{
		"invalid_key":                       "value",
		"storage.max_entries_per_directory": "1",
		"storage.tree_depth":                "-1",
		"storage.sweep_grace":               "0",
		"database.driver":                   "mysql",
	} {
		if err := SetKey(path, key, value); err == nil {
			t.Fatalf("expected error for %s=%s", key, value)
		}
	}
}

func TestConfigDirOverridePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected global path: %s", globalPath)
	}
	projectPath, err := ProjectPath()
	if err != nil {
		t.Fatalf("project path: %v", err)
	}
	if projectPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected project path: %s", projectPath)
	}
}

func TestLoadDefaultsToWorkingDirectory(t *testing.T) {
	clearEnv(t)
	workspace := t.TempDir()
	chdir(t, workspace)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// os.Getwd may resolve symlinks in the temp dir path.
	cwd, _ := os.Getwd()
	if cfg.Database.DSN != filepath.Join(cwd, DefaultDBFileName) {
		t.Fatalf("expected default db path, got %q", cfg.Database.DSN)
	}
	if cfg.Storage.Root != filepath.Join(cwd, DefaultStorageDirName) {
		t.Fatalf("expected default storage root, got %q", cfg.Storage.Root)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv(dbDriverEnvKey, "POSTGRES")
	t.Setenv(dbEnvKey, "postgres://db/media")
	t.Setenv(storageRootEnvKey, "/data/media")
	t.Setenv(logLevelEnvKey, "debug")
	t.Setenv(maxEntriesEnvKey, "64")
	t.Setenv(treeDepthEnvKey, "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://db/media" {
		t.Fatalf("expected database env overrides, got %+v", cfg.Database)
	}
	if cfg.Storage.Root != "/data/media" || cfg.Storage.MaxEntriesPerDirectory != 64 {
		t.Fatalf("expected storage env overrides, got %+v", cfg.Storage)
	}
	if cfg.Storage.TreeDepth != DefaultTreeDepth {
		t.Fatalf("invalid env value must be ignored, got %d", cfg.Storage.TreeDepth)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug, got %q", cfg.LogLevel)
	}
}

func TestLoadFallsBackToDefaultLogLevelWhenConfiguredEmpty(t *testing.T) {
	clearEnv(t)
	homeDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(homeDir, configFileName), []byte("log_level = \"\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	chdir(t, t.TempDir())
	t.Setenv("HOME", homeDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
}

func TestLoadProjectConfigTrust(t *testing.T) {
	cases := []struct {
		name    string
		trust   string
		want    string
		trusted bool
	}{
		{name: "ignored by default", trust: "", want: "/home-root"},
		{name: "invalid env value", trust: "definitely-not-bool", want: "/home-root"},
		{name: "trusted", trust: "true", want: "/project-root", trusted: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			homeDir := t.TempDir()
			workspace := t.TempDir()
			if err := os.WriteFile(filepath.Join(homeDir, configFileName), []byte("[storage]\nroot = \"/home-root\"\n"), 0o644); err != nil {
				t.Fatalf("write home config: %v", err)
			}
			if err := os.WriteFile(filepath.Join(workspace, configFileName), []byte("[storage]\nroot = \"/project-root\"\n"), 0o644); err != nil {
				t.Fatalf("write project config: %v", err)
			}
			chdir(t, workspace)
			t.Setenv("HOME", homeDir)
			t.Setenv(trustProjectConfigEnv, tc.trust)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.Storage.Root != tc.want {
				t.Fatalf("expected root %q, got %q", tc.want, cfg.Storage.Root)
			}
			if (cfg.TrustedProjectConfigPath != "") != tc.trusted {
				t.Fatalf("unexpected trusted path %q", cfg.TrustedProjectConfigPath)
			}
		})
	}
}

func TestLoadConfigDirOverrideIgnoresHome(t *testing.T) {
	clearEnv(t)
	configDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(configDir, configFileName), []byte("[storage]\ntree_depth = 1\n"), 0o644); err != nil {
		t.Fatalf("write override config: %v", err)
	}
	homeDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(homeDir, configFileName), []byte("[storage]\ntree_depth = 5\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv(configDirEnvKey, configDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.TreeDepth != 1 {
		t.Fatalf("expected config-dir depth 1, got %d", cfg.Storage.TreeDepth)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected driver error")
	}
	cfg = Default()
	cfg.Storage.MaxEntriesPerDirectory = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected max entries error")
	}
	cfg = Default()
	cfg.Storage.TreeDepth = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected depth error")
	}
}
