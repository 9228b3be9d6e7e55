package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultLogLevel        = "info"
	DefaultDBDriver        = "sqlite"
	DefaultDBFileName      = ".mediastore.db"
	DefaultStorageDirName  = "media"
	DefaultMaxEntries      = 1000
	DefaultTreeDepth       = 3
	DefaultSweepGrace      = 24 * time.Hour
	configFileName         = ".mediastore.toml"
	configDirEnvKey        = "MEDIASTORE_CONFIG_DIR"
	trustProjectConfigEnv  = "MEDIASTORE_TRUST_PROJECT_CONFIG"
	dbEnvKey               = "MEDIASTORE_DB"
	dbDriverEnvKey         = "MEDIASTORE_DB_DRIVER"
	storageRootEnvKey      = "MEDIASTORE_STORAGE_ROOT"
	logLevelEnvKey         = "MEDIASTORE_LOG_LEVEL"
	maxEntriesEnvKey       = "MEDIASTORE_MAX_ENTRIES_PER_DIRECTORY"
	treeDepthEnvKey        = "MEDIASTORE_TREE_DEPTH"
	metricsFileEnvKey      = "MEDIASTORE_METRICS_FILE"
	minMaxEntriesPerFolder = 2
)

// DatabaseConfig selects the metadata store.
type DatabaseConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// StorageConfig shapes the blob trees.
type StorageConfig struct {
	Root                   string   `toml:"root"`
	MaxEntriesPerDirectory int      `toml:"max_entries_per_directory"`
	TreeDepth              int      `toml:"tree_depth"`
	SweepGrace             Duration `toml:"sweep_grace"`
}

// Duration decodes TOML strings such as "36h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config defines runtime configuration for mediastore.
type Config struct {
	LogLevel                 string         `toml:"log_level"`
	MetricsFile              string         `toml:"metrics_file"`
	Database                 DatabaseConfig `toml:"database"`
	Storage                  StorageConfig  `toml:"storage"`
	TrustedProjectConfigPath string         `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Database: DatabaseConfig{Driver: DefaultDBDriver},
		Storage: StorageConfig{
			MaxEntriesPerDirectory: DefaultMaxEntries,
			TreeDepth:              DefaultTreeDepth,
			SweepGrace:             Duration{DefaultSweepGrace},
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnv))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"log_level",
	"metrics_file",
	"database.driver",
	"database.dsn",
	"storage.root",
	"storage.max_entries_per_directory",
	"storage.tree_depth",
	"storage.sweep_grace",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "log_level":
		return c.LogLevel, nil
	case "metrics_file":
		return c.MetricsFile, nil
	case "database.driver":
		return c.Database.Driver, nil
	case "database.dsn":
		return c.Database.DSN, nil
	case "storage.root":
		return c.Storage.Root, nil
	case "storage.max_entries_per_directory":
		return strconv.Itoa(c.Storage.MaxEntriesPerDirectory), nil
	case "storage.tree_depth":
		return strconv.Itoa(c.Storage.TreeDepth), nil
	case "storage.sweep_grace":
		return c.Storage.SweepGrace.String(), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if v := strings.TrimSpace(os.Getenv(logLevelEnvKey)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(metricsFileEnvKey)); v != "" {
		cfg.MetricsFile = v
	}
	if v := strings.TrimSpace(os.Getenv(dbDriverEnvKey)); v != "" {
		cfg.Database.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv(dbEnvKey)); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(storageRootEnvKey)); v != "" {
		cfg.Storage.Root = v
	}
	if v, ok := intFromEnv(maxEntriesEnvKey); ok {
		cfg.Storage.MaxEntriesPerDirectory = v
	}
	if v, ok := intFromEnv(treeDepthEnvKey); ok {
		cfg.Storage.TreeDepth = v
	}

	cfg.normalize()
	return &cfg, nil
}

// Validate reports settings no store can be opened with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Storage.MaxEntriesPerDirectory < minMaxEntriesPerFolder {
		return fmt.Errorf("storage.max_entries_per_directory must be at least %d", minMaxEntriesPerFolder)
	}
	if c.Storage.TreeDepth < 0 {
		return fmt.Errorf("storage.tree_depth must not be negative")
	}
	return nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDBDriver
	}
	if c.Storage.MaxEntriesPerDirectory == 0 {
		c.Storage.MaxEntriesPerDirectory = DefaultMaxEntries
	}
	if c.Storage.SweepGrace.Duration <= 0 {
		c.Storage.SweepGrace.Duration = DefaultSweepGrace
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	if c.Database.DSN == "" && c.Database.Driver == DefaultDBDriver {
		c.Database.DSN = filepath.Join(cwd, DefaultDBFileName)
	}
	if c.Storage.Root == "" {
		c.Storage.Root = filepath.Join(cwd, DefaultStorageDirName)
	}
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "storage.max_entries_per_directory":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < minMaxEntriesPerFolder {
			return nil, fmt.Errorf("%s must be an integer of at least %d", key, minMaxEntriesPerFolder)
		}
		return int64(parsed), nil
	case "storage.tree_depth":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return int64(parsed), nil
	case "storage.sweep_grace":
		parsed, err := parseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration", key)
		}
		return parsed.String(), nil
	case "database.driver":
		value = strings.ToLower(value)
		if value != "sqlite" && value != "postgres" {
			return nil, fmt.Errorf("%s must be sqlite or postgres", key)
		}
		return value, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func intFromEnv(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

// parseDuration accepts Go durations and plain integers as seconds.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}
