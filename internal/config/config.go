package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for guardctl
type Config struct {
	DataDir   string `mapstructure:"data_dir"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Origin identifies this host in exports and audit records
	Origin string `mapstructure:"origin"`

	Store        StoreConfig        `mapstructure:"store"`
	Snapshots    SnapshotConfig     `mapstructure:"snapshots"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Preview      PreviewConfig      `mapstructure:"preview"`
	Precondition PreconditionConfig `mapstructure:"precondition"`
}

// StoreConfig locates the guarded application's settings database
type StoreConfig struct {
	Path            string `mapstructure:"path"`
	Table           string `mapstructure:"table"`
	CreateIfMissing bool   `mapstructure:"create_if_missing"`
}

// SnapshotConfig selects the engine holding backups
type SnapshotConfig struct {
	Engine     string `mapstructure:"engine"` // pebble, badger
	SyncWrites bool   `mapstructure:"sync_writes"`
}

// AuditConfig defines audit trail configuration
type AuditConfig struct {
	Enable bool   `mapstructure:"enable"`
	DBPath string `mapstructure:"db_path"`
}

// MetricsConfig defines the node-exporter textfile target
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// PreviewConfig controls how change previews are rendered
type PreviewConfig struct {
	Truncate int    `mapstructure:"truncate"`
	Color    string `mapstructure:"color"` // auto, always, never
}

// PreconditionConfig tunes the checks run before any command
type PreconditionConfig struct {
	MinFreeMB uint64 `mapstructure:"min_free_mb"`
}

// Load loads configuration from flags, an optional config file and
// GUARDCTL_* environment variables.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("GUARDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./guardctl-data")
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	v.SetDefault("origin", hostname)

	// no default path: the settings database must be named explicitly
	v.SetDefault("store.path", "")
	v.SetDefault("store.table", "app_settings")
	v.SetDefault("store.create_if_missing", false)

	v.SetDefault("snapshots.engine", "pebble")
	v.SetDefault("snapshots.sync_writes", true)

	v.SetDefault("audit.enable", true)
	v.SetDefault("audit.db_path", "")

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("preview.truncate", 100)
	v.SetDefault("preview.color", "auto")

	v.SetDefault("precondition.min_free_mb", 16)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"data-dir":         "data_dir",
		"log-level":        "log_level",
		"log-format":       "log_format",
		"log-file":         "log_file",
		"origin":           "origin",
		"store":            "store.path",
		"table":            "store.table",
		"snapshot-engine":  "snapshots.engine",
		"metrics-textfile": "metrics.textfile",
		"color":            "preview.color",
	}

	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.Store.Path == "" {
		return fmt.Errorf("store.path is required: specify via --store flag, config file, or GUARDCTL_STORE_PATH environment variable")
	}

	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", cfg.LogFormat)
	}

	switch cfg.Snapshots.Engine {
	case "pebble", "badger":
	default:
		return fmt.Errorf("snapshots.engine must be pebble or badger, got %q", cfg.Snapshots.Engine)
	}

	switch cfg.Preview.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("preview.color must be auto, always or never, got %q", cfg.Preview.Color)
	}

	if cfg.Preview.Truncate <= 0 {
		logrus.Debugf("preview.truncate %d is not positive, using 100", cfg.Preview.Truncate)
		cfg.Preview.Truncate = 100
	}

	if cfg.Audit.Enable && cfg.Audit.DBPath == "" {
		cfg.Audit.DBPath = filepath.Join(cfg.DataDir, "audit.db")
	}

	return nil
}
