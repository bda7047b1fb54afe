// Package config loads application-level options: where data lives, how
// long provider requests may take, and whether to log verbosely.
//
// Sources, lowest precedence first: built-in defaults, config.yaml in the
// data directory, DOITNOW_* environment variables, and explicit overrides
// from command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cfxgy/DoItNow/pkg/store"
	"github.com/spf13/viper"
)

const (
	// FileName is the optional config file inside the data directory.
	FileName  = "config.yaml"
	envPrefix = "DOITNOW"
)

// Config holds the resolved options.
type Config struct {
	DataDir        string        `mapstructure:"data_dir" yaml:"data_dir"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	Verbose        bool          `mapstructure:"verbose" yaml:"verbose"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:        store.DefaultDataDir(),
		RequestTimeout: 60 * time.Second,
	}
}

// Overrides are values set explicitly on the command line. Empty fields
// are ignored.
type Overrides struct {
	DataDir string
	Verbose bool
}

// Load resolves the configuration. The data directory is resolved first
// (override, then environment, then default) because it decides where
// config.yaml is read from.
func Load(o Overrides) (*Config, error) {
	v := viper.New()
	def := DefaultConfig()
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("request_timeout", def.RequestTimeout)
	v.SetDefault("verbose", def.Verbose)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows; bind the renamed one.
	if err := v.BindEnv("data_dir", envPrefix+"_DIR", envPrefix+"_DATA_DIR"); err != nil {
		return nil, fmt.Errorf("binding environment: %w", err)
	}

	dataDir := v.GetString("data_dir")
	if o.DataDir != "" {
		dataDir = o.DataDir
	}

	path := filepath.Join(dataDir, FileName)
	if err := readFile(v, path); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	// The data dir cannot move itself: config.yaml was read from dataDir.
	cfg.DataDir = dataDir
	if o.Verbose {
		cfg.Verbose = true
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	return cfg, nil
}

func readFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

// Path returns the config file path for a data directory.
func Path(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}
