package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/workprep/internal/pathutil"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides of system settings, e.g. WORKPREP_LOG_DIR.
const EnvPrefix = "WORKPREP"

// DefaultLogDir is used when the system file names no log directory.
const DefaultLogDir = "/var/log/bcbio"

// SystemConfig is the installation-wide configuration: global resource
// defaults, global algorithm defaults and resource locations.
type SystemConfig struct {
	Path         string
	GalaxyConfig string
	LogDir       string
	Resources    map[string]any
	Algorithm    map[string]any
}

// systemTables holds the keyed subtrees of the system file. They are decoded
// with yaml.v3 because viper folds map keys to lower case, and option and
// tool names are case-sensitive.
type systemTables struct {
	Resources map[string]any `yaml:"resources"`
	Algorithm map[string]any `yaml:"algorithm"`
}

// LoadSystem reads the system configuration file at path. Scalar settings
// may be overridden from the environment. Relative locations are resolved
// against the file's directory.
func LoadSystem(path string) (SystemConfig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return SystemConfig{}, fmt.Errorf("system config path: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(abs)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("log_dir", DefaultLogDir)

	data, err := os.ReadFile(abs)
	if err != nil {
		return SystemConfig{}, fmt.Errorf("read system config %s: %w", abs, err)
	}
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return SystemConfig{}, fmt.Errorf("parse system config %s: %w", abs, err)
	}
	var tables systemTables
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return SystemConfig{}, fmt.Errorf("parse system config %s: %w", abs, err)
	}

	base := filepath.Dir(abs)
	cfg := SystemConfig{
		Path:      abs,
		Resources: tables.Resources,
		Algorithm: tables.Algorithm,
	}
	if cfg.GalaxyConfig, err = pathutil.Absolutize(base, v.GetString("galaxy_config")); err != nil {
		return SystemConfig{}, fmt.Errorf("galaxy_config: %w", err)
	}
	if cfg.GalaxyConfig == "" {
		return SystemConfig{}, fmt.Errorf("system config %s: galaxy_config is required", abs)
	}
	if cfg.LogDir, err = pathutil.Absolutize(base, v.GetString("log_dir")); err != nil {
		return SystemConfig{}, fmt.Errorf("log_dir: %w", err)
	}
	return cfg, nil
}

// GalaxyDir is the resource root: the directory holding the galaxy config.
func (c SystemConfig) GalaxyDir() string {
	return filepath.Dir(c.GalaxyConfig)
}
