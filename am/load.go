package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/mappa/errors"
)

// ConfigFileName is the file name searched for in system, user and project locations
const ConfigFileName = "mappa.toml"

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the mappa core configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path.
// Defaults apply; environment variables do not.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load config from %s", configPath)
	}
	return config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("MAPPA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvVars(v)

	SetDefaults(v)

	// Files merge in precedence order: system -> user -> project; env vars win over all
	for _, source := range ConfigPaths() {
		if !source.Exists {
			continue
		}
		mergeConfigFile(v, source.Path)
	}

	viperInstance = v
	return v
}

// mergeConfigFile merges one TOML file into v. Unreadable files are skipped so
// a broken user config never blocks the CLI; `mappa am validate` reads each
// file with LoadFromFile and reports them.
func mergeConfigFile(v *viper.Viper, configPath string) {
	tempViper := viper.New()
	tempViper.SetConfigFile(configPath)
	tempViper.SetConfigType("toml")

	if err := tempViper.ReadInConfig(); err != nil {
		return
	}
	// MergeConfigMap keeps file values below env vars; v.Set would shadow them
	_ = v.MergeConfigMap(tempViper.AllSettings())
}

// ConfigPath describes one location in the configuration cascade
type ConfigPath struct {
	Kind   string // system, user, project
	Path   string
	Exists bool
}

// ConfigPaths returns the configuration cascade, lowest precedence first.
// The project entry is omitted when no mappa.toml is found walking upward.
func ConfigPaths() []ConfigPath {
	paths := []ConfigPath{{Kind: "system", Path: filepath.Join("/etc/mappa", ConfigFileName)}}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, ConfigPath{Kind: "user", Path: filepath.Join(homeDir, ".mappa", ConfigFileName)})
	}

	if project := findProjectConfig(); project != "" {
		paths = append(paths, ConfigPath{Kind: "project", Path: project})
	}

	for i := range paths {
		_, err := os.Stat(paths[i].Path)
		paths[i].Exists = err == nil
	}
	return paths
}

// findProjectConfig searches for mappa.toml by walking up the directory tree
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return initViper().Get(key)
}
