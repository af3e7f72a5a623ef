package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "mappa.db", cfg.Database.Path)
	assert.Equal(t, BackendSQLite, cfg.System.Backend)
	assert.Equal(t, DefaultMapIRI, cfg.Map.IRI)
	assert.Equal(t, "", cfg.Import.Source)
	assert.Equal(t, DefaultImportTimeoutSeconds, cfg.Import.TimeoutSeconds)
	assert.False(t, cfg.Log.JSON)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := `
[system]
backend = "bolt"

[database]
path = "/var/lib/mappa/maps.bolt"

[map]
iri = "http://psi.example.org/pokemon"

[import]
source = "pokemon.jtm"
timeout_seconds = 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, BackendBolt, cfg.System.Backend)
	assert.Equal(t, "/var/lib/mappa/maps.bolt", cfg.Database.Path)
	assert.Equal(t, "http://psi.example.org/pokemon", cfg.Map.IRI)
	assert.Equal(t, "pokemon.jtm", cfg.Import.Source)
	assert.Equal(t, 0, cfg.Import.TimeoutSeconds)
	assert.Zero(t, cfg.Import.Timeout())
	// untouched keys keep their defaults
	assert.Equal(t, "", cfg.Import.Format)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestMergeConfigFile_EnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("[map]\niri = \"from-file\"\n"), 0644))
	t.Setenv("MAPPA_MAP_IRI", "from-env")

	v := viper.New()
	BindEnvVars(v)
	SetDefaults(v)
	mergeConfigFile(v, path)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Map.IRI)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Path: "mappa.db"},
			System:   SystemConfig{Backend: BackendSQLite},
			Map:      MapConfig{IRI: DefaultMapIRI},
			Import:   ImportConfig{TimeoutSeconds: 300},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid defaults", mutate: func(c *Config) {}},
		{name: "empty map IRI is passed through", mutate: func(c *Config) { c.Map.IRI = "" }},
		{name: "memory backend ignores database path", mutate: func(c *Config) {
			c.System.Backend = BackendMemory
			c.Database.Path = ""
		}},
		{name: "zero timeout means no deadline", mutate: func(c *Config) { c.Import.TimeoutSeconds = 0 }},
		{name: "explicit yaml format", mutate: func(c *Config) { c.Import.Format = FormatYAML }},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.System.Backend = "postgres" },
			wantErr: `system.backend "postgres" is not supported`,
		},
		{
			name:    "sqlite needs a path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path cannot be empty for the sqlite backend",
		},
		{
			name:    "bolt needs a path",
			mutate:  func(c *Config) { c.System.Backend = BackendBolt; c.Database.Path = "" },
			wantErr: "database.path cannot be empty for the bolt backend",
		},
		{
			name:    "unknown format",
			mutate:  func(c *Config) { c.Import.Format = "ltm" },
			wantErr: `import.format "ltm" is not supported`,
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Import.TimeoutSeconds = -1 },
			wantErr: "import.timeout_seconds must be >= 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSave_RoundTripAndBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)

	cfg := &Config{
		Database: DatabaseConfig{Path: "maps.db"},
		System:   SystemConfig{Backend: BackendSQLite},
		Map:      MapConfig{IRI: "http://example.org/first"},
		Import:   ImportConfig{TimeoutSeconds: 60},
	}
	require.NoError(t, Save(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	for i := 0; i < 4; i++ {
		cfg.Map.IRI = "http://example.org/next"
		require.NoError(t, Save(cfg, path))
	}

	for _, suffix := range []string{".back1", ".back2", ".back3"} {
		_, err := os.Stat(path + suffix)
		assert.NoError(t, err, "expected backup %s", suffix)
	}
	_, err = os.Stat(path + ".back4")
	assert.True(t, os.IsNotExist(err))
}

func TestSave_Nil(t *testing.T) {
	assert.Error(t, Save(nil, filepath.Join(t.TempDir(), ConfigFileName)))
}

func TestConfigPaths(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(project, []byte("[map]\niri = \"x\"\n"), 0644))

	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0755))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(sub))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	paths := ConfigPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, "system", paths[0].Kind)

	last := paths[len(paths)-1]
	assert.Equal(t, "project", last.Kind)
	assert.True(t, last.Exists)
	assert.Equal(t, ConfigFileName, filepath.Base(last.Path))
}
