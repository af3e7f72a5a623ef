package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mappa/am"
	"github.com/teranos/mappa/importer"
)

// Topics in the embedded default dataset
const defaultTopics = "20"

// isolate points configuration discovery at an empty temp directory
func isolate(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	for _, key := range []string{
		"MAPPA_DATABASE_PATH", "MAPPA_SYSTEM_BACKEND", "MAPPA_MAP_IRI",
		"MAPPA_IMPORT_SOURCE", "MAPPA_IMPORT_FORMAT", "MAPPA_IMPORT_BASE_IRI",
		"MAPPA_IMPORT_TIMEOUT_SECONDS", "MAPPA_LOG_JSON",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeWithStderr(t, cmd, args...)
	return out, err
}

func executeWithStderr(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	am.Reset()
	t.Cleanup(am.Reset)
	resetFlags(cmd)

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestBootstrap_PrintsCountOnceImported(t *testing.T) {
	dir := isolate(t)
	dbPath := filepath.Join(dir, "mappa.db")

	out, err := execute(t, BootstrapCmd, "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, defaultTopics+"\n", out)

	out, err = execute(t, BootstrapCmd, "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, defaultTopics+"\n", out, "second run finds the map")
}

func TestBootstrap_EnvironmentConfiguresBackend(t *testing.T) {
	dir := isolate(t)
	t.Setenv("MAPPA_SYSTEM_BACKEND", am.BackendBolt)
	t.Setenv("MAPPA_DATABASE_PATH", filepath.Join(dir, "mappa.bolt"))

	out, err := execute(t, BootstrapCmd)
	require.NoError(t, err)
	assert.Equal(t, defaultTopics+"\n", out)
	assert.FileExists(t, filepath.Join(dir, "mappa.bolt"))
}

func TestBootstrap_YAMLSourceIntoMemory(t *testing.T) {
	dir := isolate(t)
	source := filepath.Join(dir, "tiny.yaml")
	require.NoError(t, os.WriteFile(source, []byte("version: 1\ntopics:\n  - id: a\n  - id: b\n    types: [a]\n"), 0644))

	out, err := execute(t, BootstrapCmd, "--backend", "memory", "--source", source, "--map", "", "--progress", "--timeout", "30s")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestBootstrap_InvalidOverrides(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"format", []string{"--backend", "memory", "--format", "ltm"}, `import.format "ltm" is not supported`},
		{"backend", []string{"--backend", "ontopia"}, `system.backend "ontopia" is not supported`},
		{"timeout", []string{"--backend", "memory", "--timeout=-1s"}, "--timeout must be >= 0"},
		{"source extension", []string{"--backend", "memory", "--source", "pokemon.ltm"}, "cannot detect format"},
		{"progress", []string{"--backend", "memory", "--progress=xml"}, `--progress must be text or json, got "xml"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			out, err := execute(t, BootstrapCmd, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, out, "nothing reaches stdout on failure")
		})
	}
}

func TestBootstrap_JSONProgress(t *testing.T) {
	for _, tt := range []struct {
		name string
		args []string
		env  string
	}{
		{"flag", []string{"--progress=json"}, ""},
		{"json logs", []string{"--progress"}, "true"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			if tt.env != "" {
				t.Setenv("MAPPA_LOG_JSON", tt.env)
			}
			out, stderr, err := executeWithStderr(t, BootstrapCmd, append([]string{"--backend", "memory"}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, defaultTopics+"\n", out)

			var last importer.ProgressEvent
			dec := json.NewDecoder(strings.NewReader(stderr))
			for dec.More() {
				require.NoError(t, dec.Decode(&last))
			}
			assert.Equal(t, "complete", last.Type)
			assert.EqualValues(t, 20, last.Data["topics"])
		})
	}
}

func TestAmShow_JSON(t *testing.T) {
	isolate(t)
	t.Setenv("MAPPA_MAP_IRI", "http://example.org/other")

	out, err := execute(t, AmCmd, "show", "--format", "json")
	require.NoError(t, err)

	var cfg am.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "http://example.org/other", cfg.Map.IRI)
	assert.Equal(t, am.BackendSQLite, cfg.System.Backend)
}

func TestAmShow_UnsupportedFormat(t *testing.T) {
	isolate(t)
	out, err := execute(t, AmCmd, "show", "--format", "ini")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format: ini")
	assert.Empty(t, out)
}

func TestAmGet(t *testing.T) {
	isolate(t)

	out, err := execute(t, AmCmd, "get", "system.backend")
	require.NoError(t, err)
	assert.Equal(t, "sqlite\n", out)

	_, err = execute(t, AmCmd, "get", "nope.nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nope.nothing" not found`)
}

func TestAmValidate(t *testing.T) {
	isolate(t)
	out, err := execute(t, AmCmd, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	t.Setenv("MAPPA_SYSTEM_BACKEND", "postgres")
	_, err = execute(t, AmCmd, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `system.backend "postgres" is not supported`)
}

func TestAmValidate_ReportsUnreadableFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, am.ConfigFileName), []byte("[map\niri = \n"), 0644))

	out, err := execute(t, AmCmd, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project config")
	assert.Contains(t, err.Error(), "failed to read config file")
	assert.NotContains(t, out, "Configuration is valid")
}

func TestAmInit(t *testing.T) {
	dir := isolate(t)
	t.Setenv("MAPPA_MAP_IRI", "http://example.org/saved")

	out, err := execute(t, AmCmd, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+am.ConfigFileName)

	path := filepath.Join(dir, am.ConfigFileName)
	cfg, err := am.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/saved", cfg.Map.IRI)

	_, err = execute(t, AmCmd, "init")
	require.NoError(t, err)
	assert.FileExists(t, path+".back1")

	out, err = execute(t, AmCmd, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "/"+am.ConfigFileName+"\n", "the written file is read back on its own")
}

func TestAmWhere(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, am.ConfigFileName), []byte("[map]\niri = \"x\"\n"), 0644))

	out, err := execute(t, AmCmd, "where")
	require.NoError(t, err)
	assert.Contains(t, out, "/etc/mappa/mappa.toml")
	assert.Contains(t, out, "(found)")
}

func TestDbStats(t *testing.T) {
	for _, backend := range []string{am.BackendSQLite, am.BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			dir := isolate(t)
			dbPath := filepath.Join(dir, "store."+backend)

			_, err := execute(t, BootstrapCmd, "--backend", backend, "--db", dbPath)
			require.NoError(t, err)

			out, err := execute(t, DbCmd, "stats", "--backend", backend, "--db", dbPath)
			require.NoError(t, err)
			assert.Contains(t, out, "Backend:       "+backend)
			assert.Contains(t, out, "Topic Maps:    1")
			assert.Contains(t, out, `"`+am.DefaultMapIRI+`"`)
			assert.Contains(t, out, "Topics:       "+defaultTopics)
			assert.Contains(t, out, "Associations: 10")
			if backend == am.BackendSQLite {
				assert.Contains(t, out, "Migrations:    [000 001]")
			}
		})
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, VersionCmd, "--json")
	require.NoError(t, err)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info["version"])

	out, err = execute(t, VersionCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "mappa dev")
}
