package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "csgo/", cfg.Data.ResourceRoot)
	assert.Empty(t, cfg.Data.VPKPaths)
	assert.Zero(t, cfg.Decompile.Workers)
	assert.Equal(t, "filesystem.log", cfg.Decompile.ResourceLog)
	assert.True(t, cfg.Decompile.Progress)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Logging.LogFile)
	assert.Equal(t, "de_dust2.yaml", cfg.ManifestPath("de_dust2"))
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "srcdecomp.yaml")
	yamlContent := `
data:
  resource_root: /games/csgo
  vpk_paths:
    - /games/csgo/pak01_dir.vpk

decompile:
  workers: 4
  resource_log: resources.txt
  progress: false

output:
  path: out/scene.yaml

logging:
  level: "debug"
  log_file: "srcdecomp.log"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg := Default()
	require.NoError(t, loadFromFile(cfg, configPath))

	assert.Equal(t, "/games/csgo", cfg.Data.ResourceRoot)
	assert.Equal(t, []string{"/games/csgo/pak01_dir.vpk"}, cfg.Data.VPKPaths)
	assert.Equal(t, 4, cfg.Decompile.Workers)
	assert.Equal(t, "resources.txt", cfg.Decompile.ResourceLog)
	assert.False(t, cfg.Decompile.Progress)
	assert.Equal(t, "out/scene.yaml", cfg.ManifestPath("de_dust2"))
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "srcdecomp.log", cfg.Logging.LogFile)
}

func TestLoadFromFile_PartialKeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "srcdecomp.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("decompile:\n  workers: 2\n"), 0644))

	cfg := Default()
	require.NoError(t, loadFromFile(cfg, configPath))
	assert.Equal(t, 2, cfg.Decompile.Workers)
	assert.Equal(t, "filesystem.log", cfg.Decompile.ResourceLog)
	assert.Equal(t, "csgo/", cfg.Data.ResourceRoot)
}

func TestLoadFromFileInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidYAML := `
decompile:
  workers: not a number
  invalid syntax here
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	assert.Error(t, loadFromFile(Default(), configPath))
}

func TestLoadFromFileMissing(t *testing.T) {
	assert.Error(t, loadFromFile(Default(), "/nonexistent/path/srcdecomp.yaml"))
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	require.NotEmpty(t, dir)
	assert.True(t, filepath.IsAbs(dir), "ConfigDir should return an absolute path, got %s", dir)
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	require.NoError(t, os.Chdir(tmpDir))

	assert.Empty(t, findConfigFile())

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, fileName), []byte("decompile:\n  workers: 1\n"), 0644))
	assert.Equal(t, "./"+fileName, findConfigFile())
}

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs([]string{"de_dust2", "out.yaml", "/games/csgo", "--debug", "--workers", "0", "--vpk", "a_dir.vpk", "--vpk", "b_dir.vpk", "--no-progress"})
	require.NoError(t, err)

	assert.Equal(t, "de_dust2", args.Map)
	assert.Equal(t, "out.yaml", args.Output)
	assert.Equal(t, "/games/csgo", args.Root)
	assert.True(t, args.Debug)
	require.NotNil(t, args.Workers)
	assert.Equal(t, 0, *args.Workers)
	assert.Equal(t, []string{"a_dir.vpk", "b_dir.vpk"}, args.VPK)
	assert.True(t, args.NoProgress)

	args, err = ParseArgs([]string{"de_nuke"})
	require.NoError(t, err)
	assert.Empty(t, args.Output)
	assert.Nil(t, args.Workers)

	_, err = ParseArgs(nil)
	assert.Error(t, err, "map is required")
}

func TestApplyArgs(t *testing.T) {
	workers := 3
	tests := []struct {
		name   string
		args   Args
		verify func(t *testing.T, cfg *Config)
	}{
		{
			name: "debug",
			args: Args{Debug: true},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Logging.Level)
			},
		},
		{
			name: "positional output and root",
			args: Args{Map: "de_nuke", Output: "nuke.yaml", Root: "/data"},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "nuke.yaml", cfg.ManifestPath("de_nuke"))
				assert.Equal(t, "/data", cfg.Data.ResourceRoot)
			},
		},
		{
			name: "workers",
			args: Args{Workers: &workers},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 3, cfg.Decompile.Workers)
			},
		},
		{
			name: "vpk and progress",
			args: Args{VPK: []string{"pak01_dir.vpk"}, NoProgress: true},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"pak01_dir.vpk"}, cfg.Data.VPKPaths)
				assert.False(t, cfg.Decompile.Progress)
			},
		},
		{
			name: "nothing set",
			args: Args{Map: "de_nuke"},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default(), cfg)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			applyArgs(cfg, tt.args)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "srcdecomp.yaml")
	yamlContent := `
data:
  resource_root: /from/file
decompile:
  workers: 8
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	workers := 2
	cfg, err := Load(Args{Map: "de_test", Config: configPath, Workers: &workers})
	require.NoError(t, err)

	// Args win over the file, the file wins over defaults.
	assert.Equal(t, 2, cfg.Decompile.Workers)
	assert.Equal(t, "/from/file", cfg.Data.ResourceRoot)
	assert.Equal(t, "filesystem.log", cfg.Decompile.ResourceLog)

	_, err = Load(Args{Map: "de_test", Config: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "srcdecomp.yaml")
	cfg := Default()
	cfg.Decompile.Workers = 6
	cfg.Data.VPKPaths = []string{"pak01_dir.vpk"}
	require.NoError(t, cfg.SaveTo(path))

	loaded := Default()
	require.NoError(t, loadFromFile(loaded, path))
	assert.Equal(t, cfg, loaded)
}
