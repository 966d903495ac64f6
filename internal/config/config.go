// Package config handles decompiler configuration loading and management.
package config

// Config holds all decompiler settings.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	Decompile DecompileConfig `yaml:"decompile"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DataConfig holds the resource locations.
type DataConfig struct {
	ResourceRoot string   `yaml:"resource_root"` // loose file tree
	VPKPaths     []string `yaml:"vpk_paths"`     // *_dir.vpk packages attached after indexing
}

// DecompileConfig holds map assembly settings.
type DecompileConfig struct {
	Workers     int    `yaml:"workers"` // 0 decodes every prop model at once
	ResourceLog string `yaml:"resource_log"`
	Progress    bool   `yaml:"progress"`
}

// OutputConfig holds export settings.
type OutputConfig struct {
	Path string `yaml:"path"` // manifest path, defaults to <map>.yaml
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			ResourceRoot: "csgo/",
		},
		Decompile: DecompileConfig{
			Workers:     0,
			ResourceLog: "filesystem.log",
			Progress:    true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// ManifestPath returns the output path for a map.
func (c *Config) ManifestPath(mapName string) string {
	if c.Output.Path != "" {
		return c.Output.Path
	}
	return mapName + ".yaml"
}
