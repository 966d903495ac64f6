package config

import (
	"strings"

	"github.com/alexflint/go-arg"
)

// Args are the decompiler's command-line arguments.
type Args struct {
	Map        string   `arg:"positional,required" help:"map name or path, e.g. de_dust2" placeholder:"MAP"`
	Output     string   `arg:"positional" help:"manifest output path" placeholder:"OUTPUT"`
	Root       string   `arg:"positional" help:"resource root directory" placeholder:"ROOT"`
	Config     string   `arg:"--config" help:"path to config file"`
	Debug      bool     `arg:"--debug" help:"enable debug logging"`
	Workers    *int     `arg:"--workers" help:"prop models decoded at once (0 = all)"`
	VPK        []string `arg:"--vpk,separate" help:"attach a *_dir.vpk package (repeatable)"`
	NoProgress bool     `arg:"--no-progress" help:"disable the live progress counter"`
	SaveConfig string   `arg:"--save-config" help:"write the effective config to this path"`
}

// Description is shown in the help output.
func (Args) Description() string {
	return strings.Join([]string{
		"Decompiles a compiled map and its static props into a geometry manifest.",
		"Resources are read from ROOT, the map's embedded archive and any --vpk packages.",
	}, "\n") + "\n"
}

// ParseArgs parses argv (without the program name).
func ParseArgs(argv []string) (Args, error) {
	var args Args
	p, err := arg.NewParser(arg.Config{Program: "srcdecomp"}, &args)
	if err != nil {
		return args, err
	}
	if err := p.Parse(argv); err != nil {
		return args, err
	}
	return args, nil
}

// MustParseArgs parses os.Args, printing usage and exiting on error.
func MustParseArgs() Args {
	var args Args
	arg.MustParse(&args)
	return args
}

// applyArgs applies command-line overrides to the config.
func applyArgs(cfg *Config, args Args) {
	if args.Debug {
		cfg.Logging.Level = "debug"
	}
	if args.Output != "" {
		cfg.Output.Path = args.Output
	}
	if args.Root != "" {
		cfg.Data.ResourceRoot = args.Root
	}
	if args.Workers != nil {
		cfg.Decompile.Workers = *args.Workers
	}
	if len(args.VPK) > 0 {
		cfg.Data.VPKPaths = append(cfg.Data.VPKPaths, args.VPK...)
	}
	if args.NoProgress {
		cfg.Decompile.Progress = false
	}
}
