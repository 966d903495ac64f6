// srcdecomp decompiles a compiled map and its static props into a
// geometry manifest.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/srcdecomp/internal/config"
	"github.com/Faultbox/srcdecomp/internal/export"
	"github.com/Faultbox/srcdecomp/internal/logger"
	"github.com/Faultbox/srcdecomp/internal/progress"
	"github.com/Faultbox/srcdecomp/internal/resolver"
	"github.com/Faultbox/srcdecomp/internal/vfs"
)

func main() {
	args := config.MustParseArgs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args config.Args) error {
	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	if args.SaveConfig != "" {
		if err := cfg.SaveTo(args.SaveConfig); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		logger.Info("config saved", zap.String("path", args.SaveConfig))
	}
	logger.Sugar.Debugf("Config: %+v", cfg)

	root := cfg.Data.ResourceRoot
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("resource root %s is not a directory", root)
	}

	locOpts := []vfs.Option{vfs.WithLogger(logger.Log)}
	if cfg.Decompile.ResourceLog != "" {
		resLog, closeLog, err := logger.NewResourceLog(cfg.Decompile.ResourceLog)
		if err != nil {
			return fmt.Errorf("resource log: %w", err)
		}
		defer closeLog()
		locOpts = append(locOpts, vfs.WithResourceLog(resLog))
	}
	loc := vfs.New(root, locOpts...)

	for _, path := range cfg.Data.VPKPaths {
		n, err := loc.AttachVPK(path)
		if err != nil {
			return err
		}
		logger.Info("attached package", zap.String("path", path), zap.Int("entries", n))
	}

	sessOpts := []resolver.Option{
		resolver.WithLogger(logger.Log),
		resolver.WithWorkers(cfg.Decompile.Workers),
	}
	var reporter *progress.Reporter
	if cfg.Decompile.Progress {
		reporter = progress.Start(os.Stdout, "Loading props")
		sessOpts = append(sessOpts, resolver.WithProgress(reporter.Update))
	}

	scene, err := resolver.NewSession(loc, sessOpts...).LoadMap(ctx, args.Map)
	if reporter != nil {
		if perr := reporter.Stop(); perr != nil {
			logger.Warn("progress display failed", zap.Error(perr))
		}
	}
	if err != nil {
		return err
	}

	for _, failed := range scene.Failed() {
		logger.Warn("prop model skipped", zap.String("model", failed.Model), zap.Int("instances", failed.Instances), zap.Error(failed.Err))
	}

	out := cfg.ManifestPath(manifestName(args.Map))
	if err := export.WriteFile(out, scene); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	st := scene.Geometry.Stats()
	logger.Info("map decompiled",
		zap.String("map", scene.Name),
		zap.String("manifest", out),
		zap.Int("entries", st.Entries),
		zap.Int("types", len(scene.Types)),
		zap.Int("failed_types", len(scene.Failed())),
	)
	return nil
}

// manifestName is the map's file name without extension, so
// "maps/de_dust2.bsp" and "de_dust2" both export to de_dust2.yaml.
func manifestName(mapName string) string {
	return strings.TrimSuffix(path.Base(resolver.MapPath(mapName)), ".bsp")
}
