package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLogRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "srcdecomp.log")

	// 1 MB is the smallest size lumberjack rotates at.
	if err := InitWithFileConfig("debug", FileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2, MaxAgeDays: 1}, nil); err != nil {
		t.Fatalf("InitWithFileConfig: %v", err)
	}
	defer Sync()

	key := "models/props/" + strings.Repeat("a", 200) + ".mdl"
	for i := 0; i < 15000; i++ {
		Sugar.Debugf("resolved %d %s", i, key)
	}
	Sync()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var current, rotated int
	for _, e := range entries {
		switch name := e.Name(); {
		case name == "srcdecomp.log":
			current++
		case strings.HasPrefix(name, "srcdecomp-20") && strings.HasSuffix(name, ".log"):
			rotated++
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	if current != 1 || rotated == 0 {
		t.Errorf("got %d current and %d rotated files, want 1 and at least 1", current, rotated)
	}
}

func TestLogLevels(t *testing.T) {
	dir := t.TempDir()
	all := []string{"DEBUG", "INFO", "WARN", "ERROR"}

	tests := []struct {
		level string
		from  int // index in all of the lowest written level
	}{
		{"debug", 0},
		{"info", 1},
		{"warn", 2},
		{"error", 3},
		{"bogus", 1},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			path := filepath.Join(dir, tt.level+".log")
			if err := InitWithFileConfig(tt.level, FileConfig{Path: path, MaxSizeMB: 10}, nil); err != nil {
				t.Fatalf("InitWithFileConfig: %v", err)
			}
			Debug("indexing resource root")
			Info("map decoded")
			Warn("checksum mismatch")
			Error("object type failed")
			Sync()

			content, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			for i, lvl := range all {
				if got, want := strings.Contains(string(content), lvl), i >= tt.from; got != want {
					t.Errorf("%s present = %v, want %v", lvl, got, want)
				}
			}
		})
	}
}

func TestDefaultFileConfig(t *testing.T) {
	cfg := DefaultFileConfig("/tmp/test.log")

	if cfg.Path != "/tmp/test.log" {
		t.Errorf("expected path /tmp/test.log, got %s", cfg.Path)
	}
	if cfg.MaxSizeMB != 50 {
		t.Errorf("expected MaxSizeMB 50, got %d", cfg.MaxSizeMB)
	}
	if cfg.MaxBackups != 3 {
		t.Errorf("expected MaxBackups 3, got %d", cfg.MaxBackups)
	}
	if cfg.MaxAgeDays != 7 {
		t.Errorf("expected MaxAgeDays 7, got %d", cfg.MaxAgeDays)
	}
	if !cfg.Compress {
		t.Error("expected Compress to be true")
	}
}

func TestNewResourceLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filesystem.log")
	if err := os.WriteFile(path, []byte("stale contents\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	log, closeLog, err := NewResourceLog(path)
	if err != nil {
		t.Fatalf("NewResourceLog failed: %v", err)
	}
	log.Info("maps/de_test.bsp")
	log.Debug("materials/brick/wall01.vmt")
	if err := closeLog(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "maps/de_test.bsp\nmaterials/brick/wall01.vmt\n"
	if string(content) != want {
		t.Errorf("resource log = %q, want %q", content, want)
	}
}

func TestNewResourceLog_BadPath(t *testing.T) {
	if _, _, err := NewResourceLog(filepath.Join(t.TempDir(), "missing", "x.log")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestNew_Console(t *testing.T) {
	var buf strings.Builder
	log := New("warn", FileConfig{}, &buf)
	log.Info("hidden")
	log.Warn("object type failed")
	_ = log.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "object type failed") {
		t.Errorf("unexpected console output %q", out)
	}

	if New("info", FileConfig{}, nil).Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger without outputs should be a no-op")
	}
}
