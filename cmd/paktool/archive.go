package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Faultbox/srcdecomp/pkg/formats"
	"github.com/Faultbox/srcdecomp/pkg/pak"
	"github.com/Faultbox/srcdecomp/pkg/vpk"
)

// archive is the common surface of VPK packages and pakfiles.
type archive interface {
	Len() int
	List() []string
	Contains(path string) bool
	Read(path string) ([]byte, error)
}

// openArchive picks a reader by file name: `*_dir.vpk` packages, `.bsp`
// maps (their embedded pakfile) or plain `.zip` archives.
func openArchive(path string) (archive, string, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, "_dir.vpk"):
		p, err := vpk.Open(path)
		if err != nil {
			return nil, "", err
		}
		return p, fmt.Sprintf("VPK v%d", p.Version), nil
	case strings.HasSuffix(lower, ".bsp"):
		bsp, err := formats.ParseBSPFile(path)
		if err != nil {
			return nil, "", err
		}
		if len(bsp.Pakfile) == 0 {
			return nil, "", fmt.Errorf("%s has no embedded pakfile", path)
		}
		a, err := pak.Open(bsp.Pakfile)
		if err != nil {
			return nil, "", err
		}
		return a, fmt.Sprintf("BSP v%d pakfile", bsp.Version), nil
	case strings.HasSuffix(lower, ".zip"):
		a, err := pak.OpenFile(path)
		if err != nil {
			return nil, "", err
		}
		return a, "ZIP", nil
	}
	return nil, "", fmt.Errorf("unrecognized archive %s (want *_dir.vpk, .bsp or .zip)", path)
}

type extStat struct {
	ext   string
	count int
}

// countByExt groups files by extension, most common first.
func countByExt(files []string) []extStat {
	counts := make(map[string]int)
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		if ext == "" {
			ext = "(no ext)"
		}
		counts[ext]++
	}

	stats := make([]extStat, 0, len(counts))
	for ext, count := range counts {
		stats = append(stats, extStat{ext, count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].count != stats[j].count {
			return stats[i].count > stats[j].count
		}
		return stats[i].ext < stats[j].ext
	})
	return stats
}

// matches reports whether f matches a glob on its base name or contains
// pattern as a substring. pattern must be lower case.
func matches(f, pattern string) bool {
	if pattern == "" {
		return true
	}
	lower := strings.ToLower(f)
	if ok, _ := filepath.Match(pattern, filepath.Base(lower)); ok {
		return true
	}
	return strings.Contains(lower, pattern)
}

// extract writes every file whose base name matches the glob pattern under
// outputDir, preserving archive paths. It returns the written paths.
func extract(a archive, pattern, outputDir string) ([]string, error) {
	pattern = strings.ToLower(pattern)
	files := a.List()
	sort.Strings(files)

	var written []string
	for _, f := range files {
		if ok, _ := filepath.Match(pattern, filepath.Base(f)); !ok {
			continue
		}
		data, err := a.Read(f)
		if err != nil {
			return written, fmt.Errorf("reading %s: %w", f, err)
		}
		out := filepath.Join(outputDir, filepath.FromSlash(f))
		if err := writeFile(out, data); err != nil {
			return written, err
		}
		written = append(written, out)
	}
	return written, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
