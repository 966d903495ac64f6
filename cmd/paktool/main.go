// paktool inspects VPK packages and the pakfiles embedded in compiled maps.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alexflint/go-arg"
)

type (
	args struct {
		Info    *infoCmd    `arg:"subcommand:info" help:"show archive information"`
		List    *listCmd    `arg:"subcommand:list" help:"list files"`
		Extract *extractCmd `arg:"subcommand:extract" help:"extract file(s) to a directory"`
		Search  *searchCmd  `arg:"subcommand:search" help:"search files by name"`
	}
	infoCmd struct {
		Archive string `arg:"positional,required" placeholder:"ARCHIVE"`
	}
	listCmd struct {
		Archive string `arg:"positional,required" placeholder:"ARCHIVE"`
		Pattern string `arg:"positional" help:"glob or substring filter"`
		Limit   int    `arg:"-n" help:"limit output to N files (0 = all)"`
	}
	extractCmd struct {
		Archive string `arg:"positional,required" placeholder:"ARCHIVE"`
		Path    string `arg:"positional,required" help:"archive path or glob on file names"`
		Output  string `arg:"positional" help:"output directory (default .)"`
	}
	searchCmd struct {
		Archive string `arg:"positional,required" placeholder:"ARCHIVE"`
		Pattern string `arg:"positional,required"`
		Limit   int    `arg:"-n" help:"limit results (0 = all)" default:"50"`
	}
)

func (args) Description() string {
	return strings.Join([]string{
		"paktool - Source engine archive utility",
		"",
		"ARCHIVE is a *_dir.vpk package, a .bsp map (its embedded pakfile) or a .zip file.",
	}, "\n") + "\n"
}

func main() {
	var a args
	p := arg.MustParse(&a)

	var err error
	switch {
	case a.Info != nil:
		err = cmdInfo(a.Info)
	case a.List != nil:
		err = cmdList(a.List)
	case a.Extract != nil:
		err = cmdExtract(a.Extract)
	case a.Search != nil:
		err = cmdSearch(a.Search)
	default:
		p.WriteHelp(os.Stdout)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdInfo(cmd *infoCmd) error {
	archive, kind, err := openArchive(cmd.Archive)
	if err != nil {
		return err
	}

	fmt.Printf("Archive: %s\n", cmd.Archive)
	fmt.Printf("Type:    %s\n", kind)
	fmt.Printf("Files:   %d\n", archive.Len())
	fmt.Println()
	fmt.Println("Files by type:")
	for _, s := range countByExt(archive.List()) {
		fmt.Printf("  %-10s %d\n", s.ext, s.count)
	}
	return nil
}

func cmdList(cmd *listCmd) error {
	archive, _, err := openArchive(cmd.Archive)
	if err != nil {
		return err
	}

	files := archive.List()
	sort.Strings(files)
	pattern := strings.ToLower(cmd.Pattern)

	count := 0
	for _, f := range files {
		if !matches(f, pattern) {
			continue
		}
		fmt.Println(f)
		count++
		if cmd.Limit > 0 && count >= cmd.Limit {
			break
		}
	}

	if pattern != "" {
		fmt.Fprintf(os.Stderr, "\n(%d files matched)\n", count)
	}
	return nil
}

func cmdExtract(cmd *extractCmd) error {
	if cmd.Output == "" {
		cmd.Output = "."
	}
	archive, _, err := openArchive(cmd.Archive)
	if err != nil {
		return err
	}

	if strings.Contains(cmd.Path, "*") {
		written, err := extract(archive, cmd.Path, cmd.Output)
		for _, path := range written {
			fmt.Printf("Extracted: %s\n", path)
		}
		fmt.Fprintf(os.Stderr, "\nExtracted %d files\n", len(written))
		return err
	}

	if !archive.Contains(cmd.Path) {
		return fmt.Errorf("file not found: %s", cmd.Path)
	}
	data, err := archive.Read(cmd.Path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	out := filepath.Join(cmd.Output, baseName(cmd.Path))
	if err := writeFile(out, data); err != nil {
		return err
	}
	fmt.Printf("Extracted: %s (%d bytes)\n", out, len(data))
	return nil
}

func cmdSearch(cmd *searchCmd) error {
	archive, _, err := openArchive(cmd.Archive)
	if err != nil {
		return err
	}

	files := archive.List()
	sort.Strings(files)
	pattern := strings.ToLower(cmd.Pattern)

	count := 0
	for _, f := range files {
		if !strings.Contains(strings.ToLower(f), pattern) {
			continue
		}
		fmt.Println(f)
		count++
		if cmd.Limit > 0 && count >= cmd.Limit {
			fmt.Fprintf(os.Stderr, "\n(showing first %d matches, use -n 0 for all)\n", cmd.Limit)
			break
		}
	}

	if count == 0 {
		fmt.Fprintln(os.Stderr, "No files found")
	} else if cmd.Limit == 0 || count < cmd.Limit {
		fmt.Fprintf(os.Stderr, "\n(%d files found)\n", count)
	}
	return nil
}

func baseName(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
