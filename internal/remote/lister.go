package remote

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

// detailPrefix marks the detailed entry lines in srmls output.
const detailPrefix = "      "

// FileEntry is one file reported by a listing, with its remote size.
type FileEntry struct {
	Name string
	Size uint64
}

// Lister enumerates remote directories through external listing commands.
type Lister struct {
	Command     string            // one-level listing (srmls style)
	LongCommand string            // long-format listing (gfal-ls -l style)
	Env         map[string]string // environment overlay for the long listing
	runner      Runner
}

func NewLister(command, longCommand string, env map[string]string, runner Runner) *Lister {
	return &Lister{
		Command:     command,
		LongCommand: longCommand,
		Env:         env,
		runner:      runner,
	}
}

// List enumerates the immediate children of path below root. Entries whose
// name ends with a slash are subdirectories, the rest are files with sizes.
// A failing listing command is logged and yields empty results, so a broken
// branch does not abort a larger harvest.
func (l *Lister) List(ctx context.Context, root, path string) (subdirs []string, files []FileEntry) {
	fullPath, err := JoinURL(root, path)
	if err != nil {
		slog.Error("Cannot build listing URL", "root", root, "path", path, "error", err)
		return nil, nil
	}
	// exactly one trailing slash, the listed paths are split on this
	prefix := strings.TrimRight(path, "/") + "/"

	output, err := l.runner.Output(ctx, nil, l.Command, fullPath)
	if err != nil {
		slog.Error("Listing command failed", "url", fullPath, "error", err)
		return nil, nil
	}

	for _, line := range strings.Split(string(output), "\n") {
		if !strings.HasPrefix(line, detailPrefix) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		size, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		_, name, found := strings.Cut(fields[1], prefix)
		if !found || name == "" {
			continue
		}
		if strings.HasSuffix(name, "/") {
			subdirs = append(subdirs, name)
		} else {
			files = append(files, FileEntry{Name: name, Size: size})
		}
	}
	return subdirs, files
}

// ListDetailed runs the long-format listing against url and returns the size
// of every entry by name.
func (l *Lister) ListDetailed(ctx context.Context, url string) (map[string]uint64, error) {
	output, err := l.runner.Output(ctx, l.Env, l.LongCommand, "-l", url)
	if err != nil {
		return nil, err
	}

	sizes := make(map[string]uint64)
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}
		size, err := strconv.ParseUint(fields[4], 10, 64)
		if err != nil {
			continue
		}
		sizes[fields[8]] = size
	}
	return sizes, nil
}
