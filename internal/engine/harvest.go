package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"srmsync/internal/remote"
)

// ErrUnresolvedPrefix is returned when an explicit LFN's parent directory
// matches none of the configured strip prefixes; ErrAmbiguousPrefix when it
// matches more than one. Both point at a configuration error that would
// silently misplace files, so the run aborts.
var (
	ErrUnresolvedPrefix = errors.New("no configured prefix matches")
	ErrAmbiguousPrefix  = errors.New("more than one configured prefix matches")
)

// Harvester turns remote trees or explicit LFN lists into download tasks.
// All listing calls, including those of concurrent subtree walks, share one
// pool of listing tokens.
type Harvester struct {
	SRM     string
	Lister  *remote.Lister
	DirSel  DirSelector
	FileSel FileSelector

	listTokens chan struct{}
}

func NewHarvester(srm string, lister *remote.Lister, listJobs int, dirSel DirSelector, fileSel FileSelector) *Harvester {
	if listJobs < 1 {
		listJobs = 1
	}
	if dirSel == nil {
		dirSel = func(int, string) bool { return true }
	}
	if fileSel == nil {
		fileSel = func(string) bool { return true }
	}
	return &Harvester{
		SRM:        srm,
		Lister:     lister,
		DirSel:     dirSel,
		FileSel:    fileSel,
		listTokens: make(chan struct{}, listJobs),
	}
}

func (h *Harvester) list(ctx context.Context, path string) (subdirs []string, files []remote.FileEntry) {
	h.listTokens <- struct{}{}
	defer func() { <-h.listTokens }()
	return h.Lister.List(ctx, h.SRM, path)
}

// Walk streams tasks for every matching file under base, descending at most
// maxDepth levels. Within one directory files are emitted before any
// subdirectory is entered; across sibling subdirectories tasks arrive in
// completion order. The channel is closed when the walk is exhausted; the
// stream is single-pass.
func (h *Harvester) Walk(ctx context.Context, base, destBase string, maxDepth int) <-chan *Task {
	out := make(chan *Task)
	go func() {
		defer close(out)
		h.walk(ctx, base, ".", destBase, 0, maxDepth-1, out)
	}()
	return out
}

func (h *Harvester) walk(ctx context.Context, base, dir, destBase string, level, remaining int, out chan<- *Task) {
	slog.Debug("Harvesting directory", "base", base, "dir", dir, "level", level, "remaining", remaining)
	listPath, err := remote.JoinURL(base, dir)
	if err != nil {
		slog.Error("Cannot build remote path", "base", base, "dir", dir, "error", err)
		return
	}
	subdirs, files := h.list(ctx, listPath)

	for _, file := range files {
		if !h.FileSel(file.Name) {
			continue
		}
		originURL, err := remote.JoinURL(h.SRM, base, dir, file.Name)
		if err != nil {
			slog.Error("Cannot build origin URL", "base", base, "dir", dir, "name", file.Name, "error", err)
			continue
		}
		dest, err := remote.JoinURL(destBase, dir, file.Name)
		if err != nil {
			slog.Error("Cannot build destination path", "dir", dir, "name", file.Name, "error", err)
			continue
		}
		select {
		case out <- NewTask(originURL, dest, file.Size):
		case <-ctx.Done():
			return
		}
	}

	if remaining <= 0 {
		return
	}
	var wg sync.WaitGroup
	for _, subdir := range subdirs {
		if !h.DirSel(level, subdir) {
			continue
		}
		subPath, err := remote.JoinURL(dir, subdir)
		if err != nil {
			slog.Error("Cannot build subdirectory path", "dir", dir, "subdir", subdir, "error", err)
			continue
		}
		wg.Add(1)
		go func(subPath string) {
			defer wg.Done()
			h.walk(ctx, base, subPath, destBase, level+1, remaining-1, out)
		}(subPath)
	}
	wg.Wait()
}

// TasksForLFNs resolves an explicit list of logical file names into tasks,
// issuing one long-format listing per distinct parent directory to recover
// the sizes. With strip prefixes configured, each parent directory must
// match exactly one of them; the matched part is replaced by destBase.
// Without prefixes the full directory path is mirrored under destBase.
func (h *Harvester) TasksForLFNs(ctx context.Context, lfns []string, destBase string, strip []string) ([]*Task, error) {
	names := make(map[string][]string)
	var dirs []string
	for _, lfn := range lfns {
		dir, base := splitLFN(lfn)
		if _, seen := names[dir]; !seen {
			dirs = append(dirs, dir)
		}
		names[dir] = append(names[dir], base)
	}

	var tasks []*Task
	for _, dir := range dirs {
		url, err := remote.JoinURL(h.SRM, dir)
		if err != nil {
			return nil, err
		}
		destDir, err := resolveDestDir(destBase, dir, strip)
		if err != nil {
			return nil, err
		}
		sizes, err := h.Lister.ListDetailed(ctx, url)
		if err != nil {
			slog.Error("Listing failed, skipping directory", "url", url, "error", err)
			continue
		}
		for _, name := range names[dir] {
			size, found := sizes[name]
			if !found {
				slog.Warn("Not found in directory listing, skipping", "dir", dir, "name", name)
				continue
			}
			originURL, err := remote.JoinURL(h.SRM, dir, name)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, NewTask(originURL, filepath.Join(destDir, name), size))
		}
	}
	return tasks, nil
}

func splitLFN(lfn string) (dir, base string) {
	i := strings.LastIndex(lfn, "/")
	if i < 0 {
		return "", lfn
	}
	return lfn[:i], lfn[i+1:]
}

func resolveDestDir(destBase, dir string, strip []string) (string, error) {
	if len(strip) == 0 {
		return filepath.Join(destBase, strings.TrimLeft(dir, "/")), nil
	}
	var matched []string
	for _, prefix := range strip {
		if strings.HasPrefix(dir, prefix) {
			matched = append(matched, prefix)
		}
	}
	switch len(matched) {
	case 0:
		return "", fmt.Errorf("directory %s against prefixes %v: %w", dir, strip, ErrUnresolvedPrefix)
	case 1:
		stripped := strings.TrimLeft(strings.TrimPrefix(dir, matched[0]), "/")
		return filepath.Join(destBase, stripped), nil
	default:
		return "", fmt.Errorf("directory %s matches %v: %w", dir, matched, ErrAmbiguousPrefix)
	}
}
