package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"srmsync/internal/remote"
	"srmsync/pkg/utils"
)

// Outcome reports how a task reached completion.
type Outcome int

const (
	Downloaded Outcome = iota
	AlreadyComplete
)

// Task is one file transfer: origin URL, local destination and the size the
// remote reports. A task is created once by the harvester and then owned by
// a single download worker at a time.
type Task struct {
	OriginURL     string
	Dest          string
	ExpectedBytes uint64

	done bool
}

// NewTask builds a task and immediately classifies it against the local
// disk: a missing destination leaves it pending, an existing file at least
// as large as expected marks it done, and a smaller file is removed so the
// transfer restarts from scratch.
func NewTask(originURL, dest string, expectedBytes uint64) *Task {
	t := &Task{OriginURL: originURL, Dest: dest, ExpectedBytes: expectedBytes}
	t.done = t.checkDone()
	return t
}

func (t *Task) checkDone() bool {
	info, err := os.Stat(t.Dest)
	if err != nil {
		return false
	}
	diskSize := uint64(info.Size())
	if diskSize >= t.ExpectedBytes {
		return true
	}
	slog.Warn("Local file smaller than expected, removing",
		"dest", t.Dest, "size", diskSize, "expected", t.ExpectedBytes)
	if err := os.Remove(t.Dest); err != nil {
		slog.Error("Failed to remove partial file", "dest", t.Dest, "error", err)
	}
	return false
}

// Done reports whether the destination already satisfies the task.
func (t *Task) Done() bool {
	return t.done
}

// Run executes the transfer. A task already marked done never invokes the
// copier.
func (t *Task) Run(ctx context.Context, copier *remote.Copier) (Outcome, error) {
	if t.done {
		return AlreadyComplete, nil
	}
	if err := os.MkdirAll(filepath.Dir(t.Dest), 0o755); err != nil {
		return Downloaded, fmt.Errorf("create destination directory: %w", err)
	}
	if err := copier.Copy(ctx, t.OriginURL, t.Dest); err != nil {
		return Downloaded, err
	}
	t.done = true
	return Downloaded, nil
}

func (t *Task) String() string {
	state := "TODO"
	if t.done {
		state = "DONE"
	}
	return fmt.Sprintf("%s -> %s (%s, %s)", t.OriginURL, t.Dest, utils.FormatBytes(t.ExpectedBytes), state)
}
