package remote

import (
	"context"
	"fmt"
	"path/filepath"
)

// Copier transfers single remote files to local paths through an external
// copy command, with an optional environment overlay (grid credentials and
// the like).
type Copier struct {
	Command string
	Env     map[string]string
	runner  Runner
}

func NewCopier(command string, env map[string]string, runner Runner) *Copier {
	return &Copier{Command: command, Env: env, runner: runner}
}

// Copy downloads originURL to dest. The copy command gets the absolute
// destination path; a non-zero exit is returned as an error with the
// captured diagnostics.
func (c *Copier) Copy(ctx context.Context, originURL, dest string) error {
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolve destination %s: %w", dest, err)
	}
	return c.runner.Run(ctx, c.Env, c.Command, originURL, absDest)
}
