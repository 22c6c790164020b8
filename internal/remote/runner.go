package remote

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner executes external commands. The default implementation shells out;
// tests substitute their own.
type Runner interface {
	// Output runs a command and returns its standard output.
	Output(ctx context.Context, env map[string]string, name string, args ...string) ([]byte, error)
	// Run runs a command, discarding its standard output.
	Run(ctx context.Context, env map[string]string, name string, args ...string) error
}

type execRunner struct{}

// NewRunner returns a Runner backed by os/exec.
func NewRunner() Runner {
	return execRunner{}
}

func (execRunner) Output(ctx context.Context, env map[string]string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = overlayEnviron(env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), commandError(name, args, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (execRunner) Run(ctx context.Context, env map[string]string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = overlayEnviron(env)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return commandError(name, args, err, stderr.String())
	}
	return nil
}

func commandError(name string, args []string, err error, stderr string) error {
	cmdline := name + " " + strings.Join(args, " ")
	if stderr = strings.TrimSpace(stderr); stderr != "" {
		return fmt.Errorf("command %q: %w: %s", cmdline, err, stderr)
	}
	return fmt.Errorf("command %q: %w", cmdline, err)
}

// overlayEnviron merges overrides into the current environment. A nil or
// empty overlay inherits the environment unchanged.
func overlayEnviron(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	merged := os.Environ()
	for key, value := range env {
		merged = append(merged, key+"="+value)
	}
	return merged
}
