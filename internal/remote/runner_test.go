package remote

import (
	"context"
	"strings"
	"testing"
)

func TestOverlayEnviron(t *testing.T) {
	if env := overlayEnviron(nil); env != nil {
		t.Errorf("overlayEnviron(nil) = %v, want nil (inherit)", env)
	}
	if env := overlayEnviron(map[string]string{}); env != nil {
		t.Errorf("overlayEnviron(empty) = %v, want nil (inherit)", env)
	}

	env := overlayEnviron(map[string]string{"X509_USER_PROXY": "/tmp/proxy"})
	found := false
	for _, entry := range env {
		if entry == "X509_USER_PROXY=/tmp/proxy" {
			found = true
		}
	}
	if !found {
		t.Errorf("overlay entry missing from %d environment entries", len(env))
	}
}

func TestRunnerOutput(t *testing.T) {
	runner := NewRunner()

	out, err := runner.Output(context.Background(), nil, "echo", "hello")
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Errorf("Output() = %q, want hello", out)
	}
}

func TestRunnerOutputFailure(t *testing.T) {
	runner := NewRunner()

	_, err := runner.Output(context.Background(), nil, "false")
	if err == nil {
		t.Error("Output() error = nil for a failing command")
	}
}

func TestRunnerRunWithEnv(t *testing.T) {
	runner := NewRunner()

	err := runner.Run(context.Background(), map[string]string{"SRMSYNC_TEST_VAR": "1"}, "sh", "-c", `test "$SRMSYNC_TEST_VAR" = "1"`)
	if err != nil {
		t.Errorf("Run() error = %v, want environment overlay applied", err)
	}
}
