// Package das queries the dataset catalog through the external DAS client.
package das

import (
	"context"
	"strings"

	"srmsync/internal/remote"
)

// Client wraps the catalog query command (dasgoclient by default).
// Instance selects a non-default DBS instance; empty means the client's
// default.
type Client struct {
	Command  string
	Instance string
	runner   remote.Runner
}

func NewClient(command, instance string, runner remote.Runner) *Client {
	return &Client{Command: command, Instance: instance, runner: runner}
}

// Datasets returns the dataset names matching a pattern.
func (c *Client) Datasets(ctx context.Context, pattern string) ([]string, error) {
	return c.query(ctx, "dataset dataset="+pattern)
}

// Files returns the LFNs of all files in a dataset.
func (c *Client) Files(ctx context.Context, dataset string) ([]string, error) {
	return c.query(ctx, "file dataset="+dataset)
}

// Parents returns the parent datasets of a dataset.
func (c *Client) Parents(ctx context.Context, dataset string) ([]string, error) {
	return c.query(ctx, "parent dataset="+dataset)
}

func (c *Client) query(ctx context.Context, query string) ([]string, error) {
	if c.Instance != "" {
		query += " instance=" + c.Instance
	}
	output, err := c.runner.Output(ctx, nil, c.Command, "-query", query)
	if err != nil {
		return nil, err
	}

	var results []string
	for _, line := range strings.Split(string(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			results = append(results, line)
		}
	}
	return results, nil
}
