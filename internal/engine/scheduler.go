package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"srmsync/internal/remote"
)

// Summary aggregates a completed run.
type Summary struct {
	Total     int
	Succeeded int
	Bytes     uint64
}

// Scheduler drives tasks to completion on a bounded pool of download
// workers, independent of the harvester's listing bound. A failed task is
// logged and counted; it never stops the others.
type Scheduler struct {
	Copier *remote.Copier
	Jobs   int
}

type taskResult struct {
	task *Task
	err  error
}

// Run executes all tasks and reports progress each time the completed
// percentage advances. Completion order is whatever the workers produce.
func (s *Scheduler) Run(ctx context.Context, tasks []*Task) Summary {
	summary := Summary{Total: len(tasks)}
	for _, t := range tasks {
		summary.Bytes += t.ExpectedBytes
	}
	if len(tasks) == 0 {
		return summary
	}

	jobs := s.Jobs
	if jobs < 1 {
		jobs = 1
	}
	slog.Info("Launching simultaneous downloads", "jobs", jobs)

	work := make(chan *Task)
	results := make(chan taskResult)

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range work {
				outcome, err := task.Run(ctx, s.Copier)
				if err == nil && outcome == AlreadyComplete {
					slog.Debug("Already downloaded", "origin", task.OriginURL)
				}
				results <- taskResult{task: task, err: err}
			}
		}()
	}
	go func() {
		defer close(work)
		for _, task := range tasks {
			select {
			case work <- task:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	prog := newProgress(len(tasks))
	completed := 0
	for result := range results {
		completed++
		if result.err != nil {
			slog.Error("Download failed",
				"origin", result.task.OriginURL, "dest", result.task.Dest, "error", result.err)
		} else {
			summary.Succeeded++
			slog.Debug("Downloaded", "origin", result.task.OriginURL)
		}
		if percent, report := prog.advance(completed); report {
			slog.Info(fmt.Sprintf("Finished %d/%d downloads (%d successful)", completed, len(tasks), summary.Succeeded),
				"percent", percent)
		}
	}

	slog.Info(fmt.Sprintf("%d/%d downloads finished successfully", summary.Succeeded, summary.Total))
	return summary
}

// progress tracks the highest percentage already reported, so each distinct
// percentage is reported at most once and never goes backwards.
type progress struct {
	total    int
	reported int
}

func newProgress(total int) *progress {
	return &progress{total: total, reported: 0}
}

func (p *progress) advance(completed int) (percent int, report bool) {
	if p.total <= 0 {
		return 0, false
	}
	percent = completed * 100 / p.total
	if percent <= p.reported {
		return percent, false
	}
	p.reported = percent
	return percent, true
}
