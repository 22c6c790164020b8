package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"srmsync/internal/remote"
)

const testSRM = "srm://se.example:8443/srm/managerv2?SFN=/pnfs/se.example/data"

// treeRunner serves listings for the remote tree
//
//	root/A/f1.root (100 B)
//	root/A/f2.root (200 B)
//	root/B/f3.root (50 B)
//	root/B/skip.txt (10 B)
//	root/C/...     (one level deeper)
func newTreeRunner() *fakeRunner {
	abs := "/pnfs/se.example/data/"
	return &fakeRunner{outputs: map[string]string{
		"srmls " + testSRM + "/root": "" +
			"      512 " + abs + "root/A/\n" +
			"      512 " + abs + "root/B/\n" +
			"      512 " + abs + "root/C/\n",
		"srmls " + testSRM + "/root/A/": "" +
			"      100 " + abs + "root/A/f1.root\n" +
			"      200 " + abs + "root/A/f2.root\n",
		"srmls " + testSRM + "/root/B/": "" +
			"      50 " + abs + "root/B/f3.root\n" +
			"      10 " + abs + "root/B/skip.txt\n",
		"srmls " + testSRM + "/root/C/": "" +
			"      512 " + abs + "root/C/deeper/\n",
		"srmls " + testSRM + "/root/C/deeper/": "" +
			"      77 " + abs + "root/C/deeper/f4.root\n",
	}}
}

func newTreeHarvester(runner *fakeRunner, dirSel DirSelector) *Harvester {
	lister := remote.NewLister("srmls", "gfal-ls", nil, runner)
	return NewHarvester(testSRM, lister, 4, dirSel, GlobFileSelector("*.root"))
}

func collect(ch <-chan *Task) []*Task {
	var tasks []*Task
	for task := range ch {
		tasks = append(tasks, task)
	}
	return tasks
}

func TestWalkDepthTwo(t *testing.T) {
	runner := newTreeRunner()
	harvester := newTreeHarvester(runner, nil)
	dest := t.TempDir()

	tasks := collect(harvester.Walk(context.Background(), "root", dest, 2))

	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3: %v", len(tasks), tasks)
	}
	var total uint64
	byDest := make(map[string]*Task)
	for _, task := range tasks {
		total += task.ExpectedBytes
		byDest[task.Dest] = task
		if task.Done() {
			t.Errorf("task %s already done against an empty destination", task.Dest)
		}
	}
	if total != 350 {
		t.Errorf("total bytes = %d, want 350", total)
	}

	f1 := byDest[dest+"/A/f1.root"]
	if f1 == nil {
		t.Fatalf("no task for A/f1.root, destinations: %v", destinations(tasks))
	}
	if f1.OriginURL != testSRM+"/root/A/f1.root" {
		t.Errorf("origin = %s, want %s", f1.OriginURL, testSRM+"/root/A/f1.root")
	}
	if f1.ExpectedBytes != 100 {
		t.Errorf("expected bytes = %d, want 100", f1.ExpectedBytes)
	}
	// skip.txt rejected by the file filter, deeper/f4.root below the depth limit
	if byDest[dest+"/B/skip.txt"] != nil {
		t.Error("filtered file produced a task")
	}
	if byDest[dest+"/C/deeper/f4.root"] != nil {
		t.Error("task below the depth limit")
	}
}

func TestWalkDepthOneListsNothingBelow(t *testing.T) {
	runner := newTreeRunner()
	harvester := newTreeHarvester(runner, nil)

	tasks := collect(harvester.Walk(context.Background(), "root", t.TempDir(), 1))

	if len(tasks) != 0 {
		t.Errorf("got %d tasks at depth 1, want 0", len(tasks))
	}
	if runner.callCount() != 1 {
		t.Errorf("%d listing calls at depth 1, want 1: %v", runner.callCount(), runner.calls)
	}
}

func TestWalkDepthThreeReachesDeeper(t *testing.T) {
	runner := newTreeRunner()
	harvester := newTreeHarvester(runner, nil)
	dest := t.TempDir()

	tasks := collect(harvester.Walk(context.Background(), "root", dest, 3))

	found := false
	for _, task := range tasks {
		if task.Dest == dest+"/C/deeper/f4.root" {
			found = true
		}
	}
	if !found {
		t.Errorf("deeper file not harvested at depth 3, destinations: %v", destinations(tasks))
	}
}

func TestWalkDirectoryFilter(t *testing.T) {
	runner := newTreeRunner()
	harvester := newTreeHarvester(runner, LevelDirSelector(0, []string{"A"}))
	dest := t.TempDir()

	tasks := collect(harvester.Walk(context.Background(), "root", dest, 2))

	if len(tasks) != 2 {
		t.Fatalf("got %d tasks with dir filter, want 2: %v", len(tasks), destinations(tasks))
	}
	for _, call := range runner.calls {
		if strings.Contains(call, "/root/B/") || strings.Contains(call, "/root/C/") {
			t.Errorf("rejected directory was listed: %s", call)
		}
	}
}

func TestWalkListingFailureContinues(t *testing.T) {
	runner := newTreeRunner()
	delete(runner.outputs, "srmls "+testSRM+"/root/B/")
	harvester := newTreeHarvester(runner, nil)
	dest := t.TempDir()

	tasks := collect(harvester.Walk(context.Background(), "root", dest, 2))

	// the broken branch yields nothing, the others survive
	if len(tasks) != 2 {
		t.Errorf("got %d tasks, want 2: %v", len(tasks), destinations(tasks))
	}
}

func destinations(tasks []*Task) []string {
	dests := make([]string, len(tasks))
	for i, task := range tasks {
		dests[i] = task.Dest
	}
	sort.Strings(dests)
	return dests
}

func lfnListing(entries map[string]uint64) string {
	var sb strings.Builder
	for name, size := range entries {
		fmt.Fprintf(&sb, "-rw-r--r-- 1 u g %d Jan  1 00:00 %s\n", size, name)
	}
	return sb.String()
}

func TestTasksForLFNs(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"gfal-ls -l " + testSRM + "/store/X": lfnListing(map[string]uint64{
			"a.root": 100,
			"b.root": 250,
		}),
	}}
	harvester := newTreeHarvester(runner, nil)
	dest := t.TempDir()

	tasks, err := harvester.TasksForLFNs(context.Background(),
		[]string{"/store/X/a.root", "/store/X/b.root"}, dest, []string{"/store/"})
	if err != nil {
		t.Fatalf("TasksForLFNs() error = %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if runner.callCount() != 1 {
		t.Errorf("%d listing calls, want 1 per distinct directory: %v", runner.callCount(), runner.calls)
	}
	if tasks[0].Dest != filepath.Join(dest, "X", "a.root") {
		t.Errorf("dest = %s, want %s", tasks[0].Dest, filepath.Join(dest, "X", "a.root"))
	}
	if tasks[1].Dest != filepath.Join(dest, "X", "b.root") {
		t.Errorf("dest = %s, want %s", tasks[1].Dest, filepath.Join(dest, "X", "b.root"))
	}
	if tasks[0].OriginURL != testSRM+"/store/X/a.root" {
		t.Errorf("origin = %s, want %s", tasks[0].OriginURL, testSRM+"/store/X/a.root")
	}
	if tasks[1].ExpectedBytes != 250 {
		t.Errorf("expected bytes = %d, want 250", tasks[1].ExpectedBytes)
	}
}

func TestTasksForLFNsNoStripPrefixes(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"gfal-ls -l " + testSRM + "/store/X": lfnListing(map[string]uint64{"a.root": 100}),
	}}
	harvester := newTreeHarvester(runner, nil)
	dest := t.TempDir()

	tasks, err := harvester.TasksForLFNs(context.Background(), []string{"/store/X/a.root"}, dest, nil)
	if err != nil {
		t.Fatalf("TasksForLFNs() error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].Dest != filepath.Join(dest, "store", "X", "a.root") {
		t.Errorf("tasks = %v, want full path under destination root", destinations(tasks))
	}
}

func TestTasksForLFNsUnresolvedPrefix(t *testing.T) {
	runner := &fakeRunner{}
	harvester := newTreeHarvester(runner, nil)

	_, err := harvester.TasksForLFNs(context.Background(),
		[]string{"/other/X/a.root"}, t.TempDir(), []string{"/store/"})
	if !errors.Is(err, ErrUnresolvedPrefix) {
		t.Fatalf("TasksForLFNs() error = %v, want ErrUnresolvedPrefix", err)
	}
	// aborted before any listing or download
	if runner.callCount() != 0 {
		t.Errorf("%d external calls after fatal prefix error, want 0", runner.callCount())
	}
}

func TestTasksForLFNsAmbiguousPrefix(t *testing.T) {
	harvester := newTreeHarvester(&fakeRunner{}, nil)

	_, err := harvester.TasksForLFNs(context.Background(),
		[]string{"/store/X/a.root"}, t.TempDir(), []string{"/store/", "/store/X"})
	if !errors.Is(err, ErrAmbiguousPrefix) {
		t.Fatalf("TasksForLFNs() error = %v, want ErrAmbiguousPrefix", err)
	}
}

func TestTasksForLFNsMissingEntrySkipped(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"gfal-ls -l " + testSRM + "/store/X": lfnListing(map[string]uint64{"a.root": 100}),
	}}
	harvester := newTreeHarvester(runner, nil)

	tasks, err := harvester.TasksForLFNs(context.Background(),
		[]string{"/store/X/a.root", "/store/X/gone.root"}, t.TempDir(), []string{"/store/"})
	if err != nil {
		t.Fatalf("TasksForLFNs() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("got %d tasks, want 1 (missing entry skipped)", len(tasks))
	}
}
