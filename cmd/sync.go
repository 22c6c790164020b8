package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"
	"srmsync/internal/engine"
	"srmsync/internal/remote"
	"srmsync/pkg/utils"
)

var syncCmd = &cobra.Command{
	Use:   "sync [path...]",
	Short: "Synchronize remote paths or LFN lists to local disk",
	Long: `Synchronize files from an SRM storage element to local disk.

Each path argument is either a local file holding logical file names (one
per line, blank lines and # comments ignored) or a path below the SRM root
to walk recursively. Files that already exist locally with at least the
remote size are skipped; smaller local files are removed and downloaded
again.`,
	Example: `  # Mirror one directory tree, two levels deep, four downloads at a time
  srmsync sync --srm srm://ingrid-se02.cism.ucl.ac.be:8444/srm/managerv2?SFN=/storage/data/cms \
      --dest /data/topnano --max-depth 2 -j 4 store/user/jdoe/topNano

  # Transfer the files named in an LFN list
  srmsync sync --srm srm://... --dest /data/topnano --lfn-strip /store/user/jdoe lfns/TT.txt

  # See what would be transferred
  srmsync sync --srm srm://... --dest /data/topnano --dry-run store/user/jdoe/topNano`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, args)
	},
}

func runSync(cmd *cobra.Command, args []string) error {
	srm := getSRM(cmd)
	if srm == "" {
		return errors.New("no SRM server given (--srm flag or SRM_URL)")
	}

	dest, _ := cmd.Flags().GetString("dest")
	filter, _ := cmd.Flags().GetString("filter")
	dirFilters, _ := cmd.Flags().GetStringArray("dirfilter")
	maxDepth, _ := cmd.Flags().GetInt("max-depth")
	lfnStrip, _ := cmd.Flags().GetStringArray("lfn-strip")
	gfalEnvPath, _ := cmd.Flags().GetString("gfalenv")
	jobs, _ := cmd.Flags().GetInt("jobs")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	env, err := loadEnvOverlay(gfalEnvPath)
	if err != nil {
		return err
	}
	jobs, err = resolveJobs(jobs)
	if err != nil {
		return err
	}

	runner := remote.NewRunner()
	lister := remote.NewLister(cfg.LsCommand, cfg.LongLsCommand, env, runner)
	harvester := engine.NewHarvester(srm, lister, cfg.ListJobs,
		engine.LevelDirSelector(1, dirFilters), engine.GlobFileSelector(filter))
	ctx := cmd.Context()

	var tasks []*engine.Task
	for _, path := range args {
		var pathTasks []*engine.Task
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			slog.Debug("Reading LFNs from file", "path", path)
			lfns, err := readLFNList(path)
			if err != nil {
				return err
			}
			pathTasks, err = harvester.TasksForLFNs(ctx, lfns, dest, lfnStrip)
			if err != nil {
				return err
			}
		} else {
			slog.Debug("Not a local file, walking the remote tree", "path", path)
			for task := range harvester.Walk(ctx, path, dest, maxDepth) {
				pathTasks = append(pathTasks, task)
			}
		}

		pending, pendingBytes := pendingOf(pathTasks)
		slog.Info("Files to synchronize", "path", path,
			"files", len(pathTasks), "todo", len(pending), "todoSize", utils.FormatBytes(pendingBytes))
		tasks = append(tasks, pathTasks...)
	}

	pending, pendingBytes := pendingOf(tasks)
	slog.Info(fmt.Sprintf("Still to download in total: %d files, %s",
		len(pending), utils.FormatBytes(pendingBytes)))

	if dryRun {
		for _, task := range pending {
			slog.Info("Would download", "task", task.String())
		}
		return nil
	}
	if len(pending) == 0 {
		return nil
	}

	scheduler := &engine.Scheduler{
		Copier: remote.NewCopier(cfg.CopyCommand, env, runner),
		Jobs:   jobs,
	}
	summary := scheduler.Run(ctx, pending)
	if summary.Succeeded < summary.Total {
		return fmt.Errorf("%d of %d downloads failed", summary.Total-summary.Succeeded, summary.Total)
	}
	return nil
}

func pendingOf(tasks []*engine.Task) ([]*engine.Task, uint64) {
	var pending []*engine.Task
	var bytes uint64
	for _, task := range tasks {
		if !task.Done() {
			pending = append(pending, task)
			bytes += task.ExpectedBytes
		}
	}
	return pending, bytes
}

// resolveJobs sizes the download pool; zero means one per CPU core.
func resolveJobs(jobs int) (int, error) {
	if jobs < 0 {
		return 0, fmt.Errorf("invalid job count %d", jobs)
	}
	if jobs > 0 {
		return jobs, nil
	}
	cores, err := cpu.Counts(true)
	if err != nil || cores < 1 {
		slog.Warn("Cannot determine CPU count, using one download job", "error", err)
		return 1, nil
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		slog.Debug("Host resources", "cores", cores, "availableMemory", utils.FormatBytes(vm.Available))
	}
	slog.Info("Sized download jobs from host CPUs", "jobs", cores)
	return cores, nil
}

// loadEnvOverlay reads a JSON file mapping environment variable names to
// values, passed to the copy and long-listing commands.
func loadEnvOverlay(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read environment overlay: %w", err)
	}
	var env map[string]string
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse environment overlay %s: %w", path, err)
	}
	return env, nil
}

// readLFNList reads logical file names from a list file, one per line,
// skipping blanks and # comments.
func readLFNList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read LFN list: %w", err)
	}
	defer file.Close()

	var lfns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lfns = append(lfns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read LFN list %s: %w", path, err)
	}
	return lfns, nil
}

func init() {
	syncCmd.Flags().StringP("dest", "o", ".", "Destination directory (current directory by default)")
	syncCmd.Flags().BoolP("dry-run", "n", false, "Print the list of files that would be downloaded")
	syncCmd.Flags().String("filter", "*.root", "Filter for file names")
	syncCmd.Flags().StringArray("dirfilter", nil, "Filter for directory names one level below each path (repeatable)")
	syncCmd.Flags().Int("max-depth", 1, "Maximum depth to scan")
	syncCmd.Flags().StringArray("lfn-strip", nil, "Leading part of the LFN to remove and replace by --dest (repeatable)")
	syncCmd.Flags().String("gfalenv", "", "JSON file with environment variables for the transfer commands")
	syncCmd.Flags().IntP("jobs", "j", 1, "Number of parallel downloads (0: one per CPU core)")
}
