package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"srmsync/internal/remote"
	"srmsync/pkg/utils"
)

var listCmd = &cobra.Command{
	Use:   "list [path]",
	Short: "List one level of a remote directory",
	Long: `List the immediate contents of a directory below the SRM root and print
the entries with their sizes as JSON.`,
	Example: `  # List a user area
  srmsync list --srm srm://... store/user/jdoe

  # Verbose output
  srmsync list --srm srm://... store/user/jdoe --verbose`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runList(cmd, args)
	},
}

type listEntry struct {
	Name      string `json:"name"`
	SizeBytes uint64 `json:"size_bytes"`
	SizeHuman string `json:"size_human"`
}

type listResult struct {
	URL            string      `json:"url"`
	Directories    []string    `json:"directories"`
	Files          []listEntry `json:"files"`
	TotalFiles     int         `json:"total_files"`
	TotalSizeBytes uint64      `json:"total_size_bytes"`
	TotalSizeHuman string      `json:"total_size_human"`
	OperationTime  string      `json:"operation_time"`
}

func runList(cmd *cobra.Command, args []string) {
	srm := getSRM(cmd)
	if srm == "" {
		utils.PrintError(errors.New("no SRM server given (--srm flag or SRM_URL)"), "list")
		return
	}
	path := args[0]

	if isVerbose(cmd) {
		cmd.Printf("Listing %s below %s\n", path, srm)
	}

	lister := remote.NewLister(cfg.LsCommand, cfg.LongLsCommand, nil, remote.NewRunner())
	subdirs, files := lister.List(cmd.Context(), srm, path)

	url, err := remote.JoinURL(srm, path)
	if err != nil {
		utils.PrintError(err, "list")
		return
	}

	result := listResult{
		URL:           url,
		Directories:   subdirs,
		Files:         make([]listEntry, 0, len(files)),
		TotalFiles:    len(files),
		OperationTime: utils.FormatTime(time.Now()),
	}
	for _, file := range files {
		result.Files = append(result.Files, listEntry{
			Name:      file.Name,
			SizeBytes: file.Size,
			SizeHuman: utils.FormatBytes(file.Size),
		})
		result.TotalSizeBytes += file.Size
	}
	result.TotalSizeHuman = utils.FormatBytes(result.TotalSizeBytes)

	if err := utils.PrintJSON(result); err != nil {
		utils.PrintError(err, "list")
	}
}
