package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"srmsync/internal/das"
	"srmsync/internal/remote"
	"srmsync/internal/siteinfo"
)

var lfnListsCmd = &cobra.Command{
	Use:   "lfnlists [process...]",
	Short: "Produce LFN lists and local path lists from the dataset catalog",
	Long: `Query the dataset catalog for the files of the selected samples and sort
them into per user and site LFN lists, ready to be transferred with
"srmsync sync". Each process argument is a sample name from the datasets
file, or a local file with one sample name per line.

The output directory gets an LFNs/<user>_<site>/<sample> list per sample
and site, a files/<sample>.txt list with the local paths the files will
have after the transfer, and a transfer.sh with the matching sync
commands.`,
	Example: `  # LFN lists for two samples
  srmsync lfnlists --year 2017 --input topNanoAOD-datasets.yml \
      --siteinfo sites.yml --dest /data/topnano --output lists/ TT ST_tW

  # Everything named in a process list, skipping transfers from the local site
  srmsync lfnlists --year 2018 --input topNanoAOD-datasets.yml --siteinfo sites.yml \
      --dest /data/topnano --output lists/ --homesite T2_BE_UCL processes.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLFNLists(cmd, args)
	},
}

// sampleConfig is one sample in the datasets file.
type sampleConfig struct {
	DBS         string `yaml:"dbs"`
	Responsible string `yaml:"responsible"`
}

type userSite struct {
	User string
	Site string
}

func runLFNLists(cmd *cobra.Command, args []string) error {
	year, _ := cmd.Flags().GetString("year")
	input, _ := cmd.Flags().GetString("input")
	dbsInstance, _ := cmd.Flags().GetString("dbs")
	output, _ := cmd.Flags().GetString("output")
	siteInfoPath, _ := cmd.Flags().GetString("siteinfo")
	dest, _ := cmd.Flags().GetString("dest")
	homeSite, _ := cmd.Flags().GetString("homesite")
	gfalEnvPath, _ := cmd.Flags().GetString("gfalenv")

	samples, err := selectSamples(input, year, args)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		slog.Info("No samples selected, done")
		return nil
	}

	info, err := siteinfo.Load(siteInfoPath)
	if err != nil {
		return err
	}

	lfnDir := filepath.Join(output, "LFNs")
	localDir := filepath.Join(output, "files")
	for _, dir := range []string{lfnDir, localDir} {
		if err := makeDir(dir); err != nil {
			return err
		}
	}

	instance := dbsInstance
	if instance == "prod/global" {
		instance = ""
	}
	catalog := das.NewClient(cfg.DasCommand, instance, remote.NewRunner())

	fileLists := make(map[userSite][]string)
	prefixes := make(map[userSite][]string)
	for name, sample := range samples {
		slog.Debug("Querying catalog", "sample", name, "dataset", sample.DBS)
		lfns, err := catalog.Files(cmd.Context(), sample.DBS)
		if err != nil {
			return fmt.Errorf("catalog query for %s: %w", name, err)
		}
		user, err := info.User(sample.Responsible)
		if err != nil {
			return err
		}
		siteByPrefix, err := user.SiteByPrefix()
		if err != nil {
			return err
		}

		bySite := make(map[string][]string)
		sitePrefixes := make(map[string][]string)
		var localFiles []string
		anyUnmatched := false
		for _, lfn := range lfns {
			prefix, site, found := matchPrefix(lfn, siteByPrefix)
			if !found {
				slog.Error("LFN does not start with any known prefix", "lfn", lfn, "user", user.Username)
				anyUnmatched = true
				continue
			}
			localFiles = append(localFiles, filepath.Join(dest, strings.TrimLeft(strings.TrimPrefix(lfn, prefix), "/")))
			bySite[site] = append(bySite[site], lfn)
			if !contains(sitePrefixes[site], prefix) {
				sitePrefixes[site] = append(sitePrefixes[site], prefix)
			}
		}
		if anyUnmatched {
			return fmt.Errorf("sample %s: some LFNs do not start with any of %s's prefixes", name, user.Username)
		}

		if err := writeList(filepath.Join(localDir, name+".txt"), localFiles); err != nil {
			return err
		}
		for site, siteLFNs := range bySite {
			key := userSite{User: user.Username, Site: site}
			dir := filepath.Join(lfnDir, user.Username+"_"+site)
			if err := makeDir(dir); err != nil {
				return err
			}
			listPath := filepath.Join(dir, name)
			if err := writeList(listPath, siteLFNs); err != nil {
				return err
			}
			fileLists[key] = append(fileLists[key], listPath)
			for _, prefix := range sitePrefixes[site] {
				if !contains(prefixes[key], prefix) {
					prefixes[key] = append(prefixes[key], prefix)
				}
			}
		}
		slog.Debug("Finished writing lists", "sample", name)
	}

	commands := transferCommands(info, fileLists, prefixes, dest, gfalEnvPath, homeSite)
	slog.Info("Commands to transfer these:\n" + strings.Join(commands, "\n"))
	return writeList(filepath.Join(output, "transfer.sh"), commands)
}

// selectSamples reads the datasets file and keeps the year's samples whose
// name was given directly or through a process list file.
func selectSamples(input, year string, processArgs []string) (map[string]sampleConfig, error) {
	selected := make(map[string]bool)
	for _, arg := range processArgs {
		if info, err := os.Stat(arg); err == nil && !info.IsDir() {
			names, err := readLFNList(arg) // same format: one name per line, # comments
			if err != nil {
				return nil, err
			}
			for _, name := range names {
				selected[name] = true
			}
		} else {
			selected[arg] = true
		}
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("read datasets file: %w", err)
	}
	var datasets map[string]map[string]sampleConfig
	if err := yaml.Unmarshal(data, &datasets); err != nil {
		return nil, fmt.Errorf("parse datasets file %s: %w", input, err)
	}

	samples := make(map[string]sampleConfig)
	for name, sample := range datasets[year] {
		if selected[name] {
			samples[name] = sample
		}
	}
	return samples, nil
}

func matchPrefix(lfn string, siteByPrefix map[string]string) (prefix, site string, found bool) {
	for prefix, site := range siteByPrefix {
		if strings.HasPrefix(lfn, prefix) {
			return prefix, site, true
		}
	}
	return "", "", false
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// makeDir creates a directory if needed. A pre-existing non-directory at
// the path is a configuration error, not something to overwrite.
func makeDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("output %s is not a usable directory: %w", path, err)
	}
	return nil
}

// writeList writes one entry per line. Refusing to overwrite keeps a rerun
// from silently clobbering lists that may already be in use.
func writeList(path string, lines []string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("output file %s already exists", path)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// transferCommands renders one sync invocation per user and site, skipping
// the home site.
func transferCommands(info *siteinfo.SiteInfo, fileLists, prefixes map[userSite][]string, dest, gfalEnvPath, homeSite string) []string {
	var commands []string
	for key, keyPrefixes := range prefixes {
		if key.Site == homeSite {
			continue
		}
		srm, err := info.SRM(key.Site)
		if err != nil {
			slog.Error("No SRM endpoint for site, skipping", "site", key.Site)
			continue
		}
		parts := []string{"srmsync", "sync", "-j5", "--srm=" + srm, "--dest=" + dest}
		if gfalEnvPath != "" {
			parts = append(parts, "--gfalenv="+gfalEnvPath)
		}
		for _, prefix := range keyPrefixes {
			parts = append(parts, "--lfn-strip="+prefix)
		}
		parts = append(parts, fileLists[key]...)
		commands = append(commands, strings.Join(parts, " "))
	}
	return commands
}

func init() {
	lfnListsCmd.Flags().String("year", "", "Data-taking year to select from the datasets file")
	lfnListsCmd.Flags().StringP("input", "i", "", "Datasets file (topNanoAOD-datasets format)")
	lfnListsCmd.Flags().String("dbs", "prod/phys03", "DBS instance to query")
	lfnListsCmd.Flags().StringP("output", "o", "", "Directory to write the lists to")
	lfnListsCmd.Flags().String("siteinfo", "", "YAML file with site information")
	lfnListsCmd.Flags().String("dest", "", "Destination directory the transfers will use")
	lfnListsCmd.Flags().String("homesite", "", "Current site (excluded from the transfer commands)")
	lfnListsCmd.Flags().String("gfalenv", "", "JSON environment overlay to reference in the transfer commands")
	lfnListsCmd.MarkFlagRequired("input")
	lfnListsCmd.MarkFlagRequired("siteinfo")
	lfnListsCmd.MarkFlagRequired("output")
	lfnListsCmd.MarkFlagRequired("dest")
}
