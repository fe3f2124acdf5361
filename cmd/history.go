package cmd

import (
	"errors"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"remote-sync/internal/config"
	"remote-sync/internal/util"
)

var (
	historyLimit int
	historyReset bool
	projectsFind string
	projectsGone bool
)

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "Show journaled transfers",
	Long:  `List the latest uploads, downloads and renames, optionally limited to a path and everything below it.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if current.ledger == nil {
			return errors.New("transfer ledger is not available")
		}

		if historyReset {
			n, err := current.ledger.Reset()
			if err != nil {
				return err
			}
			util.Default.Printf("🧹 Removed %d record(s)\n", n)
			return nil
		}

		path := ""
		if len(args) == 1 {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			path = abs
		}

		transfers, err := current.ledger.History(path, historyLimit)
		if err != nil {
			return err
		}
		if len(transfers) == 0 {
			util.Default.Println("No transfers recorded")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
		for _, t := range transfers {
			hash := t.Hash
			if len(hash) > 8 {
				hash = hash[:8]
			}
			_, _ = tw.Write([]byte(t.CreatedAt.Local().Format(current.settings.TimeFormat) + "\t" +
				t.Direction + "\t" + t.Connection + "\t" + t.Path + "\t" + hash + "\n"))
		}
		return tw.Flush()
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List recently used project directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		if projectsFind != "" {
			for _, p := range current.projects.Search(projectsFind) {
				util.Default.Println(p)
			}
			return nil
		}

		entries, err := current.projects.Recent()
		if err != nil {
			return err
		}
		fs := afero.NewOsFs()
		for _, e := range entries {
			exists, _ := afero.Exists(fs, filepath.Join(e.Path, config.ConfigFileName))
			if !exists && projectsGone {
				_ = current.projects.Remove(e.Path)
				util.Default.Printf("🧹 Forgot %s\n", e.Path)
				continue
			}
			marker := "✅"
			if !exists {
				marker = "⚠️ "
			}
			util.Default.Printf("%s %s  (%s)\n", marker, e.Path, e.LastAccess.Local().Format(current.settings.TimeFormat))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of records to show, 0 for all")
	historyCmd.Flags().BoolVar(&historyReset, "reset", false, "delete every record")
	projectsCmd.Flags().StringVar(&projectsFind, "find", "", "only list paths containing this text")
	projectsCmd.Flags().BoolVar(&projectsGone, "prune", false, "forget projects without a settings file")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(projectsCmd)
}
