package cmd

import (
	"github.com/spf13/cobra"

	"remote-sync/internal/util"
)

var downloadForce bool

var uploadCmd = &cobra.Command{
	Use:   "upload [path...]",
	Short: "Upload files or directories to every remote",
	Long:  `Upload the given files and directory trees to every remote of their config. Ignored paths are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := absPaths(args)
		if err != nil {
			return err
		}
		current.engine.UploadPaths(paths)
		current.engine.Wait()
		remember(paths[0])
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download [path...]",
	Short: "Download files or directories from every remote",
	Long: `Download the given files and directory trees. Without --force, files in a
directory are only fetched when the remote copy is newer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := absPaths(args)
		if err != nil {
			return err
		}
		current.engine.DownloadPaths(paths, downloadForce)
		current.engine.Wait()
		remember(paths[0])
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <path> <new-name>",
	Short: "Rename a file locally and on every remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := absPaths(args[:1])
		if err != nil {
			return err
		}
		current.engine.RenamePath(paths[0], args[1])
		current.engine.Wait()
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <path...>",
	Short: "Compare files with their remote versions",
	Long:  `List remote versions that are newer or differ in size and offer to download one.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := absPaths(args)
		if err != nil {
			return err
		}
		for _, p := range paths {
			current.engine.CheckPath(p)
		}
		current.engine.Wait()

		if pending := current.engine.Decisions.Pending(); len(pending) > 0 {
			util.Default.Printf("⚠️  %d decision(s) left unanswered\n", len(pending))
		}
		return nil
	},
}

func init() {
	downloadCmd.Flags().BoolVarP(&downloadForce, "force", "f", false, "download even when the local copy is newer")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(checkCmd)
}
