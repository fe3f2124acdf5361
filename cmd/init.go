package cmd

import (
	"github.com/spf13/cobra"

	"remote-sync/internal/util"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create an ftpsync.settings file",
	Long:  `Write the default ftpsync.settings template into dir (the working directory by default).`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs, err := absPaths(args)
		if err != nil {
			return err
		}

		path, err := current.engine.NewSettings(dirs[0])
		if err != nil {
			util.Default.Printf("❌ Failed to create settings file: %v\n", err)
			return err
		}
		if err := current.projects.Add(dirs[0]); err != nil {
			util.Default.Printf("⚠️  Failed to update recent projects: %v\n", err)
		}
		util.Default.Printf("📝 Edit %s to describe your remotes\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
