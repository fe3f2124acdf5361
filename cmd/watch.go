package cmd

import (
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"remote-sync/internal/events"
	"remote-sync/internal/syncer"
	"remote-sync/internal/util"
	"remote-sync/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Upload files as they are saved",
	Long: `Watch dir (the working directory by default) recursively. Every saved file is
uploaded to the remotes with upload_on_save, after the overwrite check of
remotes with overwrite_newer_prevention. Stop with Ctrl+C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs, err := absPaths(args)
		if err != nil {
			return err
		}
		root := dirs[0]

		w := watch.New(current.engine, root)
		if err := w.Prime(); err != nil {
			util.Default.Printf("⚠️  Failed to scan %s: %v\n", root, err)
		}
		remember(root)

		session := newWatchSession(root)
		session.subscribe()
		defer session.unsubscribe()

		util.Default.Printf("👀 Watching %s\n", root)
		if err := w.Run(cmd.Context()); err != nil {
			util.Default.Printf("❌ %v\n", err)
			return err
		}
		util.Default.Printf("🛑 Stopped watching, %d file(s) synced\n", session.synced())
		return nil
	},
}

// watchSession tallies completed transfers and picks up config files
// created below the watched root.
type watchSession struct {
	root string

	mu    sync.Mutex
	files map[string]bool
}

func newWatchSession(root string) *watchSession {
	return &watchSession{root: root, files: map[string]bool{}}
}

func (s *watchSession) subscribe() {
	_ = events.GlobalBus.Subscribe(events.EventCommandCompleted, s.completed)
	_ = events.GlobalBus.Subscribe(events.EventConfigCreated, s.configCreated)
}

func (s *watchSession) unsubscribe() {
	_ = events.GlobalBus.Unsubscribe(events.EventCommandCompleted, s.completed)
	_ = events.GlobalBus.Unsubscribe(events.EventConfigCreated, s.configCreated)
}

func (s *watchSession) completed(kind, path string, connections []string) {
	if kind != syncer.KindUpload {
		return
	}
	s.mu.Lock()
	s.files[path] = true
	s.mu.Unlock()
}

func (s *watchSession) configCreated(dir string) {
	rel, err := filepath.Rel(s.root, dir)
	if err != nil {
		rel = dir
	}
	util.Default.Printf("⚙️  Settings picked up in %s\n", rel)
	remember(dir)
}

func (s *watchSession) synced() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
