package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"remote-sync/internal/events"
	"remote-sync/internal/history"
	"remote-sync/internal/ledger"
	"remote-sync/internal/messages"
	"remote-sync/internal/settings"
	"remote-sync/internal/syncer"
	"remote-sync/internal/util"
)

var (
	settingsPath string
	debugFlag    bool
	verboseFlag  bool
	noLedger     bool
)

// app is the process-wide state shared by every subcommand.
type app struct {
	settings  *settings.Settings
	engine    *syncer.Engine
	ledger    *ledger.Ledger
	projects  *history.Store
	logCloser io.Closer
}

var current *app

var rootCmd = &cobra.Command{
	Use:   "remote-sync",
	Short: "Keep project files in sync with FTP and SFTP remotes",
	Long: `Upload, download, rename and compare project files against every remote
configured in the nearest ftpsync.settings file. Use 'remote-sync init' to
create one, then 'remote-sync watch' to upload on save.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		Shutdown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "process settings file (default "+filepath.Join(settings.ConfigDir(), settings.SettingsName+".yaml")+")")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "write diagnostics to the log file")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "also write verbose diagnostics (implies --debug)")
	rootCmd.PersistentFlags().BoolVar(&noLedger, "no-ledger", false, "do not journal transfers")
}

func setup(cmd *cobra.Command, args []string) error {
	s, err := settings.Load(settingsPath)
	if err != nil {
		return err
	}
	if debugFlag {
		s.Debug = true
	}
	if verboseFlag {
		s.Debug = true
		s.DebugVerbose = true
	}

	a := &app{settings: s}

	closer, err := util.SetupLogFile(s.LogFile)
	if err != nil {
		util.Default.Printf("⚠️  Failed to open log file: %v\n", err)
	} else {
		a.logCloser = closer
	}

	var journal syncer.Journal
	if !noLedger {
		l, err := ledger.Open(ledger.DefaultPath(), nil)
		if err != nil {
			util.Default.Printf("⚠️  Transfer ledger unavailable: %v\n", err)
		} else {
			a.ledger = l
			journal = l
		}
	}

	a.projects = history.NewStore(nil, history.DefaultPath(settings.ConfigDir()))

	a.engine = syncer.New(syncer.Options{
		Settings:  s,
		Sink:      messages.NewPrinter(s.Debug, s.DebugVerbose),
		Presenter: newPromptPresenter(isInteractive()),
		Journal:   journal,
	})

	events.GlobalBus.SubscribeAsync(events.EventStatusMessage, printStatus, true)
	current = a
	return nil
}

func printStatus(text string) {
	util.Default.Status(text)
}

// Shutdown waits for running commands and releases connections, the ledger
// and the log file. It is safe to call more than once.
func Shutdown() {
	a := current
	if a == nil {
		return
	}
	current = nil

	a.engine.Wait()
	a.engine.Close()
	events.GlobalBus.WaitAsync()
	_ = events.GlobalBus.Unsubscribe(events.EventStatusMessage, printStatus)

	if a.ledger != nil {
		_ = a.ledger.Close()
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

// remember adds the project of path to the recent projects list.
func remember(path string) {
	configPath, ok := current.engine.Resolver.Resolve(path)
	if !ok {
		return
	}
	_ = current.projects.Add(filepath.Dir(configPath))
}

// absPaths makes every argument absolute; no arguments means the working
// directory.
func absPaths(args []string) ([]string, error) {
	if len(args) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		return []string{cwd}, nil
	}
	out := make([]string, 0, len(args))
	for _, a := range args {
		p, err := filepath.Abs(a)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", a, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ExecuteContext runs the command tree with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
