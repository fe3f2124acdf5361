package cmd

import (
	"errors"
	"os"
	"sync"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"

	"remote-sync/internal/decision"
	"remote-sync/internal/events"
	"remote-sync/internal/util"
)

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// promptPresenter asks the user to pick a choice. Only one prompt owns the
// terminal at a time; concurrent decisions queue up.
type promptPresenter struct {
	mu          sync.Mutex
	interactive bool
}

func newPromptPresenter(interactive bool) *promptPresenter {
	return &promptPresenter{interactive: interactive}
}

func (p *promptPresenter) Present(r *decision.Registry, pending *decision.Pending) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.interactive {
		util.Default.Println("⚠️  A decision is needed but no terminal is attached, keeping current state:")
		for i, choice := range pending.Choices {
			util.Default.Printf("   [%d] %s\n", i, choice)
		}
		_ = r.Resolve(pending.ID, decision.Dismissed)
		return
	}

	util.Default.Suspend()
	prompt := promptui.Select{
		Label: "Choose an action",
		Items: pending.Choices,
		Size:  len(pending.Choices),
	}
	index, _, err := prompt.Run()
	util.Default.Resume()

	if err != nil {
		index = decision.Dismissed
	}
	if errors.Is(err, promptui.ErrInterrupt) {
		// The prompt swallows Ctrl+C while the terminal is raw.
		events.GlobalBus.Publish(events.EventShutdownRequested, "prompt interrupted")
	}
	_ = r.Resolve(pending.ID, index)
}
