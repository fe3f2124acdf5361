package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"remote-sync/cmd"
	"remote-sync/internal/events"
)

func main() {
	// Capture original terminal state (if stdin is a TTY) so a prompt
	// interrupted by a signal does not leave it raw.
	var origState *term.State
	if term.IsTerminal(int(os.Stdin.Fd())) {
		if st, err := term.GetState(int(os.Stdin.Fd())); err == nil {
			origState = st
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Listen for shutdown events from components via EventBus
	events.GlobalBus.Subscribe(events.EventShutdownRequested, func(reason string) {
		log.Printf("shutdown requested from component: %s\n", reason)
		cancel()
	})

	err := cmd.ExecuteContext(ctx)
	cmd.Shutdown()

	if origState != nil {
		_ = term.Restore(int(os.Stdin.Fd()), origState)
	}
	if err != nil {
		os.Exit(1)
	}
}
