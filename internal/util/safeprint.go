package util

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

type SafePrinter struct {
	mu        sync.Mutex
	out       io.Writer
	suspended bool
}

// Default is the shared SafePrinter used across the application to
// ensure all packages serialize their output to the terminal and avoid
// interleaving between goroutines.
var Default = &SafePrinter{out: os.Stdout}

// NewSafePrinter returns a printer writing to w.
func NewSafePrinter(w io.Writer) *SafePrinter {
	return &SafePrinter{out: w}
}

func (s *SafePrinter) Printf(format string, a ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suspended {
		return
	}
	fmt.Fprintf(s.out, format, a...)
}

func (s *SafePrinter) Println(a ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suspended {
		return
	}
	fmt.Fprintln(s.out, a...)
}

// Status overwrites the current line with a styled status message.
func (s *SafePrinter) Status(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suspended {
		return
	}
	fmt.Fprint(s.out, "\r\x1b[K"+statusStyle.Render(text))
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprint(s.out, "\n")
	}
}

// Suspend silences all subsequent prints until Resume is called.
// Interactive prompts take over the terminal while suspended.
func (s *SafePrinter) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = true
}

// Resume re-enables printing after Suspend.
func (s *SafePrinter) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = false
}
