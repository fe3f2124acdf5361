// Package messages is the single output channel of the sync engine.
//
// Every message goes through a Sink. The default Printer gates diagnostics
// on the debug and verbose switches, and forwards status messages to the
// event bus where a front end shows them transiently.
package messages

import (
	"fmt"
	"log"
	"runtime/debug"
	"strings"

	"remote-sync/internal/events"
)

const prefix = "FTPSync"

// Message is one notification.
type Message struct {
	Text string
	// Name is a connection name or list of names, optional.
	Name string
	// VerboseOnly messages are logged only when verbose debugging is on.
	VerboseOnly bool
	// Status also shows the message on the transient channel.
	Status bool
	// Formatted text already carries the prefix, e.g. a progress line.
	Formatted bool
	// Stack is a goroutine trace logged after the text in debug mode.
	Stack string
}

// Sink receives notifications.
type Sink interface {
	Emit(m Message)
}

// Format renders m the way it appears in logs and on the status line.
func Format(m Message) string {
	if m.Formatted {
		return m.Text
	}
	var b strings.Builder
	b.WriteString(prefix)
	if m.Name != "" {
		b.WriteString(" [" + m.Name + "]")
	}
	b.WriteString(" > ")
	b.WriteString(m.Text)
	return b.String()
}

// Printer is the default Sink.
type Printer struct {
	Debug   bool
	Verbose bool
	// Logf receives diagnostics, defaults to log.Printf.
	Logf func(format string, v ...interface{})
	// Publish receives status lines, defaults to the global event bus.
	Publish func(text string)
}

// NewPrinter returns a Printer wired to the standard logger and the global bus.
func NewPrinter(isDebug, isVerbose bool) *Printer {
	return &Printer{Debug: isDebug, Verbose: isVerbose}
}

func (p *Printer) Emit(m Message) {
	text := Format(m)

	if p.Debug && (!m.VerboseOnly || p.Verbose) {
		logf := log.Printf
		if p.Logf != nil {
			logf = p.Logf
		}
		if m.Stack != "" {
			logf("%s\n%s", text, m.Stack)
		} else {
			logf("%s", text)
		}
	}

	if m.Status {
		if p.Publish != nil {
			p.Publish(text)
		} else {
			events.GlobalBus.Publish(events.EventStatusMessage, text)
		}
	}
}

// Status emits a message that is also shown on the transient channel.
func Status(s Sink, name, format string, a ...interface{}) {
	s.Emit(Message{Text: fmt.Sprintf(format, a...), Name: name, Status: true})
}

// Report emits a preformatted status line.
func Report(s Sink, text string) {
	s.Emit(Message{Text: text, Status: true, Formatted: true})
}

// Info emits a diagnostic.
func Info(s Sink, name, format string, a ...interface{}) {
	s.Emit(Message{Text: fmt.Sprintf(format, a...), Name: name})
}

// Verbose emits a diagnostic shown only in verbose mode.
func Verbose(s Sink, name, format string, a ...interface{}) {
	s.Emit(Message{Text: fmt.Sprintf(format, a...), Name: name, VerboseOnly: true})
}

// Failure reports err. The stack reaches the log only in debug mode, the
// status line gets the short form.
func Failure(s Sink, name, text string, err error) {
	s.Emit(Message{
		Text:   fmt.Sprintf("%s <Exception: %v>", text, err),
		Name:   name,
		Status: true,
		Stack:  string(debug.Stack()),
	})
}

// Discard drops every message.
type Discard struct{}

func (Discard) Emit(Message) {}
