package events

import "github.com/asaskevich/EventBus"

// GlobalBus is the shared event bus for the entire application
var GlobalBus EventBus.Bus

func init() {
	GlobalBus = EventBus.New()
}

// Event types for application-wide coordination
const (
	// Shutdown events
	EventShutdownRequested = "app:shutdown:requested"

	// Status messages meant for a transient, user-visible channel.
	// Handler signature: func(text string)
	EventStatusMessage = "sync:status"

	// A config file was created in a directory.
	// Handler signature: func(dir string)
	EventConfigCreated = "config:created"

	// A command finished transferring to at least one connection.
	// Handler signature: func(kind, path string, connections []string)
	EventCommandCompleted = "sync:command:completed"
)
