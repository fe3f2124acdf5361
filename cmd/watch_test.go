package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"remote-sync/internal/events"
	"remote-sync/internal/syncer"
)

func TestWatchSessionCountsUploadedFiles(t *testing.T) {
	s := newWatchSession("/proj")
	s.subscribe()

	events.GlobalBus.Publish(events.EventCommandCompleted, syncer.KindUpload, "/proj/a.html", []string{"a"})
	events.GlobalBus.Publish(events.EventCommandCompleted, syncer.KindUpload, "/proj/a.html", []string{"b"})
	events.GlobalBus.Publish(events.EventCommandCompleted, syncer.KindDownload, "/proj/b.html", []string{"a"})
	assert.Equal(t, 1, s.synced())

	s.unsubscribe()
	events.GlobalBus.Publish(events.EventCommandCompleted, syncer.KindUpload, "/proj/c.html", []string{"a"})
	assert.Equal(t, 1, s.synced())
}
