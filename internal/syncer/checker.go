package syncer

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"remote-sync/internal/config"
	"remote-sync/internal/decision"
	"remote-sync/internal/messages"
)

// candidate is a remote version worth offering instead of the local file.
type candidate struct {
	MetadataResult
	newer       bool
	sizeDiffers bool
}

// localState is what the checker compares remote entries against. A missing
// local file has a zero time and size -1.
type localState struct {
	size    int64
	modTime time.Time
}

func (e *Engine) localState(path string) localState {
	info, err := e.Fs.Stat(path)
	if err != nil {
		return localState{size: -1}
	}
	return localState{size: info.Size(), modTime: info.ModTime()}
}

// rank labels every remote entry against the local file and orders them
// newest first.
func rank(local localState, results []MetadataResult) []candidate {
	out := make([]candidate, 0, len(results))
	for _, r := range results {
		c := candidate{MetadataResult: r}
		if r.Metadata.IsNewerThan(local.modTime) {
			c.newer = true
		} else if r.Metadata.IsDifferentSize(local.size) {
			c.sizeDiffers = true
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata.ModTime.After(out[j].Metadata.ModTime)
	})
	return out
}

// classify flags remote entries that are newer than the local file, or not
// newer but of a different size. Flagged entries are returned newest first.
func classify(local localState, results []MetadataResult) []candidate {
	var out []candidate
	for _, c := range rank(local, results) {
		if c.newer || c.sizeDiffers {
			out = append(out, c)
		}
	}
	return out
}

// kilobytes renders a byte count the way the choice list shows sizes.
func kilobytes(size int64) string {
	kb := math.Round(float64(size)/1024*1000) / 1000
	return strconv.FormatFloat(kb, 'f', -1, 64)
}

func (e *Engine) formatTime(t time.Time) string {
	return t.Local().Format(e.Settings.TimeFormat)
}

func (e *Engine) choiceFor(c candidate, local localState) string {
	size := "same size"
	if c.Metadata.Size != local.size {
		relation := "smaller"
		if c.Metadata.Size > local.size {
			relation = "larger"
		}
		size = fmt.Sprintf("%s kB ~ %s", kilobytes(c.Metadata.Size), relation)
	}
	age := "older"
	if c.newer {
		age = "newer"
	}
	return fmt.Sprintf("Get from %s (%s | %s ~ %s)", c.Connection, size, e.formatTime(c.Metadata.ModTime), age)
}

// Check compares path with its remote versions. Unless forced, only
// download_on_open connections are asked. When any remote version is newer
// or differs in size the user picks among all of them; the returned pending
// decision is nil when nothing needs deciding.
func (e *Engine) Check(path string, forced bool) *decision.Pending {
	var keep func(c *config.Connection) bool
	if !forced {
		keep = func(c *config.Connection) bool { return c.DownloadOnOpen }
	}

	name := filepath.Base(path)
	results := e.GetMetadata(path, nil, keep)
	if len(results) == 0 {
		if forced {
			messages.Status(e.Sink, "", "No version of {%s} found on any server", name)
		}
		return nil
	}

	local := e.localState(path)
	flagged := classify(local, results)
	if len(flagged) == 0 {
		messages.Status(e.Sink, "", "All remote versions of {%s} are of same size and older", name)
		return nil
	}

	// Once anything differs every remote version is offered.
	every := rank(local, results)
	choices := []string{fmt.Sprintf("Keep current (%s kB | %s)", kilobytes(max(local.size, 0)), e.formatTime(local.modTime))}
	for _, c := range every {
		choices = append(choices, e.choiceFor(c, local))
	}

	names := make([]string, 0, len(flagged))
	for _, c := range flagged {
		names = append(names, c.Connection)
	}
	messages.Status(e.Sink, strings.Join(names, ","), "Different version of {%s} found", name)

	return e.Decisions.Propose(choices, func(index int) {
		if index <= 0 {
			return
		}
		if index > len(every) {
			return
		}
		target := every[index-1].Connection
		e.Go(func() {
			e.Download(path, DownloadOptions{Forced: true, Whitelist: []string{target}})
		})
	})
}

// PreSave defers the coming on-save upload of path when a connection that
// guards against overwriting newer files has a newer remote version.
// previous is the local modification time before the save; zero means the
// current one.
func (e *Engine) PreSave(path string, previous time.Time) *decision.Pending {
	if e.Ignored(path) {
		return nil
	}

	results := e.GetMetadata(path, nil, func(c *config.Connection) bool {
		return c.UploadOnSave && c.OverwriteNewerPrevention && !c.IgnoreMatch(path)
	})
	if len(results) == 0 {
		return nil
	}

	local := e.localState(path)
	if !previous.IsZero() {
		local.modTime = previous
	}

	var newer []MetadataResult
	for _, r := range results {
		if r.Metadata.IsNewerThan(local.modTime) {
			newer = append(newer, r)
		}
	}
	if len(newer) == 0 {
		return nil
	}
	sort.SliceStable(newer, func(i, j int) bool {
		return newer[i].Metadata.ModTime.After(newer[j].Metadata.ModTime)
	})

	names := make([]string, 0, len(newer))
	for _, r := range newer {
		names = append(names, r.Connection)
	}

	e.preventMu.Lock()
	e.prevent[filepath.Clean(path)] = true
	e.preventMu.Unlock()

	messages.Status(e.Sink, strings.Join(names, ","), "Upload of {%s} withheld, a newer version exists", filepath.Base(path))
	choices := []string{
		fmt.Sprintf("Newer entry in <%s> - cancel upload?", strings.Join(names, ",")),
		fmt.Sprintf("Overwrite, newest: %s", e.formatTime(newer[0].Metadata.ModTime)),
	}
	return e.Decisions.Propose(choices, func(index int) {
		if index != 1 {
			return
		}
		e.Go(func() { e.Upload(path, UploadOptions{OnSave: true}) })
	})
}

// PostSave uploads path after a save unless PreSave withheld it.
func (e *Engine) PostSave(path string) []string {
	key := filepath.Clean(path)

	e.preventMu.Lock()
	prevented := e.prevent[key]
	delete(e.prevent, key)
	e.preventMu.Unlock()

	if prevented {
		messages.Verbose(e.Sink, "", "Upload withheld pending decision {%s}", filepath.Base(path))
		return nil
	}
	return e.Upload(path, UploadOptions{OnSave: true})
}
