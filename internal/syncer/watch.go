package syncer

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"remote-sync/internal/config"
	"remote-sync/internal/messages"
)

type fileState struct {
	size    int64
	modTime time.Time
}

// snapshot records size and modification time of every file matched by the
// watch rules, relative to base.
func (e *Engine) snapshot(base string, rules []config.WatchRule) map[string]fileState {
	out := map[string]fileState{}
	for _, rule := range rules {
		pattern := filepath.Join(base, rule.Folder, rule.Pattern)
		matches, err := afero.Glob(e.Fs, pattern)
		if err != nil {
			messages.Verbose(e.Sink, "", "Invalid watch pattern %s: %v", pattern, err)
			continue
		}
		for _, m := range matches {
			info, err := e.Fs.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			out[m] = fileState{size: info.Size(), modTime: info.ModTime()}
		}
	}
	return out
}

// changed lists files present in after that are new or differ from before.
func changed(before, after map[string]fileState) []string {
	var out []string
	for path, a := range after {
		b, ok := before[path]
		if !ok || b.size != a.size || !b.modTime.Equal(a.modTime) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}
