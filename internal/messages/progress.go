package messages

import (
	"strconv"
	"strings"
	"sync"
)

const progressWidth = 20

// Progress counts processed entries of a batch. Safe for concurrent use.
type Progress struct {
	mu      sync.Mutex
	entries map[string]struct{}
	total   int
	current int
}

// NewProgress returns a Progress with an optional initial total.
func NewProgress(total int) *Progress {
	return &Progress{entries: map[string]struct{}{}, total: total}
}

// Add registers entries; duplicates are counted once.
func (p *Progress) Add(entries ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		if _, ok := p.entries[e]; ok {
			continue
		}
		p.entries[e] = struct{}{}
	}
}

// Step marks one more entry as processed.
func (p *Progress) Step() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current++
}

// Current returns the number of processed entries.
func (p *Progress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Total returns the larger of the registered entries and the initial total.
func (p *Progress) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) > p.total {
		return len(p.entries)
	}
	return p.total
}

// Percent is the progress on a 0..progressWidth scale.
func (p *Progress) Percent() int {
	total := p.Total()
	if total == 0 {
		return 0
	}
	pc := p.Current() * progressWidth / total
	if pc > progressWidth {
		pc = progressWidth
	}
	return pc
}

// ProgressMessage builds the status line reported after a command, e.g.
// "FTPSync [remotes: a,b]  [====------ 2/4] > uploaded {index.html}".
func ProgressMessage(stored []string, progress *Progress, action, basename string) string {
	var b strings.Builder
	b.WriteString(prefix + " [remotes: " + strings.Join(stored, ",") + "] ")

	if progress != nil {
		percent := progress.Percent()
		b.WriteString(" [")
		b.WriteString(strings.Repeat("=", percent))
		b.WriteString(strings.Repeat("--", progressWidth-percent))
		b.WriteString(" " + strconv.Itoa(progress.Current()) + "/" + strconv.Itoa(progress.Total()) + "] ")
	}

	return b.String() + "> " + action + "  {" + basename + "}"
}
