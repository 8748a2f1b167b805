// Package progress renders per-customer progress of long pipeline stages on
// a terminal.
package progress

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Bar implements port.Progress with a progressbar per stage. Safe for
// concurrent Add calls from pipeline workers.
type Bar struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewBar renders to out.
func NewBar(out io.Writer) *Bar {
	return &Bar{out: out}
}

// Start opens a bar for stage sized to total.
func (b *Bar) Start(stage string, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bar = progressbar.NewOptions64(int64(total),
		progressbar.OptionSetWriter(b.out),
		progressbar.OptionSetDescription(stage),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("customers"),
		progressbar.OptionThrottle(0),
		progressbar.OptionClearOnFinish(),
	)
}

// Add advances the current bar.
func (b *Bar) Add(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil && n > 0 {
		_ = b.bar.Add(n)
	}
}

// Finish completes and drops the current bar.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Finish()
		b.bar = nil
	}
}

// Current returns the position of the open bar, or -1 when none is open.
func (b *Bar) Current() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil {
		return -1
	}
	return b.bar.State().CurrentNum
}
