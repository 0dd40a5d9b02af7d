package worker

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const barWidth = 30

// Progress renders a single-line progress bar for cache warming.
type Progress struct {
	mu        sync.Mutex
	out       io.Writer
	start     time.Time
	total     int
	completed int
	failed    int
	quiet     bool
}

// NewProgress creates a tracker writing to out. A quiet tracker only counts.
func NewProgress(out io.Writer, total int, quiet bool) *Progress {
	return &Progress{out: out, total: total, start: time.Now(), quiet: quiet}
}

// Callback returns a ProgressFunc for Config.OnProgress.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

// Update records progress and redraws the bar.
func (p *Progress) Update(completed, total, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed, p.total, p.failed = completed, total, failed
	if !p.quiet {
		fmt.Fprint(p.out, "\r"+p.lineLocked())
	}
}

// Done ends the progress line.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.quiet {
		fmt.Fprintln(p.out, "\r"+p.lineLocked())
	}
}

func (p *Progress) lineLocked() string {
	filled := 0
	if p.total > 0 {
		filled = p.completed * barWidth / p.total
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s%s] %d/%d tiles",
		strings.Repeat("█", filled), strings.Repeat("░", barWidth-filled), p.completed, p.total)
	if p.failed > 0 {
		fmt.Fprintf(&b, " (%d failed)", p.failed)
	}
	elapsed := time.Since(p.start)
	if p.completed > 0 && p.completed < p.total {
		rate := float64(p.completed) / elapsed.Seconds()
		eta := time.Duration(float64(p.total-p.completed)/rate) * time.Second
		fmt.Fprintf(&b, " %.1f/s ETA %s", rate, formatDuration(eta))
	}
	if p.completed == p.total {
		fmt.Fprintf(&b, " done in %s", formatDuration(elapsed))
	}
	return b.String()
}

// Summary describes the finished run.
func (p *Progress) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("cached %d/%d tiles (%d failed) in %s",
		p.completed-p.failed, p.total, p.failed, formatDuration(time.Since(p.start)))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
