package render

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/progress"
)

// Progress draws a single-line upload progress bar, redrawn in place.
type Progress struct {
	w     io.Writer
	name  string
	bar   progress.Model
	start time.Time
	last  int
}

func NewProgress(w io.Writer, name string) *Progress {
	return &Progress{
		w:     w,
		name:  name,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		start: time.Now(),
		last:  -1,
	}
}

// Update redraws the bar for sent of total packets. Redraws are skipped
// when the whole percentage has not changed.
func (p *Progress) Update(sent, total uint64) {
	frac := 1.0
	if total > 0 {
		frac = float64(sent) / float64(total)
	}
	pct := int(frac * 100)
	if pct == p.last {
		return
	}
	p.last = pct
	fmt.Fprintf(p.w, "\r%s %s %s",
		NameStyle.Render(p.name),
		p.bar.ViewAs(frac),
		MutedStyle.Render(fmt.Sprintf("%d/%d", sent, total)))
}

// Done ends the progress line with the outcome.
func (p *Progress) Done(err error) {
	elapsed := time.Since(p.start).Round(time.Millisecond)
	if err != nil {
		fmt.Fprintf(p.w, "\n%s %v\n", ErrorStyle.Render("failed:"), err)
		return
	}
	fmt.Fprintf(p.w, "\n%s %s in %s\n", SuccessStyle.Render("uploaded"), p.name, elapsed)
}
