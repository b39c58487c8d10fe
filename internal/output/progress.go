package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// writerIsTTY reports whether w is a terminal. Writers without an Fd()
// method, such as *bytes.Buffer, are never terminals.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

var (
	barFill  = color.New(color.FgCyan)
	barCount = color.New(color.Faint)
)

// ProgressBar tracks a batch of operations, one Increment per finished item.
// On a terminal it redraws in place; on anything else it stays silent until
// Finish so piped output is not flooded with partial lines.
type ProgressBar struct {
	mu     sync.Mutex
	total  int
	done   int
	label  string
	width  int
	writer io.Writer
}

// NewProgress returns a bar for total items, labeled with the batch
// description.
func NewProgress(total int, label string) *ProgressBar {
	return &ProgressBar{
		total:  total,
		label:  label,
		width:  30,
		writer: os.Stdout,
	}
}

// SetWriter redirects output, for tests.
func (p *ProgressBar) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
}

// SetLabel replaces the label shown next to the bar, typically with the
// item currently being worked on.
func (p *ProgressBar) SetLabel(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.label = label
	if writerIsTTY(p.writer) {
		p.draw()
	}
}

// Increment records one finished item and redraws.
func (p *ProgressBar) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done < p.total {
		p.done++
	}
	if writerIsTTY(p.writer) {
		p.draw()
	}
}

// Finish completes the bar. On a terminal the final state is left on its
// own line; elsewhere a single summary line is printed.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = p.total
	if writerIsTTY(p.writer) {
		p.draw()
		fmt.Fprintln(p.writer)
		return
	}
	fmt.Fprintf(p.writer, "%s: %d/%d\n", p.label, p.done, p.total)
}

// draw renders the current state. Caller holds p.mu.
func (p *ProgressBar) draw() {
	filled := 0
	if p.total > 0 {
		filled = p.done * p.width / p.total
	}
	bar := barFill.Sprint(strings.Repeat("█", filled)) + strings.Repeat("░", p.width-filled)
	count := barCount.Sprintf("%d/%d", p.done, p.total)
	fmt.Fprintf(p.writer, "\r%s %s %s", bar, count, p.label)
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner shows an animated glyph next to a message while a long operation
// runs. On a non-terminal writer it degrades to printing the message once.
type Spinner struct {
	mu      sync.Mutex
	message string
	running bool
	writer  io.Writer
	stop    chan struct{}
}

// NewSpinner returns a spinner that is not yet running.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		writer:  os.Stdout,
	}
}

// SetWriter redirects output, for tests.
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the animation. On a non-terminal the message is printed once
// and no goroutine runs.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s\n", s.message)
		return
	}

	s.stop = make(chan struct{})
	go s.spin(s.stop)
}

func (s *Spinner) spin(stop chan struct{}) {
	glyph := color.New(color.FgCyan)
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.running {
				fmt.Fprintf(s.writer, "\r%s %s", glyph.Sprint(spinnerFrames[frame%len(spinnerFrames)]), s.message)
			}
			s.mu.Unlock()
		}
	}
}

// UpdateMessage swaps the message while the spinner runs.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	if writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", len(s.message)+2))
	}
}

// StopWithMessage stops the spinner and prints a final line in its place.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.writer, message)
}
