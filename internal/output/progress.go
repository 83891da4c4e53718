package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/envstate/internal/executor"
)

// writerIsTTY reports whether w is a terminal. Writers without an Fd
// method, such as *bytes.Buffer, are not.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// ProgressBar draws "[=====>    ]  45% Verifying..." on a terminal. On
// other writers it prints a single line when complete.
type ProgressBar struct {
	mu          sync.Mutex
	total       int
	current     int
	description string
	width       int
	writer      io.Writer
}

// NewProgress creates a progress bar writing to stdout.
func NewProgress(total int, description string) *ProgressBar {
	return &ProgressBar{total: total, description: description, width: 40, writer: os.Stdout}
}

// SetWriter sets the output writer.
func (p *ProgressBar) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
}

// Describe replaces the description shown after the bar.
func (p *ProgressBar) Describe(description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.description = description
	p.render()
}

// Increment advances the bar by one.
func (p *ProgressBar) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current < p.total {
		p.current++
	}
	p.render()
}

// Finish fills the bar and ends the line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	done := p.current == p.total
	p.current = p.total
	if writerIsTTY(p.writer) {
		p.render()
		fmt.Fprintln(p.writer)
	} else if !done {
		p.render()
	}
}

// render must be called with the lock held.
func (p *ProgressBar) render() {
	pct, filled := 0, 0
	if p.total > 0 {
		pct = p.current * 100 / p.total
		filled = p.current * p.width / p.total
	}

	var bar strings.Builder
	bar.WriteByte('[')
	for i := 0; i < p.width; i++ {
		switch {
		case i < filled-1:
			bar.WriteByte('=')
		case i == filled-1:
			bar.WriteByte('>')
		default:
			bar.WriteByte(' ')
		}
	}
	bar.WriteByte(']')

	if writerIsTTY(p.writer) {
		fmt.Fprintf(p.writer, "\r%s %3d%% %s", bar.String(), pct, p.description)
	} else if p.current == p.total {
		fmt.Fprintf(p.writer, "%s %3d%% %s\n", bar.String(), pct, p.description)
	}
}

// Spinner animates "| Scanning packages... (12s remaining)" while a
// bounded command runs. On a non-terminal it prints the message once.
type Spinner struct {
	mu      sync.Mutex
	message string
	frames  []string
	writer  io.Writer
	timeout time.Duration
	started time.Time
	running bool
	done    chan struct{}
}

// NewSpinner creates a spinner writing to stderr.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		frames:  []string{"|", "/", "-", "\\"},
		writer:  os.Stderr,
	}
}

// WithTimeout shows the time remaining until timeout. Call before Start.
func (s *Spinner) WithTimeout(timeout time.Duration) *Spinner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = timeout
	return s
}

// SetWriter sets the output writer.
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the animation. Calling Start twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.started = time.Now()
	s.done = make(chan struct{})

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s...\n", s.message)
		return
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	done := s.done
	go func() {
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(s.frames) {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if s.running {
					fmt.Fprintf(s.writer, "\r%s  %s", s.frames[i], s.text())
				}
				s.mu.Unlock()
			case <-done:
				return
			}
		}
	}()
}

// text must be called with the lock held.
func (s *Spinner) text() string {
	if s.timeout <= 0 {
		return s.message
	}
	left := s.timeout - time.Since(s.started)
	if left < 0 {
		left = 0
	}
	return fmt.Sprintf("%s (%ds remaining)", s.message, int(left.Seconds()))
}

// Stop ends the animation and clears the line. Safe to call repeatedly.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", len(s.text())+4))
	}
}

// StopWithMessage stops the spinner and prints message on its own line.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.writer, message)
}

// PrintEvents writes executor events to w until events is closed.
// Output lines are indented; warnings and results are marked.
func PrintEvents(w io.Writer, events <-chan executor.Event) {
	for ev := range events {
		switch ev.Kind {
		case executor.EventStart:
			fmt.Fprintf(w, "%s %s\n", bold("$"), ev.Command)
		case executor.EventOutput:
			line := ev.Line
			if ev.Stream == "stderr" {
				line = gray(line)
			}
			fmt.Fprintf(w, "    %s\n", line)
		case executor.EventWarning:
			fmt.Fprintf(w, "%s %s\n", yellow("warning:"), ev.Message)
		case executor.EventResult:
			if !ev.Success {
				fmt.Fprintf(w, "%s %s\n", red("✗"), firstLine(ev.Message))
			}
		case executor.EventDone:
			msg := ev.Message
			if ev.Success {
				msg = green(msg)
			} else {
				msg = red(msg)
			}
			fmt.Fprintln(w, msg)
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
