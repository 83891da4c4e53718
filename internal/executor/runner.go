package executor

import (
	"context"
	"strings"

	"github.com/go-cmd/cmd"
)

// maxCapture bounds how much of each stream is kept for error reporting.
// Every line is still streamed to the observer.
const maxCapture = 1 << 20

// Output is the captured result of one command.
type Output struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// LineFunc receives each output line as it is produced. stream is
// "stdout" or "stderr".
type LineFunc func(stream, line string)

// Runner runs one shell command line. A non-zero exit is reported through
// Output.ExitCode; the error is reserved for commands that could not be
// started or were cancelled.
type Runner interface {
	Run(ctx context.Context, command, stdin string, onLine LineFunc) (Output, error)
}

// ShellRunner runs commands through sh -c, or cmd /C on Windows, streaming
// lines as they arrive.
type ShellRunner struct {
	Windows bool
}

func (r ShellRunner) Run(ctx context.Context, command, stdin string, onLine LineFunc) (Output, error) {
	name, args := "sh", []string{"-c", command}
	if r.Windows {
		name, args = "cmd", []string{"/C", command}
	}

	c := cmd.NewCmdOptions(cmd.Options{
		Buffered:  false,
		Streaming: true,
	}, name, args...)

	var statusChan <-chan cmd.Status
	if stdin != "" {
		statusChan = c.StartWithStdin(strings.NewReader(stdin))
	} else {
		statusChan = c.Start()
	}

	var stdout, stderr capture
	emit := func(stream string, buf *capture, line string) {
		buf.add(line)
		if onLine != nil {
			onLine(stream, line)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		outCh, errCh := c.Stdout, c.Stderr
		for outCh != nil || errCh != nil {
			select {
			case line, ok := <-outCh:
				if !ok {
					outCh = nil
					continue
				}
				emit("stdout", &stdout, line)
			case line, ok := <-errCh:
				if !ok {
					errCh = nil
					continue
				}
				emit("stderr", &stderr, line)
			case <-ctx.Done():
				c.Stop()
				return
			}
		}
	}()

	status := <-statusChan
	<-done

	out := Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: status.Exit,
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if status.Error != nil {
		return out, status.Error
	}
	return out, nil
}

type capture struct {
	sb        strings.Builder
	truncated bool
}

func (c *capture) add(line string) {
	if c.sb.Len()+len(line)+1 > maxCapture {
		c.truncated = true
		return
	}
	c.sb.WriteString(line)
	c.sb.WriteByte('\n')
}

func (c *capture) String() string {
	if c.truncated {
		return c.sb.String() + "[output truncated]\n"
	}
	return c.sb.String()
}
