package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Stream says which output stream a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Line is one line of downloader output.
type Line struct {
	Stream Stream
	Text   string
}

// ExitStatus is how the child ended: an exit code, or the signal that killed it.
type ExitStatus struct {
	Code   int
	Signal string
}

// Success reports a clean zero exit.
func (s ExitStatus) Success() bool { return s.Code == 0 && s.Signal == "" }

func (s ExitStatus) String() string {
	if s.Signal != "" {
		return "signal: " + s.Signal
	}
	return fmt.Sprintf("exit status %d", s.Code)
}

// Process is a running child as seen by the Supervisor.
//
// Lines is closed once both output streams are drained, before Done is closed.
// ExitStatus is only meaningful after Done is closed.
type Process interface {
	Lines() <-chan Line
	Done() <-chan struct{}
	ExitStatus() ExitStatus
	// Terminate asks the child to stop (SIGTERM where supported).
	Terminate() error
	// Kill stops the child unconditionally.
	Kill() error
}

// Launcher starts child processes.
type Launcher interface {
	Launch(ctx context.Context, name string, args []string) (Process, error)
}

// ExecLauncher runs real OS processes via os/exec.
type ExecLauncher struct {
	// WaitDelay bounds how long output copying may outlive the child (default 5s).
	WaitDelay time.Duration
	Dir       string
}

// Launch starts name with args. The context is only consulted before starting:
// stopping a running child is the Supervisor's decision, not the context's.
func (l ExecLauncher) Launch(ctx context.Context, name string, args []string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(name, args...) //nolint:gosec // G204: downloader path and args are operator config
	cmd.Dir = l.Dir
	cmd.WaitDelay = l.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 5 * time.Second
	}
	lines := make(chan Line, 64)
	stdout := &lineWriter{stream: Stdout, out: lines}
	stderr := &lineWriter{stream: Stderr, out: lines}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &execProcess{cmd: cmd, lines: lines, done: make(chan struct{})}
	go func() {
		// A non-nil error is either a non-zero exit, which ProcessState
		// already describes, or an I/O failure after the child was reaped.
		_ = cmd.Wait()
		stdout.flush()
		stderr.flush()
		p.status = statusFromState(cmd.ProcessState)
		close(lines)
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	lines  chan Line
	done   chan struct{}
	status ExitStatus
}

func (p *execProcess) Lines() <-chan Line    { return p.lines }
func (p *execProcess) Done() <-chan struct{} { return p.done }
func (p *execProcess) ExitStatus() ExitStatus { return p.status }

func (p *execProcess) Terminate() error {
	err := p.cmd.Process.Signal(syscall.SIGTERM)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	// Platforms without SIGTERM (windows) only support Kill.
	return p.Kill()
}

func (p *execProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func statusFromState(ps *os.ProcessState) ExitStatus {
	if ps == nil {
		return ExitStatus{Code: -1}
	}
	st := ExitStatus{Code: ps.ExitCode()}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		st.Signal = ws.Signal().String()
	}
	return st
}

// lineWriter splits written bytes on \n and \r (yt-dlp redraws progress with \r)
// and emits each non-empty line. Each writer is fed by a single exec copy goroutine.
type lineWriter struct {
	stream Stream
	out    chan<- Line
	buf    bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' || b == '\r' {
			w.emit()
			continue
		}
		w.buf.WriteByte(b)
	}
	return len(p), nil
}

func (w *lineWriter) flush() { w.emit() }

func (w *lineWriter) emit() {
	if w.buf.Len() == 0 {
		return
	}
	w.out <- Line{Stream: w.stream, Text: w.buf.String()}
	w.buf.Reset()
}
