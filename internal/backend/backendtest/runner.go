// Package backendtest provides a Runner that replays captured tool
// output.
package backendtest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"raid-health-check/internal/backend"
	"raid-health-check/internal/parser"
)

// Runner replays canned output keyed by the command line that produced
// it, e.g. "tw_cli /c0 show".
type Runner struct {
	// Outputs maps command lines to their output
	Outputs map[string]string
	// Errors maps command lines to the error running them returns
	Errors map[string]error
	// Sessions maps interactive programs to their scripted replies
	Sessions map[string]Script

	mu    sync.Mutex
	calls []string
}

// Script maps each line sent to a session to the outputs it prints on
// successive sends; the last output repeats.
type Script map[string][]string

// Run implements backend.Runner
func (r *Runner) Run(ctx context.Context, cmd backend.Command) ([]byte, error) {
	line := cmd.String()
	r.record(line)

	if err := ctx.Err(); err != nil {
		return nil, &backend.CollaboratorFault{Command: line, ExitCode: -1, Err: err}
	}
	if err, ok := r.Errors[line]; ok {
		return nil, &backend.CollaboratorFault{Command: line, ExitCode: -1, Err: err}
	}
	out, ok := r.Outputs[line]
	if !ok {
		return nil, &backend.CollaboratorFault{Command: line, ExitCode: -1, Err: exec.ErrNotFound}
	}
	return []byte(out), nil
}

// Start implements backend.Runner
func (r *Runner) Start(ctx context.Context, cmd backend.Command) (backend.Session, error) {
	line := cmd.String()
	r.record(line)

	if err, ok := r.Errors[line]; ok {
		return nil, &backend.CollaboratorFault{Command: line, ExitCode: -1, Err: err}
	}
	script, ok := r.Sessions[line]
	if !ok {
		return nil, &backend.CollaboratorFault{Command: line, ExitCode: -1, Err: os.ErrNotExist}
	}
	s := &Session{runner: r, program: line, script: script, sent: map[string]int{}, buf: &bytes.Buffer{}}
	s.src = parser.NewSource(s.buf)
	return s, nil
}

// Calls returns every command line run so far, including lines sent to
// sessions, in order.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *Runner) record(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, line)
}

// Session is a scripted interactive tool. Each line sent queues its
// reply for reading.
type Session struct {
	runner  *Runner
	program string
	script  Script
	sent    map[string]int
	buf     *bytes.Buffer
	src     *parser.Source
	closed  bool
}

// Send implements backend.Session
func (s *Session) Send(line string) error {
	s.runner.record(s.program + " < " + line)
	if s.closed {
		return fmt.Errorf("session %s is closed", s.program)
	}
	replies := s.script[line]
	if len(replies) == 0 {
		return &backend.CollaboratorFault{Command: s.program, ExitCode: -1, Err: fmt.Errorf("unexpected input %q", line)}
	}
	reply := replies[min(s.sent[line], len(replies)-1)]
	s.sent[line]++
	s.buf.WriteString(reply)
	if reply != "" && !strings.HasSuffix(reply, "\n") {
		s.buf.WriteString("\n")
	}
	return nil
}

// Output implements backend.Session
func (s *Session) Output() *parser.Source {
	return s.src
}

// Close implements backend.Session
func (s *Session) Close(quit string) error {
	if quit != "" {
		s.runner.record(s.program + " < " + quit)
	}
	s.closed = true
	return nil
}
