package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"raid-health-check/internal/parser"
)

// DefaultTimeout bounds a single tool invocation when none is configured
const DefaultTimeout = 60 * time.Second

// Command is one invocation of an inspection tool
type Command struct {
	Program string
	Args    []string
	// IgnoreExitStatus accepts a non-zero exit status. MegaCli reports
	// the adapter count through its exit status.
	IgnoreExitStatus bool
}

func (c Command) String() string {
	return strings.TrimSpace(c.Program + " " + strings.Join(c.Args, " "))
}

// Runner is the collaborator that spawns inspection tools
type Runner interface {
	// Run executes cmd to completion and returns its standard output
	Run(ctx context.Context, cmd Command) ([]byte, error)
	// Start launches cmd as an interactive session
	Start(ctx context.Context, cmd Command) (Session, error)
}

// Session is an interactive tool driven one command at a time
type Session interface {
	// Send writes one command line to the tool
	Send(line string) error
	// Output is the tool's standard output
	Output() *parser.Source
	// Close ends the session, sending quit first when it is not empty
	Close(quit string) error
}

// CollaboratorFault reports a tool that could not be run to completion
type CollaboratorFault struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (f *CollaboratorFault) Error() string {
	if f.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", f.Command, f.Err, f.Stderr)
	}
	return fmt.Sprintf("%s: %v", f.Command, f.Err)
}

func (f *CollaboratorFault) Unwrap() error {
	return f.Err
}

// IsMissing reports whether err means the tool is not installed
func IsMissing(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// ExecRunner runs tools as subprocesses, each bounded by Timeout
type ExecRunner struct {
	Timeout time.Duration
	log     *zap.Logger
}

// NewExecRunner creates an ExecRunner
func NewExecRunner(timeout time.Duration, log *zap.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecRunner{Timeout: timeout, log: log}
}

// Run implements Runner
func (r *ExecRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	r.log.Debug("running command", zap.Stringer("command", cmd))

	proc := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	var stderr bytes.Buffer
	proc.Stderr = &stderr

	out, err := proc.Output()
	if err == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		if cmd.IgnoreExitStatus {
			return out, nil
		}
		return nil, &CollaboratorFault{
			Command:  cmd.String(),
			ExitCode: exitErr.ExitCode(),
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}
	if ctx.Err() != nil {
		err = fmt.Errorf("timed out after %s: %w", r.Timeout, ctx.Err())
	}
	return nil, &CollaboratorFault{Command: cmd.String(), ExitCode: -1, Err: err}
}

// Start implements Runner. The session's deadline covers its whole life.
func (r *ExecRunner) Start(ctx context.Context, cmd Command) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)

	r.log.Debug("starting session", zap.Stringer("command", cmd))

	proc := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	stdin, err := proc.StdinPipe()
	if err != nil {
		cancel()
		return nil, &CollaboratorFault{Command: cmd.String(), ExitCode: -1, Err: err}
	}
	stdout, err := proc.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &CollaboratorFault{Command: cmd.String(), ExitCode: -1, Err: err}
	}
	if err := proc.Start(); err != nil {
		cancel()
		return nil, &CollaboratorFault{Command: cmd.String(), ExitCode: -1, Err: err}
	}

	return &execSession{
		cmd:    cmd,
		proc:   proc,
		stdin:  stdin,
		output: parser.NewSource(stdout),
		cancel: cancel,
		log:    r.log,
	}, nil
}

type execSession struct {
	cmd    Command
	proc   *exec.Cmd
	stdin  io.WriteCloser
	output *parser.Source
	cancel context.CancelFunc
	log    *zap.Logger
}

func (s *execSession) Send(line string) error {
	s.log.Debug("session command", zap.Stringer("session", s.cmd), zap.String("line", line))
	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		return &CollaboratorFault{Command: s.cmd.String(), ExitCode: -1, Err: err}
	}
	return nil
}

func (s *execSession) Output() *parser.Source {
	return s.output
}

func (s *execSession) Close(quit string) error {
	defer s.cancel()

	if quit != "" {
		_, _ = io.WriteString(s.stdin, quit+"\n")
	}
	s.stdin.Close()

	if err := s.proc.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && s.cmd.IgnoreExitStatus {
			return nil
		}
		return &CollaboratorFault{Command: s.cmd.String(), ExitCode: s.proc.ProcessState.ExitCode(), Err: err}
	}
	return nil
}
