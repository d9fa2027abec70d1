package execution

import (
	"errors"
	"os/exec"
	"slices"
	"sync"
	"time"
)

// ManagedProcess is a spawned command owned by the Engine. Every process
// has a deadline and is terminated at most one grace period after it.
type ManagedProcess struct {
	ID         string
	Command    string
	Args       []string
	Background bool
	StartedAt  time.Time
	Deadline   time.Time

	cmd     *exec.Cmd
	stdout  *collector
	stderr  *collector
	timeout time.Duration
	grace   time.Duration
	done    chan struct{}

	mu        sync.Mutex
	state     State
	reason    State // set once termination is requested
	exitCode  int
	endedAt   time.Time
	killTimer *time.Timer
}

func (p *ManagedProcess) start() error {
	if err := p.cmd.Start(); err != nil {
		return &StartError{Command: p.Command, Cause: err}
	}
	p.StartedAt = time.Now()
	p.Deadline = p.StartedAt.Add(p.timeout)
	p.state = StateRunning
	return nil
}

// supervise waits for exit, enforcing the deadline. onExit runs after the
// result is recorded and before done is closed.
func (p *ManagedProcess) supervise(onExit func()) {
	deadline := time.AfterFunc(p.timeout, func() { p.terminate(StateTimedOut) })
	err := p.cmd.Wait()
	deadline.Stop()

	p.mu.Lock()
	if p.killTimer != nil {
		p.killTimer.Stop()
	}
	p.endedAt = time.Now()
	p.exitCode = exitCode(err)
	p.state = StateExited
	if p.reason != "" {
		p.state = p.reason
	}
	p.mu.Unlock()

	if onExit != nil {
		onExit()
	}
	close(p.done)
}

// terminate asks the process group to stop and escalates to SIGKILL after
// the grace period. Only the first call has any effect.
func (p *ManagedProcess) terminate(reason State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reason != "" || p.state != StateRunning {
		return
	}
	p.reason = reason
	_ = interruptGroup(p.cmd.Process)
	p.killTimer = time.AfterFunc(p.grace, func() { _ = killGroup(p.cmd.Process) })
}

func (p *ManagedProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *ManagedProcess) snapshot() *ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &ProcessStatus{
		ID:        p.ID,
		Command:   p.Command,
		Args:      slices.Clone(p.Args),
		State:     p.state,
		StartedAt: p.StartedAt,
		Deadline:  p.Deadline,
		Stdout:    p.stdout.String(),
		Stderr:    p.stderr.String(),
		Truncated: p.stdout.Truncated() || p.stderr.Truncated(),
	}
	end := time.Now()
	if p.state != StateRunning {
		code := p.exitCode
		s.ExitCode = &code
		end = p.endedAt
	}
	s.DurationMs = end.Sub(p.StartedAt).Milliseconds()
	return s
}

func (p *ManagedProcess) response() *ExecuteResponse {
	s := p.snapshot()
	resp := &ExecuteResponse{
		Stdout:     s.Stdout,
		Stderr:     s.Stderr,
		DurationMs: s.DurationMs,
		Truncated:  s.Truncated,
		State:      s.State,
		ExitCode:   -1,
	}
	if s.ExitCode != nil {
		resp.ExitCode = *s.ExitCode
	}
	if p.Background {
		resp.ProcessID = p.ID
	}
	return resp
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
