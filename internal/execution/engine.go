// Package execution spawns allow-listed commands without a shell, bounded
// by a process limit, per-process deadlines and output limits.
package execution

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Cyclone1070/gatekeep/internal/audit"
	"github.com/Cyclone1070/gatekeep/internal/config"
	"github.com/Cyclone1070/gatekeep/internal/gateerr"
	"github.com/Cyclone1070/gatekeep/internal/host"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// deniedEnv are variables that change what a spawned binary loads or runs.
var deniedEnv = map[string]struct{}{
	"LD_PRELOAD":            {},
	"LD_LIBRARY_PATH":       {},
	"LD_AUDIT":              {},
	"DYLD_INSERT_LIBRARIES": {},
	"DYLD_LIBRARY_PATH":     {},
	"BASH_ENV":              {},
	"ENV":                   {},
	"NODE_OPTIONS":          {},
	"PYTHONSTARTUP":         {},
	"GIT_SSH_COMMAND":       {},
	"GIT_EXEC_PATH":         {},
	"GIT_CONFIG_PARAMETERS": {},
}

type commandChecker interface {
	Check(command string, args []string) error
}

type pathResolver interface {
	Resolve(path string) (abs string, rel string, err error)
	Root() string
}

type recorder interface {
	Record(rec audit.Record)
}

// diagnosticsPublisher receives diagnostics parsed from build output.
type diagnosticsPublisher interface {
	Publish(diags []host.Diagnostic)
}

// Engine runs processes. Both foreground and background processes count
// against the process limit until they exit.
type Engine struct {
	commands    commandChecker
	paths       pathResolver
	audit       recorder
	diagnostics diagnosticsPublisher
	config      config.ExecConfig
	logger      zerolog.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	mu     sync.Mutex
	procs  map[string]*ManagedProcess
	closed bool
}

// New creates an Engine. diagnostics may be nil.
func New(commands commandChecker, paths pathResolver, rec recorder, diagnostics diagnosticsPublisher, cfg config.ExecConfig, logger zerolog.Logger) *Engine {
	if commands == nil {
		panic("commands is required")
	}
	if paths == nil {
		panic("paths is required")
	}
	if rec == nil {
		panic("recorder is required")
	}
	if cfg.MaxConcurrentProcesses < 1 {
		panic("MaxConcurrentProcesses must be positive")
	}
	return &Engine{
		commands:    commands,
		paths:       paths,
		audit:       rec,
		diagnostics: diagnostics,
		config:      cfg,
		logger:      logger.With().Str("component", "execution").Logger(),
		sem:         make(chan struct{}, cfg.MaxConcurrentProcesses),
		procs:       make(map[string]*ManagedProcess),
	}
}

// Execute runs a command. Foreground calls block until the process exits,
// is killed or times out; background calls return once it has started.
func (e *Engine) Execute(ctx context.Context, req ExecuteRequest) (resp *ExecuteResponse, err error) {
	params := map[string]string{
		"command":    req.Command,
		"args":       strings.Join(req.Args, " "),
		"cwd":        req.Cwd,
		"background": strconv.FormatBool(req.Background),
	}
	defer func() {
		if r := recover(); r != nil {
			e.record(ctx, "executeCommand", params, gateerr.Panic(r))
			panic(r)
		}
		if resp != nil {
			params["exitCode"] = strconv.Itoa(resp.ExitCode)
			if resp.ProcessID != "" {
				params["processId"] = resp.ProcessID
			}
		}
		e.record(ctx, "executeCommand", params, err)
	}()
	return e.run(ctx, req)
}

func (e *Engine) run(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	if req.Command == "" {
		return nil, gateerr.Wrap(gateerr.KindInvalidParams, ErrCommandRequired.Error(), ErrCommandRequired)
	}
	if req.TimeoutMs < 0 {
		return nil, gateerr.Wrap(gateerr.KindInvalidParams, ErrNegativeTimeout.Error(), ErrNegativeTimeout)
	}
	if err := e.commands.Check(req.Command, req.Args); err != nil {
		return nil, err
	}
	if err := checkEnv(req.Env); err != nil {
		return nil, err
	}

	cwd := req.Cwd
	if cwd == "" {
		cwd = "."
	}
	dir, _, err := e.paths.Resolve(cwd)
	if err != nil {
		return nil, err
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-e.sem }

	p, err := e.spawn(req, dir)
	if err != nil {
		release()
		return nil, err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		p.supervise(func() {
			release()
			e.retire(p)
		})
	}()

	if req.Background {
		e.logger.Debug().Str("id", p.ID).Str("command", p.Command).Msg("background process started")
		return p.response(), nil
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		p.terminate(StateKilled)
		<-p.done
		return p.response(), ctx.Err()
	}

	resp := p.response()
	if resp.State == StateTimedOut {
		return resp, &TimeoutError{Command: p.Command, Duration: p.timeout}
	}
	return resp, nil
}

func (e *Engine) spawn(req ExecuteRequest, dir string) (*ManagedProcess, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, gateerr.Wrap(gateerr.KindBackpressure, ErrShuttingDown.Error(), ErrShuttingDown)
	}

	grace := time.Duration(e.config.KillGracePeriodMs) * time.Millisecond
	cmd := exec.Command(req.Command, req.Args...)
	cmd.Dir = dir
	cmd.Env = mergeEnv(os.Environ(), req.Env)
	cmd.Stdin = nil
	cmd.WaitDelay = grace + time.Second
	setProcessGroup(cmd)

	p := &ManagedProcess{
		ID:         uuid.NewString(),
		Command:    req.Command,
		Args:       req.Args,
		Background: req.Background,
		cmd:        cmd,
		stdout:     newCollector(e.config.MaxOutputBytes, e.config.BinarySampleSize),
		stderr:     newCollector(e.config.MaxOutputBytes, e.config.BinarySampleSize),
		timeout:    e.timeout(req.TimeoutMs),
		grace:      grace,
		done:       make(chan struct{}),
	}
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr

	if err := p.start(); err != nil {
		return nil, classifyStart(err, req.Command)
	}
	e.procs[p.ID] = p
	return p, nil
}

func (e *Engine) timeout(requestMs int) time.Duration {
	ms := e.config.DefaultTimeoutMs
	if requestMs > 0 {
		ms = min(requestMs, e.config.MaxTimeoutMs)
	}
	return time.Duration(ms) * time.Millisecond
}

// retire drops a process from the arena. Background processes stay
// visible to Status for the retention period.
func (e *Engine) retire(p *ManagedProcess) {
	retention := time.Duration(e.config.ExitedRetentionSeconds) * time.Second
	drop := func() {
		e.mu.Lock()
		if e.procs[p.ID] == p {
			delete(e.procs, p.ID)
		}
		e.mu.Unlock()
	}
	if !p.Background || retention <= 0 {
		drop()
		return
	}
	time.AfterFunc(retention, drop)
}

// Kill terminates a tracked process. Killing a process that has already
// exited, or one that is no longer tracked, is a no-op.
func (e *Engine) Kill(ctx context.Context, id string) (err error) {
	params := map[string]string{"processId": id}
	defer e.finish(ctx, "killProcess", params, &err)

	if id == "" {
		return gateerr.Wrap(gateerr.KindInvalidParams, ErrProcessIDRequired.Error(), ErrProcessIDRequired)
	}
	p, err := e.lookup(id)
	if errors.Is(err, ErrProcessNotFound) {
		params["unknown"] = "true"
		return nil
	}
	if err != nil {
		return err
	}
	if p.exited() {
		params["alreadyExited"] = "true"
		return nil
	}
	p.terminate(StateKilled)
	return nil
}

// Status returns a snapshot of a tracked process.
func (e *Engine) Status(ctx context.Context, id string) (s *ProcessStatus, err error) {
	params := map[string]string{"processId": id}
	defer e.finish(ctx, "processStatus", params, &err)

	p, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	s = p.snapshot()
	params["state"] = string(s.State)
	return s, nil
}

// Running returns the number of tracked processes that have not exited.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, p := range e.procs {
		if !p.exited() {
			n++
		}
	}
	return n
}

// Shutdown refuses new processes and terminates all tracked ones. It waits
// for them to exit until ctx is done, then kills whatever is left.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	procs := make([]*ManagedProcess, 0, len(e.procs))
	for _, p := range e.procs {
		procs = append(procs, p)
	}
	e.mu.Unlock()

	for _, p := range procs {
		p.terminate(StateKilled)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, p := range procs {
			if !p.exited() {
				_ = killGroup(p.cmd.Process)
			}
		}
		return ctx.Err()
	}
}

func (e *Engine) lookup(id string) (*ManagedProcess, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.procs[id]
	if !ok {
		return nil, gateerr.Wrap(gateerr.KindNotFound, "no such process: "+id, ErrProcessNotFound)
	}
	return p, nil
}

// finish records the outcome held in *errp. A panic is recorded as an
// internal error before it continues unwinding.
func (e *Engine) finish(ctx context.Context, kind string, params map[string]string, errp *error) {
	if r := recover(); r != nil {
		e.record(ctx, kind, params, gateerr.Panic(r))
		panic(r)
	}
	e.record(ctx, kind, params, *errp)
}

func (e *Engine) record(ctx context.Context, kind string, params map[string]string, err error) {
	if err != nil && gateerr.KindOf(err) == gateerr.KindInternal {
		e.logger.Error().Err(err).Str("kind", kind).Msg("execution failed")
	}
	e.audit.Record(audit.Stamp(ctx, audit.Record{
		Kind:    kind,
		Params:  params,
		Outcome: audit.OutcomeFor(err),
		Error:   audit.ErrorText(err),
	}))
}

func checkEnv(env map[string]string) error {
	for k, v := range env {
		if k == "" || strings.ContainsAny(k, "=\x00") || strings.ContainsRune(v, 0) {
			return gateerr.Wrap(gateerr.KindInvalidParams, ErrInvalidEnv.Error(), ErrInvalidEnv)
		}
		if _, denied := deniedEnv[strings.ToUpper(k)]; denied {
			return gateerr.Newf(gateerr.KindCommandBlocked, "environment variable %s is not allowed", k)
		}
	}
	return nil
}

// mergeEnv appends overrides after base; exec uses the last value of a key.
func mergeEnv(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))
	env = append(env, base...)
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

func classifyStart(err error, command string) error {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return gateerr.Wrap(gateerr.KindNotFound, "command or working directory not found: "+command, err)
	case errors.Is(err, os.ErrPermission):
		return gateerr.Wrap(gateerr.KindPermissionDenied, "permission denied: "+command, err)
	}
	return gateerr.Wrap(gateerr.KindInternal, "", err)
}
