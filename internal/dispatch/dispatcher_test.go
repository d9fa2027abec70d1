package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Cyclone1070/gatekeep/internal/audit"
	"github.com/Cyclone1070/gatekeep/internal/backup"
	"github.com/Cyclone1070/gatekeep/internal/codeedit"
	"github.com/Cyclone1070/gatekeep/internal/config"
	"github.com/Cyclone1070/gatekeep/internal/execution"
	"github.com/Cyclone1070/gatekeep/internal/fileops"
	"github.com/Cyclone1070/gatekeep/internal/gateerr"
	"github.com/Cyclone1070/gatekeep/internal/host"
	"github.com/Cyclone1070/gatekeep/internal/pathlock"
	"github.com/Cyclone1070/gatekeep/internal/policy"
	"github.com/Cyclone1070/gatekeep/internal/policy/command"
	pathpolicy "github.com/Cyclone1070/gatekeep/internal/policy/path"
	gatefs "github.com/Cyclone1070/gatekeep/internal/service/fs"
	"github.com/Cyclone1070/gatekeep/internal/testing/testhelpers"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	dispatcher *Dispatcher
	ws         *testhelpers.Workspace
	audit      *audit.MemorySink
}

// newStack wires the real engines the way the serve command does.
func newStack(t *testing.T, server config.ServerConfig) *stack {
	t.Helper()
	ws := testhelpers.CreateTestWorkspace(t)
	fsys := gatefs.NewOSFileSystem()
	log, sink := testhelpers.NewAuditLog()

	backupDir := filepath.Join(ws.Root, ".gatekeep", "backups")
	paths := pathpolicy.New(ws.Root, fsys, []string{".git/", ".env", ".gatekeep/"}, backupDir)
	commands := command.New(command.DefaultRules())
	backups := backup.NewManager(ws.Root, backupDir, fsys, backup.Options{MaxGenerations: 10}, zerolog.Nop())
	files := fileops.New(paths, backups, fsys, log, pathlock.New(), 1<<20, zerolog.Nop())
	h := host.NewLocal(ws.Root, fsys, zerolog.Nop())
	code := codeedit.New(files, h, log, 2, zerolog.Nop())

	execCfg := config.DefaultConfig().Exec
	execCfg.KillGracePeriodMs = 100
	exec := execution.New(commands, paths, log, h, execCfg, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = exec.Shutdown(ctx)
	})

	d := New(log, server, zerolog.Nop())
	d.RegisterEngines(Engines{Paths: paths, Commands: commands, Files: files, Code: code, Exec: exec})
	return &stack{dispatcher: d, ws: ws, audit: sink}
}

func defaultServer() config.ServerConfig {
	return config.DefaultConfig().Server
}

func TestHandle_BackupAndRestoreScenario(t *testing.T) {
	s := newStack(t, defaultServer())
	ctx := context.Background()
	call := func(kind string, payload map[string]any) OperationResponse {
		t.Helper()
		resp := s.dispatcher.Handle(ctx, OperationRequest{Kind: kind, Payload: payload})
		require.True(t, resp.OK, "%s failed: %+v", kind, resp.Error)
		return resp
	}

	call("writeFile", map[string]any{"path": "notes.txt", "content": "hello"})
	write := call("writeFile", map[string]any{"path": "notes.txt", "content": "world", "createBackup": true})
	assert.Equal(t, 1, write.Result.(*fileops.WriteResponse).Generation)

	list := call("listBackups", map[string]any{"path": "notes.txt"})
	require.Len(t, list.Result.(*fileops.ListBackupsResponse).Backups, 1)

	call("restoreBackup", map[string]any{"path": "notes.txt", "generation": float64(1)})
	read := call("readFile", map[string]any{"path": "notes.txt"})
	assert.Equal(t, "hello", read.Result.(*fileops.ReadResponse).Content)

	recs := s.audit.Records()
	require.Len(t, recs, 5)
	for _, r := range recs {
		assert.Equal(t, audit.OutcomeSuccess, r.Outcome)
		assert.NotEmpty(t, r.RequestID)
	}
}

func TestHandle_PathsAndOptionsFoldIntoPayload(t *testing.T) {
	s := newStack(t, defaultServer())
	ctx := context.Background()

	resp := s.dispatcher.Handle(ctx, OperationRequest{
		Kind:    "writeFile",
		Paths:   []string{"dir/a.txt"},
		Payload: map[string]any{"content": "x"},
		Options: map[string]any{"createDirectories": true},
	})
	require.True(t, resp.OK, "%+v", resp.Error)
	assert.Equal(t, []byte("x"), s.ws.ReadFile(t, "dir/a.txt"))
}

func TestHandle_RequestIDAndActor(t *testing.T) {
	s := newStack(t, defaultServer())
	ctx := context.Background()

	given := s.dispatcher.Handle(ctx, OperationRequest{Kind: "readFile", RequestID: "req-1", Actor: "agent", Payload: map[string]any{"path": "missing.txt"}})
	assert.Equal(t, "req-1", given.RequestID)
	assert.False(t, given.OK)
	assert.Equal(t, gateerr.KindNotFound, given.Error.Kind)

	generated := s.dispatcher.Handle(ctx, OperationRequest{Kind: "listTools"})
	assert.NotEmpty(t, generated.RequestID)
	assert.NotEqual(t, "req-1", generated.RequestID)

	recs := s.audit.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "req-1", recs[0].RequestID)
	assert.Equal(t, "agent", recs[0].Actor)
	assert.Equal(t, generated.RequestID, recs[1].RequestID)
}

func TestHandle_DispatchLevelFailures(t *testing.T) {
	tests := []struct {
		name string
		req  OperationRequest
		kind gateerr.Kind
	}{
		{"unknown kind", OperationRequest{Kind: "formatDisk"}, gateerr.KindInvalidParams},
		{"wrong field type", OperationRequest{Kind: "readFile", Payload: map[string]any{"path": 42}}, gateerr.KindInvalidParams},
		{"unknown field", OperationRequest{Kind: "readFile", Payload: map[string]any{"path": "a", "pth": "b"}}, gateerr.KindInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStack(t, defaultServer())

			resp := s.dispatcher.Handle(context.Background(), tt.req)
			assert.False(t, resp.OK)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.kind, resp.Error.Kind)
			assert.Nil(t, resp.Result)

			recs := s.audit.Records()
			require.Len(t, recs, 1)
			assert.Equal(t, tt.req.Kind, recs[0].Kind)
			assert.Equal(t, audit.OutcomeError, recs[0].Outcome)
		})
	}
}

func TestHandle_Validation(t *testing.T) {
	s := newStack(t, defaultServer())
	ctx := context.Background()

	tests := []struct {
		req   OperationRequest
		valid bool
	}{
		{OperationRequest{Kind: "validatePath", Payload: map[string]any{"path": "src/main.go"}}, true},
		{OperationRequest{Kind: "validatePath", Payload: map[string]any{"path": "../outside"}}, false},
		{OperationRequest{Kind: "validatePath", Payload: map[string]any{"path": ".env"}}, false},
		{OperationRequest{Kind: "validateCommand", Payload: map[string]any{"command": "go", "args": []any{"test", "./..."}}}, true},
		{OperationRequest{Kind: "validateCommand", Payload: map[string]any{"command": "curl"}}, false},
		{OperationRequest{Kind: "validateCommand", Payload: map[string]any{"command": "git", "args": []any{"--upload-pack=evil"}}}, false},
	}

	for i, tt := range tests {
		resp := s.dispatcher.Handle(ctx, tt.req)
		require.True(t, resp.OK, "case %d", i)
		res := resp.Result.(policy.ValidationResult)
		assert.Equal(t, tt.valid, res.Valid, "case %d", i)
		assert.Equal(t, tt.valid, res.Reason == "", "case %d", i)

		rec := s.audit.Records()[i]
		if tt.valid {
			assert.Equal(t, audit.OutcomeSuccess, rec.Outcome)
		} else {
			assert.Equal(t, audit.OutcomeBlocked, rec.Outcome)
		}
	}
}

func TestHandle_ConfirmationCarriesDetails(t *testing.T) {
	s := newStack(t, defaultServer())
	s.ws.WriteFile(t, "a.txt", []byte("1\n2\n3\n4\n"))

	resp := s.dispatcher.Handle(context.Background(), OperationRequest{
		Kind:    "deleteCode",
		Payload: map[string]any{"path": "a.txt", "startLine": 1, "endLine": 4},
	})
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, gateerr.KindConfirmationRequired, resp.Error.Kind)
	assert.NotEmpty(t, resp.Error.Details)
	assert.Equal(t, []byte("1\n2\n3\n4\n"), s.ws.ReadFile(t, "a.txt"))

	recs := s.audit.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.OutcomeBlocked, recs[0].Outcome)
}

func TestHandle_TimeoutKeepsPartialResult(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX sleep")
	}
	s := newStack(t, defaultServer())

	resp := s.dispatcher.Handle(context.Background(), OperationRequest{
		Kind:    "executeCommand",
		Payload: map[string]any{"command": "tail", "args": []any{"-f", "/dev/null"}, "timeoutMs": float64(200)},
	})
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, gateerr.KindTimeout, resp.Error.Kind)
	out, ok := resp.Result.(*execution.ExecuteResponse)
	require.True(t, ok)
	assert.Equal(t, execution.StateTimedOut, out.State)
}

func TestHandle_CommandBlockedSpawnsNothing(t *testing.T) {
	s := newStack(t, defaultServer())

	resp := s.dispatcher.Handle(context.Background(), OperationRequest{
		Kind:    "executeCommand",
		Payload: map[string]any{"command": "rm", "args": []any{"-rf", "/"}},
	})
	assert.False(t, resp.OK)
	assert.Equal(t, gateerr.KindCommandBlocked, resp.Error.Kind)
	assert.Nil(t, resp.Result)

	recs := s.audit.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "executeCommand", recs[0].Kind)
	assert.Equal(t, audit.OutcomeBlocked, recs[0].Outcome)
}

func TestTools(t *testing.T) {
	s := newStack(t, defaultServer())

	var kinds []string
	for _, tool := range s.dispatcher.Tools() {
		kinds = append(kinds, tool.Kind)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{
		"validatePath", "validateCommand",
		"readFile", "writeFile", "deleteFile", "createDirectory",
		"insertCode", "deleteCode", "replaceCode", "applyQuickFix",
		"executeCommand", "executeBuild", "killProcess", "processStatus",
		"listBackups", "restoreBackup", "listTools",
	}, kinds)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	d := New(audit.New(audit.NopSink{}, zerolog.Nop()), defaultServer(), zerolog.Nop())
	h := NewRoute("x", "", func(context.Context, empty) (string, error) { return "", nil })
	d.Register(h)
	assert.Panics(t, func() { d.Register(h) })
}

// gated returns a dispatcher whose "block" kind waits on release and
// appends each request's name to the returned order slice.
func gated(t *testing.T, cfg config.ServerConfig) (d *Dispatcher, sink *audit.MemorySink, release chan struct{}, order func() []string) {
	t.Helper()
	log, sink := testhelpers.NewAuditLog()
	d = New(log, cfg, zerolog.Nop())
	release = make(chan struct{})

	var mu sync.Mutex
	var seen []string
	d.Register(NewRoute("block", "", func(ctx context.Context, req struct {
		Name string `mapstructure:"name"`
		Wait bool   `mapstructure:"wait"`
	}) (string, error) {
		mu.Lock()
		seen = append(seen, req.Name)
		mu.Unlock()
		if req.Wait {
			<-release
		}
		return req.Name, nil
	}))
	return d, sink, release, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
}

func blockReq(name string, wait bool) OperationRequest {
	return OperationRequest{Kind: "block", Payload: map[string]any{"name": name, "wait": wait}}
}

func TestAdmission_QueuesInArrivalOrder(t *testing.T) {
	d, _, release, order := gated(t, config.ServerConfig{MaxConcurrentRequests: 1})
	ctx := context.Background()

	var wg sync.WaitGroup
	responses := make(chan OperationResponse, 4)
	submit := func(req OperationRequest, queuedAfter int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			responses <- d.Handle(ctx, req)
		}()
		require.Eventually(t, func() bool {
			_, queued := d.Stats()
			return queued == queuedAfter
		}, 2*time.Second, 5*time.Millisecond)
	}

	submit(blockReq("first", true), 0)
	require.Eventually(t, func() bool { return len(order()) == 1 }, 2*time.Second, 5*time.Millisecond)
	submit(blockReq("second", false), 1)
	submit(blockReq("third", false), 2)
	submit(blockReq("fourth", false), 3)

	close(release)
	wg.Wait()
	close(responses)

	for resp := range responses {
		assert.True(t, resp.OK)
	}
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, order())
}

func TestAdmission_BackpressureWhenQueueFull(t *testing.T) {
	d, sink, release, _ := gated(t, config.ServerConfig{MaxConcurrentRequests: 1, MaxQueueDepth: 1})
	ctx := context.Background()

	done := make(chan OperationResponse, 2)
	go func() { done <- d.Handle(ctx, blockReq("running", true)) }()
	require.Eventually(t, func() bool { active, _ := d.Stats(); return active == 1 }, 2*time.Second, 5*time.Millisecond)
	go func() { done <- d.Handle(ctx, blockReq("queued", false)) }()
	require.Eventually(t, func() bool { _, queued := d.Stats(); return queued == 1 }, 2*time.Second, 5*time.Millisecond)

	rejected := d.Handle(ctx, blockReq("overflow", false))
	assert.False(t, rejected.OK)
	assert.Equal(t, gateerr.KindBackpressure, rejected.Error.Kind)

	recs := sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.OutcomeBlocked, recs[0].Outcome)

	close(release)
	for range 2 {
		assert.True(t, (<-done).OK)
	}
}

func TestAdmission_CancelWhileQueued(t *testing.T) {
	d, _, release, order := gated(t, config.ServerConfig{MaxConcurrentRequests: 1})
	defer close(release)

	go d.Handle(context.Background(), blockReq("running", true))
	require.Eventually(t, func() bool { active, _ := d.Stats(); return active == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	resp := d.Handle(ctx, blockReq("late", false))
	assert.False(t, resp.OK)
	assert.Equal(t, gateerr.KindTimeout, resp.Error.Kind)

	ctx2, cancel2 := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel2)
	resp = d.Handle(ctx2, blockReq("abandoned", false))
	assert.Equal(t, gateerr.KindBackpressure, resp.Error.Kind)

	assert.Equal(t, []string{"running"}, order())
	_, queued := d.Stats()
	assert.Zero(t, queued)
}

func TestHandle_PanicIsRecovered(t *testing.T) {
	log, sink := testhelpers.NewAuditLog()
	d := New(log, defaultServer(), zerolog.Nop())
	d.Register(NewRoute("explode", "", func(context.Context, empty) (string, error) {
		panic("boom")
	}))

	resp := d.Handle(context.Background(), OperationRequest{Kind: "explode"})
	assert.False(t, resp.OK)
	assert.Equal(t, gateerr.KindInternal, resp.Error.Kind)
	assert.Equal(t, "internal error", resp.Error.Message)
	assert.NotEmpty(t, resp.RequestID)

	recs := sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.OutcomeError, recs[0].Outcome)

	// The slot was released.
	active, _ := d.Stats()
	assert.Zero(t, active)
}

func TestHandle_PanicAfterEngineRecordKeepsOneRecord(t *testing.T) {
	log, sink := testhelpers.NewAuditLog()
	d := New(log, defaultServer(), zerolog.Nop())
	d.Register(NewRoute("explode", "", func(ctx context.Context, _ empty) (string, error) {
		log.Record(audit.Stamp(ctx, audit.Record{Kind: "explode", Outcome: audit.OutcomeError, Error: "internal error"}))
		panic("boom")
	}))

	resp := d.Handle(context.Background(), OperationRequest{Kind: "explode", RequestID: "r1"})

	assert.Equal(t, gateerr.KindInternal, resp.Error.Kind)
	recs := sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "r1", recs[0].RequestID)
}

func TestServe(t *testing.T) {
	s := newStack(t, defaultServer())
	s.ws.WriteFile(t, "a.txt", []byte("content"))

	in := strings.Join([]string{
		`{"kind":"readFile","requestId":"r1","payload":{"path":"a.txt"}}`,
		``,
		`{not json`,
		`{"kind":"nope","requestId":"r3"}`,
	}, "\n")
	var out strings.Builder
	require.NoError(t, s.dispatcher.Serve(context.Background(), strings.NewReader(in), &out))

	byID := make(map[string]map[string]any)
	var malformed map[string]any
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	for sc.Scan() {
		var resp map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &resp))
		switch id := resp["requestId"].(string); id {
		case "r1", "r3":
			byID[id] = resp
		default:
			malformed = resp
		}
	}

	require.Len(t, byID, 2)
	assert.Equal(t, true, byID["r1"]["ok"])
	assert.Equal(t, "content", byID["r1"]["result"].(map[string]any)["content"])
	assert.Equal(t, string(gateerr.KindInvalidParams), byID["r3"]["error"].(map[string]any)["kind"])

	require.NotNil(t, malformed)
	assert.Equal(t, false, malformed["ok"])
	assert.Len(t, s.audit.Records(), 3)
}

func TestInput(t *testing.T) {
	tests := []struct {
		name string
		req  OperationRequest
		want map[string]any
	}{
		{"payload only", OperationRequest{Payload: map[string]any{"path": "a"}}, map[string]any{"path": "a"}},
		{"single path", OperationRequest{Paths: []string{"a"}}, map[string]any{"path": "a"}},
		{"payload path wins", OperationRequest{Paths: []string{"a"}, Payload: map[string]any{"path": "b"}}, map[string]any{"path": "b"}},
		{"multiple paths are not folded", OperationRequest{Paths: []string{"a", "b"}}, map[string]any{}},
		{"payload wins over options", OperationRequest{Payload: map[string]any{"preview": false}, Options: map[string]any{"preview": true, "createBackup": true}}, map[string]any{"preview": false, "createBackup": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, input(tt.req))
		})
	}
}

func ExampleDispatcher_Tools() {
	d := New(audit.New(audit.NopSink{}, zerolog.Nop()), config.ServerConfig{MaxConcurrentRequests: 1}, zerolog.Nop())
	d.Register(NewRoute("ping", "Reply with pong", func(context.Context, empty) (string, error) { return "pong", nil }))
	for _, tool := range d.Tools() {
		fmt.Printf("%s: %s\n", tool.Kind, tool.Description)
	}
	// Output: ping: Reply with pong
}
