package codeedit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Cyclone1070/gatekeep/internal/audit"
	"github.com/Cyclone1070/gatekeep/internal/backup"
	"github.com/Cyclone1070/gatekeep/internal/fileops"
	"github.com/Cyclone1070/gatekeep/internal/gateerr"
	"github.com/Cyclone1070/gatekeep/internal/host"
	"github.com/Cyclone1070/gatekeep/internal/pathlock"
	pathpolicy "github.com/Cyclone1070/gatekeep/internal/policy/path"
	"github.com/Cyclone1070/gatekeep/internal/testing/mocks"
	"github.com/Cyclone1070/gatekeep/internal/testing/testhelpers"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine *Engine
	ws     *testhelpers.Workspace
	fs     *mocks.FaultyFileSystem
	audit  *audit.MemorySink
}

func newFixture(t *testing.T, threshold int) *fixture {
	t.Helper()
	ws := testhelpers.CreateTestWorkspace(t)
	fsys := mocks.NewFaultyFileSystem()
	backupDir := filepath.Join(ws.Root, ".gatekeep", "backups")

	paths := pathpolicy.New(ws.Root, fsys, []string{".gatekeep/"}, backupDir)
	backups := backup.NewManager(ws.Root, backupDir, fsys, backup.Options{MaxGenerations: 5}, zerolog.Nop())
	log, sink := testhelpers.NewAuditLog()
	files := fileops.New(paths, backups, fsys, log, pathlock.New(), 1<<20, zerolog.Nop())

	return &fixture{
		engine: New(files, host.NewLocal(ws.Root, fsys, zerolog.Nop()), log, threshold, zerolog.Nop()),
		ws:     ws,
		fs:     fsys,
		audit:  sink,
	}
}

func noBackup() *bool {
	b := false
	return &b
}

func TestInsert(t *testing.T) {
	tests := []struct {
		name      string
		initial   string
		req       InsertRequest
		want      string
		wantRange LineRange
	}{
		{
			name:      "before middle line",
			initial:   "a\nb\nc\n",
			req:       InsertRequest{Line: 2, Content: "x"},
			want:      "a\nx\nb\nc\n",
			wantRange: LineRange{Start: 2, End: 2},
		},
		{
			name:      "append after last line",
			initial:   "a\nb\nc\n",
			req:       InsertRequest{Line: 4, Content: "x\ny\n"},
			want:      "a\nb\nc\nx\ny\n",
			wantRange: LineRange{Start: 4, End: 5},
		},
		{
			name:      "empty file",
			initial:   "",
			req:       InsertRequest{Line: 1, Content: "first"},
			want:      "first\n",
			wantRange: LineRange{Start: 1, End: 1},
		},
		{
			name:      "crlf preserved",
			initial:   "a\r\nb\r\n",
			req:       InsertRequest{Line: 2, Content: "x\n"},
			want:      "a\r\nx\r\nb\r\n",
			wantRange: LineRange{Start: 2, End: 2},
		},
		{
			name:      "no trailing newline kept",
			initial:   "a\nb",
			req:       InsertRequest{Line: 3, Content: "c"},
			want:      "a\nb\nc",
			wantRange: LineRange{Start: 3, End: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			f.ws.WriteFile(t, "f.txt", []byte(tt.initial))
			tt.req.Path = "f.txt"

			resp, err := f.engine.Insert(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(f.ws.ReadFile(t, "f.txt")))
			assert.Equal(t, tt.wantRange, resp.ModifiedRange)
			assert.Equal(t, tt.wantRange.End-tt.wantRange.Start+1, resp.LinesInserted)
			assert.Contains(t, resp.Diff, "+++ b/f.txt")
			assert.NotEmpty(t, resp.BackupPath)

			recs := f.audit.Records()
			require.Len(t, recs, 1)
			assert.Equal(t, "insertCode", recs[0].Kind)
			assert.Equal(t, audit.OutcomeSuccess, recs[0].Outcome)
		})
	}
}

func TestInsert_PreserveIndent(t *testing.T) {
	f := newFixture(t, 0)
	f.ws.WriteFile(t, "main.go", []byte("func f() {\n\treturn\n}\n"))

	_, err := f.engine.Insert(context.Background(), InsertRequest{
		Path:           "main.go",
		Line:           2,
		Content:        "x := 1\nif x > 0 {\n    y()\n}\n",
		PreserveIndent: true,
		CreateBackup:   noBackup(),
	})
	require.NoError(t, err)
	assert.Equal(t, "func f() {\n\tx := 1\n\tif x > 0 {\n\t\ty()\n\t}\n\treturn\n}\n", string(f.ws.ReadFile(t, "main.go")))
}

func TestInsert_Rejections(t *testing.T) {
	f := newFixture(t, 0)
	f.ws.WriteFile(t, "f.txt", []byte("a\nb\n"))

	_, err := f.engine.Insert(context.Background(), InsertRequest{Path: "f.txt", Line: 4, Content: "x"})
	assert.ErrorIs(t, err, gateerr.ErrInvalidParams)

	_, err = f.engine.Insert(context.Background(), InsertRequest{Path: "f.txt", Line: 0, Content: "x"})
	assert.ErrorIs(t, err, gateerr.ErrInvalidParams)

	_, err = f.engine.Insert(context.Background(), InsertRequest{Path: "../f.txt", Line: 1, Content: "x"})
	assert.ErrorIs(t, err, gateerr.ErrPathRejected)

	assert.Equal(t, "a\nb\n", string(f.ws.ReadFile(t, "f.txt")))
	recs := f.audit.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, audit.OutcomeBlocked, recs[2].Outcome)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, 0)
	f.ws.WriteFile(t, "f.txt", []byte("1\n2\n3\n4\n5\n"))

	resp, err := f.engine.Delete(context.Background(), DeleteRequest{Path: "f.txt", StartLine: 2, EndLine: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.LinesDeleted)
	assert.False(t, resp.Confirmed)
	assert.Contains(t, resp.Diff, "-2\n")
	assert.Equal(t, "1\n4\n5\n", string(f.ws.ReadFile(t, "f.txt")))
}

func TestDelete_OutOfRange(t *testing.T) {
	f := newFixture(t, 0)
	f.ws.WriteFile(t, "f.txt", []byte("1\n2\n3\n"))

	tests := []struct {
		name       string
		start, end int
	}{
		{"past end", 2, 4},
		{"zero start", 0, 1},
		{"inverted", 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Delete(context.Background(), DeleteRequest{Path: "f.txt", StartLine: tt.start, EndLine: tt.end})
			assert.ErrorIs(t, err, gateerr.ErrInvalidParams)
			assert.Equal(t, "1\n2\n3\n", string(f.ws.ReadFile(t, "f.txt")))
		})
	}
}

func TestDelete_ConfirmationRequired(t *testing.T) {
	f := newFixture(t, 3)
	f.ws.WriteFile(t, "f.txt", []byte("1\n2\n3\n4\n5\n"))

	_, err := f.engine.Delete(context.Background(), DeleteRequest{Path: "f.txt", StartLine: 1, EndLine: 4})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateerr.ErrConfirmationRequired)
	assert.Equal(t, "1\n2\n3\n4\n5\n", string(f.ws.ReadFile(t, "f.txt")))

	recs := f.audit.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "deleteCode", recs[0].Kind)
	assert.Equal(t, audit.OutcomeBlocked, recs[0].Outcome)

	// exactly at the threshold needs no confirmation
	resp, err := f.engine.Delete(context.Background(), DeleteRequest{Path: "f.txt", StartLine: 3, EndLine: 5})
	require.NoError(t, err)
	assert.False(t, resp.Confirmed)

	f.ws.WriteFile(t, "g.txt", []byte("1\n2\n3\n4\n5\n"))
	resp, err = f.engine.Delete(context.Background(), DeleteRequest{Path: "g.txt", StartLine: 1, EndLine: 5, RequireConfirmation: true})
	require.NoError(t, err)
	assert.True(t, resp.Confirmed)
	assert.Equal(t, 5, resp.LinesDeleted)
	assert.Empty(t, f.ws.ReadFile(t, "g.txt"))
}

func TestReplace(t *testing.T) {
	initial := "foo.bar\nfoo\nfood\n"

	tests := []struct {
		name  string
		req   ReplaceRequest
		want  string
		count int
		lines []int
	}{
		{
			name:  "literal dot is not a wildcard",
			req:   ReplaceRequest{Pattern: ".", Replacement: "::"},
			want:  "foo::bar\nfoo\nfood\n",
			count: 1,
			lines: []int{1},
		},
		{
			name:  "anchors apply to the whole range without (?m)",
			req:   ReplaceRequest{Pattern: `^foo(d?)$`, Replacement: "bar$1", IsRegex: true},
			want:  initial,
			count: 0,
			lines: []int{},
		},
		{
			name:  "regex multiline flag",
			req:   ReplaceRequest{Pattern: `(?m)^foo(d?)$`, Replacement: "bar$1", IsRegex: true},
			want:  "foo.bar\nbar\nbard\n",
			count: 2,
			lines: []int{2, 3},
		},
		{
			name:  "scoped to line range",
			req:   ReplaceRequest{Pattern: "foo", Replacement: "x", StartLine: 2, EndLine: 2},
			want:  "foo.bar\nx\nfood\n",
			count: 1,
			lines: []int{2},
		},
		{
			name:  "match spanning lines",
			req:   ReplaceRequest{Pattern: `bar\nfoo`, Replacement: "-", IsRegex: true},
			want:  "foo.-\nfood\n",
			count: 1,
			lines: []int{1, 2},
		},
		{
			name:  "no matches",
			req:   ReplaceRequest{Pattern: "zzz", Replacement: "x"},
			want:  initial,
			count: 0,
			lines: []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			f.ws.WriteFile(t, "f.txt", []byte(initial))
			tt.req.Path = "f.txt"

			resp, err := f.engine.Replace(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(f.ws.ReadFile(t, "f.txt")))
			assert.Equal(t, tt.count, resp.ReplacementCount)
			assert.Equal(t, tt.lines, resp.AffectedLines)
			assert.Equal(t, tt.count > 0, resp.Applied)
			assert.Len(t, f.audit.Records(), 1)
		})
	}
}

func TestReplace_PreviewDoesNotWrite(t *testing.T) {
	f := newFixture(t, 0)
	f.ws.WriteFile(t, "f.txt", []byte("hello world\n"))

	resp, err := f.engine.Replace(context.Background(), ReplaceRequest{Path: "f.txt", Pattern: "world", Replacement: "gopher", Preview: true})
	require.NoError(t, err)
	assert.False(t, resp.Applied)
	assert.Equal(t, 1, resp.ReplacementCount)
	assert.Contains(t, resp.Preview, "-hello world")
	assert.Contains(t, resp.Preview, "+hello gopher")
	assert.Equal(t, "hello world\n", string(f.ws.ReadFile(t, "f.txt")))
	assert.Zero(t, f.fs.CallCount("WriteFileAtomic"))
}

func TestReplace_Rejections(t *testing.T) {
	f := newFixture(t, 0)
	f.ws.WriteFile(t, "f.txt", []byte("a\n"))

	tests := []struct {
		name string
		req  ReplaceRequest
	}{
		{"empty pattern", ReplaceRequest{Path: "f.txt"}},
		{"bad regex", ReplaceRequest{Path: "f.txt", Pattern: "(", IsRegex: true}},
		{"matches empty", ReplaceRequest{Path: "f.txt", Pattern: "x*", IsRegex: true}},
		{"range past end", ReplaceRequest{Path: "f.txt", Pattern: "a", StartLine: 3, EndLine: 4}},
		{"inverted range", ReplaceRequest{Path: "f.txt", Pattern: "a", StartLine: 2, EndLine: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Replace(context.Background(), tt.req)
			assert.ErrorIs(t, err, gateerr.ErrInvalidParams)
		})
	}
	assert.Equal(t, "a\n", string(f.ws.ReadFile(t, "f.txt")))
}

func TestApplyQuickFix(t *testing.T) {
	f := newFixture(t, 0)
	f.ws.WriteFile(t, "a.go", []byte("package a\n\nvar x = 1\n"))
	f.ws.WriteFile(t, "b.go", []byte("package b\r\n\r\nvar héllo = 2\r\n"))

	fix := QuickFix{
		ID:    "rename",
		Title: "Rename",
		Edits: []TextEdit{
			{File: "a.go", Range: rng(3, 5, 3, 6), NewText: "y"},
			{File: "b.go", Range: rng(3, 6, 3, 7), NewText: "e"},
			{File: "a.go", Range: rng(1, 1, 1, 1), NewText: "// Code.\n"},
		},
		Diagnostic: &host.Diagnostic{File: "a.go", Severity: host.SeverityWarning, Message: "rename"},
	}

	resp, err := f.engine.ApplyQuickFix(context.Background(), ApplyQuickFixRequest{Fix: fix})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"a.go", "b.go"}, resp.FilesModified)
	assert.Contains(t, resp.Diff, "+++ b/a.go")
	assert.Contains(t, resp.Diff, "+++ b/b.go")

	assert.Equal(t, "// Code.\npackage a\n\nvar y = 1\n", string(f.ws.ReadFile(t, "a.go")))
	assert.Equal(t, "package b\r\n\r\nvar hello = 2\r\n", string(f.ws.ReadFile(t, "b.go")))

	recs := f.audit.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "applyQuickFix", recs[0].Kind)
}

func TestApplyQuickFix_AllOrNothing(t *testing.T) {
	tests := []struct {
		name  string
		edits []TextEdit
		kind  gateerr.Kind
	}{
		{
			name: "overlapping edits",
			edits: []TextEdit{
				{File: "a.txt", Range: rng(1, 1, 1, 4), NewText: "x"},
				{File: "b.txt", Range: rng(1, 2, 1, 5), NewText: "y"},
				{File: "b.txt", Range: rng(1, 1, 1, 3), NewText: "z"},
			},
			kind: gateerr.KindInvalidParams,
		},
		{
			name: "stale line",
			edits: []TextEdit{
				{File: "a.txt", Range: rng(1, 1, 1, 2), NewText: "x"},
				{File: "b.txt", Range: rng(9, 1, 9, 2), NewText: "y"},
			},
			kind: gateerr.KindInvalidParams,
		},
		{
			name: "stale column",
			edits: []TextEdit{
				{File: "a.txt", Range: rng(1, 1, 1, 2), NewText: "x"},
				{File: "b.txt", Range: rng(1, 1, 1, 40), NewText: "y"},
			},
			kind: gateerr.KindInvalidParams,
		},
		{
			name: "missing file",
			edits: []TextEdit{
				{File: "a.txt", Range: rng(1, 1, 1, 2), NewText: "x"},
				{File: "missing.txt", Range: rng(1, 1, 1, 1), NewText: "y"},
			},
			kind: gateerr.KindNotFound,
		},
		{
			name:  "no edits",
			edits: nil,
			kind:  gateerr.KindInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			f.ws.WriteFile(t, "a.txt", []byte("alpha\n"))
			f.ws.WriteFile(t, "b.txt", []byte("bravo\n"))

			_, err := f.engine.ApplyQuickFix(context.Background(), ApplyQuickFixRequest{Fix: QuickFix{ID: "f", Edits: tt.edits}})
			require.Error(t, err)
			assert.Equal(t, tt.kind, gateerr.KindOf(err))
			assert.Equal(t, "alpha\n", string(f.ws.ReadFile(t, "a.txt")))
			assert.Equal(t, "bravo\n", string(f.ws.ReadFile(t, "b.txt")))
			assert.Zero(t, f.fs.CallCount("WriteFileAtomic"))
			assert.Len(t, f.audit.Records(), 1)
		})
	}
}

func TestApplyQuickFix_WriteFailureRollsBack(t *testing.T) {
	f := newFixture(t, 0)
	f.ws.WriteFile(t, "a.txt", []byte("alpha\n"))
	b := f.ws.WriteFile(t, "b.txt", []byte("bravo\n"))
	f.fs.SetPathError("WriteFileAtomic", b, assert.AnError)

	_, err := f.engine.ApplyQuickFix(context.Background(), ApplyQuickFixRequest{Fix: QuickFix{Edits: []TextEdit{
		{File: "a.txt", Range: rng(1, 1, 1, 6), NewText: "ALPHA"},
		{File: "b.txt", Range: rng(1, 1, 1, 6), NewText: "BRAVO"},
	}}})
	require.Error(t, err)
	assert.Equal(t, "alpha\n", string(f.ws.ReadFile(t, "a.txt")))
	assert.Equal(t, "bravo\n", string(f.ws.ReadFile(t, "b.txt")))
}

func rng(sl, sc, el, ec int) host.Range {
	return host.Range{Start: host.Position{Line: sl, Column: sc}, End: host.Position{Line: el, Column: ec}}
}
