package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/capture"
	"rollcall/internal/config"
	"rollcall/internal/handler"
	"rollcall/internal/slot"
)

const rosterYAML = `
- student_id: s1
  roll_no: "1"
  first_name: Ada
  last_name: Lovelace
- student_id: s2
  roll_no: "2"
  first_name: Alan
  last_name: Turing
- student_id: s3
  roll_no: "3"
  first_name: Grace
  last_name: Hopper
`

type nopRecorders struct{}

func (nopRecorders) UpsertRecorder(ctx context.Context, recorderID, teacherID string) error {
	return nil
}

func (nopRecorders) SaveRefreshToken(ctx context.Context, recorderID, token string, expiresAt time.Time) error {
	return nil
}

type env struct {
	cli    *commandLine
	out    *bytes.Buffer
	store  *attendance.MemoryStore
	server *httptest.Server
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a := handler.Auth{SigningKey: "cli-test-key", Issuer: "rollcall", AccessTTL: time.Hour, RefreshTTL: time.Hour}
	store := attendance.NewMemoryStore()
	r := gin.New()
	handler.New(attendance.NewService(store, nil), attendance.NewSummarizer(store), nopRecorders{}, a, nil).Register(r, handler.Middleware{})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	pair, err := auth.Issue("teacher-7", "tablet-1", a.Issuer, a.SigningKey, time.Hour, time.Hour)
	require.NoError(t, err)

	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "grade2.yaml")
	require.NoError(t, os.WriteFile(rosterPath, []byte(rosterYAML), 0o644))

	cfg := config.Recorder{
		ServerURL:      srv.URL,
		RecorderID:     "tablet-1",
		TeacherID:      "teacher-7",
		Token:          pair.AccessToken,
		ExportDir:      filepath.Join(dir, "exports"),
		ProbeInterval:  time.Second,
		RequestTimeout: time.Second,
		Slots: []config.SlotConfig{{
			ClassName: "Grade 2 General", SlotNumber: 4, Course: "Mathematics", Room: "R-12",
			StartTime: "10:30", EndTime: "11:15", RosterFile: rosterPath,
		}},
	}
	backlog, err := capture.OpenSQLiteBacklog(filepath.Join(dir, "backlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backlog.Close() })

	out := &bytes.Buffer{}
	return &env{cli: newCommandLine(cfg, backlog, out), out: out, store: store, server: srv}
}

func (e *env) pending(t *testing.T) int {
	t.Helper()
	n, err := e.cli.backlog.Len(context.Background())
	require.NoError(t, err)
	return n
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func Test_commandLine_usage(t *testing.T) {
	e := setup(t)
	tests := []cliTest{
		{name: "no command", args: nil, wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "capture: no slot", args: []string{"capture", "-class", "Grade 2 General"}, wantErr: errHelp},
		{name: "capture: unknown slot", args: []string{"capture", "-class", "Grade 2 General", "-slot", "5"}, wantErrStr: `no slot 5 configured for class "Grade 2 General"`},
		{name: "capture: bad date", args: []string{"capture", "-class", "Grade 2 General", "-slot", "4", "-date", "10/03/2025"}, wantErrStr: `invalid date "10/03/2025": want YYYY-MM-DD`},
		{name: "capture: absent and late", args: []string{"capture", "-class", "Grade 2 General", "-slot", "4", "-absent", "s1", "-late", "s1"}, wantErrStr: "student s1 marked both absent and late"},
		{name: "import: no files", args: []string{"import"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.cli.run(append([]string{"recorder"}, tt.args...))
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrStr != "":
				assert.EqualError(t, err, tt.wantErrStr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_captureOnline(t *testing.T) {
	e := setup(t)
	args := []string{"recorder", "capture", "-class", "Grade 2 General", "-slot", "4", "-date", "2025-03-10", "-absent", "s2", "-late", "s3"}

	require.NoError(t, e.cli.run(args))
	assert.Contains(t, e.out.String(), "2025-03-10|Grade 2 General|4 recorded")

	recs, err := e.store.List(context.Background(), "Grade 2 General", "Mathematics")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 11, recs[0].Week)
	got := map[string]attendance.Status{}
	for _, s := range recs[0].Students {
		got[s.StudentID] = s.Status
	}
	assert.Equal(t, map[string]attendance.Status{"s1": attendance.Present, "s2": attendance.Absent, "s3": attendance.Late}, got)

	e.out.Reset()
	require.NoError(t, e.cli.run(args))
	assert.Contains(t, e.out.String(), "already recorded")
	assert.Equal(t, 1, e.store.Len())
	assert.Zero(t, e.pending(t))
}

func Test_commandLine_offlineThenSync(t *testing.T) {
	e := setup(t)
	today = func() slot.Date { return slot.NewDate(2025, time.March, 11) }
	t.Cleanup(func() { today = func() slot.Date { return slot.DateOf(time.Now()) } })

	require.NoError(t, e.cli.run([]string{"recorder", "capture", "-class", "Grade 2 General", "-slot", "4", "-offline"}))
	assert.Contains(t, e.out.String(), "saved offline")
	assert.Equal(t, 1, e.pending(t))
	assert.Zero(t, e.store.Len())

	e.out.Reset()
	require.NoError(t, e.cli.run([]string{"recorder", "pending"}))
	assert.Contains(t, e.out.String(), "2025-03-11|Grade 2 General|4")

	files, err := filepath.Glob(filepath.Join(e.cli.cfg.ExportDir, "attendance_*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	e.out.Reset()
	require.NoError(t, e.cli.run([]string{"recorder", "sync"}))
	assert.Contains(t, e.out.String(), "1 reconciled")
	assert.Equal(t, 1, e.store.Len())
	assert.Zero(t, e.pending(t))

	// the exported file is still around; importing it is harmless
	e.out.Reset()
	require.NoError(t, e.cli.run(append([]string{"recorder", "import"}, files...)))
	assert.Contains(t, e.out.String(), "1 already recorded")
	assert.Equal(t, 1, e.store.Len())
}

func Test_commandLine_serverDown(t *testing.T) {
	e := setup(t)
	e.server.Close()

	require.NoError(t, e.cli.run([]string{"recorder", "capture", "-class", "Grade 2 General", "-slot", "4", "-date", "2025-03-10"}))
	out := e.out.String()
	assert.Contains(t, out, "server looks unreachable")
	assert.Contains(t, out, "saved offline")
	assert.Equal(t, 1, e.pending(t))

	e.out.Reset()
	err := e.cli.run([]string{"recorder", "sync"})
	assert.ErrorIs(t, err, errIncomplete)
	assert.Contains(t, e.out.String(), "1 failed")
	assert.Equal(t, 1, e.pending(t))
}

func Test_commandLine_importCorrupt(t *testing.T) {
	e := setup(t)
	bad := filepath.Join(t.TempDir(), "attendance_bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))

	err := e.cli.run([]string{"recorder", "import", bad})
	assert.ErrorIs(t, err, errIncomplete)
	assert.Contains(t, e.out.String(), "1 corrupt")
}
