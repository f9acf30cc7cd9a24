package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duewatch/internal/model"
	"github.com/roach88/duewatch/internal/store"
)

type env struct {
	t      *testing.T
	dir    string
	config string
	db     string
}

// newEnv writes a config file pointing at a fresh database, in UTC.
func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		t:      t,
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		db:     filepath.Join(dir, "duewatch.db"),
	}
	require.NoError(t, os.WriteFile(e.config, []byte(`
database: `+e.db+`
timezone: UTC
locale: es-AR
sync:
  default_tag: ""
log:
  level: error
`), 0644))
	return e
}

// run executes the root command with args and returns stdout and the error.
func (e *env) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// seedVisa writes a fixture whose item qualifies right now.
func (e *env) seedVisa() {
	e.t.Helper()
	now := time.Now().UTC()
	fixture := `
config:
  diasAnticipacion: 3
  horaNotificacion: "` + now.Format("15:04") + `"
items:
  - id: visa-1
    nombre: Visa
    fechaVencimiento: "` + now.AddDate(0, 0, 2).Format("2006-01-02") + `"
    montoAdeudado: "15000"
syncs:
  - check-vencimientos
`
	path := filepath.Join(e.dir, "seed.yaml")
	require.NoError(e.t, os.WriteFile(path, []byte(fixture), 0644))

	out, err := e.run("", "seed", path)
	require.NoError(e.t, err, out)
	assert.Contains(e.t, out, "Seeded 1 due items")
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "duewatch", cmd.Use)

	for _, name := range []string{"run", "exec", "check", "seed", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestInvalidFormat(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("", "--format", "xml", "check")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidConfig(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(e.config, []byte("timezone: Mars/Olympus_Mons\n"), 0644))

	_, err := e.run("", "check")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestExec_Message(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("", "exec", `{"command":"schedule-sync","tag":"check-vencimientos"}`)
	require.NoError(t, err)
	assert.Equal(t, "schedule-sync: ok\n", out)

	st, err := store.Open(e.db)
	require.NoError(t, err)
	defer st.Close()
	_, ok, err := st.Get(context.Background(), model.CollectionSyncRegistrations, "check-vencimientos")
	require.NoError(t, err)
	assert.True(t, ok, "registration persisted")
}

func TestExec_Stdin(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(`{"command":"debug-config"}`, "--format", "json", "exec", "-")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "debug-config", resp.Command)
	assert.Contains(t, out, `"source":"default"`)
}

func TestExec_EmptyStdin(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("  \n", "exec", "-")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExec_Rejected(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("", "exec", `{"command":"format-disk"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [UNKNOWN_COMMAND]")
}

func TestSeedThenCheck(t *testing.T) {
	e := newEnv(t)
	e.seedVisa()

	out, err := e.run("", "check")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Checked 1 due items")
	assert.Contains(t, out, "Notified: vencimiento-visa-1")
	assert.Contains(t, out, "Visa vence en 2 días", "console notification on stdout")
	assert.Contains(t, out, "15.000")
}

func TestCheck_JSON(t *testing.T) {
	e := newEnv(t)
	e.seedVisa()

	out, err := e.run("", "--format", "json", "check")
	require.NoError(t, err, out)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Items    int      `json:"items"`
			Notified []string `json:"notified"`
			States   []string `json:"states"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Items)
	assert.Equal(t, []string{"vencimiento-visa-1"}, resp.Data.Notified)
	assert.Equal(t, []string{"loading-data", "evaluating", "notifying", "idle"}, resp.Data.States)
}

func TestCheck_NoItems(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Stopped: no due items")
}

func TestCheck_DaemonHoldsLease(t *testing.T) {
	e := newEnv(t)
	e.seedVisa()

	st, err := store.Open(e.db)
	require.NoError(t, err)
	now := time.Now().UnixMilli()
	raw, err := json.Marshal(model.Lease{Instance: "daemon", ClaimedMs: now, RenewedMs: now})
	require.NoError(t, err)
	require.NoError(t, st.Put(context.Background(), model.CollectionLifecycle, model.KeyLease, raw))
	require.NoError(t, st.Close())

	out, err := e.run("", "check")
	require.Error(t, err)
	assert.Contains(t, out, "Error [NOT_ACTIVE]")
	assert.Contains(t, err.Error(), "--takeover")

	out, err = e.run("", "check", "--takeover")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Notified: vencimiento-visa-1")
}

func TestSeed_InvalidAmount(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
items:
  - id: visa-1
    nombre: Visa
    fechaVencimiento: "2026-10-16"
    montoAdeudado: "quince mil"
`), 0644))

	_, err := e.run("", "seed", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid montoAdeudado")
}

func TestSeed_MissingFile(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("", "seed", filepath.Join(e.dir, "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSeedFile_Messages(t *testing.T) {
	f := &SeedFile{
		Config: map[string]any{"diasAnticipacion": 2},
		Items: []SeedItem{
			{ID: "visa-1", Name: "Visa", DueDate: "2026-10-16", Amount: "15000.50"},
		},
		Scheduled: []SeedScheduled{
			{ID: "visa-1-reminder", At: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), Item: "visa-1"},
		},
		Syncs: []string{"check-vencimientos"},
	}

	msgs, err := f.Messages()
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	assert.JSONEq(t, `{"command":"save-data","key":"config","data":{"diasAnticipacion":2}}`, string(msgs[0]))
	assert.JSONEq(t, `{"command":"save-data","key":"due-items","id":"all","data":[
		{"id":"visa-1","nombre":"Visa","fechaVencimiento":"2026-10-16","montoAdeudado":"15000.5"}
	]}`, string(msgs[1]))
	assert.JSONEq(t, `{"command":"schedule-notification","id":"visa-1-reminder","fechaEnvio":1792065600000,"datos":
		{"id":"visa-1","nombre":"Visa","fechaVencimiento":"2026-10-16","montoAdeudado":"15000.5"}
	}`, string(msgs[2]))
	assert.JSONEq(t, `{"command":"schedule-sync","tag":"check-vencimientos"}`, string(msgs[3]))
}

func TestSeedFile_UnknownScheduledItem(t *testing.T) {
	f := &SeedFile{Scheduled: []SeedScheduled{{ID: "x", At: time.Now(), Item: "ghost"}}}
	_, err := f.Messages()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown item "ghost"`)
}
