package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/mailsift/config"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/index"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func TestAppCommands(t *testing.T) {
	app := newApp()
	for _, name := range []string{
		"run", "poll", "search", "ask", "list", "show", "reprocess", "stats",
		"rebuild-index", "retry-failed", "test-notification", "config", "credential",
	} {
		findCommand(t, app, name)
	}

	t.Run("search k defaults to 5", func(t *testing.T) {
		cmd := findCommand(t, app, "search")
		var kFlag *cli.IntFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.IntFlag); ok && f.Name == "k" {
				kFlag = f
			}
		}
		require.NotNil(t, kFlag)
		assert.Equal(t, 5, kFlag.Value)
	})

	t.Run("list limit defaults to 20", func(t *testing.T) {
		cmd := findCommand(t, app, "list")
		var limitFlag *cli.IntFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.IntFlag); ok && f.Name == "limit" {
				limitFlag = f
			}
		}
		require.NotNil(t, limitFlag)
		assert.Equal(t, 20, limitFlag.Value)
	})
}

func TestArgumentValidation(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"search needs a query", []string{"search"}, "query is required"},
		{"ask needs a question", []string{"ask", "  "}, "question is required"},
		{"show needs an id", []string{"show"}, "record ID"},
		{"show rejects a bad id", []string{"show", "xyz"}, "invalid record id"},
		{"search rejects an unknown category", []string{"search", "--category", "spam", "hello"}, "invalid category"},
		{"list rejects an unknown state", []string{"list", "--state", "done"}, "invalid state"},
		{"list rejects a bad date", []string{"list", "--since", "yesterday"}, "invalid date"},
		{"credential rejects unknown keys", []string{"credential", "set", "api-key"}, "unknown credential"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"mailsift", "--config", cfgPath, "--no-keyring"}, tt.args...)
			err := newApp().Run(args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInvalidLogLevel(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	err := newApp().Run([]string{"mailsift", "--log-level", "verbose", "stats"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailsift", "config.yaml")

	require.NoError(t, newApp().Run([]string{"mailsift", "--config", path, "config", "init"}))
	_, err := os.Stat(path)
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX"}, cfg.Mailbox.Folders)

	err = newApp().Run([]string{"mailsift", "--config", path, "config", "init"})
	assert.Error(t, err, "refuses to overwrite without --force")
	assert.NoError(t, newApp().Run([]string{"mailsift", "--config", path, "config", "init", "--force"}))
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = parseLevel("loud")
	assert.Error(t, err)
}

func TestParseFilters(t *testing.T) {
	categories, err := parseCategories([]string{"Work", " personal "})
	require.NoError(t, err)
	assert.Equal(t, []core.Category{core.CategoryWork, core.CategoryPersonal}, categories)

	importances, err := parseImportances([]string{"HIGH"})
	require.NoError(t, err)
	assert.Equal(t, []core.Importance{core.ImportanceHigh}, importances)

	_, err = parseImportances([]string{"urgent"})
	assert.ErrorIs(t, err, core.ErrInvalidImportance)

	states, err := parseStates([]string{"failed"})
	require.NoError(t, err)
	assert.Equal(t, []core.ProcessingState{core.StateFailed}, states)

	d, err := parseDate("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2025, d.Year())
	assert.Equal(t, time.March, d.Month())

	d, err = parseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "", redact(""))
	assert.Equal(t, "none", redact("none"))
	assert.Equal(t, "********", redact("hunter2"))
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, &core.Stats{
		TotalRecords:  3,
		ByState:       map[core.ProcessingState]int{core.StateProcessed: 2, core.StateFailed: 1},
		ByCategory:    map[core.Category]int{core.CategoryWork: 2},
		ByImportance:  map[core.Importance]int{core.ImportanceHigh: 1, core.ImportanceLow: 1},
		Indexed:       2,
		IndexEntries:  2,
		Notifications: map[core.NotificationStatus]int{core.NotificationSent: 1},
	})

	out := buf.String()
	assert.Contains(t, out, "Records:       3")
	assert.Contains(t, out, "processed")
	assert.Contains(t, out, "work")
	assert.Contains(t, out, "sent")
	assert.NotContains(t, out, "Latest:")
}

func TestPrintRecord(t *testing.T) {
	var buf bytes.Buffer
	record := &core.EmailRecord{
		Id:            core.RecordID("INBOX", 1),
		Folder:        "INBOX",
		UID:           1,
		Subject:       "Invoice overdue",
		Sender:        "billing@example.com",
		State:         core.StateFailed,
		FailureReason: "embed: dimension mismatch",
		Quarantined:   true,
	}
	raw := &core.RawMessage{
		HTMLBody:    "<p>Please pay</p>",
		Attachments: []core.Attachment{{Name: "invoice.pdf", ContentType: "application/pdf", Size: 1024}},
	}
	printRecord(&buf, record, raw)

	out := buf.String()
	assert.Contains(t, out, "Invoice overdue")
	assert.Contains(t, out, "[quarantined]")
	assert.Contains(t, out, "invoice.pdf")
	assert.Contains(t, out, "Please pay")
	assert.NotContains(t, out, "Summary:")
}

func TestVerboseMonitor(t *testing.T) {
	var buf bytes.Buffer
	m := newVerboseMonitor(&buf)
	m.Start("invoice")
	m.AfterEmbedding(make([]float32, 8))
	m.AfterIndexQuery([]index.Match{{ID: core.ID(1), Score: 0.5}})
	m.AfterRecordRetrieval(nil)
	m.Dropped(core.ID(1), "no record")
	m.Finish(nil)

	out := buf.String()
	assert.Contains(t, out, `query: "invoice"`)
	assert.Contains(t, out, "8 dimensions")
	assert.Contains(t, out, "dropped 0000000000000001: no record")
	assert.Nil(t, monitorOrNil(nil))
}

func TestBarProgress(t *testing.T) {
	var buf bytes.Buffer
	p := newBarProgress(&buf)
	p.Increment(1) // before Start: ignored
	p.Start(4)
	p.Increment(2)
	p.Increment(2)
	p.Finish()

	assert.Contains(t, buf.String(), "4/4")
}
