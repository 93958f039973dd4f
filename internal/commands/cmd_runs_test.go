package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/liftoffhq/liftoff/internal/core/config"
	"github.com/liftoffhq/liftoff/internal/data/db"
	"github.com/liftoffhq/liftoff/internal/data/stores"
	"github.com/liftoffhq/liftoff/internal/liftoff"
	"github.com/liftoffhq/liftoff/internal/liftoff/provision"
)

func newRunsApp(t *testing.T, buf *bytes.Buffer) (*cli.Command, *stores.RunStore) {
	t.Helper()

	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	runStore := stores.NewRunStore(database)

	flags := &Flags{Config: &config.Config{}}
	app := &liftoff.App{Runs: runStore}

	root := &cli.Command{Name: "liftoff", Writer: buf}
	NewRunsCmd(flags, app).Register(root)
	return root, runStore
}

func insertRun(t *testing.T, store *stores.RunStore, id, status string, startedAt time.Time) {
	t.Helper()
	err := store.Insert(context.Background(), provision.RunRecord{
		ID:         id,
		Project:    "Demo Shop",
		Workspace:  "/tmp/demo-shop",
		Status:     status,
		Counts:     provision.RunCounts{ItemsCreated: 8, Relations: 7},
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(3 * time.Second),
	})
	require.NoError(t, err)
}

func TestRunsCmd_JSONNewestFirst(t *testing.T) {
	var buf bytes.Buffer
	root, store := newRunsApp(t, &buf)

	base := time.Now().Add(-time.Hour)
	insertRun(t, store, "run-aaaa1111", provision.RunStatusCompleted, base)
	insertRun(t, store, "run-bbbb2222", provision.RunStatusRolledBack, base.Add(10*time.Minute))

	err := root.Run(context.Background(), []string{"liftoff", "runs", "--json"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second runInfo
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Equal(t, "run-bbbb2222", first.ID)
	assert.Equal(t, provision.RunStatusRolledBack, first.Status)
	assert.Equal(t, "run-aaaa1111", second.ID)
	assert.Equal(t, 8, second.ItemsCreated)
	assert.Equal(t, 7, second.Relations)
}

func TestRunsCmd_LimitFlag(t *testing.T) {
	var buf bytes.Buffer
	root, store := newRunsApp(t, &buf)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		insertRun(t, store, id, provision.RunStatusCompleted, base.Add(time.Duration(i)*time.Minute))
	}

	err := root.Run(context.Background(), []string{"liftoff", "runs", "--json", "--limit", "1"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var got runInfo
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "run-c", got.ID)
}

func TestRunsCmd_TableOutput(t *testing.T) {
	var buf bytes.Buffer
	root, store := newRunsApp(t, &buf)

	insertRun(t, store, "run-cccc3333", provision.RunStatusCompleted, time.Now().Add(-time.Minute))

	err := root.Run(context.Background(), []string{"liftoff", "runs"})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "run-cccc3333")
	assert.Contains(t, out, "Demo Shop")
	assert.Contains(t, out, provision.RunStatusCompleted)
}

func TestRunsCmd_EmptyJSONWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	root, _ := newRunsApp(t, &buf)

	err := root.Run(context.Background(), []string{"liftoff", "runs", "--json"})
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}
