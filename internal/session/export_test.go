package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/storage"
	"github.com/chatrelay/chatrelay/pkg/types"
)

func TestExporter_ExportAndOpen(t *testing.T) {
	ctx := context.Background()
	mem := afero.NewMemMapFs()
	exporter := NewExporter(storage.NewWithFs(mem, "/data/exports"))
	exporter.now = func() time.Time { return time.Date(2025, 3, 1, 8, 30, 15, 0, time.UTC) }

	ts := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	sess := &types.Session{
		ID:        "s1",
		UserID:    "u1",
		Mode:      types.ModeSearch,
		CreatedAt: ts,
		UpdatedAt: ts,
		Messages: []types.Message{
			{ID: "m1", Role: types.RoleUser, Content: "Hello", Timestamp: ts},
			{ID: "m2", Role: types.RoleAssistant, Content: "Hi", Timestamp: ts},
		},
	}

	name, err := exporter.Export(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "s1_20250301_083015.json", name)

	data, err := exporter.Open(ctx, name)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "s1", record["session_id"])
	assert.Equal(t, float64(2), record["total_messages"])
	assert.Equal(t, "2025-03-01T08:30:15Z", record["exported_at"])
	assert.Len(t, record["messages"], 2)
}

func TestExporter_OpenRejectsTraversal(t *testing.T) {
	exporter := NewExporter(storage.NewWithFs(afero.NewMemMapFs(), "/data/exports"))
	for _, name := range []string{"../sessions/s1.json", "/etc/passwd", ".hidden.json", "s1.txt", `..\s1.json`} {
		_, err := exporter.Open(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidExport, name)
	}
}

func TestExporter_OpenMissing(t *testing.T) {
	exporter := NewExporter(storage.NewWithFs(afero.NewMemMapFs(), "/data/exports"))
	_, err := exporter.Open(context.Background(), "nope.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExporter_List(t *testing.T) {
	ctx := context.Background()
	exporter := NewExporter(storage.NewWithFs(afero.NewMemMapFs(), "/data/exports"))

	files, err := exporter.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, files)

	clock := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	exporter.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	for _, id := range []string{"s2", "s1", "s1"} {
		_, err := exporter.Export(ctx, &types.Session{ID: id, Mode: types.ModeSearch})
		require.NoError(t, err)
	}

	files, err = exporter.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1_20250301_080200.json", "s1_20250301_080300.json", "s2_20250301_080100.json"}, files)

	files, err = exporter.List(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2_20250301_080100.json"}, files)

	_, err = exporter.Open(ctx, files[0])
	assert.NoError(t, err)
}

func TestExporter_ReadOnly(t *testing.T) {
	exporter := NewExporter(storage.NewWithFs(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/data/exports"))
	_, err := exporter.Export(context.Background(), &types.Session{ID: "s1", Mode: types.ModeSearch})
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestCodec_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 1, 8, 0, 0, 42, time.UTC)
	thread := "thread_1"
	sess := &types.Session{
		ID:           "s1",
		UserID:       "u1",
		Mode:         types.ModeNormal,
		PromptType:   "default",
		SystemPrompt: "You are helpful",
		ThreadID:     &thread,
		Messages:     []types.Message{{ID: "m1", Role: types.RoleUser, Content: "Hello", Timestamp: ts}},
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	data, err := Encode(sess)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	_, err = Decode([]byte(`{"session_id":""}`))
	assert.Error(t, err)
}
