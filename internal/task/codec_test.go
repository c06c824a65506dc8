package task

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRaw(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadFileAppliesDefaultsAndDropsInvalidTasks(t *testing.T) {
	dir := t.TempDir()
	path := writeRaw(t, dir, "tasks.json", `{
		"version": 1,
		"project": "demo",
		"tasks": [
			{"id": "demo/ok", "title": "Do thing", "status": "pending"},
			{"id": "demo/no-title", "status": "pending"},
			{"id": "wrong-project/x", "title": "Bad prefix", "status": "pending"},
			{"id": "demo/bad-status", "title": "Bad status", "status": "nope"}
		]
	}`)

	c := NewCodec()
	res, err := c.ReadFile(path)
	require.NoError(t, err)

	require.Len(t, res.File.Tasks, 1)
	assert.Equal(t, "demo/ok", res.File.Tasks[0].ID)
	assert.Equal(t, DefaultComplexity, res.File.Tasks[0].Complexity)
	assert.Equal(t, DefaultModelTier, res.File.Tasks[0].ModelTier)

	require.Len(t, res.Dropped, 3)
}

func TestReadFileCollectsUnknownFieldWarnings(t *testing.T) {
	dir := t.TempDir()
	path := writeRaw(t, dir, "tasks.json", `{
		"version": 1,
		"project": "demo",
		"custom_top_level": true,
		"tasks": [
			{"id": "demo/ok", "title": "Do thing", "status": "pending", "custom_task_field": "x"}
		]
	}`)

	c := NewCodec()
	res, err := c.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, res.File.Tasks, 1)

	var sawTop, sawTask bool
	for _, w := range res.Warnings {
		if w.TaskIndex == -1 && w.Field == "custom_top_level" {
			sawTop = true
		}
		if w.TaskIndex == 0 && w.Field == "custom_task_field" {
			sawTask = true
		}
	}
	assert.True(t, sawTop, "expected top-level unknown-field warning")
	assert.True(t, sawTask, "expected task-level unknown-field warning")
}

func TestReadFileParseError(t *testing.T) {
	dir := t.TempDir()
	path := writeRaw(t, dir, "tasks.json", `{not json`)

	c := NewCodec()
	_, err := c.ReadFile(path)
	require.Error(t, err)
}

func TestReadFileNotFound(t *testing.T) {
	c := NewCodec()
	_, err := c.ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestReadFileRejectsNonMonotoneHistory(t *testing.T) {
	dir := t.TempDir()
	path := writeRaw(t, dir, "tasks.json", `{
		"version": 1,
		"project": "demo",
		"tasks": [
			{
				"id": "demo/ok", "title": "x", "status": "in_progress",
				"history": [
					{"from_status": "pending", "to_status": "in_progress", "timestamp": "2026-01-02T00:00:00Z"},
					{"from_status": "completed", "to_status": "failed", "timestamp": "2026-01-01T00:00:00Z"}
				]
			}
		]
	}`)

	c := NewCodec()
	res, err := c.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, res.File.Tasks)
	require.Len(t, res.Dropped, 1)
}

func TestWriteFileRoundTripsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeRaw(t, dir, "tasks.json", `{
		"version": 1,
		"project": "demo",
		"file_extra": "keep-me",
		"tasks": [
			{"id": "demo/a", "title": "A", "status": "pending", "task_extra": 7}
		]
	}`)

	c := NewCodec()
	res, err := c.ReadFile(path)
	require.NoError(t, err)

	outPath := filepath.Join(dir, "out.json")
	require.NoError(t, c.WriteFile(outPath, res.File))

	res2, err := c.ReadFile(outPath)
	require.NoError(t, err)
	require.Len(t, res2.File.Tasks, 1)

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "keep-me")
	assert.Contains(t, string(raw), `"task_extra"`)
}

func TestWriteFileIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")

	c := NewCodec()
	f := &File{
		Version: 1,
		Project: "demo",
		Tasks: []*Task{
			{ID: "demo/a", Title: "A", Status: StatusPending, Complexity: ComplexitySmall, ModelTier: ModelTierOpus},
		},
	}
	require.NoError(t, c.WriteFile(path, f))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, filepath.Ext(e.Name()) == ".tmp", "no leftover temp file: %s", e.Name())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded File
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "demo", decoded.Project)
}

func TestTaskMarshalRoundTripPreservesOrderOfTasks(t *testing.T) {
	f := &File{
		Version: 1,
		Project: "demo",
		Tasks: []*Task{
			{ID: "demo/b", Title: "B", Status: StatusPending},
			{ID: "demo/a", Title: "A", Status: StatusPending},
		},
	}
	data, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded File
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Tasks, 2)
	assert.Equal(t, "demo/b", decoded.Tasks[0].ID)
	assert.Equal(t, "demo/a", decoded.Tasks[1].ID)
}

func TestPriorityOverrideRoundTrips(t *testing.T) {
	override := 42.5
	tk := Task{ID: "demo/a", Title: "A", Status: StatusPending, PriorityOverride: &override}
	data, err := json.Marshal(tk)
	require.NoError(t, err)

	var decoded Task
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.PriorityOverride)
	assert.InDelta(t, 42.5, *decoded.PriorityOverride, 0.001)
}

func TestHistoryEntryTimestampFormat(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	h := HistoryEntry{FromStatus: StatusPending, ToStatus: StatusInProgress, Timestamp: now}
	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2026-07-31T12:00:00Z")
}
