package issuemap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	require.NoError(t, err)
	_, ok := s.IssueFor("any")
	assert.False(t, ok)
}

func TestPairAndLookupBothDirections(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	require.NoError(t, err)

	require.NoError(t, s.Pair("proj/a", 42))

	issue, ok := s.IssueFor("proj/a")
	require.True(t, ok)
	assert.Equal(t, 42, issue)

	taskID, ok := s.TaskFor(42)
	require.True(t, ok)
	assert.Equal(t, "proj/a", taskID)
}

func TestPairReplacesPriorPairingOnBothSides(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	require.NoError(t, err)

	require.NoError(t, s.Pair("proj/a", 1))
	require.NoError(t, s.Pair("proj/a", 2))

	_, ok := s.TaskFor(1)
	assert.False(t, ok, "stale reverse mapping for issue 1 must be gone")
	issue, ok := s.IssueFor("proj/a")
	require.True(t, ok)
	assert.Equal(t, 2, issue)

	require.NoError(t, s.Pair("proj/b", 2))
	_, ok = s.IssueFor("proj/a")
	assert.False(t, ok, "stale forward mapping for proj/a must be gone once issue 2 is repaired")
}

func TestUnpairRemovesBothDirections(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	require.NoError(t, err)

	require.NoError(t, s.Pair("proj/a", 1))
	require.NoError(t, s.Unpair("proj/a"))

	_, ok := s.IssueFor("proj/a")
	assert.False(t, ok)
	_, ok = s.TaskFor(1)
	assert.False(t, ok)
}

func TestSaveAndReloadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, s.Pair("proj/a", 1))
	require.NoError(t, s.Pair("proj/b", 2))

	reloaded, err := Load(dir)
	require.NoError(t, err)
	issue, ok := reloaded.IssueFor("proj/b")
	require.True(t, ok)
	assert.Equal(t, 2, issue)
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, s.Pair("proj/a", 1))

	entries, err := os.ReadDir(filepath.Join(dir, ".claude"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, filepath.Ext(e.Name()) == ".tmp", "no leftover temp file: %s", e.Name())
	}
}

func TestSaveWritesExternalInterfaceFileAndSchema(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, s.Pair("proj/a", 1))

	data, err := os.ReadFile(filepath.Join(dir, ".claude", "issue-map.json"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(1), raw["version"])

	taskToIssue, ok := raw["taskToIssue"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), taskToIssue["proj/a"])

	issueToTask, ok := raw["issueToTask"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "proj/a", issueToTask["1"])
}
