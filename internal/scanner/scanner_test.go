package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "projects.json"), `{
		"version": 1,
		"projects_root": "`+dir+`",
		"projects": [
			{"name": "alpha", "path": "alpha", "status": "buildable"},
			{"name": "beta", "path": "beta", "status": "blocked"},
			{"name": "gamma", "path": "gamma", "status": "scaffolding"}
		]
	}`)
	writeFile(t, filepath.Join(dir, "alpha", TaskFileRelPath), `{
		"version": 1,
		"project": "alpha",
		"milestone": {"name": "v1", "target_date": "2026-08-01"},
		"tasks": [
			{"id": "alpha/one", "title": "One", "status": "pending", "milestone": "v1"}
		]
	}`)
	writeFile(t, filepath.Join(dir, "beta", TaskFileRelPath), `{bad json`)
	// gamma directory exists but has no task file.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "gamma"), 0o755))
	return dir
}

func TestScanMergesAcrossProjects(t *testing.T) {
	dir := setupWorkspace(t)

	s := New()
	result, err := s.Scan(dir, Options{})
	require.NoError(t, err)

	require.Len(t, result.Tasks, 1)
	got := result.Tasks[0]
	assert.Equal(t, "alpha/one", got.ID)
	assert.Equal(t, "alpha", got.ProjectName)
	require.NotNil(t, got.Milestone)
	assert.Equal(t, "v1", got.Milestone.Name)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, DiagnosticParseError, result.Errors[0].Type)
	assert.Equal(t, "beta", result.Errors[0].Project)
}

func TestScanEmptyRegistry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "projects.json"), `{"version":1,"projects_root":"x","projects":[]}`)

	s := New()
	result, err := s.Scan(dir, Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Tasks)
	assert.Empty(t, result.Errors)
}

func TestScanMissingProjectDirDegradesGracefully(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "projects.json"), `{
		"version": 1, "projects_root": "x",
		"projects": [{"name": "ghost", "path": "does-not-exist", "status": "buildable"}]
	}`)

	s := New()
	result, err := s.Scan(dir, Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Tasks)
	assert.Empty(t, result.Errors)
}

func TestScanStrictModeFailsOnAnyDiagnostic(t *testing.T) {
	dir := setupWorkspace(t)

	s := New()
	_, err := s.Scan(dir, Options{Strict: true})
	require.Error(t, err)
}

func TestByID(t *testing.T) {
	dir := setupWorkspace(t)
	s := New()
	result, err := s.Scan(dir, Options{})
	require.NoError(t, err)

	idx := result.ByID()
	_, ok := idx["alpha/one"]
	assert.True(t, ok)
}
