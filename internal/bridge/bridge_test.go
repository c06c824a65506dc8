package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	gogithub "github.com/google/go-github/v82/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/orc-core/internal/issuemap"
	"github.com/randalmurphal/orc-core/internal/journal"
	"github.com/randalmurphal/orc-core/internal/project"
	"github.com/randalmurphal/orc-core/internal/scanner"
	"github.com/randalmurphal/orc-core/internal/task"
)

func TestLabelsForIncludesStatusAndSize(t *testing.T) {
	tk := &task.Task{Status: task.StatusInProgress, Complexity: task.ComplexityLarge, Labels: []string{"bugfix"}}
	labels := labelsFor(tk)
	assert.Contains(t, labels, "bugfix")
	assert.Contains(t, labels, "status:in_progress")
	assert.Contains(t, labels, "size:L")
}

func TestIssueStateClosesOnlyForTerminalStatus(t *testing.T) {
	assert.Equal(t, "closed", issueState(task.StatusCompleted))
	assert.Equal(t, "closed", issueState(task.StatusFailed))
	assert.Equal(t, "open", issueState(task.StatusPending))
	assert.Equal(t, "open", issueState(task.StatusInProgress))
}

func TestIssueBodyRoundTripsTaskID(t *testing.T) {
	tk := &task.Task{ID: "demo/a", Feature: task.Feature{Description: "does a thing", AcceptanceCriteria: []string{"it works"}}}
	body := issueBody(tk)
	assert.Contains(t, body, "does a thing")
	assert.Contains(t, body, "- [ ] it works")

	got, ok := ParseTaskID(body)
	require.True(t, ok)
	assert.Equal(t, "demo/a", got)
}

func TestDeriveStatusPrefersStatusLabelOverState(t *testing.T) {
	iss := &gogithub.Issue{
		State:  gogithub.Ptr("closed"),
		Labels: []*gogithub.Label{{Name: gogithub.Ptr("status:blocked")}},
	}
	assert.Equal(t, task.StatusBlocked, deriveStatus(iss))
}

func TestDeriveStatusFallsBackToIssueState(t *testing.T) {
	open := &gogithub.Issue{State: gogithub.Ptr("open")}
	assert.Equal(t, task.StatusInProgress, deriveStatus(open))

	closed := &gogithub.Issue{State: gogithub.Ptr("closed")}
	assert.Equal(t, task.StatusCompleted, deriveStatus(closed))
}

func newTestBridge(t *testing.T, handler http.Handler) (*Bridge, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	issues, err := issuemap.Load(dir)
	require.NoError(t, err)

	client := gogithub.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	client.UploadURL = base

	return &Bridge{
		client:      client,
		owner:       "acme",
		repo:        "widgets",
		issues:      issues,
		journal:     journal.New(),
		concurrency: 2,
	}, dir
}

func TestSyncOutboundCreatesIssueAndPersistsPairing(t *testing.T) {
	var createCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			createCalls++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(gogithub.Issue{Number: gogithub.Ptr(7)})
			return
		}
		http.NotFound(w, r)
	})

	b, _ := newTestBridge(t, mux)

	st := &scanner.ScannedTask{
		Task: &task.Task{ID: "demo/a", Title: "Add widget", Status: task.StatusPending},
	}
	results := b.SyncOutbound(context.Background(), []*scanner.ScannedTask{st})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 7, results[0].IssueNumber)
	assert.Equal(t, 1, createCalls)

	issueNumber, ok := b.issues.IssueFor("demo/a")
	require.True(t, ok)
	assert.Equal(t, 7, issueNumber)
}

func TestSyncOutboundUpdatesExistingIssue(t *testing.T) {
	var editCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/7", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			editCalls++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(gogithub.Issue{Number: gogithub.Ptr(7)})
			return
		}
		http.NotFound(w, r)
	})

	b, _ := newTestBridge(t, mux)
	require.NoError(t, b.issues.Pair("demo/a", 7))

	st := &scanner.ScannedTask{
		Task: &task.Task{ID: "demo/a", Title: "Add widget", Status: task.StatusCompleted},
	}
	results := b.SyncOutbound(context.Background(), []*scanner.ScannedTask{st})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 1, editCalls)
}

func TestSyncOutboundOneFailureDoesNotAbortBatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	b, _ := newTestBridge(t, mux)
	st1 := &scanner.ScannedTask{Task: &task.Task{ID: "demo/a", Title: "A", Status: task.StatusPending}}
	st2 := &scanner.ScannedTask{Task: &task.Task{ID: "demo/b", Title: "B", Status: task.StatusPending}}

	results := b.SyncOutbound(context.Background(), []*scanner.ScannedTask{st1, st2})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}

func TestSyncInboundAppliesDerivedStatus(t *testing.T) {
	p := project.Project{Name: "demo", Path: "."}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]*gogithub.Issue{
			{Number: gogithub.Ptr(7), State: gogithub.Ptr("closed")},
		})
	})

	b, dir := newTestBridge(t, mux)
	require.NoError(t, b.issues.Pair("demo/a", 7))

	taskFile := filepath.Join(dir, p.Path, scanner.TaskFileRelPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(taskFile), 0o755))
	require.NoError(t, os.WriteFile(taskFile, []byte(`{
		"version": 1, "project": "demo",
		"tasks": [{"id": "demo/a", "title": "A", "status": "in_progress"}]
	}`), 0o644))

	updates := b.SyncInbound(context.Background(), dir, map[string]project.Project{"demo": p})
	require.Len(t, updates, 1)
	require.NoError(t, updates[0].Err)
	assert.Equal(t, task.StatusCompleted, updates[0].NewStatus)

	status, err := b.journal.GetStatus(dir, p, "demo/a")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, status)
}

func TestSyncInboundRecoversPairingFromBodyMetadata(t *testing.T) {
	p := project.Project{Name: "demo", Path: "."}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]*gogithub.Issue{
			{Number: gogithub.Ptr(9), State: gogithub.Ptr("closed"), Body: gogithub.Ptr(issueBody(&task.Task{ID: "demo/a"}))},
		})
	})

	// No pre-existing pairing: the map write from the original outbound
	// sync is assumed lost, so this is the sole recovery path.
	b, dir := newTestBridge(t, mux)

	taskFile := filepath.Join(dir, p.Path, scanner.TaskFileRelPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(taskFile), 0o755))
	require.NoError(t, os.WriteFile(taskFile, []byte(`{
		"version": 1, "project": "demo",
		"tasks": [{"id": "demo/a", "title": "A", "status": "in_progress"}]
	}`), 0o644))

	updates := b.SyncInbound(context.Background(), dir, map[string]project.Project{"demo": p})
	require.Len(t, updates, 1)
	require.NoError(t, updates[0].Err)
	assert.Equal(t, "demo/a", updates[0].TaskID)

	issueNumber, ok := b.issues.IssueFor("demo/a")
	require.True(t, ok)
	assert.Equal(t, 9, issueNumber)
}

func TestSyncInboundReportsErrorWhenTaskIDCannotBeDerived(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]*gogithub.Issue{
			{Number: gogithub.Ptr(11), State: gogithub.Ptr("open"), Body: gogithub.Ptr("hand-filed issue, no metadata")},
		})
	})

	b, dir := newTestBridge(t, mux)

	updates := b.SyncInbound(context.Background(), dir, map[string]project.Project{})
	require.Len(t, updates, 1)
	assert.Error(t, updates[0].Err)
	assert.Equal(t, 11, updates[0].IssueNumber)
}
