// Package issuemap persists the bidirectional task_id<->issue_number
// pairing the issue-tracker bridge needs to avoid creating duplicate
// issues for a task it has already synced. Grounded on the task codec's
// atomic-write idiom (internal/task/codec.go) rather than the teacher's
// own state persistence, since the teacher keeps no equivalent mapping
// file.
package issuemap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	orcerrors "github.com/randalmurphal/orc-core/internal/errors"
)

// FileName is the workspace-relative path to the issue map, fixed by the
// external interface contract.
const FileName = ".claude/issue-map.json"

// fileVersion is the issue map's schema version, persisted so a future
// incompatible layout change can detect and migrate older files.
const fileVersion = 1

// fileFormat is the on-disk shape fixed by the external interface
// contract: a version tag plus both directions of the pairing, keyed
// directly by task id and by issue number (as a string, since JSON object
// keys are always strings).
type fileFormat struct {
	Version     int            `json:"version"`
	TaskToIssue map[string]int `json:"taskToIssue"`
	IssueToTask map[string]string `json:"issueToTask"`
}

// Store holds the in-memory pairing and knows how to persist it. Every
// mutating method keeps the class invariant that a task_id maps to at
// most one issue number and an issue number maps to at most one task_id.
type Store struct {
	mu          sync.Mutex
	path        string
	taskToIssue map[string]int
	issueToTask map[int]string
}

// Load reads the issue map at <workspaceRoot>/.claude/issue-map.json. A
// missing file is not an error: it starts a fresh, empty store.
func Load(workspaceRoot string) (*Store, error) {
	path := filepath.Join(workspaceRoot, FileName)
	s := &Store{
		path:        path,
		taskToIssue: make(map[string]int),
		issueToTask: make(map[int]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, orcerrors.Wrap(err, "read issue map").WithCause(err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, orcerrors.ErrParseError(path, err)
	}
	for taskID, issueNumber := range f.TaskToIssue {
		s.taskToIssue[taskID] = issueNumber
		s.issueToTask[issueNumber] = taskID
	}
	for issueStr, taskID := range f.IssueToTask {
		issueNumber, err := strconv.Atoi(issueStr)
		if err != nil {
			return nil, orcerrors.ErrParseError(path, err)
		}
		s.issueToTask[issueNumber] = taskID
		s.taskToIssue[taskID] = issueNumber
	}
	return s, nil
}

// IssueFor returns the issue number paired with taskID, if any.
func (s *Store) IssueFor(taskID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.taskToIssue[taskID]
	return n, ok
}

// TaskFor returns the task id paired with issueNumber, if any.
func (s *Store) TaskFor(issueNumber int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.issueToTask[issueNumber]
	return id, ok
}

// Pair associates taskID with issueNumber, replacing either side's prior
// pairing so the bidirectional invariant never breaks.
func (s *Store) Pair(taskID string, issueNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if oldIssue, ok := s.taskToIssue[taskID]; ok {
		delete(s.issueToTask, oldIssue)
	}
	if oldTask, ok := s.issueToTask[issueNumber]; ok {
		delete(s.taskToIssue, oldTask)
	}
	s.taskToIssue[taskID] = issueNumber
	s.issueToTask[issueNumber] = taskID
	return s.save()
}

// Unpair removes taskID's pairing, if any.
func (s *Store) Unpair(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.taskToIssue[taskID]
	if !ok {
		return nil
	}
	delete(s.taskToIssue, taskID)
	delete(s.issueToTask, issue)
	return s.save()
}

// save must be called with s.mu held.
func (s *Store) save() error {
	issueToTask := make(map[string]string, len(s.issueToTask))
	for issueNumber, taskID := range s.issueToTask {
		issueToTask[strconv.Itoa(issueNumber)] = taskID
	}

	f := fileFormat{
		Version:     fileVersion,
		TaskToIssue: s.taskToIssue,
		IssueToTask: issueToTask,
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".issuemap-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}
