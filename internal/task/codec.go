package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	orcerrors "github.com/randalmurphal/orc-core/internal/errors"
)

// Warning records a non-fatal diagnostic surfaced while reading a task file.
type Warning struct {
	Path      string
	TaskIndex int // -1 for a file-level warning
	Field     string
	Message   string
}

func (w Warning) String() string {
	if w.TaskIndex < 0 {
		return fmt.Sprintf("%s: %s: %s", w.Path, w.Field, w.Message)
	}
	return fmt.Sprintf("%s: task[%d]: %s: %s", w.Path, w.TaskIndex, w.Field, w.Message)
}

// ReadResult is the outcome of a successful codec read: the parsed file
// (with dropped tasks already excluded) plus every warning collected.
type ReadResult struct {
	File     *File
	Warnings []Warning
	// Dropped holds the tasks that failed schema validation and were
	// excluded from File.Tasks, with the per-task error that disqualified
	// each one.
	Dropped []DroppedTask
}

// DroppedTask pairs a task index with the schema error that excluded it.
type DroppedTask struct {
	Index int
	Err   *orcerrors.OrcError
}

// Codec reads and writes per-project task files.
type Codec struct{}

// NewCodec constructs a Codec. It holds no state; it exists so call sites
// read the same way the rest of the orchestrator's components do
// (constructed, then used), and so tests can stub it out.
func NewCodec() *Codec { return &Codec{} }

// ReadFile reads and validates a task file at path.
//
// A missing file returns the underlying os error unwrapped, so callers
// distinguish "absent" from "malformed" with os.IsNotExist(err); malformed
// JSON returns an *orcerrors.OrcError with CodeParseError.
func (c *Codec) ReadFile(path string) (*ReadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err // caller distinguishes os.IsNotExist
	}

	var f File
	if jsonErr := json.Unmarshal(data, &f); jsonErr != nil {
		return nil, orcerrors.ErrParseError(path, jsonErr)
	}

	result := &ReadResult{File: &f}

	if len(f.Unknown) > 0 {
		for k := range f.Unknown {
			result.Warnings = append(result.Warnings, Warning{Path: path, TaskIndex: -1, Field: k, Message: "unrecognized top-level field"})
		}
	}

	kept := make([]*Task, 0, len(f.Tasks))
	for i, t := range f.Tasks {
		if missing := requiredFieldMissing(t); missing != "" {
			result.Dropped = append(result.Dropped, DroppedTask{Index: i, Err: orcerrors.ErrSchemaError(path, i, missing)})
			continue
		}
		if !IsValidStatus(t.Status) {
			result.Dropped = append(result.Dropped, DroppedTask{Index: i, Err: orcerrors.ErrSchemaError(path, i, "status")})
			continue
		}
		if !strings.HasPrefix(t.ID, f.Project+"/") {
			result.Dropped = append(result.Dropped, DroppedTask{Index: i, Err: orcerrors.ErrSchemaError(path, i, "id")})
			continue
		}

		t.ApplyDefaults()
		if err := validateHistory(t); err != nil {
			result.Dropped = append(result.Dropped, DroppedTask{Index: i, Err: orcerrors.ErrSchemaError(path, i, "history").WithCause(err)})
			continue
		}

		for k := range t.Unknown {
			result.Warnings = append(result.Warnings, Warning{Path: path, TaskIndex: i, Field: k, Message: "unrecognized task field"})
		}

		kept = append(kept, t)
	}
	f.Tasks = kept

	return result, nil
}

// requiredFieldMissing returns the name of the first missing required
// field, or "" if all are present.
func requiredFieldMissing(t *Task) string {
	switch {
	case t.ID == "":
		return "id"
	case t.Title == "":
		return "title"
	case t.Status == "":
		return "status"
	default:
		return ""
	}
}

// validateHistory enforces invariant 3: monotone timestamps and a chained
// from_status/to_status sequence whose last to_status is the task's current
// status. The first entry's from_status is taken as given.
func validateHistory(t *Task) error {
	if n := len(t.History); n > 0 && t.History[n-1].ToStatus != t.Status {
		return fmt.Errorf("last history entry to_status %q does not match task status %q", t.History[n-1].ToStatus, t.Status)
	}
	for i := 1; i < len(t.History); i++ {
		prev, cur := t.History[i-1], t.History[i]
		if cur.Timestamp.Before(prev.Timestamp) {
			return fmt.Errorf("history entry %d timestamp precedes entry %d", i, i-1)
		}
		if cur.FromStatus != prev.ToStatus {
			return fmt.Errorf("history entry %d from_status %q does not match entry %d to_status %q", i, cur.FromStatus, i-1, prev.ToStatus)
		}
	}
	return nil
}

// WriteFile writes a task file atomically: write to a sibling temp path,
// then rename. The rename is the commit point, so readers never observe a
// partially written file.
func (c *Codec) WriteFile(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tasks-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed away

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}
