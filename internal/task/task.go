// Package task defines the persisted task/task-file data model and the
// codec that reads and writes it, schema-tolerant of unknown fields.
package task

import (
	"encoding/json"
	"sort"
	"time"
)

// Feature carries the optional feature description and acceptance criteria
// a task may specify.
type Feature struct {
	Description         string   `json:"description,omitempty"`
	AcceptanceCriteria  []string `json:"acceptance_criteria,omitempty"`
}

// IsEmpty reports whether the feature block carries no information.
func (f Feature) IsEmpty() bool {
	return f.Description == "" && len(f.AcceptanceCriteria) == 0
}

// HistoryEntry is one append-only status transition record.
type HistoryEntry struct {
	FromStatus   Status    `json:"from_status"`
	ToStatus     Status    `json:"to_status"`
	Timestamp    time.Time `json:"timestamp"`
	AgentSummary string    `json:"agent_summary,omitempty"`
}

// Task is a single unit of work owned by exactly one project.
//
// Backref fields (_project, _projectName, _milestone) deliberately do not
// live here: they belong to the scanner's in-memory output only and are
// never part of the persisted record (see scanner.ScannedTask).
type Task struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Status            Status          `json:"status"`
	Complexity        Complexity      `json:"complexity,omitempty"`
	BlockedBy         []string        `json:"blocked_by,omitempty"`
	Unlocks           []string        `json:"unlocks,omitempty"`
	Labels            []string        `json:"labels,omitempty"`
	Feature           Feature         `json:"feature,omitempty"`
	RelevantFiles     []string        `json:"relevant_files,omitempty"`
	Milestone         string          `json:"milestone,omitempty"`
	GithubIssue       string          `json:"github_issue,omitempty"`
	PriorityOverride  *float64        `json:"priority_override,omitempty"`
	ModelTier         ModelTier       `json:"model_tier,omitempty"`
	CreatedAt         time.Time       `json:"created_at,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at,omitempty"`
	History           []HistoryEntry  `json:"history,omitempty"`

	// Unknown holds any JSON keys this schema doesn't know about, keyed by
	// field name, so a read-then-write round-trip preserves them.
	Unknown map[string]json.RawMessage `json:"-"`
}

// ApplyDefaults fills in the optional-attribute defaults the codec promises:
// empty sequences stay nil-safe and complexity defaults to M.
func (t *Task) ApplyDefaults() {
	if t.Complexity == "" {
		t.Complexity = DefaultComplexity
	}
	if t.ModelTier == "" {
		t.ModelTier = DefaultModelTier
	}
}

// taskAlias lets UnmarshalJSON/MarshalJSON delegate field decoding to the
// struct tags above without recursing into themselves.
type taskAlias Task

// UnmarshalJSON decodes a task, capturing any key not in the schema into
// Unknown rather than discarding it.
func (t *Task) UnmarshalJSON(data []byte) error {
	var alias taskAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*t = Task(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range knownTaskFields {
		delete(raw, known)
	}
	if len(raw) > 0 {
		t.Unknown = raw
	}
	return nil
}

// MarshalJSON encodes a task, re-emitting any captured Unknown fields.
// Unknown keys are sorted before emission so repeated writes of unchanged
// data are byte-identical, strengthening rather than weakening the
// round-trip property (map iteration order is otherwise undefined).
func (t Task) MarshalJSON() ([]byte, error) {
	alias := taskAlias(t)
	base, err := json.Marshal(alias)
	if err != nil {
		return nil, err
	}
	if len(t.Unknown) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range t.Unknown {
		merged[k] = v
	}
	return marshalOrdered(merged)
}

var knownTaskFields = []string{
	"id", "title", "status", "complexity", "blocked_by", "unlocks", "labels",
	"feature", "relevant_files", "milestone", "github_issue",
	"priority_override", "model_tier", "created_at", "updated_at", "history",
}

// marshalOrdered JSON-encodes a raw-message map with keys in sorted order.
func marshalOrdered(m map[string]json.RawMessage) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	buf = append(buf, '{')
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, m[k]...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// FileMilestone is the optional file-level milestone block.
type FileMilestone struct {
	Name       string `json:"name"`
	TargetDate string `json:"target_date,omitempty"`
}

// File is the per-project task file container.
type File struct {
	Version   int            `json:"version"`
	Project   string         `json:"project"`
	Milestone *FileMilestone `json:"milestone,omitempty"`
	Tasks     []*Task        `json:"tasks"`

	Unknown map[string]json.RawMessage `json:"-"`
}

type fileAlias File

// UnmarshalJSON decodes a task file, capturing unknown top-level keys.
func (f *File) UnmarshalJSON(data []byte) error {
	var alias fileAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*f = File(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range knownFileFields {
		delete(raw, known)
	}
	if len(raw) > 0 {
		f.Unknown = raw
	}
	return nil
}

// MarshalJSON encodes a task file, re-emitting captured unknown keys.
func (f File) MarshalJSON() ([]byte, error) {
	alias := fileAlias(f)
	base, err := json.Marshal(alias)
	if err != nil {
		return nil, err
	}
	if len(f.Unknown) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range f.Unknown {
		merged[k] = v
	}
	return marshalOrdered(merged)
}

var knownFileFields = []string{"version", "project", "milestone", "tasks"}
