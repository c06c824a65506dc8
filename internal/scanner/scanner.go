// Package scanner enumerates the projects in a registry, reads each one's
// task file through the codec, and merges the result into one in-memory
// collection augmented with transient backrefs.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	orcerrors "github.com/randalmurphal/orc-core/internal/errors"
	"github.com/randalmurphal/orc-core/internal/project"
	"github.com/randalmurphal/orc-core/internal/task"
)

// TaskFileRelPath is the project-relative path to a project's task file.
const TaskFileRelPath = ".claude/tasks/tasks.json"

// ProjectMemoryRelPath is the project-relative path to its optional memory
// file, embedded verbatim in worker prompts by the dispatcher.
const ProjectMemoryRelPath = "CLAUDE.md"

// ScannedTask is a persisted Task enriched with the transient backrefs the
// spec says are "owned by in-memory Scanner output" and "never written
// back." Keeping these on a wrapper type instead of the persisted Task
// keeps the codec's round-trip honest: *task.Task never carries a backref
// field that could accidentally leak into a write.
type ScannedTask struct {
	*task.Task
	Project     project.Project
	ProjectName string
	Milestone   *task.FileMilestone
}

// DiagnosticType classifies a Scanner-level diagnostic.
type DiagnosticType string

const (
	DiagnosticParseError DiagnosticType = "parse_error"
	DiagnosticSchemaError DiagnosticType = "schema_error"
)

// Diagnostic is a non-fatal error surfaced while scanning one project.
type Diagnostic struct {
	Type    DiagnosticType
	Project string
	Path    string
	Message string
}

// Result is the Scanner's output: the merged task collection plus every
// diagnostic and warning collected along the way.
type Result struct {
	Tasks    []*ScannedTask
	Errors   []Diagnostic
	Warnings []task.Warning
}

// Options controls Scan's behavior.
type Options struct {
	// Strict, if true, causes Scan to fail the whole call with an
	// aggregated error when any Errors or Warnings are present, instead of
	// returning partial results.
	Strict bool
}

// Scanner reads task files for every project in a registry.
type Scanner struct {
	codec *task.Codec
}

// New constructs a Scanner.
func New() *Scanner {
	return &Scanner{codec: task.NewCodec()}
}

// Scan loads a registry from workspaceRoot/projects.json and scans it.
func (s *Scanner) Scan(workspaceRoot string, opts Options) (*Result, error) {
	reg, err := project.Load(workspaceRoot)
	if err != nil {
		return nil, err
	}
	return s.ScanRegistry(workspaceRoot, reg, opts)
}

// ScanRegistry scans an already-loaded registry, so callers that load the
// registry once per orchestrator start (per §3's "read-only for the
// duration of a loop iteration") don't re-read it on every iteration.
func (s *Scanner) ScanRegistry(workspaceRoot string, reg *project.Registry, opts Options) (*Result, error) {
	result := &Result{}

	for _, p := range reg.Projects {
		s.scanProject(workspaceRoot, p, result)
	}

	if opts.Strict && (len(result.Errors) > 0 || len(result.Warnings) > 0) {
		return nil, aggregate(result)
	}

	return result, nil
}

func (s *Scanner) scanProject(workspaceRoot string, p project.Project, result *Result) {
	projectDir := filepath.Join(workspaceRoot, p.Path)
	if info, err := os.Stat(projectDir); err != nil || !info.IsDir() {
		return // missing project directory: zero tasks, no error
	}

	taskFilePath := filepath.Join(projectDir, TaskFileRelPath)
	res, err := s.codec.ReadFile(taskFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return // missing task file: zero tasks, no error
		}
		result.Errors = append(result.Errors, Diagnostic{
			Type:    DiagnosticParseError,
			Project: p.Name,
			Path:    taskFilePath,
			Message: err.Error(),
		})
		return
	}

	for _, d := range res.Dropped {
		result.Errors = append(result.Errors, Diagnostic{
			Type:    DiagnosticSchemaError,
			Project: p.Name,
			Path:    taskFilePath,
			Message: d.Err.Error(),
		})
	}
	result.Warnings = append(result.Warnings, res.Warnings...)

	var milestone *task.FileMilestone
	if res.File.Milestone != nil {
		milestone = res.File.Milestone
	}

	for _, t := range res.File.Tasks {
		result.Tasks = append(result.Tasks, &ScannedTask{
			Task:        t,
			Project:     p,
			ProjectName: p.Name,
			Milestone:   milestone,
		})
	}
}

// aggregate builds one error summarizing every diagnostic and warning, for
// Strict mode.
func aggregate(result *Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d error(s), %d warning(s) while scanning", len(result.Errors), len(result.Warnings))
	for _, e := range result.Errors {
		fmt.Fprintf(&b, "\n  error: [%s] %s: %s", e.Type, e.Project, e.Message)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(&b, "\n  warning: %s", w.String())
	}
	return orcerrors.Wrap(fmt.Errorf("%s", b.String()), "strict scan failed")
}

// ByID indexes a scan result's tasks by id, for the scorer's dependency
// resolution.
func (r *Result) ByID() map[string]*ScannedTask {
	m := make(map[string]*ScannedTask, len(r.Tasks))
	for _, t := range r.Tasks {
		m[t.ID] = t
	}
	return m
}
