// Package journal maintains the append-only status history for every task,
// serializing read-modify-write cycles through the per-path lock table and
// persisting through the task codec's atomic writer. Grounded on the
// teacher's status-transition idiom (internal/state) but rebuilt around
// the spec's single in_progress-or-not guard instead of a full state
// machine, since the spec defines only one forbidden transition.
package journal

import (
	"context"
	"path/filepath"
	"time"

	orcerrors "github.com/randalmurphal/orc-core/internal/errors"
	"github.com/randalmurphal/orc-core/internal/lock"
	"github.com/randalmurphal/orc-core/internal/logging"
	"github.com/randalmurphal/orc-core/internal/project"
	"github.com/randalmurphal/orc-core/internal/scanner"
	"github.com/randalmurphal/orc-core/internal/task"
)

// Journal applies status transitions to a project's task file.
type Journal struct {
	codec *task.Codec
	locks *lock.Table
	log   slogLogger
}

// slogLogger narrows the logging package's API to what the journal uses,
// so tests can swap in a silent logger without dragging in slog directly.
type slogLogger interface {
	Error(msg string, args ...any)
}

// New constructs a Journal with its own lock table, matching the
// orchestrator's expectation that one Journal instance guards one
// workspace for the lifetime of a run.
func New() *Journal {
	return &Journal{codec: task.NewCodec(), locks: lock.NewTable(), log: logging.New("journal")}
}

func (j *Journal) taskFilePath(workspaceRoot string, p project.Project) string {
	return filepath.Join(workspaceRoot, p.Path, scanner.TaskFileRelPath)
}

// UpdateStatus transitions taskID to newStatus, appending a history entry
// and bumping updated_at, under the per-path lock for this project's task
// file. Transitioning an already in_progress task to in_progress is
// rejected with ErrTaskAlreadyRunning; every other transition is allowed,
// including into a terminal status.
func (j *Journal) UpdateStatus(workspaceRoot string, p project.Project, taskID string, newStatus task.Status, agentSummary string) (*task.Task, error) {
	path := j.taskFilePath(workspaceRoot, p)

	var result *task.Task
	err := j.locks.WithLock(path, func() error {
		res, err := j.codec.ReadFile(path)
		if err != nil {
			return err
		}

		idx := -1
		for i, t := range res.File.Tasks {
			if t.ID == taskID {
				idx = i
				break
			}
		}
		if idx == -1 {
			return orcerrors.ErrTaskNotFound(taskID)
		}

		found := res.File.Tasks[idx]
		if found.Status == task.StatusInProgress && newStatus == task.StatusInProgress {
			return orcerrors.ErrTaskAlreadyRunning(taskID)
		}

		now := time.Now()
		found.History = append(found.History, task.HistoryEntry{
			FromStatus:   found.Status,
			ToStatus:     newStatus,
			Timestamp:    now,
			AgentSummary: agentSummary,
		})
		found.Status = newStatus
		found.UpdatedAt = now

		if err := j.codec.WriteFile(path, res.File); err != nil {
			return err
		}
		result = found
		return nil
	})

	return result, err
}

// GetStatus returns taskID's current status without taking the write lock.
func (j *Journal) GetStatus(workspaceRoot string, p project.Project, taskID string) (task.Status, error) {
	path := j.taskFilePath(workspaceRoot, p)
	res, err := j.codec.ReadFile(path)
	if err != nil {
		return "", err
	}
	for _, t := range res.File.Tasks {
		if t.ID == taskID {
			return t.Status, nil
		}
	}
	return "", orcerrors.ErrTaskNotFound(taskID)
}

// CompletionEvent is a worker outcome the journal applies as a status
// transition. It is journal-local rather than borrowed from the executor
// package, so the two packages don't import each other. The executor does
// not send these: it records its own outcomes through UpdateStatus. Any
// caller that reports worker outcomes on a channel can feed them to
// WatchWorkerCompletion.
type CompletionEvent struct {
	Project project.Project
	TaskID  string
	Success bool
	Summary string
}

// WatchWorkerCompletion drains completion events from ch, applying each as
// a completed or failed transition, until ch closes or ctx is canceled. A
// per-event failure is logged and does not stop the watch loop, matching
// the spec's "never aborts the batch" treatment of bridge errors applied
// here to worker outcomes.
func (j *Journal) WatchWorkerCompletion(ctx context.Context, workspaceRoot string, ch <-chan CompletionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			status := task.StatusFailed
			if ev.Success {
				status = task.StatusCompleted
			}
			if _, err := j.UpdateStatus(workspaceRoot, ev.Project, ev.TaskID, status, ev.Summary); err != nil {
				j.log.Error("failed to record worker completion", "task_id", ev.TaskID, "error", err)
			}
		}
	}
}
