// Package executor spawns a worker subprocess per dispatched task, feeds
// it the assembled prompt on stdin, and records the outcome through the
// journal. Grounded on the teacher's own claude-subprocess invocation
// (internal/executor/executor.go's runClaude, exec.CommandContext +
// cmd.Dir) but reshaped from the teacher's single CombinedOutput call
// into concurrent stdout/stderr draining via golang.org/x/sync/errgroup,
// the same third-party module the teacher already depends on for
// singleflight, and from prompt-as-CLI-flag to stdin delivery per the
// spec.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/orc-core/internal/config"
	"github.com/randalmurphal/orc-core/internal/dispatcher"
	orcerrors "github.com/randalmurphal/orc-core/internal/errors"
	"github.com/randalmurphal/orc-core/internal/journal"
	"github.com/randalmurphal/orc-core/internal/project"
	"github.com/randalmurphal/orc-core/internal/scanner"
	"github.com/randalmurphal/orc-core/internal/task"
)

// stderrHeadLimit bounds how much stderr is folded into a task's
// agent_summary on failure.
const stderrHeadLimit = 2000

// Options carries optional per-run line callbacks, for a caller (the
// orchestrator loop) that wants to stream worker output as it runs.
type Options struct {
	OnStdout func(line string)
	OnStderr func(line string)
}

// Result is one worker run's outcome. RunID correlates this run across
// logs and the journal's agent_summary even across tasks that are retried
// under the same TaskID.
type Result struct {
	RunID    string
	TaskID   string
	ExitCode int
	Success  bool
	Stdout   string
	Stderr   string
}

// Executor dispatches and runs worker subprocesses.
type Executor struct {
	journal    *journal.Journal
	dispatcher *dispatcher.Dispatcher
}

// New constructs an Executor sharing j with the dispatcher that marks
// tasks in_progress, so a task already in_progress is rejected before any
// subprocess is spawned.
func New(j *journal.Journal, d *dispatcher.Dispatcher) *Executor {
	return &Executor{journal: j, dispatcher: d}
}

// Execute dispatches st and runs its worker to completion, recording
// completed or failed in the journal. A dispatch-time error (including
// ErrTaskAlreadyRunning) is returned without ever spawning a subprocess.
func (e *Executor) Execute(ctx context.Context, workspaceRoot string, p project.Project, st *scanner.ScannedTask, cfg config.Config, opts Options) (*Result, error) {
	plan, err := e.dispatcher.Dispatch(workspaceRoot, p, st, cfg)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()

	cmd := exec.CommandContext(ctx, cfg.WorkerCommand, plan.Args...)
	cmd.Dir = plan.WorkingDirectory
	cmd.Env = append(os.Environ(), plan.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return e.fail(workspaceRoot, p, st.ID, runID, orcerrors.ErrSpawnError(cfg.WorkerCommand, err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return e.fail(workspaceRoot, p, st.ID, runID, orcerrors.ErrSpawnError(cfg.WorkerCommand, err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return e.fail(workspaceRoot, p, st.ID, runID, orcerrors.ErrSpawnError(cfg.WorkerCommand, err))
	}

	if err := cmd.Start(); err != nil {
		return e.fail(workspaceRoot, p, st.ID, runID, orcerrors.ErrSpawnError(cfg.WorkerCommand, err))
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stdin.Close()
		_, err := io.WriteString(stdin, plan.Prompt)
		return err
	})
	g.Go(func() error { return drain(stdout, &stdoutBuf, opts.OnStdout) })
	g.Go(func() error { return drain(stderr, &stderrBuf, opts.OnStderr) })

	drainErr := g.Wait()
	waitErr := cmd.Wait()

	exitCode := 0
	success := waitErr == nil && drainErr == nil
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	result := &Result{
		RunID:    runID,
		TaskID:   st.ID,
		ExitCode: exitCode,
		Success:  success,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
	}

	summary := summarize(runID, result)
	status := completedStatus(success)
	if _, err := e.journal.UpdateStatus(workspaceRoot, p, st.ID, status, summary); err != nil {
		return result, err
	}

	if !success {
		return result, orcerrors.ErrExecutorFailure(exitCode, head(result.Stderr, stderrHeadLimit))
	}
	return result, nil
}

func (e *Executor) fail(workspaceRoot string, p project.Project, taskID, runID string, err *orcerrors.OrcError) (*Result, error) {
	e.journal.UpdateStatus(workspaceRoot, p, taskID, task.StatusFailed, fmt.Sprintf("run %s: %s", runID, err.Error()))
	return nil, err
}

func completedStatus(success bool) task.Status {
	if success {
		return task.StatusCompleted
	}
	return task.StatusFailed
}

func drain(r io.Reader, buf *bytes.Buffer, onLine func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if onLine != nil {
			onLine(line)
		}
	}
	return sc.Err()
}

func summarize(runID string, r *Result) string {
	if r.Success {
		return fmt.Sprintf("run %s: exit %d", runID, r.ExitCode)
	}
	return fmt.Sprintf("run %s: exit %d: %s", runID, r.ExitCode, head(r.Stderr, stderrHeadLimit))
}

func head(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
