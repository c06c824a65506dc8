// Package orchestrator runs the scan-score-select-dispatch-execute loop
// that drives the rest of the module. Grounded on the teacher's own
// iteration loop (internal/workflow's phase-advancing driver) but
// collapsed to the spec's single-task-per-iteration model instead of the
// teacher's multi-phase workflow state machine.
package orchestrator

import (
	"context"

	"github.com/randalmurphal/orc-core/internal/config"
	orcerrors "github.com/randalmurphal/orc-core/internal/errors"
	"github.com/randalmurphal/orc-core/internal/executor"
	"github.com/randalmurphal/orc-core/internal/journal"
	"github.com/randalmurphal/orc-core/internal/logging"
	"github.com/randalmurphal/orc-core/internal/scanner"
	"github.com/randalmurphal/orc-core/internal/scorer"
)

// Orchestrator owns one run of the scan-score-select-dispatch-execute
// loop over a single workspace.
type Orchestrator struct {
	scanner  *scanner.Scanner
	journal  *journal.Journal
	executor *executor.Executor
	log      logger
}

type logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// New constructs an Orchestrator from its already-wired collaborators.
func New(s *scanner.Scanner, j *journal.Journal, ex *executor.Executor) *Orchestrator {
	return &Orchestrator{scanner: s, journal: j, executor: ex, log: logging.New("orchestrator")}
}

// Run drives iterations until no task has a resolved dependency path, the
// scan or registry itself fails, or ctx is canceled. Cancellation is
// cooperative: it is checked between iterations, never used to kill a
// worker mid-run, matching the spec's "no forced kill of a running
// worker."
//
// onIteration, if given, is called once per dispatched iteration with
// that iteration's result and error, letting a caller (the CLI
// entrypoint) distinguish "ran to completion with at least one worker
// failure" from a clean run without changing Run's own termination
// behavior.
func (o *Orchestrator) Run(ctx context.Context, workspaceRoot string, cfg config.Config, opts scorer.Options, onIteration ...func(*executor.Result, error)) error {
	var notify func(*executor.Result, error)
	if len(onIteration) > 0 {
		notify = onIteration[0]
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		result, ran, err := o.runIteration(workspaceRoot, cfg, opts)
		if err != nil {
			var oe *orcerrors.OrcError
			if orcerrors.As(err, &oe) && oe.Code == orcerrors.CodeExecutorFailure {
				o.log.Warn("worker run failed, continuing", "error", err)
				if notify != nil {
					notify(result, err)
				}
				continue
			}
			return err
		}
		if !ran {
			o.log.Info("no dispatchable task found, stopping")
			return nil
		}

		o.log.Info("iteration complete", "task_id", result.TaskID, "success", result.Success, "exit_code", result.ExitCode)
		if notify != nil {
			notify(result, nil)
		}
	}
}

// runIteration performs one scan -> score -> select -> dispatch -> execute
// cycle. ran is false when nothing was eligible to dispatch, the signal
// that the loop should terminate.
func (o *Orchestrator) runIteration(workspaceRoot string, cfg config.Config, opts scorer.Options) (*executor.Result, bool, error) {
	scanResult, err := o.scanner.Scan(workspaceRoot, scanner.Options{})
	if err != nil {
		return nil, false, err
	}

	ranked := scorer.ScoreTasks(scanResult.Tasks, opts)

	var selected *scorer.Scored
	for i := range ranked {
		if ranked[i].Factors.Dependency != 0 {
			selected = &ranked[i]
			break
		}
	}
	if selected == nil {
		return nil, false, nil
	}

	// Execute runs detached from the loop's cancellation context: a
	// canceled loop stops scheduling new work but never kills a worker
	// already in flight.
	result, err := o.executor.Execute(context.Background(), workspaceRoot, selected.Task.Project, selected.Task, cfg, executor.Options{})
	return result, true, err
}
