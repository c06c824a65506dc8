// Package main provides the entry point for the orc CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/orc-core/internal/config"
	"github.com/randalmurphal/orc-core/internal/dispatcher"
	orcerrors "github.com/randalmurphal/orc-core/internal/errors"
	"github.com/randalmurphal/orc-core/internal/executor"
	"github.com/randalmurphal/orc-core/internal/journal"
	"github.com/randalmurphal/orc-core/internal/logging"
	"github.com/randalmurphal/orc-core/internal/orchestrator"
	"github.com/randalmurphal/orc-core/internal/scanner"
	"github.com/randalmurphal/orc-core/internal/scorer"
)

// Exit codes, per the spec's external-interface contract: 0 means every
// dispatched iteration succeeded, 1 means at least one worker run failed,
// 2 means the run stopped on an error returned by the loop: bad config, a
// missing or malformed registry, or any other error that ends the run
// (such as a worker command that cannot be spawned), whether or not a
// worker was dispatched before it.
const (
	exitOK            = 0
	exitWorkerFailure = 1
	exitConfigOrScan  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var workspaceRoot string
	var focusLabel string

	hadWorkerFailure := false

	root := &cobra.Command{
		Use:           "orc",
		Short:         "orc runs the autonomous multi-project task orchestrator loop",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return orchestrate(cmd.Context(), workspaceRoot, focusLabel, &hadWorkerFailure)
		},
	}
	root.Flags().StringVar(&workspaceRoot, "workspace", ".", "workspace root containing projects.json")
	root.Flags().StringVar(&focusLabel, "focus-label", "", "label the preference factor favors")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var oe *orcerrors.OrcError
		if orcerrors.As(err, &oe) {
			switch oe.Category() {
			case orcerrors.CategoryNotFound, orcerrors.CategoryBadRequest:
				return exitConfigOrScan
			}
		}
		return exitConfigOrScan
	}

	if hadWorkerFailure {
		return exitWorkerFailure
	}
	return exitOK
}

func orchestrate(ctx context.Context, workspaceRoot, focusLabel string, hadWorkerFailure *bool) error {
	log := logging.New("orc")

	cfg, err := config.Load(workspaceRoot)
	if err != nil {
		return err
	}

	s := scanner.New()
	j := journal.New()
	d := dispatcher.New(j)
	ex := executor.New(j, d)
	o := orchestrator.New(s, j, ex)

	onIteration := func(result *executor.Result, err error) {
		if err != nil || (result != nil && !result.Success) {
			*hadWorkerFailure = true
		}
	}

	if err := o.Run(ctx, workspaceRoot, cfg, scorer.Options{FocusLabel: focusLabel}, onIteration); err != nil {
		log.Error("orchestrator run failed", "error", err)
		return err
	}

	return nil
}
