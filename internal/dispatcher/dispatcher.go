// Package dispatcher assembles a worker's prompt from a scanned task and
// its project, enforcing the token budget by trimming relevant files from
// the tail, and resolves the subprocess invocation for a task's model
// tier. Grounded on the teacher's prompt-assembly idiom (internal/prompt)
// but rebuilt around the fixed section order (role preamble; project name
// and path; project memory; task title; feature description, under a
// "Description:" heading; acceptance criteria; constraints — test command,
// project path, TDD reference; relevant files) and chars/4 estimator instead of the
// teacher's tokenizer-backed budget.
package dispatcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/randalmurphal/orc-core/internal/config"
	"github.com/randalmurphal/orc-core/internal/journal"
	"github.com/randalmurphal/orc-core/internal/project"
	"github.com/randalmurphal/orc-core/internal/scanner"
	"github.com/randalmurphal/orc-core/internal/task"
)

// charsPerToken is the dispatcher's token estimator: every four characters
// of assembled prompt text count as one token. It is deliberately crude —
// the spec calls for an estimate, not an exact count from a real
// tokenizer.
const charsPerToken = 4

// localModelName is the model identifier passed to a worker dispatched at
// the local model tier.
const localModelName = "qwen3-coder"

const rolePreamble = "You are an autonomous engineering agent working inside a larger orchestrated codebase. Complete the task described below, then stop."

// Plan is a fully resolved worker invocation: the assembled prompt plus
// everything the executor needs to spawn the subprocess.
type Plan struct {
	Prompt           string
	WorkingDirectory string
	Args             []string
	Env              []string
	MaxTurns         int

	FilesIncluded []string
	FilesTrimmed  []string
	FilesNotFound []string
	TokensEstimated int
}

// Dispatcher builds worker invocation plans.
type Dispatcher struct {
	journal *journal.Journal
}

// New constructs a Dispatcher backed by j for marking tasks in_progress.
func New(j *journal.Journal) *Dispatcher {
	return &Dispatcher{journal: j}
}

// Dispatch assembles the prompt and invocation for st, marking it
// in_progress in the journal before returning. Returning an error leaves
// the task's status untouched.
func (d *Dispatcher) Dispatch(workspaceRoot string, p project.Project, st *scanner.ScannedTask, cfg config.Config) (*Plan, error) {
	workingDir := filepath.Join(workspaceRoot, p.Path)

	sections := []string{
		rolePreamble,
		fmt.Sprintf("Project: %s (%s)", p.Name, workingDir),
	}

	if memory, err := os.ReadFile(filepath.Join(workingDir, scanner.ProjectMemoryRelPath)); err == nil {
		sections = append(sections, "Project memory:\n"+string(memory))
	}

	sections = append(sections, "Task: "+st.Title)

	if st.Feature.Description != "" {
		sections = append(sections, "Description:\n"+st.Feature.Description)
	}
	if len(st.Feature.AcceptanceCriteria) > 0 {
		var b strings.Builder
		b.WriteString("Acceptance criteria:\n")
		for _, c := range st.Feature.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}
	sections = append(sections, constraintsSection(p, workingDir))

	base := strings.Join(sections, "\n\n")
	budget := cfg.TokenBudget
	used := estimateTokens(base)

	var fileBlocks []string
	var included, trimmed, notFound []string
	for i, rel := range st.RelevantFiles {
		data, err := os.ReadFile(filepath.Join(workingDir, rel))
		if err != nil {
			notFound = append(notFound, rel)
			continue
		}
		block := fmt.Sprintf("File: %s\n```\n%s\n```", rel, string(data))
		sep := "\n\n"
		if len(fileBlocks) == 0 {
			sep = "\n\nRelevant files:\n\n"
		}
		cost := estimateTokens(sep + block)
		if used+cost > budget {
			trimmed = append(trimmed, st.RelevantFiles[i:]...)
			break
		}
		fileBlocks = append(fileBlocks, block)
		included = append(included, rel)
		used += cost
	}

	prompt := base
	if len(fileBlocks) > 0 {
		prompt += "\n\nRelevant files:\n\n" + strings.Join(fileBlocks, "\n\n")
	}

	args := append([]string{}, cfg.WorkerBaseArgs...)
	var env []string
	if st.ModelTier == task.ModelTierLocal {
		args = append(args, "--model", localModelName)
		env = append(env,
			"ANTHROPIC_BASE_URL="+cfg.OllamaBaseURL,
			"ANTHROPIC_AUTH_TOKEN=local",
		)
	}

	plan := &Plan{
		Prompt:           prompt,
		WorkingDirectory: workingDir,
		Args:             args,
		Env:              env,
		MaxTurns:         cfg.MaxTurns,
		FilesIncluded:    included,
		FilesTrimmed:     dedupeTrimmed(trimmed, included),
		FilesNotFound:    notFound,
		TokensEstimated:  estimateTokens(prompt),
	}

	if _, err := d.journal.UpdateStatus(workspaceRoot, p, st.ID, task.StatusInProgress, ""); err != nil {
		return nil, err
	}

	return plan, nil
}

// dedupeTrimmed drops any path that ended up included (can't happen given
// the break-on-overflow loop above, but keeps the two lists disjoint if
// that loop is ever restructured).
func dedupeTrimmed(trimmed, included []string) []string {
	if len(trimmed) == 0 {
		return nil
	}
	skip := make(map[string]bool, len(included))
	for _, f := range included {
		skip[f] = true
	}
	out := make([]string, 0, len(trimmed))
	for _, f := range trimmed {
		if !skip[f] {
			out = append(out, f)
		}
	}
	return out
}

// tddReference is the fixed reminder appended to every worker's constraints
// section, per the spec's "TDD reference" prompt item.
const tddReference = "Follow test-driven development: write or update a failing test before changing implementation code, then make it pass."

// constraintsSection builds the worker prompt's constraints block: the
// project's configured test command (if any), the project's working
// directory, and the fixed TDD reference.
func constraintsSection(p project.Project, workingDir string) string {
	var b strings.Builder
	b.WriteString("Constraints:\n")
	if p.TestCommand != "" {
		fmt.Fprintf(&b, "- Test command: %s\n", p.TestCommand)
	} else {
		b.WriteString("- Test command: none configured\n")
	}
	fmt.Fprintf(&b, "- Project path: %s\n", workingDir)
	fmt.Fprintf(&b, "- %s\n", tddReference)
	return strings.TrimRight(b.String(), "\n")
}

func estimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}
