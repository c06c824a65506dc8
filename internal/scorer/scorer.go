// Package scorer implements the five-factor weighted priority model that
// ranks scanned tasks for dispatch. Grounded on the teacher's scheduling
// idiom (internal/workflow's readiness scoring) but rebuilt around the
// spec's fixed weights and bonus/penalty rules rather than the teacher's
// pluggable scorer interface.
package scorer

import (
	"sort"
	"time"

	"github.com/randalmurphal/orc-core/internal/scanner"
	"github.com/randalmurphal/orc-core/internal/task"
)

// Weights, fixed by the spec. They are not configurable: a scorer whose
// weights can drift from these numbers would invalidate the two literal
// verification examples every change to this package must keep passing.
const (
	weightMaturity   = 0.20
	weightImpact     = 0.30
	weightDependency = 0.20
	weightEffort     = 0.15
	weightPreference = 0.15
)

const (
	recencyWindow = 24 * time.Hour

	bonusAcceptanceCriteria = 20.0
	bonusFeatureDescription = 10.0
	bonusGithubIssue        = 10.0
	bonusPerUnlock          = 15.0
	maxUnlockBonus          = 45.0
	bonusMilestoneMatch     = 15.0
	bonusLastBlocker        = 25.0

	preferenceBase        = 50.0
	preferenceRecency     = 20.0
	preferenceFocusLabel  = 30.0

	maxImpact = 100.0
)

var labelBonus = map[string]float64{
	"bugfix":   10,
	"test":     10,
	"feature":  5,
	"infra":    5,
	"docs":     0,
	"refactor": 0,
}

// Factors is the breakdown behind a task's final score, kept around for
// tie-breaking and for callers that want to explain a ranking.
type Factors struct {
	Maturity   float64
	Impact     float64
	Dependency float64
	Effort     float64
	Preference float64
}

// Options parameterizes scoring with the caller-supplied inputs the spec
// says aren't intrinsic to a task: the current time (for the recency
// bonus) and an operator's focus label (for the preference bonus).
type Options struct {
	Now        time.Time
	FocusLabel string

	// IncludeTerminal keeps completed/failed tasks in ScoreTasks's output
	// instead of the default filtering.
	IncludeTerminal bool
}

// Scored pairs a scanned task with its computed score and factors.
type Scored struct {
	Task       *scanner.ScannedTask
	Score      float64
	Factors    Factors
	Overridden bool
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// Score computes one task's priority score against the full merged
// collection, which dependency resolution needs to look up blockers.
func Score(t *scanner.ScannedTask, all map[string]*scanner.ScannedTask, opts Options) Scored {
	factors := Factors{
		Maturity:   maturity(t),
		Impact:     impact(t, all),
		Dependency: dependency(t, all),
	}
	factors.Effort = factors.Impact * t.Complexity.EffortMultiplier()
	factors.Preference = preference(t, opts)

	if t.PriorityOverride != nil {
		return Scored{Task: t, Score: *t.PriorityOverride, Factors: factors, Overridden: true}
	}

	score := weightMaturity*factors.Maturity +
		weightImpact*factors.Impact +
		weightDependency*factors.Dependency +
		weightEffort*factors.Effort +
		weightPreference*factors.Preference

	return Scored{Task: t, Score: score, Factors: factors}
}

func maturity(t *scanner.ScannedTask) float64 {
	return task.MaturityScore(t.Project.Status)
}

func impact(t *scanner.ScannedTask, all map[string]*scanner.ScannedTask) float64 {
	total := 0.0

	if len(t.Feature.AcceptanceCriteria) > 0 {
		total += bonusAcceptanceCriteria
	}
	if t.Feature.Description != "" {
		total += bonusFeatureDescription
	}
	if t.GithubIssue != "" {
		total += bonusGithubIssue
	}

	unlockBonus := float64(len(t.Unlocks)) * bonusPerUnlock
	if unlockBonus > maxUnlockBonus {
		unlockBonus = maxUnlockBonus
	}
	total += unlockBonus

	if t.Milestone != nil && t.Task.Milestone != "" && t.Task.Milestone == t.Milestone.Name {
		total += bonusMilestoneMatch
		if isLastBlockerForMilestone(t, all) {
			total += bonusLastBlocker
		}
	}

	for _, l := range t.Labels {
		total += labelBonus[l]
	}

	if total > maxImpact {
		total = maxImpact
	}
	return total
}

// isLastBlockerForMilestone reports whether t is the only non-completed
// task in its project carrying its milestone name, meaning finishing it
// clears the milestone.
func isLastBlockerForMilestone(t *scanner.ScannedTask, all map[string]*scanner.ScannedTask) bool {
	for _, other := range all {
		if other.ID == t.ID {
			continue
		}
		if other.ProjectName != t.ProjectName {
			continue
		}
		if other.Task.Milestone != t.Task.Milestone {
			continue
		}
		if other.Status != task.StatusCompleted {
			return false
		}
	}
	return true
}

// dependency resolves a task's blocked_by list against the merged
// collection and scores how clear its path to dispatch is.
func dependency(t *scanner.ScannedTask, all map[string]*scanner.ScannedTask) float64 {
	if len(t.BlockedBy) == 0 {
		return 100
	}

	allCompleted := true
	allNonCompletedInProgress := true
	for _, id := range t.BlockedBy {
		blocker, ok := all[id]
		if !ok {
			return 0 // unresolved blocker: not found in the merged collection
		}
		if blocker.Status != task.StatusCompleted {
			allCompleted = false
			if blocker.Status != task.StatusInProgress {
				allNonCompletedInProgress = false
			}
		}
	}

	if allCompleted {
		return 100
	}
	if allNonCompletedInProgress {
		return 50
	}
	return 0
}

func preference(t *scanner.ScannedTask, opts Options) float64 {
	score := preferenceBase

	if !t.CreatedAt.IsZero() && opts.now().Sub(t.CreatedAt) <= recencyWindow {
		score += preferenceRecency
	}

	if opts.FocusLabel != "" {
		for _, l := range t.Labels {
			if l == opts.FocusLabel {
				score += preferenceFocusLabel
				break
			}
		}
	}

	return score
}

// ScoreTasks scores an entire scan result, filtering out terminal tasks by
// default, and returns them ranked highest score first. Ties break on
// higher Impact, then lower Effort-multiplier, then lexicographic id, so
// the ranking is a deterministic total order.
func ScoreTasks(tasks []*scanner.ScannedTask, opts Options) []Scored {
	all := make(map[string]*scanner.ScannedTask, len(tasks))
	for _, t := range tasks {
		all[t.ID] = t
	}

	out := make([]Scored, 0, len(tasks))
	for _, t := range tasks {
		if !opts.IncludeTerminal && t.Status.Terminal() {
			continue
		}
		out = append(out, Score(t, all, opts))
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Factors.Impact != b.Factors.Impact {
			return a.Factors.Impact > b.Factors.Impact
		}
		am := a.Task.Complexity.EffortMultiplier()
		bm := b.Task.Complexity.EffortMultiplier()
		if am != bm {
			return am < bm
		}
		return a.Task.ID < b.Task.ID
	})

	return out
}
