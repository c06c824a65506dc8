// Package bridge syncs tasks with a GitHub-backed issue tracker: outbound
// create/update/close driven by a task's status and labels, inbound
// fetch-and-derive-status applied back through the journal. Inbound sync
// recovers a task's pairing primarily from the task_id metadata block
// embedded in the issue body, falling back to the local issue map only for
// issues that carry no such marker, so a lost issue-map write never
// strands an issue. Grounded on the teacher's hosting provider
// (internal/hosting/github/github.go) for client construction and the
// go-github Issues service calls, rebuilt around go-github's own
// golang.org/x/oauth2 token-source idiom instead of the teacher's
// hand-rolled bearer-token http.RoundTripper, since the spec's bridge has
// no GitHub-Enterprise base-URL concern to justify that extra machinery.
package bridge

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	gogithub "github.com/google/go-github/v82/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	orcerrors "github.com/randalmurphal/orc-core/internal/errors"
	"github.com/randalmurphal/orc-core/internal/issuemap"
	"github.com/randalmurphal/orc-core/internal/journal"
	"github.com/randalmurphal/orc-core/internal/project"
	"github.com/randalmurphal/orc-core/internal/scanner"
	"github.com/randalmurphal/orc-core/internal/task"
)

// TokenEnvVar is the environment variable the bridge reads its GitHub
// token from, matching the teacher's GITHUB_TOKEN default.
const TokenEnvVar = "GITHUB_TOKEN"

// taskIDMarker delimits the machine-parseable task_id metadata block the
// bridge embeds in every issue body it creates, so a later inbound sync
// can recover the pairing even if the issue map file is lost.
const taskIDMarker = "<!-- orc:task_id="

// statusLabelPrefix and sizeLabelPrefix namespace the bridge's label
// mapping from any labels a human added to the issue by hand.
const (
	statusLabelPrefix = "status:"
	sizeLabelPrefix   = "size:"
)

// Bridge syncs tasks against a single GitHub repository.
type Bridge struct {
	client      *gogithub.Client
	owner, repo string
	issues      *issuemap.Store
	journal     *journal.Journal
	concurrency int
}

// New constructs a Bridge authenticated from the TokenEnvVar environment
// variable, targeting owner/repo, backed by an issue map loaded from
// workspaceRoot.
func New(ctx context.Context, workspaceRoot, owner, repo string, j *journal.Journal, concurrency int) (*Bridge, error) {
	token := os.Getenv(TokenEnvVar)
	if token == "" {
		return nil, orcerrors.ErrTrackerError("authenticate", fmt.Errorf("%s environment variable is not set", TokenEnvVar))
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)
	client := gogithub.NewClient(httpClient)

	issues, err := issuemap.Load(workspaceRoot)
	if err != nil {
		return nil, err
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	return &Bridge{client: client, owner: owner, repo: repo, issues: issues, journal: j, concurrency: concurrency}, nil
}

// SyncResult is one task's outbound sync outcome.
type SyncResult struct {
	TaskID      string
	IssueNumber int
	Err         error
}

// SyncOutbound creates or updates a GitHub issue for each task, bounded to
// b.concurrency in-flight API calls. A single task's failure is recorded
// in its SyncResult and never aborts the batch.
func (b *Bridge) SyncOutbound(ctx context.Context, tasks []*scanner.ScannedTask) []SyncResult {
	results := make([]SyncResult, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, b.concurrency)

	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			issueNumber, err := b.syncOne(gctx, t)
			results[i] = SyncResult{TaskID: t.ID, IssueNumber: issueNumber, Err: err}
			return nil // per-task errors never abort the batch
		})
	}
	g.Wait()

	return results
}

func (b *Bridge) syncOne(ctx context.Context, t *scanner.ScannedTask) (int, error) {
	labels := labelsFor(t.Task)

	if number, ok := b.issues.IssueFor(t.ID); ok {
		_, _, err := b.client.Issues.Edit(ctx, b.owner, b.repo, number, &gogithub.IssueRequest{
			Title:  gogithub.Ptr(t.Title),
			Body:   gogithub.Ptr(issueBody(t.Task)),
			Labels: &labels,
			State:  gogithub.Ptr(issueState(t.Status)),
		})
		if err != nil {
			return 0, orcerrors.ErrTrackerError("update issue", err)
		}
		return number, nil
	}

	created, _, err := b.client.Issues.Create(ctx, b.owner, b.repo, &gogithub.IssueRequest{
		Title:  gogithub.Ptr(t.Title),
		Body:   gogithub.Ptr(issueBody(t.Task)),
		Labels: &labels,
	})
	if err != nil {
		return 0, orcerrors.ErrTrackerError("create issue", err)
	}

	if err := b.issues.Pair(t.ID, created.GetNumber()); err != nil {
		return created.GetNumber(), orcerrors.ErrTrackerError("persist issue pairing", err)
	}
	return created.GetNumber(), nil
}

// InboundUpdate is one issue-derived status change applied to the
// journal.
type InboundUpdate struct {
	TaskID      string
	IssueNumber int
	NewStatus   task.Status
	Err         error
}

// SyncInbound fetches every issue in the repo, recovers its task_id from
// the body's metadata block (falling back to the local issue map only when
// an issue carries no marker — e.g. one created by hand), derives a status
// from its state and labels, and applies it through the journal. Every
// issue is processed independently; one issue's failure doesn't stop the
// rest. Recovering a pairing from the body also repairs the local issue
// map when it disagrees with or is missing the pairing, per the
// issue-map-integrity contract: a later inbound sync re-pairs by task_id in
// the body even if an earlier outbound sync's map write was lost.
func (b *Bridge) SyncInbound(ctx context.Context, workspaceRoot string, projectsByTaskPrefix map[string]project.Project) []InboundUpdate {
	listOpts := &gogithub.IssueListByRepoOptions{State: "all", ListOptions: gogithub.ListOptions{PerPage: 100}}
	var issues []*gogithub.Issue
	for {
		page, resp, err := b.client.Issues.ListByRepo(ctx, b.owner, b.repo, listOpts)
		if err != nil {
			return []InboundUpdate{{Err: orcerrors.ErrTrackerError("list issues", err)}}
		}
		issues = append(issues, page...)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		listOpts.Page = resp.NextPage
	}

	var updates []InboundUpdate
	for _, iss := range issues {
		taskID, ok := ParseTaskID(iss.GetBody())
		if ok {
			if paired, pairedOK := b.issues.IssueFor(taskID); !pairedOK || paired != iss.GetNumber() {
				if err := b.issues.Pair(taskID, iss.GetNumber()); err != nil {
					updates = append(updates, InboundUpdate{
						IssueNumber: iss.GetNumber(),
						Err:         orcerrors.ErrTrackerError("persist recovered issue pairing", err),
					})
					continue
				}
			}
		} else {
			taskID, ok = b.issues.TaskFor(iss.GetNumber())
		}
		if !ok {
			updates = append(updates, InboundUpdate{
				IssueNumber: iss.GetNumber(),
				Err:         orcerrors.ErrTrackerError("derive task_id", fmt.Errorf("issue #%d has no task_id metadata and is not paired to a task", iss.GetNumber())),
			})
			continue
		}

		newStatus := deriveStatus(iss)
		upd := InboundUpdate{TaskID: taskID, IssueNumber: iss.GetNumber(), NewStatus: newStatus}

		p, ok := projectFor(taskID, projectsByTaskPrefix)
		if !ok {
			upd.Err = orcerrors.ErrTaskNotFound(taskID)
			updates = append(updates, upd)
			continue
		}

		if _, err := b.journal.UpdateStatus(workspaceRoot, p, taskID, newStatus, "synced from issue #"+strconv.Itoa(iss.GetNumber())); err != nil {
			upd.Err = err
		}
		updates = append(updates, upd)
	}
	return updates
}

func projectFor(taskID string, byPrefix map[string]project.Project) (project.Project, bool) {
	idx := strings.IndexByte(taskID, '/')
	if idx < 0 {
		return project.Project{}, false
	}
	p, ok := byPrefix[taskID[:idx]]
	return p, ok
}

// labelsFor maps a task's status and complexity to the fixed, reversible
// label scheme: status:<status> and size:<complexity>, alongside any
// labels the task already carries.
func labelsFor(t *task.Task) []string {
	labels := make([]string, 0, len(t.Labels)+2)
	labels = append(labels, t.Labels...)
	labels = append(labels, statusLabelPrefix+string(t.Status))
	if t.Complexity != "" {
		labels = append(labels, sizeLabelPrefix+string(t.Complexity))
	}
	return labels
}

// deriveStatus maps an issue's state and labels back to a task status.
// status:<x> labels take precedence over the issue's open/closed state,
// so an issue closed as not-planned can still be reflected as blocked
// rather than completed.
func deriveStatus(iss *gogithub.Issue) task.Status {
	for _, l := range iss.Labels {
		name := l.GetName()
		if strings.HasPrefix(name, statusLabelPrefix) {
			candidate := task.Status(strings.TrimPrefix(name, statusLabelPrefix))
			if task.IsValidStatus(candidate) {
				return candidate
			}
		}
	}
	if iss.GetState() == "closed" {
		return task.StatusCompleted
	}
	return task.StatusInProgress
}

// issueState maps a task status to the GitHub issue state it should be
// in: completed and failed tasks close their issue, everything else
// leaves it open.
func issueState(s task.Status) string {
	if s.Terminal() {
		return "closed"
	}
	return "open"
}

// issueBody embeds the task_id metadata block a later inbound sync (or a
// rebuild of a lost issue map) can parse back out.
func issueBody(t *task.Task) string {
	var b strings.Builder
	if t.Feature.Description != "" {
		b.WriteString(t.Feature.Description)
		b.WriteString("\n\n")
	}
	for _, c := range t.Feature.AcceptanceCriteria {
		fmt.Fprintf(&b, "- [ ] %s\n", c)
	}
	fmt.Fprintf(&b, "\n%s%s -->\n", taskIDMarker, t.ID)
	return b.String()
}

// ParseTaskID extracts a task_id from an issue body carrying the
// metadata block issueBody embeds, for recovering a pairing from GitHub
// alone.
func ParseTaskID(body string) (string, bool) {
	idx := strings.Index(body, taskIDMarker)
	if idx < 0 {
		return "", false
	}
	rest := body[idx+len(taskIDMarker):]
	end := strings.Index(rest, " -->")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
