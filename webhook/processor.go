// Package webhook turns GitHub webhook deliveries into task changes: branch
// linkage on branch creation, review-state transitions, and closing with
// point accrual on merge.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/taskforge/taskforge/task"
)

// Result is the body answered to GitHub.
type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Reasons reported with OK=false.
const (
	ReasonNoBranch      = "Branch not found in payload"
	ReasonMissingFields = "Missing fields"
)

// DefaultProtectedBranches are the merge targets that close tasks.
var DefaultProtectedBranches = []string{"main", "master"}

// Tasks is the slice of the task service the processor drives.
type Tasks interface {
	Get(ctx context.Context, id int64) (*task.Task, error)
	GetLinked(ctx context.Context, id int64, branch string) (*task.Task, error)
	Transition(ctx context.Context, id int64, to task.Status, reason string) (bool, error)
	LinkBranch(ctx context.Context, id int64, branch string) (bool, error)
	AwardPoints(ctx context.Context, id int64, trigger string, delta int64, requireRecipient bool) (bool, error)
}

// Config tunes the processor.
type Config struct {
	ProtectedBranches []string
	CloseBonus        int64
}

// Processor applies webhook events to tasks. Handle never fails: problems
// are logged and the delivery is acknowledged.
type Processor struct {
	tasks     Tasks
	protected []string
	bonus     int64
	logger    *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(tasks Tasks, cfg Config, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	protected := cfg.ProtectedBranches
	if len(protected) == 0 {
		protected = DefaultProtectedBranches
	}
	bonus := cfg.CloseBonus
	if bonus <= 0 {
		bonus = task.DefaultCloseBonus
	}
	return &Processor{tasks: tasks, protected: protected, bonus: bonus, logger: logger}
}

// Handle dispatches one delivery by its X-GitHub-Event name.
func (p *Processor) Handle(ctx context.Context, event string, body []byte) Result {
	log := p.logger.With("event", event)
	switch event {
	case "push":
		var pl pushPayload
		if !p.decode(log, body, &pl) {
			return Result{OK: true}
		}
		return p.handlePush(ctx, log, pl)
	case "pull_request":
		var pl pullRequestPayload
		if !p.decode(log, body, &pl) {
			return Result{OK: true}
		}
		p.handlePullRequest(ctx, log, pl)
	case "pull_request_review":
		var pl reviewPayload
		if !p.decode(log, body, &pl) {
			return Result{OK: true}
		}
		return p.handleReview(ctx, log, pl)
	case "create":
		var pl createPayload
		if !p.decode(log, body, &pl) {
			return Result{OK: true}
		}
		p.handleCreate(ctx, log, pl)
	default:
		log.Debug("ignoring webhook event")
	}
	return Result{OK: true}
}

func (p *Processor) decode(log *slog.Logger, body []byte, v any) bool {
	if err := json.Unmarshal(body, v); err != nil {
		log.Warn("malformed webhook payload", "error", err)
		return false
	}
	return true
}

func (p *Processor) handlePush(ctx context.Context, log *slog.Logger, pl pushPayload) Result {
	branch := strings.TrimPrefix(pl.Ref, "refs/heads/")
	if branch == "" {
		log.Info("push without branch ref")
		return Result{OK: false, Reason: ReasonNoBranch}
	}
	for _, c := range pl.Commits {
		id, ok := ref(c.Message)
		if !ok {
			continue
		}
		if _, err := p.tasks.GetLinked(ctx, id, branch); err != nil {
			if errors.Is(err, task.ErrNotFound) {
				log.Info("push references task not linked to branch", "task_id", id, "branch", branch)
			} else {
				log.Error("lookup linked task", "task_id", id, "branch", branch, "error", err)
			}
			continue
		}
		p.transition(ctx, log, id, task.StatusPendingReview, "push")
	}
	return Result{OK: true}
}

func (p *Processor) handlePullRequest(ctx context.Context, log *slog.Logger, pl pullRequestPayload) {
	pr := pl.PullRequest
	if pl.Action != "closed" || !pr.Merged {
		return
	}
	id, ok := ref(pr.Head.Ref)
	if !ok && pr.Body != nil {
		id, ok = ref(*pr.Body)
	}
	if !ok {
		log.Info("merged pull request has no task reference", "head", pr.Head.Ref)
		return
	}
	if !slices.Contains(p.protected, pr.Base.Ref) {
		log.Info("merge into unprotected branch ignored", "task_id", id, "base", pr.Base.Ref)
		return
	}
	p.transition(ctx, log, id, task.StatusClosed, "merge")
	if _, err := p.tasks.AwardPoints(ctx, id, task.TriggerClosed, p.bonus, true); err != nil {
		log.Error("award points on merge", "task_id", id, "error", err)
	}
}

func (p *Processor) handleReview(ctx context.Context, log *slog.Logger, pl reviewPayload) Result {
	if pl.Action != "submitted" {
		return Result{OK: true}
	}
	state, reviewer, head := pl.Review.State, pl.Review.User.Login, pl.PullRequest.Head.Ref
	if state == "" || reviewer == "" || head == "" {
		log.Info("review payload missing state, reviewer or head ref")
		return Result{OK: false, Reason: ReasonMissingFields}
	}

	id, ok := ref(head)
	if !ok {
		log.Info("review branch has no task reference", "head", head)
		return Result{OK: true}
	}
	t, err := p.tasks.Get(ctx, id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			log.Info("review for unknown task", "task_id", id)
		} else {
			log.Error("load task for review", "task_id", id, "error", err)
		}
		return Result{OK: true}
	}
	if !isReviewer(t.Reviewers, reviewer) {
		log.Info("review by non-reviewer ignored", "task_id", id, "reviewer", reviewer)
		return Result{OK: true}
	}

	var to task.Status
	switch strings.ToLower(state) {
	case "approved":
		to = task.StatusReviewPassed
	case "changes_requested":
		to = task.StatusChangesRequested
	default:
		log.Info("review state does not change status", "task_id", id, "state", state)
		return Result{OK: true}
	}
	p.transition(ctx, log, id, to, "review")
	return Result{OK: true}
}

func (p *Processor) handleCreate(ctx context.Context, log *slog.Logger, pl createPayload) {
	if pl.RefType != "branch" || pl.Ref == "" {
		return
	}
	id, ok := ref(pl.Ref)
	if !ok {
		return
	}
	linked, err := p.tasks.LinkBranch(ctx, id, pl.Ref)
	if err != nil {
		log.Error("link branch", "task_id", id, "branch", pl.Ref, "error", err)
		return
	}
	if linked {
		log.Info("branch linked to task", "task_id", id, "branch", pl.Ref)
	} else {
		log.Info("branch not linked: task missing or already linked", "task_id", id, "branch", pl.Ref)
	}
}

func (p *Processor) transition(ctx context.Context, log *slog.Logger, id int64, to task.Status, reason string) {
	if _, err := p.tasks.Transition(ctx, id, to, reason); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			log.Info("transition target missing", "task_id", id, "to", string(to))
			return
		}
		log.Error("transition task", "task_id", id, "to", string(to), "error", err)
	}
}

// ref parses a task reference, rejecting non-positive ids.
func ref(text string) (int64, bool) {
	id, ok := task.ParseRef(text)
	return id, ok && id > 0
}

// isReviewer compares GitHub logins under Unicode case folding.
func isReviewer(reviewers []string, login string) bool {
	fold := cases.Fold()
	want := fold.String(login)
	for _, r := range reviewers {
		if fold.String(r) == want {
			return true
		}
	}
	return false
}
