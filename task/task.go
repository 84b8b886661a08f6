// Package task defines the task model, its persistence, and the rules that
// move tasks between statuses and credit points to the people working them.
package task

import (
	"context"
	"errors"
	"time"
)

// Status is the workflow state of a task. The set is open-ended: the API
// accepts any string, webhook-driven transitions only produce the ones below.
type Status string

const (
	StatusOpen             Status = "open"
	StatusPendingReview    Status = "Ожидает ревью"
	StatusReviewPassed     Status = "Ревью пройдено"
	StatusChangesRequested Status = "Требуются доработки"
	StatusClosed           Status = "closed"
)

// TriggerClosed keys the point award for closing a task. The API close path
// and the merge webhook share it so one close is credited once.
const TriggerClosed = "task_closed"

var (
	ErrNotFound   = errors.New("task not found")
	ErrConflict   = errors.New("task was modified concurrently")
	ErrValidation = errors.New("invalid task")
)

// Task is a unit of work tracked by the service.
type Task struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Description    *string   `json:"description"`
	Status         Status    `json:"status"`
	Assignee       *string   `json:"assignee"`
	Points         int64     `json:"points"`
	GitHubIssueURL *string   `json:"github_issue_url"`
	Reviewers      []string  `json:"reviewers"`
	Watchers       []string  `json:"watchers"`
	ImageURLs      []string  `json:"image_urls"`
	BranchName     *string   `json:"branch_name"`
	BranchAssignee *string   `json:"branch_assignee_github_login"`
	Revision       int64     `json:"revision"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ResponsibleParty returns the branch assignee if set, otherwise the general
// assignee. Empty means nobody is responsible.
func (t *Task) ResponsibleParty() string {
	if t.BranchAssignee != nil && *t.BranchAssignee != "" {
		return *t.BranchAssignee
	}
	if t.Assignee != nil {
		return *t.Assignee
	}
	return ""
}

// NewTask is the input for creating a task.
type NewTask struct {
	Title          string   `json:"title"`
	Description    *string  `json:"description"`
	Assignee       *string  `json:"assignee"`
	GitHubIssueURL *string  `json:"github_issue_url"`
	Reviewers      []string `json:"reviewers"`
	Watchers       []string `json:"watchers"`
	ImageURLs      []string `json:"image_urls"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Title          *string   `json:"title"`
	Description    *string   `json:"description"`
	Assignee       *string   `json:"assignee"`
	Status         *Status   `json:"status"`
	GitHubIssueURL *string   `json:"github_issue_url"`
	Reviewers      *[]string `json:"reviewers"`
	Watchers       *[]string `json:"watchers"`
	ImageURLs      *[]string `json:"image_urls"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Assignee == nil &&
		p.Status == nil && p.GitHubIssueURL == nil &&
		p.Reviewers == nil && p.Watchers == nil && p.ImageURLs == nil
}

func (p Patch) apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = p.Description
	}
	if p.Assignee != nil {
		t.Assignee = p.Assignee
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.GitHubIssueURL != nil {
		t.GitHubIssueURL = p.GitHubIssueURL
	}
	if p.Reviewers != nil {
		t.Reviewers = *p.Reviewers
	}
	if p.Watchers != nil {
		t.Watchers = *p.Watchers
	}
	if p.ImageURLs != nil {
		t.ImageURLs = *p.ImageURLs
	}
}

// Leader is one row of the points leaderboard.
type Leader struct {
	Assignee string `json:"assignee"`
	Points   int64  `json:"points"`
}

// Stats aggregates the task table.
type Stats struct {
	Statuses      map[Status]int64 `json:"statuses"`
	PointsLeaders []Leader         `json:"points_leaders"`
}

// Store persists tasks.
type Store interface {
	// Create inserts t and sets its ID, revision and timestamps.
	Create(ctx context.Context, t *Task) error

	// Get returns the task or ErrNotFound.
	Get(ctx context.Context, id int64) (*Task, error)

	// GetLinked returns the task only if its branch_name equals branch.
	GetLinked(ctx context.Context, id int64, branch string) (*Task, error)

	// List returns every task in id order.
	List(ctx context.Context) ([]*Task, error)

	// Save writes the mutable fields of t if the stored revision still
	// equals t.Revision, and bumps the revision. Points and branch_name are
	// never written here. Returns ErrConflict on a stale revision.
	Save(ctx context.Context, t *Task) error

	// SaveWithAward is Save plus AddPoints in one transaction: both are
	// written or neither is. It reports whether the trigger was credited.
	SaveWithAward(ctx context.Context, t *Task, trigger, recipient string, delta int64) (bool, error)

	// LinkBranch sets branch_name only when it is unset and reports whether
	// the write happened.
	LinkBranch(ctx context.Context, id int64, branch string) (bool, error)

	// AddPoints credits delta to the task once per trigger. It reports
	// false when the trigger was already credited.
	AddPoints(ctx context.Context, id int64, trigger, recipient string, delta int64) (bool, error)

	// Delete removes the task and its award ledger.
	Delete(ctx context.Context, id int64) error

	StatusCounts(ctx context.Context) (map[Status]int64, error)

	// PointsLeaders sums points per assignee, highest first, ties by name.
	PointsLeaders(ctx context.Context, limit int) ([]Leader, error)
}
