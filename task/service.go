package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskforge/taskforge/comms"
)

const (
	// DefaultCloseBonus is credited when a task is closed.
	DefaultCloseBonus = 10

	leaderboardSize = 5
	maxSaveAttempts = 3
)

// Service implements task operations on top of a Store: validation, partial
// updates, guarded status transitions and idempotent point accrual.
type Service struct {
	store      Store
	bus        comms.Bus
	logger     *slog.Logger
	closeBonus int64
}

// NewService creates a Service. bus may be nil.
func NewService(store Store, bus comms.Bus, closeBonus int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if closeBonus <= 0 {
		closeBonus = DefaultCloseBonus
	}
	return &Service{store: store, bus: bus, logger: logger, closeBonus: closeBonus}
}

// CloseBonus returns the points credited for closing a task.
func (s *Service) CloseBonus() int64 { return s.closeBonus }

// Create validates and stores a new open task with zero points.
func (s *Service) Create(ctx context.Context, in NewTask) (*Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	t := &Task{
		Title:          title,
		Description:    in.Description,
		Status:         StatusOpen,
		Assignee:       in.Assignee,
		GitHubIssueURL: in.GitHubIssueURL,
		Reviewers:      nonNil(in.Reviewers),
		Watchers:       nonNil(in.Watchers),
		ImageURLs:      nonNil(in.ImageURLs),
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	s.publish(ctx, comms.TaskCreated, t, "api")
	return t, nil
}

// Get returns a task by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Task, error) {
	return s.store.Get(ctx, id)
}

// GetLinked returns a task only if it is linked to branch.
func (s *Service) GetLinked(ctx context.Context, id int64, branch string) (*Task, error) {
	return s.store.GetLinked(ctx, id, branch)
}

// List returns every task.
func (s *Service) List(ctx context.Context) ([]*Task, error) {
	tasks, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*Task{}
	}
	return tasks, nil
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, comms.TaskDeleted, &Task{ID: id}, "api")
	return nil
}

// Update applies the supplied fields of p. Moving a task that is not yet
// closed to closed credits the close bonus once, in the same write as the
// status change.
func (s *Service) Update(ctx context.Context, id int64, p Patch) (*Task, error) {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return nil, fmt.Errorf("%w: title must not be empty", ErrValidation)
	}

	var closing, awarded bool
	save := func(ctx context.Context, t *Task) error {
		if !closing {
			return s.store.Save(ctx, t)
		}
		var err error
		awarded, err = s.store.SaveWithAward(ctx, t, TriggerClosed, t.ResponsibleParty(), s.closeBonus)
		return err
	}
	t, changed, err := s.mutateWith(ctx, id, func(t *Task) (bool, error) {
		closing = p.Status != nil && *p.Status == StatusClosed && t.Status != StatusClosed
		if p.Empty() {
			return false, nil
		}
		p.apply(t)
		return true, nil
	}, save)
	if err != nil {
		return nil, err
	}
	if !changed {
		return t, nil
	}

	if closing {
		if awarded {
			s.logger.Info("points awarded", "task_id", id, "trigger", TriggerClosed,
				"recipient", t.ResponsibleParty(), "points", s.closeBonus)
		} else {
			s.logger.Info("points already awarded", "task_id", id, "trigger", TriggerClosed)
		}
	}
	s.publish(ctx, comms.TaskUpdated, t, "api")
	return t, nil
}

// AssignBranch makes login responsible for the task's branch and its
// general assignee.
func (s *Service) AssignBranch(ctx context.Context, id int64, login string) (*Task, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, fmt.Errorf("%w: branch_assignee_github_login is required", ErrValidation)
	}
	t, _, err := s.mutate(ctx, id, func(t *Task) (bool, error) {
		t.BranchAssignee = &login
		t.Assignee = &login
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, comms.TaskUpdated, t, "assign_branch")
	return t, nil
}

// Transition moves a task to status to if CanTransition allows it from the
// task's current status. It reports whether the status changed.
func (s *Service) Transition(ctx context.Context, id int64, to Status, reason string) (bool, error) {
	var from Status
	t, changed, err := s.mutate(ctx, id, func(t *Task) (bool, error) {
		from = t.Status
		if from == to || !CanTransition(from, to) {
			return false, nil
		}
		t.Status = to
		return true, nil
	})
	if err != nil {
		return false, err
	}
	if !changed {
		if from != to {
			s.logger.Info("status transition rejected",
				"task_id", id, "from", string(from), "to", string(to), "reason", reason)
		}
		return false, nil
	}
	s.logger.Info("task status changed",
		"task_id", id, "from", string(from), "to", string(to), "reason", reason)
	s.publish(ctx, comms.TaskUpdated, t, reason)
	return true, nil
}

// LinkBranch records branch on the task unless one is already linked.
func (s *Service) LinkBranch(ctx context.Context, id int64, branch string) (bool, error) {
	linked, err := s.store.LinkBranch(ctx, id, branch)
	if err != nil {
		return false, err
	}
	if linked {
		if t, err := s.store.Get(ctx, id); err == nil {
			s.publish(ctx, comms.TaskUpdated, t, "branch_created")
		}
	}
	return linked, nil
}

// AwardPoints credits delta to the task's responsible party once per
// (task, trigger). A missing task is a logged no-op. When requireRecipient
// is set, a task with neither branch assignee nor assignee is skipped too.
func (s *Service) AwardPoints(ctx context.Context, id int64, trigger string, delta int64, requireRecipient bool) (bool, error) {
	t, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("points not awarded: task not found", "task_id", id, "trigger", trigger)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	recipient := t.ResponsibleParty()
	if recipient == "" && requireRecipient {
		s.logger.Info("points not awarded: no responsible party", "task_id", id, "trigger", trigger)
		return false, nil
	}

	awarded, err := s.store.AddPoints(ctx, id, trigger, recipient, delta)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("points not awarded: task not found", "task_id", id, "trigger", trigger)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !awarded {
		s.logger.Info("points already awarded", "task_id", id, "trigger", trigger)
		return false, nil
	}
	s.logger.Info("points awarded",
		"task_id", id, "trigger", trigger, "recipient", recipient, "points", delta)
	return true, nil
}

// Stats counts tasks per status and ranks the top assignees by points.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.store.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	leaders, err := s.store.PointsLeaders(ctx, leaderboardSize)
	if err != nil {
		return nil, err
	}
	if leaders == nil {
		leaders = []Leader{}
	}
	return &Stats{Statuses: counts, PointsLeaders: leaders}, nil
}

// mutate loads the task, lets fn change it, and saves it with an optimistic
// revision check, retrying on concurrent modification. fn reports whether
// anything changed; unchanged tasks are not written.
func (s *Service) mutate(ctx context.Context, id int64, fn func(t *Task) (bool, error)) (*Task, bool, error) {
	return s.mutateWith(ctx, id, fn, s.store.Save)
}

// mutateWith is mutate with a custom save step, which must return
// ErrConflict on a stale revision.
func (s *Service) mutateWith(ctx context.Context, id int64, fn func(t *Task) (bool, error),
	save func(ctx context.Context, t *Task) error) (*Task, bool, error) {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		t, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, false, err
		}
		changed, err := fn(t)
		if err != nil || !changed {
			return t, false, err
		}
		err = save(ctx, t)
		if errors.Is(err, ErrConflict) {
			s.logger.Debug("task save conflict, retrying", "task_id", id, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return t, true, nil
	}
	return nil, false, fmt.Errorf("task %d: %w", id, ErrConflict)
}

func (s *Service) publish(ctx context.Context, typ comms.EventType, t *Task, reason string) {
	if s.bus == nil {
		return
	}
	ev := &comms.Event{Type: typ, TaskID: t.ID, Reason: reason}
	if typ != comms.TaskDeleted {
		ev.Payload = t
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish task event", "task_id", t.ID, "type", string(typ), "error", err)
	}
}

func nonNil(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}
