package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/taskforge/taskforge/internal/sqldb"
)

const taskColumns = `id, title, description, status, assignee, points, github_issue_url,
	reviewers, watchers, image_urls, branch_name, branch_assignee_github_login,
	revision, created_at, updated_at`

// SQLStore persists tasks in SQLite or PostgreSQL.
type SQLStore struct {
	db  *sqldb.DB
	now func() time.Time
}

// NewSQLStore returns a store over an opened database.
func NewSQLStore(db *sqldb.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Create inserts a new task and sets its ID, revision and timestamps.
func (s *SQLStore) Create(ctx context.Context, t *Task) error {
	now := s.now().UTC().Truncate(time.Second)
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Revision = 0

	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO tasks
			(title, description, status, assignee, points, github_issue_url,
			 reviewers, watchers, image_urls, branch_name, branch_assignee_github_login,
			 revision, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		RETURNING id`),
		t.Title, nullString(t.Description), string(t.Status), nullString(t.Assignee), t.Points,
		nullString(t.GitHubIssueURL),
		encodeList(t.Reviewers), encodeList(t.Watchers), encodeList(t.ImageURLs),
		nullString(t.BranchName), nullString(t.BranchAssignee),
		t.Revision, now.Unix(), now.Unix(),
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID.
func (s *SQLStore) Get(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

// GetLinked retrieves a task by ID only if it is linked to branch.
func (s *SQLStore) GetLinked(ctx context.Context, id int64, branch string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND branch_name = ?`), id, branch)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d on branch %s: %w", id, branch, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d on branch %s: %w", id, branch, err)
	}
	return t, nil
}

// List returns all tasks ordered by ID.
func (s *SQLStore) List(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// execer is satisfied by both the database handle and a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// saveFields runs the revision-guarded update of t's mutable fields and
// returns the number of rows written.
func (s *SQLStore) saveFields(ctx context.Context, ex execer, t *Task, now time.Time) (int64, error) {
	res, err := ex.ExecContext(ctx, s.db.Rebind(`
		UPDATE tasks SET
			title=?, description=?, status=?, assignee=?, github_issue_url=?,
			reviewers=?, watchers=?, image_urls=?, branch_assignee_github_login=?,
			revision=revision+1, updated_at=?
		WHERE id=? AND revision=?`),
		t.Title, nullString(t.Description), string(t.Status), nullString(t.Assignee),
		nullString(t.GitHubIssueURL),
		encodeList(t.Reviewers), encodeList(t.Watchers), encodeList(t.ImageURLs),
		nullString(t.BranchAssignee),
		now.Unix(), t.ID, t.Revision,
	)
	if err != nil {
		return 0, fmt.Errorf("update task %d: %w", t.ID, err)
	}
	return res.RowsAffected()
}

// Save writes the mutable fields of t, guarded by its revision.
func (s *SQLStore) Save(ctx context.Context, t *Task) error {
	now := s.now().UTC().Truncate(time.Second)
	n, err := s.saveFields(ctx, s.db, t, now)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, t.ID); err != nil {
			return err
		}
		return fmt.Errorf("task %d revision %d: %w", t.ID, t.Revision, ErrConflict)
	}
	t.Revision++
	t.UpdatedAt = now
	return nil
}

// SaveWithAward writes t like Save and, in the same transaction, credits
// delta under trigger unless that trigger was already credited. Nothing is
// written when either step fails.
func (s *SQLStore) SaveWithAward(ctx context.Context, t *Task, trigger, recipient string, delta int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC().Truncate(time.Second)
	n, err := s.saveFields(ctx, tx, t, now)
	if err != nil {
		return false, err
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, s.db.Rebind(`SELECT 1 FROM tasks WHERE id = ?`), t.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("task %d: %w", t.ID, ErrNotFound)
		}
		if err != nil {
			return false, fmt.Errorf("get task %d: %w", t.ID, err)
		}
		return false, fmt.Errorf("task %d revision %d: %w", t.ID, t.Revision, ErrConflict)
	}

	res, err := tx.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO point_awards (task_id, trigger_kind, recipient, points, created_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (task_id, trigger_kind) DO NOTHING`),
		t.ID, trigger, recipient, delta, now.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("record award for task %d: %w", t.ID, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 1 {
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`UPDATE tasks SET points=points+? WHERE id=?`), delta, t.ID); err != nil {
			return false, fmt.Errorf("add points to task %d: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit task %d: %w", t.ID, err)
	}

	t.Revision++
	t.UpdatedAt = now
	if inserted == 1 {
		t.Points += delta
	}
	return inserted == 1, nil
}

// LinkBranch records the task's branch unless one is already recorded.
func (s *SQLStore) LinkBranch(ctx context.Context, id int64, branch string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE tasks SET branch_name=?, revision=revision+1, updated_at=?
		WHERE id=? AND branch_name IS NULL`),
		branch, s.now().UTC().Unix(), id,
	)
	if err != nil {
		return false, fmt.Errorf("link branch for task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AddPoints increments the task's points and records the award in one
// transaction. A repeated trigger rolls back and reports false.
func (s *SQLStore) AddPoints(ctx context.Context, id int64, trigger, recipient string, delta int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin award tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC().Unix()
	res, err := tx.ExecContext(ctx, s.db.Rebind(`
		UPDATE tasks SET points=points+?, revision=revision+1, updated_at=? WHERE id=?`),
		delta, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("add points to task %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 0 {
		return false, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}

	res, err = tx.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO point_awards (task_id, trigger_kind, recipient, points, created_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (task_id, trigger_kind) DO NOTHING`),
		id, trigger, recipient, delta, now,
	)
	if err != nil {
		return false, fmt.Errorf("record award for task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit award for task %d: %w", id, err)
	}
	return true, nil
}

// Delete removes a task by ID.
func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM point_awards WHERE task_id=?`), id); err != nil {
		return fmt.Errorf("delete awards for task %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM tasks WHERE id=?`), id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// StatusCounts returns the number of tasks per status.
func (s *SQLStore) StatusCounts(ctx context.Context) (map[Status]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count statuses: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// PointsLeaders returns up to limit assignees by total points.
func (s *SQLStore) PointsLeaders(ctx context.Context, limit int) ([]Leader, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT assignee, CAST(SUM(points) AS BIGINT) AS total
		FROM tasks
		WHERE assignee IS NOT NULL AND assignee <> ''
		GROUP BY assignee
		ORDER BY total DESC, assignee ASC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("points leaders: %w", err)
	}
	defer rows.Close()

	leaders := []Leader{}
	for rows.Next() {
		var l Leader
		if err := rows.Scan(&l.Assignee, &l.Points); err != nil {
			return nil, fmt.Errorf("scan leader: %w", err)
		}
		leaders = append(leaders, l)
	}
	return leaders, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var t Task
	var status, reviewersJSON, watchersJSON, imagesJSON string
	var description, assignee, issueURL, branch, branchAssignee sql.NullString
	var createdAt, updatedAt int64

	err := s.Scan(
		&t.ID, &t.Title, &description, &status, &assignee, &t.Points, &issueURL,
		&reviewersJSON, &watchersJSON, &imagesJSON, &branch, &branchAssignee,
		&t.Revision, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = Status(status)
	t.Description = stringPtr(description)
	t.Assignee = stringPtr(assignee)
	t.GitHubIssueURL = stringPtr(issueURL)
	t.BranchName = stringPtr(branch)
	t.BranchAssignee = stringPtr(branchAssignee)
	if t.Reviewers, err = decodeList("reviewers", reviewersJSON); err != nil {
		return nil, err
	}
	if t.Watchers, err = decodeList("watchers", watchersJSON); err != nil {
		return nil, err
	}
	if t.ImageURLs, err = decodeList("image_urls", imagesJSON); err != nil {
		return nil, err
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &t, nil
}

func encodeList(l []string) string {
	if len(l) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(l)
	return string(b)
}

// decodeList parses a JSON list column. A corrupt column is an error so
// that a later Save cannot overwrite it with an empty list.
func decodeList(column, s string) ([]string, error) {
	l := []string{}
	if err := json.Unmarshal([]byte(s), &l); err != nil {
		return nil, fmt.Errorf("decode %s column: %w", column, err)
	}
	if l == nil {
		l = []string{}
	}
	return l, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
