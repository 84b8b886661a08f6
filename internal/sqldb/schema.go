package sqldb

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
	id                           INTEGER PRIMARY KEY AUTOINCREMENT,
	title                        TEXT NOT NULL,
	description                  TEXT,
	status                       TEXT NOT NULL DEFAULT 'open',
	assignee                     TEXT,
	points                       INTEGER NOT NULL DEFAULT 0,
	github_issue_url             TEXT,
	reviewers                    TEXT NOT NULL DEFAULT '[]',
	watchers                     TEXT NOT NULL DEFAULT '[]',
	image_urls                   TEXT NOT NULL DEFAULT '[]',
	branch_name                  TEXT,
	branch_assignee_github_login TEXT,
	revision                     INTEGER NOT NULL DEFAULT 0,
	created_at                   INTEGER NOT NULL,
	updated_at                   INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee)`,
	`CREATE TABLE IF NOT EXISTS point_awards (
	task_id      INTEGER NOT NULL,
	trigger_kind TEXT NOT NULL,
	recipient    TEXT NOT NULL DEFAULT '',
	points       INTEGER NOT NULL,
	created_at   INTEGER NOT NULL,
	PRIMARY KEY (task_id, trigger_kind),
	FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
)`,
	`CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	profile    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
	id                           BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	title                        TEXT NOT NULL,
	description                  TEXT,
	status                       TEXT NOT NULL DEFAULT 'open',
	assignee                     TEXT,
	points                       BIGINT NOT NULL DEFAULT 0,
	github_issue_url             TEXT,
	reviewers                    TEXT NOT NULL DEFAULT '[]',
	watchers                     TEXT NOT NULL DEFAULT '[]',
	image_urls                   TEXT NOT NULL DEFAULT '[]',
	branch_name                  TEXT,
	branch_assignee_github_login TEXT,
	revision                     BIGINT NOT NULL DEFAULT 0,
	created_at                   BIGINT NOT NULL,
	updated_at                   BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee)`,
	`CREATE TABLE IF NOT EXISTS point_awards (
	task_id      BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	trigger_kind TEXT NOT NULL,
	recipient    TEXT NOT NULL DEFAULT '',
	points       BIGINT NOT NULL,
	created_at   BIGINT NOT NULL,
	PRIMARY KEY (task_id, trigger_kind)
)`,
	`CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	profile    TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	expires_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
}
