package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/taskforge/taskforge/task"
)

func TestTasksCRUD(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/tasks/", map[string]any{
		"title":     "Login page",
		"assignee":  "alice",
		"reviewers": []string{"bob"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	created := decode[task.Task](t, rec)
	if created.ID == 0 || created.Status != task.StatusOpen || created.Points != 0 {
		t.Fatalf("created = %+v", created)
	}

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/tasks/%d", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	raw := decode[map[string]any](t, rec)
	for _, key := range []string{"id", "title", "description", "status", "assignee", "points",
		"github_issue_url", "reviewers", "watchers", "image_urls", "branch_name", "branch_assignee_github_login"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("task JSON missing %q", key)
		}
	}
	if _, ok := raw["watchers"].([]any); !ok {
		t.Errorf("watchers = %#v, want array", raw["watchers"])
	}

	rec = e.do(t, http.MethodGet, "/tasks/", nil)
	if list := decode[[]task.Task](t, rec); len(list) != 1 {
		t.Errorf("list len = %d, want 1", len(list))
	}

	rec = e.do(t, http.MethodDelete, fmt.Sprintf("/tasks/%d", created.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	rec = e.do(t, http.MethodGet, fmt.Sprintf("/tasks/%d", created.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["detail"] == "" {
		t.Errorf("404 body = %v, want detail", body)
	}
}

func TestTasksEmptyList(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/tasks/", nil)
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("empty list body = %q, want []", got)
	}
}

func TestTasksValidation(t *testing.T) {
	e := newTestEnv(t, nil)
	tests := []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodPost, "/tasks/", map[string]any{"title": ""}, http.StatusUnprocessableEntity},
		{http.MethodPost, "/tasks/", "{broken", http.StatusUnprocessableEntity},
		{http.MethodGet, "/tasks/abc", nil, http.StatusUnprocessableEntity},
		{http.MethodPatch, "/tasks/999", map[string]any{"title": "x"}, http.StatusNotFound},
		{http.MethodDelete, "/tasks/999", nil, http.StatusNotFound},
		{http.MethodPatch, "/tasks/999/assign_branch", map[string]any{"branch_assignee_github_login": "bob"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := e.do(t, tt.method, tt.path, tt.body)
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.want, rec.Body)
		}
	}
}

func TestPatchCloseAwardsOnce(t *testing.T) {
	e := newTestEnv(t, nil)
	created := decode[task.Task](t, e.do(t, http.MethodPost, "/tasks/", map[string]any{"title": "ship"}))
	path := fmt.Sprintf("/tasks/%d", created.ID)

	for i := 0; i < 2; i++ {
		rec := e.do(t, http.MethodPatch, path, map[string]any{"status": "closed"})
		if rec.Code != http.StatusOK {
			t.Fatalf("patch #%d status = %d", i, rec.Code)
		}
		got := decode[task.Task](t, rec)
		if got.Status != task.StatusClosed || got.Points != 10 {
			t.Errorf("patch #%d = %q/%d, want closed/10", i, got.Status, got.Points)
		}
	}

	// null means "not supplied"
	rec := e.do(t, http.MethodPatch, path, `{"title":null,"description":"more"}`)
	got := decode[task.Task](t, rec)
	if got.Title != "ship" || got.Description == nil || *got.Description != "more" {
		t.Errorf("patch with null = %+v", got)
	}
}

func TestAssignBranch(t *testing.T) {
	e := newTestEnv(t, nil)
	created := decode[task.Task](t, e.do(t, http.MethodPost, "/tasks/", map[string]any{"title": "x", "assignee": "alice"}))

	rec := e.do(t, http.MethodPatch, fmt.Sprintf("/tasks/%d/assign_branch", created.ID),
		map[string]any{"branch_assignee_github_login": "bob"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decode[task.Task](t, rec)
	if got.BranchAssignee == nil || *got.BranchAssignee != "bob" || got.Assignee == nil || *got.Assignee != "bob" {
		t.Errorf("assign_branch = %+v", got)
	}
}

func TestStats(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/tasks/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"statuses\":{},\"points_leaders\":[]}\n" {
		t.Errorf("empty stats = %q", got)
	}

	for _, who := range []string{"zed", "amy"} {
		created := decode[task.Task](t, e.do(t, http.MethodPost, "/tasks/", map[string]any{"title": "t", "assignee": who}))
		e.do(t, http.MethodPatch, fmt.Sprintf("/tasks/%d", created.ID), map[string]any{"status": "closed"})
	}
	e.do(t, http.MethodPost, "/tasks/", map[string]any{"title": "open one"})

	stats := decode[task.Stats](t, e.do(t, http.MethodGet, "/tasks/stats", nil))
	if stats.Statuses[task.StatusClosed] != 2 || stats.Statuses[task.StatusOpen] != 1 {
		t.Errorf("statuses = %v", stats.Statuses)
	}
	if len(stats.PointsLeaders) != 2 || stats.PointsLeaders[0].Assignee != "amy" {
		t.Errorf("leaders = %v, want amy first on tie", stats.PointsLeaders)
	}
}
