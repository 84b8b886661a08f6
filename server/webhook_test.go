package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/taskforge/taskforge/config"
	"github.com/taskforge/taskforge/task"
	"github.com/taskforge/taskforge/webhook"
)

func TestWebhookEndToEnd(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	created, err := e.tasks.Create(ctx, task.NewTask{Title: "hook", Assignee: strp("alice"), Reviewers: []string{"bob"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	branch := fmt.Sprintf("feature/TASK-%d", created.ID)

	send := func(event string, payload any) webhook.Result {
		t.Helper()
		rec := e.do(t, http.MethodPost, "/webhook", payload, withHeader(webhook.HeaderEvent, event))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", event, rec.Code)
		}
		return decode[webhook.Result](t, rec)
	}

	send("create", map[string]any{"ref": branch, "ref_type": "branch"})
	send("push", map[string]any{
		"ref":     "refs/heads/" + branch,
		"commits": []any{map[string]any{"message": fmt.Sprintf("TASK-%d wip", created.ID)}},
	})
	if got, _ := e.tasks.Get(ctx, created.ID); got.Status != task.StatusPendingReview {
		t.Fatalf("after push status = %q", got.Status)
	}

	send("pull_request_review", map[string]any{
		"action":       "submitted",
		"review":       map[string]any{"state": "approved", "user": map[string]any{"login": "bob"}},
		"pull_request": map[string]any{"head": map[string]any{"ref": branch}},
	})
	if got, _ := e.tasks.Get(ctx, created.ID); got.Status != task.StatusReviewPassed {
		t.Fatalf("after review status = %q", got.Status)
	}

	send("pull_request", map[string]any{
		"action": "closed",
		"pull_request": map[string]any{
			"merged": true,
			"head":   map[string]any{"ref": branch},
			"base":   map[string]any{"ref": "main"},
		},
	})
	got, _ := e.tasks.Get(ctx, created.ID)
	if got.Status != task.StatusClosed || got.Points != 10 {
		t.Fatalf("after merge = %q/%d, want closed/10", got.Status, got.Points)
	}

	if res := send("push", map[string]any{"ref": ""}); res.OK || res.Reason != webhook.ReasonNoBranch {
		t.Errorf("push without ref = %+v", res)
	}
	if res := send("ping", map[string]any{"zen": "hi"}); !res.OK {
		t.Errorf("ping = %+v", res)
	}

	rec := e.do(t, http.MethodPost, "/webhook", "{not json", withHeader(webhook.HeaderEvent, "push"))
	if rec.Code != http.StatusOK || decode[webhook.Result](t, rec).OK != true {
		t.Errorf("malformed payload = %d %s, want ok", rec.Code, rec.Body)
	}
}

func TestWebhookSignature(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.Webhook.Secret = "s3cret" })
	body, _ := json.Marshal(map[string]any{"zen": "hi"})

	rec := e.do(t, http.MethodPost, "/webhook", body, withHeader(webhook.HeaderEvent, "ping"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned status = %d, want 401", rec.Code)
	}
	if res := decode[webhook.Result](t, rec); res.OK || res.Reason != "invalid signature" {
		t.Errorf("unsigned body = %+v", res)
	}

	rec = e.do(t, http.MethodPost, "/webhook", body,
		withHeader(webhook.HeaderEvent, "ping"),
		withHeader(webhook.HeaderSignature, "sha256="+webhook.Sign("s3cret", body)))
	if rec.Code != http.StatusOK {
		t.Errorf("signed status = %d, want 200", rec.Code)
	}
}

func strp(s string) *string { return &s }
