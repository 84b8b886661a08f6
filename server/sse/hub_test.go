package sse

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taskforge/taskforge/comms"
)

func TestFrame(t *testing.T) {
	got := string(frame("task.updated", "abc", []byte("{\"a\":1}\n{\"b\":2}")))
	want := "event: task.updated\nid: abc\ndata: {\"a\":1}\ndata: {\"b\":2}\n\n"
	if got != want {
		t.Errorf("frame = %q, want %q", got, want)
	}
}

func TestHub_StreamsBusEvents(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	bus := comms.NewInMemoryBus()
	detach := hub.Attach(bus)
	defer detach()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		t.Helper()
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if line == "\n" {
				return strings.Join(lines, "")
			}
			lines = append(lines, line)
		}
	}

	if first := readEvent(); !strings.HasPrefix(first, "event: connected\n") {
		t.Fatalf("first event = %q, want connected", first)
	}

	// The client is registered before the connected frame is written.
	if hub.Clients() != 1 {
		t.Fatalf("Clients = %d, want 1", hub.Clients())
	}
	if err := bus.Publish(ctx, &comms.Event{Type: comms.TaskUpdated, TaskID: 9}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ev := readEvent()
	if !strings.Contains(ev, "event: task.updated\n") || !strings.Contains(ev, `"task_id":9`) {
		t.Errorf("event = %q, want task.updated for task 9", ev)
	}
}

func TestHub_DropsForSlowClient(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := &client{id: "slow", ch: make(chan []byte, 1)}
	hub.clients[c] = struct{}{}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Broadcast(&comms.Event{Type: comms.TaskUpdated, TaskID: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a slow client")
	}
	if len(c.ch) != 1 {
		t.Errorf("buffered = %d, want 1", len(c.ch))
	}
}
