package task

import "testing"

func TestCanTransition(t *testing.T) {
	review := []Status{StatusPendingReview, StatusReviewPassed, StatusChangesRequested}
	custom := []Status{"new", "in_progress", "done"}
	sources := append(append([]Status{StatusOpen}, review...), custom...)

	for _, to := range review {
		for _, from := range sources {
			if from == to {
				continue
			}
			if !CanTransition(from, to) {
				t.Errorf("CanTransition(%q, %q) = false, want true", from, to)
			}
		}
		if CanTransition(StatusClosed, to) {
			t.Errorf("CanTransition(closed, %q) = true, want false", to)
		}
		if CanTransition(to, to) {
			t.Errorf("CanTransition(%q, %q) = true, want false", to, to)
		}
	}

	for _, from := range sources {
		if !CanTransition(from, StatusClosed) {
			t.Errorf("CanTransition(%q, closed) = false, want true", from)
		}
	}

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusClosed, StatusClosed, false},
		{StatusOpen, StatusOpen, false},
		{StatusPendingReview, StatusOpen, false},
		{StatusPendingReview, "in_progress", false},
		{"in_progress", StatusPendingReview, true},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
