package task

// reviewCycle holds the statuses webhook events drive a task through while
// its branch is under review.
var reviewCycle = map[Status]bool{
	StatusPendingReview:    true,
	StatusReviewPassed:     true,
	StatusChangesRequested: true,
}

// CanTransition reports whether an event-driven write may move a task from
// one status to another. Closed is terminal for webhook events. Any other
// status, including custom ones set through the API, may enter the review
// cycle or be closed.
func CanTransition(from, to Status) bool {
	if from == to || from == StatusClosed {
		return false
	}
	return to == StatusClosed || reviewCycle[to]
}
