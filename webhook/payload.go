package webhook

// Only the fields the processor reads are declared. GitHub sends far more.

type pushPayload struct {
	Ref     string   `json:"ref"`
	Commits []commit `json:"commits"`
}

type commit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type pullRequestPayload struct {
	Action      string      `json:"action"`
	PullRequest pullRequest `json:"pull_request"`
}

type pullRequest struct {
	Merged bool    `json:"merged"`
	Body   *string `json:"body"`
	Head   gitRef  `json:"head"`
	Base   gitRef  `json:"base"`
}

type gitRef struct {
	Ref string `json:"ref"`
}

type reviewPayload struct {
	Action      string      `json:"action"`
	Review      review      `json:"review"`
	PullRequest pullRequest `json:"pull_request"`
}

type review struct {
	State string `json:"state"`
	User  struct {
		Login string `json:"login"`
	} `json:"user"`
}

type createPayload struct {
	Ref     string `json:"ref"`
	RefType string `json:"ref_type"`
}
