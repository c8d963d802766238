package github

import "time"

// Issue is the subset of the GitHub issue payload dex consumes.
type Issue struct {
	ID          int        `json:"id"`     // global id
	Number      int        `json:"number"` // repository-scoped
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"` // "open" or "closed"
	Labels      []Label    `json:"labels"`
	HTMLURL     string     `json:"html_url"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	PullRequest *PullRef   `json:"pull_request,omitempty"` // non-nil for PRs
}

// PullRef distinguishes pull requests in the issues endpoint.
type PullRef struct {
	URL string `json:"url,omitempty"`
}

// Label is a GitHub label.
type Label struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name"`
}

// LabelNames extracts the name strings from a label slice.
func LabelNames(labels []Label) []string {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}
	return names
}

// IssueRequest is the create/update payload. Pointer fields are omitted
// when nil so PATCH only touches what changed.
type IssueRequest struct {
	Title  *string  `json:"title,omitempty"`
	Body   *string  `json:"body,omitempty"`
	State  *string  `json:"state,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

func strPtr(s string) *string { return &s }
