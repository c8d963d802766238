// Package github implements the issue mirror: a REST client, the
// body-embedded metadata codec, hierarchical issue-body rendering and
// parsing, and the sync engine that maps a local task lineage onto a
// single remote issue.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kschrader/dex/internal/dexerr"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// PageSize is the number of issues fetched per page when building the
	// identification cache.
	PageSize = 100

	// MaxPages caps cache pagination against runaway loops.
	MaxPages = 1000
)

// Client is a minimal GitHub Issues REST client. There is no retry logic
// beyond what the HTTP transport does natively; errors are classified into
// the dexerr remote kinds and surfaced to the caller.
type Client struct {
	Token      string
	Owner      string
	Repo       string // repository name
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for "owner/repo".
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:   token,
		Owner:   owner,
		Repo:    repo,
		BaseURL: DefaultAPIEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithBaseURL returns a copy pointed at a different endpoint (tests,
// GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	out := *c
	out.BaseURL = baseURL
	return &out
}

// RepoPath returns the "owner/repo" path segment.
func (c *Client) RepoPath() string {
	return c.Owner + "/" + c.Repo
}

func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}
	return u
}

// doRequest performs one authenticated request and classifies failures:
// 401 is github_auth, 403 with exhausted rate-limit headers (and 429) is
// github_rate_limit, 404 is not_found, 5xx and transport errors are
// github_transport.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, dexerr.Wrap(dexerr.Internal, err, "encoding request body")
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, dexerr.Wrap(dexerr.Internal, err, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, dexerr.Wrap(dexerr.GitHubTransport, err, "%s %s", method, urlStr)
	}

	const maxResponseSize = 50 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	_ = resp.Body.Close()
	if err != nil {
		return nil, dexerr.Wrap(dexerr.GitHubTransport, err, "reading response from %s", urlStr)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, dexerr.New(dexerr.GitHubAuth, "github: authentication failed (status 401)").
			WithHint("Check the token in $%s or run 'gh auth login'", "GITHUB_TOKEN")
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		reset := resp.Header.Get("X-RateLimit-Reset")
		return nil, dexerr.New(dexerr.GitHubRateLimit, "github: rate limited (reset %s)", reset)
	case resp.StatusCode == http.StatusNotFound:
		return nil, dexerr.New(dexerr.NotFound, "github: %s not found", urlStr)
	default:
		return nil, dexerr.New(dexerr.GitHubTransport, "github: %s (status %d)", truncate(respBody, 200), resp.StatusCode)
	}
}

// ListLabeledIssues fetches every issue carrying the given label,
// paginating 100 per page until an empty page. Pull requests are filtered
// out (the issues endpoint returns both).
func (c *Client) ListLabeledIssues(ctx context.Context, label string) ([]Issue, error) {
	var all []Issue
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if page > MaxPages {
			return nil, dexerr.New(dexerr.GitHubTransport, "github: pagination exceeded %d pages", MaxPages)
		}
		urlStr := c.buildURL("/repos/"+c.RepoPath()+"/issues", map[string]string{
			"labels":   label,
			"state":    "all",
			"per_page": strconv.Itoa(PageSize),
			"page":     strconv.Itoa(page),
		})
		respBody, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		var issues []Issue
		if err := json.Unmarshal(respBody, &issues); err != nil {
			return nil, dexerr.Wrap(dexerr.GitHubTransport, err, "parsing issues response")
		}
		if len(issues) == 0 {
			return all, nil
		}
		for i := range issues {
			if issues[i].PullRequest == nil {
				all = append(all, issues[i])
			}
		}
	}
}

// GetIssue fetches a single issue by number.
func (c *Client) GetIssue(ctx context.Context, number int) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.RepoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, dexerr.Wrap(dexerr.GitHubTransport, err, "parsing issue response")
	}
	return &issue, nil
}

// CreateIssue opens a new issue.
func (c *Client) CreateIssue(ctx context.Context, req IssueRequest) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.RepoPath()+"/issues", nil)
	respBody, err := c.doRequest(ctx, http.MethodPost, urlStr, req)
	if err != nil {
		return nil, err
	}
	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, dexerr.Wrap(dexerr.GitHubTransport, err, "parsing create response")
	}
	return &issue, nil
}

// UpdateIssue patches an existing issue.
func (c *Client) UpdateIssue(ctx context.Context, number int, req IssueRequest) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.RepoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, err := c.doRequest(ctx, http.MethodPatch, urlStr, req)
	if err != nil {
		return nil, err
	}
	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, dexerr.Wrap(dexerr.GitHubTransport, err, "parsing update response")
	}
	return &issue, nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
