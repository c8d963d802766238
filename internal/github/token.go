package github

import (
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/kschrader/dex/internal/dexerr"
)

// TokenSource resolves the GitHub token lazily, once per process: first
// from the configured environment variable, then from the gh CLI.
type TokenSource struct {
	// EnvVar is the environment variable to read first (GITHUB_TOKEN by
	// default at the config layer).
	EnvVar string

	once  sync.Once
	token string
	err   error
}

// Token returns the resolved token, invoking `gh auth token` at most once
// when the environment variable is empty.
func (ts *TokenSource) Token() (string, error) {
	ts.once.Do(func() {
		if ts.EnvVar != "" {
			if v := strings.TrimSpace(os.Getenv(ts.EnvVar)); v != "" {
				ts.token = v
				return
			}
		}
		out, err := exec.Command("gh", "auth", "token").Output()
		if err == nil {
			if v := strings.TrimSpace(string(out)); v != "" {
				ts.token = v
				return
			}
		}
		ts.err = dexerr.New(dexerr.GitHubAuth, "no GitHub token available").
			WithHint("Set $%s or run 'gh auth login'", ts.EnvVar)
	})
	return ts.token, ts.err
}
