package github

import (
	"regexp"
	"strconv"

	"github.com/kschrader/dex/internal/dexerr"
)

// Issue reference forms accepted by import: "#42", "42", "owner/repo#42",
// and full issue URLs.
var (
	shortRefRe = regexp.MustCompile(`^#?(\d+)$`)
	repoRefRe  = regexp.MustCompile(`^([^/\s#]+/[^/\s#]+)#(\d+)$`)
	urlRefRe   = regexp.MustCompile(`^https?://github\.com/([^/\s]+/[^/\s]+)/issues/(\d+)$`)
)

// ParseIssueRef resolves an issue reference to (repo, number). Short forms
// use defaultRepo, which may be empty only for the full forms.
func ParseIssueRef(ref, defaultRepo string) (string, int, error) {
	if m := shortRefRe.FindStringSubmatch(ref); m != nil {
		if defaultRepo == "" {
			return "", 0, dexerr.New(dexerr.ValidationFailed, "issue reference %q needs a repo", ref).
				WithHint("Use owner/repo#%s or configure sync.github.repo", m[1])
		}
		n, _ := strconv.Atoi(m[1])
		return defaultRepo, n, nil
	}
	if m := repoRefRe.FindStringSubmatch(ref); m != nil {
		n, _ := strconv.Atoi(m[2])
		return m[1], n, nil
	}
	if m := urlRefRe.FindStringSubmatch(ref); m != nil {
		n, _ := strconv.Atoi(m[2])
		return m[1], n, nil
	}
	return "", 0, dexerr.New(dexerr.ValidationFailed, "unrecognized issue reference %q", ref).
		WithHint("Use #N, owner/repo#N, or an issue URL")
}
