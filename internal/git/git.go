// Package git provides the small amount of repository awareness dex needs:
// locating the enclosing repo for in-repo stores, deriving the default
// GitHub repo from the origin remote, and capturing HEAD for commit
// metadata.
package git

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// DiscoverRoot walks up from dir looking for a .git entry (directory or
// worktree file) and returns the containing directory. Returns false when
// dir is not inside a repository.
func DiscoverRoot(dir string) (string, bool) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// remotePatterns match the common GitHub remote URL shapes:
// git@github.com:owner/repo.git, https://github.com/owner/repo(.git),
// ssh://git@github.com/owner/repo.
var remotePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^git@github\.com:([^/]+)/(.+?)(?:\.git)?$`),
	regexp.MustCompile(`^(?:https?|ssh)://(?:[^@/]+@)?github\.com/([^/]+)/(.+?)(?:\.git)?/?$`),
}

// DetectRemote returns the "owner/repo" of the origin remote, shelling out
// to git the same way the rest of the toolchain does. Returns an error when
// there is no origin or it does not point at GitHub.
func DetectRemote(dir string) (string, error) {
	cmd := exec.Command("git", "config", "--get", "remote.origin.url")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("no origin remote: %w", err)
	}
	url := strings.TrimSpace(string(out))
	for _, re := range remotePatterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1] + "/" + m[2], nil
		}
	}
	return "", fmt.Errorf("origin remote %q is not a GitHub URL", url)
}

// Head returns the current commit sha, subject line, and branch. Any field
// that cannot be resolved is empty; err is non-nil only when HEAD itself is
// unreadable.
func Head(dir string) (sha, message, branch string, err error) {
	sha, err = output(dir, "rev-parse", "HEAD")
	if err != nil {
		return "", "", "", fmt.Errorf("resolving HEAD: %w", err)
	}
	message, _ = output(dir, "log", "-1", "--format=%s")
	branch, _ = output(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if branch == "HEAD" { // detached
		branch = ""
	}
	return sha, message, branch, nil
}

func output(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
