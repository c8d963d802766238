package storage

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kschrader/dex/internal/config"
	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/git"
)

// DexDirName is the per-repo store directory name.
const DexDirName = ".dex"

var keySanitizer = regexp.MustCompile(`[^0-9a-zA-Z._-]+`)

// ResolveDir maps (mode, working dir) to the store directory.
//
// In-repo mode places the store at <repo root>/.dex; outside a repository
// it falls back to the centralized layout. Centralized mode keys a
// subdirectory of the central home by project name plus a short hash of the
// canonical path, so renamed checkouts of different projects never collide.
func ResolveDir(mode, cwd string) (string, error) {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return "", dexerr.Wrap(dexerr.StorageIO, err, "resolving working directory")
	}

	root, inRepo := git.DiscoverRoot(abs)
	if mode == config.ModeInRepo && inRepo {
		return filepath.Join(root, DexDirName), nil
	}

	base := abs
	if inRepo {
		base = root
	}
	home, err := CentralHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "stores", ProjectKey(base)), nil
}

// CentralHome returns the central store directory under the user's home.
func CentralHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", dexerr.Wrap(dexerr.StorageIO, err, "resolving home directory")
	}
	return filepath.Join(home, DexDirName), nil
}

// ProjectKey derives a deterministic, filesystem-safe key for a project
// path: its sanitized base name plus the first 8 hex chars of the path's
// sha256.
func ProjectKey(path string) string {
	canonical := filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(canonical); err == nil {
		canonical = resolved
	}
	name := keySanitizer.ReplaceAllString(filepath.Base(canonical), "-")
	name = strings.Trim(name, "-")
	if name == "" || name == "." {
		name = "project"
	}
	sum := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("%s-%x", name, sum[:4])
}
