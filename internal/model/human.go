// human readable paths shown to clients
package model

import (
	"os"
	"path/filepath"
	"strings"
)

// AliasPath replaces the home directory prefix of path with ~.
// Paths outside of home are returned unchanged.
func AliasPath(path, home string) string {
	if home == "" || path == "" {
		return path
	}
	home = filepath.Clean(home)
	path = filepath.Clean(path)
	if path == home {
		return "~"
	}
	rel, ok := strings.CutPrefix(path, home+string(filepath.Separator))
	if !ok {
		return path
	}
	return "~/" + filepath.ToSlash(rel)
}

// ResolveAliasedPath is the inverse of AliasPath.
func ResolveAliasedPath(path, home string) string {
	switch {
	case path == "~":
		return home
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(home, filepath.FromSlash(path[2:]))
	default:
		return path
	}
}

// UserHome returns the home directory or empty string if it can't be determined.
func UserHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}
