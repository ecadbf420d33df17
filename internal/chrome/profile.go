package chrome

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Profile directories always live under ProfileBaseDir so a crashed run
// never litters the caller's tree and cleanup stays a single rm away.
const (
	ProfileBaseDir = "/tmp"
	ProfilePrefix  = "spectrum-profile"
)

// ResolveProfileDir returns the user-data directory for an instance,
// creating it if needed. Configured paths outside the base are re-rooted
// under it by their final path element; without a configured path the
// instance gets ProfileBaseDir/ProfilePrefix-<id>.
func ResolveProfileDir(configured, instanceID string) (string, error) {
	dir := profilePath(configured, instanceID)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create profile dir %s: %w", dir, err)
	}

	return dir, nil
}

func profilePath(configured, instanceID string) string {
	if configured == "" {
		return filepath.Join(ProfileBaseDir, fmt.Sprintf("%s-%s", ProfilePrefix, instanceID))
	}

	candidate := filepath.Clean(configured)
	if candidate == ProfileBaseDir || strings.HasPrefix(candidate, ProfileBaseDir+string(filepath.Separator)) {
		return candidate
	}

	return filepath.Join(ProfileBaseDir, filepath.Base(candidate))
}
