package chrome

import (
	"os"
	"runtime"

	"github.com/GrindLabs/spectrum/internal/errors"
)

var darwinPaths = []string{
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
}

var linuxPaths = []string{
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
}

// DefaultExecutablePaths returns the well-known install locations for the
// current platform. Unknown platforms get an empty list.
func DefaultExecutablePaths() []string {
	return defaultExecutablePaths(runtime.GOOS)
}

func defaultExecutablePaths(goos string) []string {
	switch goos {
	case "darwin":
		return append([]string(nil), darwinPaths...)
	case "linux":
		return append([]string(nil), linuxPaths...)
	default:
		return nil
	}
}

// ResolveExecutable returns the browser executable to launch. A configured
// path always wins and is returned unchecked; otherwise the first existing
// well-known path is used.
func ResolveExecutable(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return firstExisting(DefaultExecutablePaths())
}

func firstExisting(candidates []string) (string, error) {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.NewNotFoundError("launch", "chrome executable not found")
}
