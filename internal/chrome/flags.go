// Package chrome resolves local Chromium launch details: executable
// discovery, profile directories, debug ports, and command-line flags.
package chrome

import (
	"fmt"
	"runtime"
)

// Remote debugging listens on loopback only.
const (
	RemoteDebuggingAddress = "127.0.0.1"

	remoteDebuggingPortFlag    = "--remote-debugging-port"
	remoteDebuggingAddressFlag = "--remote-debugging-address"
	userDataDirFlag            = "--user-data-dir"
	windowSizeFlag             = "--window-size"
	proxyServerFlag            = "--proxy-server"
)

// defaultFlags is the stealth baseline applied to every launch. It strips
// first-run chrome, disables background services that phone home, and
// removes the automation fingerprints bot detectors probe for
// (navigator.webdriver via AutomationControlled, the automation infobar).
var defaultFlags = []string{
	"--no-first-run",
	"--no-startup-window",
	"--no-default-browser-check",
	"--disable-popup-blocking",
	"--disable-notifications",
	"--disable-background-networking",
	"--disable-background-timer-throttling",
	"--disable-client-side-phishing-detection",
	"--disable-renderer-backgrounding",
	"--disable-dev-shm-usage",
	"--metrics-recording-only",
	"--no-service-autorun",
	"--password-store=basic",
	"--use-mock-keychain",
	"--disable-blink-features=AutomationControlled",
	"--disable-infobars",
	"--remote-allow-origins=*",
	"--disable-sync",
	"--disable-translate",
	"--disable-logging",
	"--disable-gpu",
	"--disable-software-rasterizer",
	"--disable-hang-monitor",
	"--disable-telemetry",
	"--disable-crash-reporter",
	"--disable-save-password-bubble",
	"--disable-prompt-on-repost",
	"--start-maximized",
	"--disable-backgrounding-occluded-windows",
	"--homepage=about:blank",
	"--disable-ipc-flooding-protection",
	"--disable-session-crashed-bubble",
	"--force-fieldtrials=*BackgroundTracing/default/",
	"--disable-breakpad",
	"--disable-features=IsolateOrigins,site-per-process",
	"--no-pings",
	"--disable-component-update",
	"--disable-default-apps",
	"--disable-domain-reliability",
}

// linuxExtraFlags are appended on Linux hosts, where Chromium refuses to
// run as root without them.
var linuxExtraFlags = []string{"--no-sandbox"}

// DefaultFlags returns a copy of the stealth baseline flag set.
func DefaultFlags() []string {
	out := make([]string, len(defaultFlags))
	copy(out, defaultFlags)
	return out
}

// LaunchOptions carries the per-launch tunables that influence flag
// construction. Zero values mean "not configured".
type LaunchOptions struct {
	WindowWidth  int
	WindowHeight int
	Proxy        string
	ExtraFlags   []string
}

// BuildFlags assembles the full argument list for a browser launch:
// debugging endpoint, profile isolation, the stealth baseline, platform
// extras, then caller options in a fixed order. ExtraFlags go last so
// callers can override anything earlier.
func BuildFlags(opts LaunchOptions, port int, profileDir string) []string {
	return buildFlags(runtime.GOOS, opts, port, profileDir)
}

func buildFlags(goos string, opts LaunchOptions, port int, profileDir string) []string {
	flags := []string{
		fmt.Sprintf("%s=%d", remoteDebuggingPortFlag, port),
		fmt.Sprintf("%s=%s", remoteDebuggingAddressFlag, RemoteDebuggingAddress),
		fmt.Sprintf("%s=%s", userDataDirFlag, profileDir),
	}
	flags = append(flags, defaultFlags...)

	if goos == "linux" {
		flags = append(flags, linuxExtraFlags...)
	}

	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		flags = append(flags, fmt.Sprintf("%s=%d,%d", windowSizeFlag, opts.WindowWidth, opts.WindowHeight))
	}

	if opts.Proxy != "" {
		flags = append(flags, fmt.Sprintf("%s=%s", proxyServerFlag, opts.Proxy))
	}

	flags = append(flags, opts.ExtraFlags...)

	return flags
}
