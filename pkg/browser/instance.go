// Package browser drives a locally-launched Chromium-family browser over
// its remote debugging interface to fetch rendered page content. Each
// Instance owns one browser subprocess with its own debugging port and
// profile directory; a pluggable strategy pipeline hooks into navigation
// to perform reconnaissance and anti-bot evasion.
package browser

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/GrindLabs/spectrum/internal/cdp"
	"github.com/GrindLabs/spectrum/internal/chrome"
	"github.com/GrindLabs/spectrum/internal/errors"
	"github.com/GrindLabs/spectrum/internal/logger"
	"github.com/GrindLabs/spectrum/internal/metrics"
)

// Endpoint returns the CDP HTTP endpoint URL for a debugging port.
func Endpoint(port int) string {
	return fmt.Sprintf("http://%s:%d", chrome.RemoteDebuggingAddress, port)
}

// Instance is a browser instance launched via subprocess. Construction
// resolves the executable, profile directory, port, and strategy list
// eagerly; the subprocess itself is spawned lazily by Start or Goto.
//
// An Instance is not safe for concurrent use: at most one of Goto,
// Content, or Close may be in flight at a time.
type Instance struct {
	config     *Config
	id         string
	profileDir string
	execPath   string
	port       int

	process  *exec.Cmd
	procDone chan struct{}

	targetID   string
	currentURL string

	log     *logger.Logger
	metrics *metrics.Collector
}

// New builds an instance from the default configuration modified by the
// given options. The caller's strategies and overrides are merged over
// the defaults here, once; the resulting config is private to the
// instance and immutable from its point of view.
func New(opts ...Option) (*Instance, error) {
	inst := &Instance{
		config:  DefaultConfig(),
		log:     logger.Global(),
		metrics: metrics.New(),
	}

	for _, opt := range opts {
		if err := opt(inst); err != nil {
			return nil, err
		}
	}

	if err := inst.config.Validate(); err != nil {
		return nil, errors.NewValidationError("new_instance", err.Error())
	}

	inst.id = newInstanceID()

	profileDir, err := chrome.ResolveProfileDir(inst.config.ProfileDir, inst.id)
	if err != nil {
		return nil, errors.Categorize(err, "")
	}
	inst.profileDir = profileDir

	execPath, err := chrome.ResolveExecutable(inst.config.ExecutablePath)
	if err != nil {
		return nil, err
	}
	inst.execPath = execPath

	inst.port = inst.config.RemoteDebuggingPort
	if inst.port == 0 {
		port, err := chrome.FreePort()
		if err != nil {
			return nil, errors.Categorize(err, "")
		}
		inst.port = port
	}

	merged := MergeStrategies(DefaultStrategies(), inst.config.StrategyOverrides, inst.config.Strategies)

	cfg := inst.config.Clone()
	cfg.RemoteDebuggingPort = inst.port
	cfg.ProfileDir = inst.profileDir
	cfg.ExecutablePath = inst.execPath
	cfg.Strategies = merged
	cfg.StrategyOverrides = nil
	inst.config = cfg

	inst.log = inst.log.WithComponent("instance").WithInstance(inst.id)

	return inst, nil
}

func newInstanceID() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:4])
}

// ID returns the instance's short random identifier.
func (i *Instance) ID() string { return i.id }

// Port returns the bound remote debugging port.
func (i *Instance) Port() int { return i.port }

// ProfileDir returns the resolved profile directory.
func (i *Instance) ProfileDir() string { return i.profileDir }

// ExecutablePath returns the resolved browser executable.
func (i *Instance) ExecutablePath() string { return i.execPath }

// TargetID returns the current navigation target id, if any.
func (i *Instance) TargetID() string { return i.targetID }

// CurrentURL returns the most recently navigated URL, if any.
func (i *Instance) CurrentURL() string { return i.currentURL }

// Config returns the instance's effective configuration.
func (i *Instance) Config() *Config { return i.config }

// Metrics returns the instance's metrics collector.
func (i *Instance) Metrics() *metrics.Collector { return i.metrics }

// MetricsSnapshot returns a point-in-time snapshot of the instance's metrics.
func (i *Instance) MetricsSnapshot() *metrics.Snapshot {
	return i.metrics.Snapshot()
}

// Endpoint returns the instance's CDP HTTP endpoint URL.
func (i *Instance) Endpoint() string {
	return Endpoint(i.port)
}

// Running reports whether the browser subprocess is alive.
func (i *Instance) Running() bool {
	if i.process == nil {
		return false
	}
	select {
	case <-i.procDone:
		return false
	default:
		return true
	}
}

// Start spawns the browser process if it is not already running. All
// standard I/O streams of the child are suppressed.
func (i *Instance) Start() error {
	if i.Running() {
		return nil
	}

	launch := chrome.LaunchOptions{
		Proxy:      i.config.Proxy,
		ExtraFlags: i.config.ExtraFlags,
	}
	launch.WindowWidth, launch.WindowHeight = i.config.windowSize()

	cmd := exec.Command(i.execPath, chrome.BuildFlags(launch, i.port, i.profileDir)...)

	if err := cmd.Start(); err != nil {
		return errors.New(errors.Unknown, "", "start", "failed to launch browser process", err)
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	i.process = cmd
	i.procDone = done
	i.log.LifecycleEvent(i.id, "started")

	return nil
}

// Goto opens a new navigation target for the URL and records it as the
// instance's current target. Before-navigation hooks run once the CDP
// endpoint is reachable; after-navigation hooks run once the target id is
// recorded. Returns the new target id.
func (i *Instance) Goto(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", errors.NewValidationError("goto", "url is required")
	}

	i.metrics.RecordNavigation()
	started := time.Now()

	targetID, err := i.navigate(ctx, url)
	if err != nil {
		i.metrics.RecordError(errors.GetKind(err).String())
		return "", err
	}

	i.metrics.RecordNavigationComplete()
	i.metrics.RecordResponseTime(time.Since(started))
	return targetID, nil
}

func (i *Instance) navigate(ctx context.Context, url string) (string, error) {
	if err := i.Start(); err != nil {
		return "", err
	}
	if err := i.waitForCDP(ctx); err != nil {
		return "", err
	}

	if err := RunBeforeNavigation(ctx, i.config.Strategies, i.navigationContext(url, "")); err != nil {
		return "", err
	}

	wsURL, err := cdp.BrowserWebSocketURL(ctx, i.Endpoint())
	if err != nil {
		return "", err
	}

	result, err := cdp.Invoke(ctx, wsURL, "Target.createTarget",
		map[string]any{"url": url},
		cdp.WithTimeout(i.config.CommandTimeout), cdp.WithLogger(i.log))
	if err != nil {
		return "", err
	}

	i.targetID = result.Get("targetId").Str()
	i.currentURL = url
	i.log.WithURL(url).WithTarget(i.targetID).Info("Navigation target created")

	if err := RunAfterNavigation(ctx, i.config.Strategies, i.navigationContext(url, i.targetID)); err != nil {
		return "", err
	}

	return i.targetID, nil
}

// Content waits for render readiness and returns the outer HTML of the
// current target's document.
func (i *Instance) Content(ctx context.Context) (string, error) {
	if i.targetID == "" {
		return "", errors.NewStateError("content", "no current target; call Goto first")
	}

	started := time.Now()

	html, err := i.fetchContent(ctx)
	if err != nil {
		i.metrics.RecordError(errors.GetKind(err).String())
		return "", err
	}

	i.metrics.RecordContentFetch()
	i.metrics.RecordBytes(int64(len(html)))
	i.metrics.RecordResponseTime(time.Since(started))
	return html, nil
}

func (i *Instance) fetchContent(ctx context.Context) (string, error) {
	if err := i.Start(); err != nil {
		return "", err
	}
	if err := i.waitForCDP(ctx); err != nil {
		return "", err
	}

	wsURL, err := cdp.TargetWebSocketURL(ctx, i.Endpoint(), i.targetID)
	if err != nil {
		return "", err
	}

	if err := i.waitDOMReady(ctx, wsURL, i.currentURL); err != nil {
		return "", err
	}
	if err := i.waitContentReady(ctx, wsURL, i.currentURL); err != nil {
		return "", err
	}

	doc, err := cdp.Invoke(ctx, wsURL, "DOM.getDocument",
		map[string]any{"depth": 0, "pierce": true},
		cdp.WithTimeout(i.config.CommandTimeout), cdp.WithLogger(i.log))
	if err != nil {
		return "", err
	}

	nodeID := doc.Get("root.nodeId").Int()
	if nodeID == 0 {
		return "", errors.NewProtocolError(i.currentURL, "content", "missing document node id")
	}

	result, err := cdp.Invoke(ctx, wsURL, "DOM.getOuterHTML",
		map[string]any{"nodeId": nodeID},
		cdp.WithTimeout(i.config.CommandTimeout), cdp.WithLogger(i.log))
	if err != nil {
		return "", err
	}

	if !result.Has("outerHTML") {
		return "", errors.NewProtocolError(i.currentURL, "content", "missing page content result")
	}

	return result.Get("outerHTML").Str(), nil
}

// Version fetches the browser's version metadata from the CDP endpoint.
func (i *Instance) Version(ctx context.Context) (*cdp.Version, error) {
	if err := i.Start(); err != nil {
		return nil, err
	}
	if err := i.waitForCDP(ctx); err != nil {
		return nil, err
	}
	return cdp.FetchVersion(ctx, i.Endpoint())
}

// Close terminates the browser process: terminate first, then kill after
// the shutdown grace period. Safe to call repeatedly and on an instance
// that never started.
func (i *Instance) Close() error {
	if i.process == nil {
		return nil
	}

	if i.Running() {
		i.process.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-i.procDone:
	case <-time.After(i.config.ShutdownGrace):
		i.process.Process.Kill()
		<-i.procDone
	}

	i.log.LifecycleEvent(i.id, "closed")
	return nil
}

func (i *Instance) navigationContext(url, targetID string) *NavigationContext {
	return &NavigationContext{
		URL:        url,
		InstanceID: i.id,
		TargetID:   targetID,
		Config:     i.config,
		Metrics:    i.metrics,
	}
}

// waitForCDP polls the version endpoint until it answers or the startup
// deadline elapses. The timeout error wraps the last transport error seen.
func (i *Instance) waitForCDP(ctx context.Context) error {
	deadline := time.Now().Add(i.config.StartupTimeout)
	var lastErr error

	for time.Now().Before(deadline) {
		err := cdp.Probe(ctx, i.Endpoint())
		if err == nil {
			return nil
		}
		lastErr = err

		if err := sleepContext(ctx, i.config.PollInterval); err != nil {
			return err
		}
	}

	return errors.NewTimeoutError(i.Endpoint(), "wait_for_cdp", "CDP endpoint did not become available", lastErr)
}

// waitDOMReady waits until the target's document has a usable URL. When
// the document is not ready it falls back to waiting for the page load
// event, bounded by the remaining time; a timeout there degrades to
// proceeding anyway.
func (i *Instance) waitDOMReady(ctx context.Context, wsURL, expectedURL string) error {
	deadline := time.Now().Add(i.config.PageLoadTimeout)

	for time.Now().Before(deadline) {
		ready, err := i.documentURLReady(ctx, wsURL, expectedURL)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}

		if err := i.waitForLoadEvent(ctx, wsURL, remaining); err != nil {
			if errors.IsTimeout(err) {
				return nil
			}
			return err
		}
	}

	return nil
}

// waitContentReady polls the document URL until it matches the expected
// URL. No expected URL means nothing to wait for; reaching the deadline
// degrades to proceeding anyway.
func (i *Instance) waitContentReady(ctx context.Context, wsURL, expectedURL string) error {
	if expectedURL == "" {
		return nil
	}

	deadline := time.Now().Add(i.config.PageLoadTimeout)

	for time.Now().Before(deadline) {
		documentURL, err := i.documentURL(ctx, wsURL)
		if err != nil {
			return err
		}

		if strings.HasPrefix(documentURL, expectedURL) && documentURL != "about:blank" {
			return nil
		}

		if err := sleepContext(ctx, i.config.PollInterval); err != nil {
			return err
		}
	}

	return nil
}

func (i *Instance) documentURL(ctx context.Context, wsURL string) (string, error) {
	doc, err := cdp.Invoke(ctx, wsURL, "DOM.getDocument",
		map[string]any{"depth": 0, "pierce": true},
		cdp.WithTimeout(i.config.CommandTimeout), cdp.WithLogger(i.log))
	if err != nil {
		return "", err
	}
	return doc.Get("root.documentURL").Str(), nil
}

func (i *Instance) documentURLReady(ctx context.Context, wsURL, expectedURL string) (bool, error) {
	documentURL, err := i.documentURL(ctx, wsURL)
	if err != nil {
		return false, err
	}

	if documentURL == "" || documentURL == "about:blank" {
		return false, nil
	}
	if expectedURL != "" && !strings.HasPrefix(documentURL, expectedURL) {
		return false, nil
	}
	return true, nil
}

// waitForLoadEvent enables the Page domain and blocks until the load
// event fires, bounded by the given timeout.
func (i *Instance) waitForLoadEvent(ctx context.Context, wsURL string, timeout time.Duration) error {
	if timeout <= 0 {
		return errors.NewTimeoutError(i.currentURL, "wait_for_load_event", "timed out waiting for Page.loadEventFired", nil)
	}

	waitCtx, cancel := context.WithDeadline(ctx, time.Now().Add(timeout))
	defer cancel()

	client, err := cdp.Dial(waitCtx, wsURL, cdp.WithTimeout(timeout), cdp.WithLogger(i.log))
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.Call(waitCtx, "Page.enable", nil); err != nil {
		return err
	}

	_, err = client.WaitEvent(waitCtx, "Page.loadEventFired")
	return err
}

// sleepContext sleeps for the duration or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return errors.Categorize(ctx.Err(), "")
	case <-timer.C:
		return nil
	}
}
