package browser

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GrindLabs/spectrum/internal/errors"
)

// fakeCDP emulates a browser's remote debugging endpoint: the /json HTTP
// surface plus websocket command handling for the browser and page
// sessions. Commands without a registered handler get canned replies.
type fakeCDP struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	docURL   string
	pageHTML string
	calls    []string
	handlers map[string]func(params map[string]any) map[string]any
}

func newFakeCDP(t *testing.T) *fakeCDP {
	t.Helper()

	f := &fakeCDP{
		t:        t,
		pageHTML: "<html><head><title>Stub</title></head><body>ok</body></html>",
		handlers: make(map[string]func(params map[string]any) map[string]any),
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"Browser":              "HeadlessChrome/123.0.0.0",
			"webSocketDebuggerUrl": f.wsURL("/devtools/browser/stub"),
		})
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"id":                   "TARGET-1",
				"type":                 "page",
				"url":                  f.documentURL(),
				"webSocketDebuggerUrl": f.wsURL("/devtools/page/TARGET-1"),
			},
		})
	})
	mux.HandleFunc("/devtools/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		f.serve(conn)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeCDP) port() int {
	return f.srv.Listener.Addr().(*net.TCPAddr).Port
}

func (f *fakeCDP) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + path
}

func (f *fakeCDP) serve(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req struct {
			ID     int            `json:"id"`
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			f.t.Errorf("malformed command frame %s: %v", raw, err)
			return
		}

		f.mu.Lock()
		f.calls = append(f.calls, req.Method)
		handler := f.handlers[req.Method]
		f.mu.Unlock()

		var result map[string]any
		if handler != nil {
			result = handler(req.Params)
		} else {
			result = f.defaultResult(req.Method, req.Params)
		}

		conn.WriteJSON(map[string]any{"id": req.ID, "result": result})

		if req.Method == "Page.enable" {
			conn.WriteJSON(map[string]any{"method": "Page.loadEventFired", "params": map[string]any{}})
		}
	}
}

func (f *fakeCDP) defaultResult(method string, params map[string]any) map[string]any {
	switch method {
	case "Target.createTarget":
		if url, ok := params["url"].(string); ok {
			f.setDocumentURL(url)
		}
		return map[string]any{"targetId": "TARGET-1"}
	case "DOM.getDocument":
		return map[string]any{"root": map[string]any{"nodeId": 1, "documentURL": f.documentURL()}}
	case "DOM.getOuterHTML":
		return map[string]any{"outerHTML": f.html()}
	default:
		return map[string]any{}
	}
}

func (f *fakeCDP) handle(method string, fn func(params map[string]any) map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = fn
}

func (f *fakeCDP) documentURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docURL
}

func (f *fakeCDP) html() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageHTML
}

func (f *fakeCDP) setHTML(html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageHTML = html
}

func (f *fakeCDP) setDocumentURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docURL = url
}

func (f *fakeCDP) methodCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, call := range f.calls {
		if call == method {
			count++
		}
	}
	return count
}

// fakeBrowserPath returns a binary that accepts any flags and exits
// cleanly, standing in for the real browser executable.
func fakeBrowserPath(t *testing.T) string {
	t.Helper()

	for _, candidate := range []string{"/bin/true", "/usr/bin/true"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if path, err := exec.LookPath("true"); err == nil {
		return path
	}

	t.Skip("no 'true' binary available to stand in for the browser")
	return ""
}

// stubOptions wires an instance to the fake endpoint with short timeouts
// and the default strategies removed.
func stubOptions(t *testing.T, f *fakeCDP) []Option {
	t.Helper()

	return []Option{
		WithExecutablePath(fakeBrowserPath(t)),
		WithProfileDir(t.TempDir()),
		WithDebuggingPort(f.port()),
		WithStartupTimeout(2 * time.Second),
		WithPollInterval(10 * time.Millisecond),
		WithCommandTimeout(2 * time.Second),
		WithPageLoadTimeout(time.Second),
		WithShutdownGrace(100 * time.Millisecond),
		WithStrategyOverride("recon", nil),
		WithStrategyOverride("perimeterx", nil),
	}
}

func newTestInstance(t *testing.T, f *fakeCDP, extra ...Option) *Instance {
	t.Helper()

	inst, err := New(append(stubOptions(t, f), extra...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { inst.Close() })

	return inst
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_ResolvesPortAndStrategies(t *testing.T) {
	inst, err := New(
		WithExecutablePath(fakeBrowserPath(t)),
		WithProfileDir(t.TempDir()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if len(inst.ID()) != 8 {
		t.Errorf("ID() = %q, want 8 hex characters", inst.ID())
	}
	if inst.Port() == 0 {
		t.Error("Port() should be resolved to a concrete port")
	}
	if !strings.HasPrefix(inst.Endpoint(), "http://127.0.0.1:") {
		t.Errorf("Endpoint() = %q, want loopback HTTP URL", inst.Endpoint())
	}
	if inst.ProfileDir() == "" {
		t.Error("ProfileDir() should be resolved")
	}
	if inst.Running() {
		t.Error("instance should not be running before Start")
	}

	config := inst.Config()
	if !sameNames(config.Strategies, "recon", "perimeterx") {
		t.Errorf("merged strategies = %v, want [recon perimeterx]", strategyNames(config.Strategies))
	}
	if config.StrategyOverrides != nil {
		t.Error("overrides should be consumed during construction")
	}
	if config.RemoteDebuggingPort != inst.Port() {
		t.Errorf("config port = %d, want %d", config.RemoteDebuggingPort, inst.Port())
	}
}

func TestNew_AppliesStrategyOverrides(t *testing.T) {
	custom := &fakeStrategy{name: "custom"}
	inst, err := New(
		WithExecutablePath(fakeBrowserPath(t)),
		WithProfileDir(t.TempDir()),
		WithStrategyOverride("perimeterx", nil),
		WithStrategies(custom),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !sameNames(inst.Config().Strategies, "recon", "custom") {
		t.Errorf("strategies = %v, want [recon custom]", strategyNames(inst.Config().Strategies))
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(
		WithExecutablePath(fakeBrowserPath(t)),
		WithDebuggingPort(-1),
	)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.IsValidation(err) {
		t.Errorf("kind = %v, want Validation", errors.GetKind(err))
	}
}

// =============================================================================
// Goto Tests
// =============================================================================

func TestInstance_Goto_CreatesTarget(t *testing.T) {
	f := newFakeCDP(t)
	inst := newTestInstance(t, f)

	pageURL := "https://example.com/login"
	targetID, err := inst.Goto(context.Background(), pageURL)
	if err != nil {
		t.Fatalf("Goto() error = %v", err)
	}

	if targetID != "TARGET-1" {
		t.Errorf("target id = %q, want TARGET-1", targetID)
	}
	if inst.TargetID() != "TARGET-1" {
		t.Errorf("TargetID() = %q, want TARGET-1", inst.TargetID())
	}
	if inst.CurrentURL() != pageURL {
		t.Errorf("CurrentURL() = %q, want %q", inst.CurrentURL(), pageURL)
	}
	if f.methodCount("Target.createTarget") != 1 {
		t.Error("endpoint should have seen exactly one Target.createTarget")
	}
}

func TestInstance_Goto_RunsStrategyHooks(t *testing.T) {
	f := newFakeCDP(t)
	var calls []string
	hook := &fakeStrategy{name: "hook", calls: &calls}
	inst := newTestInstance(t, f, WithStrategies(hook))

	if _, err := inst.Goto(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Goto() error = %v", err)
	}

	if len(calls) != 2 || calls[0] != "before:hook" || calls[1] != "after:hook" {
		t.Fatalf("calls = %v, want [before:hook after:hook]", calls)
	}
	if hook.lastBefore.TargetID != "" {
		t.Error("before hook should run without a target id")
	}
	if hook.lastAfter.TargetID != "TARGET-1" {
		t.Errorf("after hook target = %q, want TARGET-1", hook.lastAfter.TargetID)
	}
	if hook.lastAfter.URL != "https://example.com" {
		t.Errorf("after hook url = %q", hook.lastAfter.URL)
	}
	if hook.lastAfter.InstanceID != inst.ID() {
		t.Errorf("after hook instance = %q, want %q", hook.lastAfter.InstanceID, inst.ID())
	}
}

func TestInstance_Goto_EmptyURL(t *testing.T) {
	f := newFakeCDP(t)
	inst := newTestInstance(t, f)

	_, err := inst.Goto(context.Background(), "")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.IsValidation(err) {
		t.Errorf("kind = %v, want Validation", errors.GetKind(err))
	}
	if inst.Running() {
		t.Error("validation failure should happen before the browser launches")
	}
}

func TestInstance_Goto_BeforeHookFailureAbortsNavigation(t *testing.T) {
	f := newFakeCDP(t)
	boom := errors.NewBanError("https://example.com", "cloudflare")
	inst := newTestInstance(t, f, WithStrategies(&fakeStrategy{name: "guard", beforeErr: boom}))

	_, err := inst.Goto(context.Background(), "https://example.com")
	if err != boom {
		t.Fatalf("error = %v, want the hook's error", err)
	}
	if f.methodCount("Target.createTarget") != 0 {
		t.Error("no target should be created when a before hook fails")
	}
	if inst.TargetID() != "" {
		t.Error("failed navigation should not record a target")
	}
}

func TestInstance_Goto_EndpointNeverUp(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	inst, err := New(
		WithExecutablePath(fakeBrowserPath(t)),
		WithProfileDir(t.TempDir()),
		WithDebuggingPort(port),
		WithStartupTimeout(150*time.Millisecond),
		WithPollInterval(10*time.Millisecond),
		WithStrategyOverride("recon", nil),
		WithStrategyOverride("perimeterx", nil),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer inst.Close()

	_, err = inst.Goto(context.Background(), "https://example.com")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.IsTimeout(err) {
		t.Errorf("kind = %v, want Timeout", errors.GetKind(err))
	}
	if !strings.Contains(err.Error(), "CDP endpoint did not become available") {
		t.Errorf("error %q should describe the startup wait", err)
	}
}

// =============================================================================
// Content Tests
// =============================================================================

func TestInstance_Content_WithoutGoto(t *testing.T) {
	f := newFakeCDP(t)
	inst := newTestInstance(t, f)

	_, err := inst.Content(context.Background())
	if err == nil {
		t.Fatal("expected state error")
	}
	if !errors.IsState(err) {
		t.Errorf("kind = %v, want State", errors.GetKind(err))
	}
}

func TestInstance_Content_ReturnsOuterHTML(t *testing.T) {
	f := newFakeCDP(t)
	inst := newTestInstance(t, f)

	if _, err := inst.Goto(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Goto() error = %v", err)
	}

	html, err := inst.Content(context.Background())
	if err != nil {
		t.Fatalf("Content() error = %v", err)
	}
	if html != f.html() {
		t.Errorf("Content() = %q, want the stub document", html)
	}
	if f.methodCount("DOM.getOuterHTML") != 1 {
		t.Error("endpoint should have seen exactly one DOM.getOuterHTML")
	}
}

func TestInstance_Content_WaitsThroughBlankDocument(t *testing.T) {
	f := newFakeCDP(t)
	inst := newTestInstance(t, f)

	if _, err := inst.Goto(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Goto() error = %v", err)
	}

	// First document poll sees the initial blank page; later polls see the
	// navigated URL.
	var pollsMu sync.Mutex
	polls := 0
	f.handle("DOM.getDocument", func(params map[string]any) map[string]any {
		pollsMu.Lock()
		polls++
		seen := polls
		pollsMu.Unlock()

		documentURL := "about:blank"
		if seen > 1 {
			documentURL = f.documentURL()
		}
		return map[string]any{"root": map[string]any{"nodeId": 1, "documentURL": documentURL}}
	})

	html, err := inst.Content(context.Background())
	if err != nil {
		t.Fatalf("Content() error = %v", err)
	}
	if html != f.html() {
		t.Errorf("Content() = %q, want the stub document", html)
	}
	if f.methodCount("Page.enable") == 0 {
		t.Error("blank document should trigger a load event wait")
	}
}

func TestInstance_Content_MissingNodeID(t *testing.T) {
	f := newFakeCDP(t)
	inst := newTestInstance(t, f)

	if _, err := inst.Goto(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Goto() error = %v", err)
	}

	f.handle("DOM.getDocument", func(params map[string]any) map[string]any {
		return map[string]any{"root": map[string]any{"nodeId": 0, "documentURL": f.documentURL()}}
	})

	_, err := inst.Content(context.Background())
	if err == nil {
		t.Fatal("expected protocol error")
	}
	if !errors.IsProtocol(err) {
		t.Errorf("kind = %v, want Protocol", errors.GetKind(err))
	}
	if !strings.Contains(err.Error(), "missing document node id") {
		t.Errorf("error %q should name the missing node id", err)
	}
}

func TestInstance_Content_MissingOuterHTML(t *testing.T) {
	f := newFakeCDP(t)
	inst := newTestInstance(t, f)

	if _, err := inst.Goto(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Goto() error = %v", err)
	}

	f.handle("DOM.getOuterHTML", func(params map[string]any) map[string]any {
		return map[string]any{}
	})

	_, err := inst.Content(context.Background())
	if err == nil {
		t.Fatal("expected protocol error")
	}
	if !errors.IsProtocol(err) {
		t.Errorf("kind = %v, want Protocol", errors.GetKind(err))
	}
	if !strings.Contains(err.Error(), "missing page content result") {
		t.Errorf("error %q should name the missing content", err)
	}
}

// =============================================================================
// Version Tests
// =============================================================================

func TestInstance_Version(t *testing.T) {
	f := newFakeCDP(t)
	inst := newTestInstance(t, f)

	version, err := inst.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if version.Browser != "HeadlessChrome/123.0.0.0" {
		t.Errorf("Browser = %q, want HeadlessChrome/123.0.0.0", version.Browser)
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestInstance_Close_NeverStarted(t *testing.T) {
	f := newFakeCDP(t)
	inst := newTestInstance(t, f)

	if err := inst.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestInstance_Close_Idempotent(t *testing.T) {
	f := newFakeCDP(t)
	inst := newTestInstance(t, f)

	if _, err := inst.Goto(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Goto() error = %v", err)
	}

	if err := inst.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := inst.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if inst.Running() {
		t.Error("instance should not report running after Close")
	}
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestInstance_MetricsTracking(t *testing.T) {
	f := newFakeCDP(t)
	inst := newTestInstance(t, f)

	if _, err := inst.Goto(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Goto() error = %v", err)
	}
	html, err := inst.Content(context.Background())
	if err != nil {
		t.Fatalf("Content() error = %v", err)
	}

	snap := inst.MetricsSnapshot()
	if snap.NavigationsStarted != 1 {
		t.Errorf("NavigationsStarted = %d, want 1", snap.NavigationsStarted)
	}
	if snap.NavigationsCompleted != 1 {
		t.Errorf("NavigationsCompleted = %d, want 1", snap.NavigationsCompleted)
	}
	if snap.ContentFetches != 1 {
		t.Errorf("ContentFetches = %d, want 1", snap.ContentFetches)
	}
	if snap.BytesFetched != int64(len(html)) {
		t.Errorf("BytesFetched = %d, want %d", snap.BytesFetched, len(html))
	}
	if snap.ErrorsTotal != 0 {
		t.Errorf("ErrorsTotal = %d, want 0", snap.ErrorsTotal)
	}
}

func TestInstance_MetricsRecordsErrorKind(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	inst, err := New(
		WithExecutablePath(fakeBrowserPath(t)),
		WithProfileDir(t.TempDir()),
		WithDebuggingPort(port),
		WithStartupTimeout(150*time.Millisecond),
		WithPollInterval(10*time.Millisecond),
		WithStrategyOverride("recon", nil),
		WithStrategyOverride("perimeterx", nil),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer inst.Close()

	if _, err := inst.Goto(context.Background(), "https://example.com"); err == nil {
		t.Fatal("expected timeout error")
	}

	snap := inst.MetricsSnapshot()
	if snap.NavigationsStarted != 1 {
		t.Errorf("NavigationsStarted = %d, want 1", snap.NavigationsStarted)
	}
	if snap.NavigationsCompleted != 0 {
		t.Errorf("NavigationsCompleted = %d, want 0", snap.NavigationsCompleted)
	}
	if snap.ErrorCounts["timeout"] != 1 {
		t.Errorf("ErrorCounts[timeout] = %d, want 1", snap.ErrorCounts["timeout"])
	}
}

// =============================================================================
// Readiness Deadline Tests
// =============================================================================

func TestInstance_Content_ExpiredReadinessDeadline(t *testing.T) {
	f := newFakeCDP(t)
	inst := newTestInstance(t, f, WithPageLoadTimeout(time.Nanosecond))

	if _, err := inst.Goto(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Goto() error = %v", err)
	}

	html, err := inst.Content(context.Background())
	if err != nil {
		t.Fatalf("Content() error = %v", err)
	}
	if html != f.html() {
		t.Errorf("Content() = %q, want the stub document", html)
	}

	// Readiness loops must not have polled: the only DOM.getDocument is the
	// content fetch itself.
	if got := f.methodCount("DOM.getDocument"); got != 1 {
		t.Errorf("DOM.getDocument count = %d, want 1", got)
	}
}
