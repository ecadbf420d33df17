package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/GrindLabs/spectrum/internal/errors"
)

// httpClient serves the loopback discovery endpoints. The overall timeout
// is generous; callers bound individual probes through their context.
var httpClient = &http.Client{
	Timeout: 15 * time.Second,
}

// Version is the payload of /json/version.
type Version struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version"`
	WebKitVersion        string `json:"WebKit-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Target is one entry of /json/list.
type Target struct {
	ID                   string `json:"id"`
	TargetID             string `json:"targetId"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Probe checks whether the debugging endpoint answers /json/version with
// HTTP 200.
func Probe(ctx context.Context, endpoint string) error {
	resp, err := get(ctx, endpoint+"/json/version")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errors.NewProtocolError(endpoint, "probe", fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

// FetchVersion retrieves browser build and protocol metadata from
// /json/version.
func FetchVersion(ctx context.Context, endpoint string) (*Version, error) {
	resp, err := get(ctx, endpoint+"/json/version")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var version Version
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return nil, errors.NewProtocolError(endpoint, "version", fmt.Sprintf("decode response: %v", err))
	}

	return &version, nil
}

// BrowserWebSocketURL resolves the browser-level debugger socket URL. A
// version payload without one is unusable.
func BrowserWebSocketURL(ctx context.Context, endpoint string) (string, error) {
	version, err := FetchVersion(ctx, endpoint)
	if err != nil {
		return "", err
	}

	if version.WebSocketDebuggerURL == "" {
		return "", errors.NewProtocolError(endpoint, "version", "missing webSocketDebuggerUrl")
	}

	return version.WebSocketDebuggerURL, nil
}

// ListTargets retrieves the open target descriptors from /json/list.
func ListTargets(ctx context.Context, endpoint string) ([]Target, error) {
	resp, err := get(ctx, endpoint+"/json/list")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var targets []Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, errors.NewProtocolError(endpoint, "list_targets", fmt.Sprintf("decode response: %v", err))
	}

	return targets, nil
}

// TargetWebSocketURL resolves the per-target debugger socket URL. Entries
// are matched on id, falling back to the legacy targetId key. A missing
// target is an error, never a silent substitute.
func TargetWebSocketURL(ctx context.Context, endpoint, targetID string) (string, error) {
	targets, err := ListTargets(ctx, endpoint)
	if err != nil {
		return "", err
	}

	for _, target := range targets {
		id := target.ID
		if id == "" {
			id = target.TargetID
		}
		if id != targetID {
			continue
		}

		if target.WebSocketDebuggerURL == "" {
			return "", errors.NewProtocolError(endpoint, "list_targets", "missing webSocketDebuggerUrl for target")
		}
		return target.WebSocketDebuggerURL, nil
	}

	return "", errors.NewProtocolError(endpoint, "list_targets", "target not found")
}

func get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Categorize(err, url)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.Categorize(err, url)
	}

	return resp, nil
}
