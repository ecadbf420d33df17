package browser

import (
	"context"
	"net/url"
	"sync"

	"github.com/GrindLabs/spectrum/internal/cdp"
	"github.com/GrindLabs/spectrum/internal/errors"
	"github.com/GrindLabs/spectrum/internal/logger"
	"github.com/GrindLabs/spectrum/internal/recon"
)

// StrategyFactory builds a mitigation strategy for a detected vendor.
type StrategyFactory func() Strategy

// ReconStrategy classifies the target before navigation and inspects the
// rendered page after navigation. Detected defenses dispatch to a
// registered mitigation strategy when one exists; otherwise the browser
// is closed and the navigation fails with a Ban or Captcha error naming
// the vendor.
type ReconStrategy struct {
	preflighter *recon.Preflighter
	store       *recon.Store

	mu      sync.Mutex
	reports map[string]*recon.Report

	wafHandlers     map[string]StrategyFactory
	captchaHandlers map[string]StrategyFactory

	log *logger.Logger
}

// ReconOption tunes a ReconStrategy.
type ReconOption func(*ReconStrategy)

// WithPreflighter swaps the preflight prober.
func WithPreflighter(p *recon.Preflighter) ReconOption {
	return func(r *ReconStrategy) {
		if p != nil {
			r.preflighter = p
		}
	}
}

// WithReconStore attaches a persistent report cache keyed by host, so
// repeated fetches of the same host skip the preflight probe.
func WithReconStore(store *recon.Store) ReconOption {
	return func(r *ReconStrategy) {
		r.store = store
	}
}

// WithWAFHandler registers a mitigation factory for a WAF vendor name.
func WithWAFHandler(vendor string, factory StrategyFactory) ReconOption {
	return func(r *ReconStrategy) {
		r.wafHandlers[vendor] = factory
	}
}

// WithCaptchaHandler registers a mitigation factory for a CAPTCHA vendor
// name.
func WithCaptchaHandler(vendor string, factory StrategyFactory) ReconOption {
	return func(r *ReconStrategy) {
		r.captchaHandlers[vendor] = factory
	}
}

// WithReconLogger attaches a logger.
func WithReconLogger(log *logger.Logger) ReconOption {
	return func(r *ReconStrategy) {
		if log != nil {
			r.log = log
		}
	}
}

// NewReconStrategy builds the recon strategy. By default the only
// registered mitigation is the PerimeterX press-and-hold strategy.
func NewReconStrategy(opts ...ReconOption) *ReconStrategy {
	r := &ReconStrategy{
		preflighter: recon.NewPreflighter(),
		reports:     make(map[string]*recon.Report),
		wafHandlers: map[string]StrategyFactory{
			"perimeterx": func() Strategy { return NewPerimeterXStrategy() },
		},
		captchaHandlers: make(map[string]StrategyFactory),
		log:             logger.Global().WithComponent("recon"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Name implements Strategy.
func (r *ReconStrategy) Name() string { return "recon" }

// BeforeNavigation probes the URL and caches the report under the
// instance id for the after-navigation pass.
func (r *ReconStrategy) BeforeNavigation(ctx context.Context, nav *NavigationContext) error {
	report := r.cachedReport(nav.URL)
	if report == nil {
		report = r.preflighter.Preflight(ctx, nav.URL)
		r.saveReport(nav.URL, report)
	}

	r.mu.Lock()
	r.reports[nav.InstanceID] = report
	r.mu.Unlock()

	if report.HasWAF() {
		r.log.DetectionEvent("waf", nav.URL, report.WAFHits)
	}
	if report.HasCaptcha() {
		r.log.DetectionEvent("captcha", nav.URL, report.CaptchaHits)
	}
	if len(report.TechHits) > 0 && nav.Metrics != nil {
		nav.Metrics.RecordDetection("tech")
	}

	return nil
}

// AfterNavigation re-inspects the rendered page. Only live HTML is
// re-checked; the preflight headers stay as recorded. CAPTCHA hits take
// precedence over WAF hits.
func (r *ReconStrategy) AfterNavigation(ctx context.Context, nav *NavigationContext) error {
	if nav.TargetID == "" {
		return nil
	}

	r.mu.Lock()
	report := r.reports[nav.InstanceID]
	r.mu.Unlock()
	if report == nil {
		report = r.preflighter.Preflight(ctx, nav.URL)
	}

	htmlSample, ok, err := r.fetchLiveHTML(ctx, nav)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := r.handleCaptcha(ctx, nav, report, htmlSample); err != nil {
		return err
	}
	return r.handleWAF(ctx, nav, report, htmlSample)
}

func (r *ReconStrategy) handleWAF(ctx context.Context, nav *NavigationContext, report *recon.Report, htmlSample string) error {
	liveHits := recon.DetectWAF(nil, htmlSample)
	if len(liveHits) == 0 {
		return nil
	}

	r.log.DetectionEvent("waf", nav.URL, unionHits(report.WAFHits, liveHits))
	if nav.Metrics != nil {
		nav.Metrics.RecordDetection("waf")
	}

	for _, vendor := range liveHits {
		if r.siblingRegistered(nav, vendor) {
			r.log.WithURL(nav.URL).Debugf("WAF %s strategy already configured", vendor)
			continue
		}

		if factory, ok := r.wafHandlers[vendor]; ok {
			r.log.WithURL(nav.URL).Infof("applying WAF strategy for %s", vendor)
			return factory().AfterNavigation(ctx, nav)
		}

		r.closeBrowser(ctx, nav)
		return errors.NewBanError(nav.URL, vendor)
	}

	return nil
}

func (r *ReconStrategy) handleCaptcha(ctx context.Context, nav *NavigationContext, report *recon.Report, htmlSample string) error {
	liveHits := recon.DetectCaptcha(nil, htmlSample)
	if len(liveHits) == 0 {
		return nil
	}

	r.log.DetectionEvent("captcha", nav.URL, unionHits(report.CaptchaHits, liveHits))
	if nav.Metrics != nil {
		nav.Metrics.RecordDetection("captcha")
	}

	for _, vendor := range liveHits {
		if r.siblingRegistered(nav, vendor) {
			r.log.WithURL(nav.URL).Debugf("CAPTCHA %s strategy already configured", vendor)
			continue
		}

		if factory, ok := r.captchaHandlers[vendor]; ok {
			r.log.WithURL(nav.URL).Infof("applying CAPTCHA strategy for %s", vendor)
			return factory().AfterNavigation(ctx, nav)
		}

		r.closeBrowser(ctx, nav)
		return errors.NewCaptchaError(nav.URL, vendor)
	}

	return nil
}

// siblingRegistered reports whether another configured strategy already
// carries the vendor's name, meaning it will handle the vendor itself.
func (r *ReconStrategy) siblingRegistered(nav *NavigationContext, vendor string) bool {
	if nav.Config == nil {
		return false
	}
	for _, strategy := range nav.Config.Strategies {
		if strategy.Name() == vendor && strategy != Strategy(r) {
			return true
		}
	}
	return false
}

// fetchLiveHTML reads the rendered document over the target's socket.
// A missing port, target, node id, or HTML payload skips the check
// rather than failing the navigation.
func (r *ReconStrategy) fetchLiveHTML(ctx context.Context, nav *NavigationContext) (string, bool, error) {
	if nav.Config == nil || nav.Config.RemoteDebuggingPort == 0 || nav.TargetID == "" {
		return "", false, nil
	}

	wsURL, err := cdp.TargetWebSocketURL(ctx, Endpoint(nav.Config.RemoteDebuggingPort), nav.TargetID)
	if err != nil {
		return "", false, err
	}

	client, err := cdp.Dial(ctx, wsURL, cdp.WithTimeout(nav.Config.CommandTimeout), cdp.WithLogger(r.log))
	if err != nil {
		return "", false, err
	}
	defer client.Close()

	doc, err := client.Call(ctx, "DOM.getDocument", map[string]any{"depth": 0, "pierce": true})
	if err != nil {
		return "", false, err
	}

	nodeID := doc.Get("root.nodeId").Int()
	if nodeID == 0 {
		return "", false, nil
	}

	result, err := client.Call(ctx, "DOM.getOuterHTML", map[string]any{"nodeId": nodeID})
	if err != nil {
		return "", false, err
	}
	if !result.Has("outerHTML") {
		return "", false, nil
	}

	return result.Get("outerHTML").Str(), true, nil
}

// closeBrowser closes the browser over CDP, best effort.
func (r *ReconStrategy) closeBrowser(ctx context.Context, nav *NavigationContext) {
	if nav.Config == nil || nav.Config.RemoteDebuggingPort == 0 {
		return
	}

	wsURL, err := cdp.BrowserWebSocketURL(ctx, Endpoint(nav.Config.RemoteDebuggingPort))
	if err == nil {
		_, err = cdp.Invoke(ctx, wsURL, "Browser.close", nil, cdp.WithTimeout(nav.Config.CommandTimeout))
	}
	if err != nil {
		r.log.WithURL(nav.URL).Debugf("failed to close browser via CDP: %v", err)
	}
}

func (r *ReconStrategy) cachedReport(rawURL string) *recon.Report {
	if r.store == nil {
		return nil
	}
	host := hostOf(rawURL)
	if host == "" {
		return nil
	}
	report, ok := r.store.Get(host)
	if !ok {
		return nil
	}
	return report
}

func (r *ReconStrategy) saveReport(rawURL string, report *recon.Report) {
	if r.store == nil {
		return
	}
	host := hostOf(rawURL)
	if host == "" {
		return
	}
	if err := r.store.Put(host, report); err != nil {
		r.log.WithURL(rawURL).Debugf("failed to cache recon report: %v", err)
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func unionHits(cached, live []string) []string {
	seen := make(map[string]struct{}, len(cached)+len(live))
	out := make([]string, 0, len(cached)+len(live))
	for _, hit := range cached {
		if _, ok := seen[hit]; ok {
			continue
		}
		seen[hit] = struct{}{}
		out = append(out, hit)
	}
	for _, hit := range live {
		if _, ok := seen[hit]; ok {
			continue
		}
		seen[hit] = struct{}{}
		out = append(out, hit)
	}
	return out
}
