package recon

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/GrindLabs/spectrum/internal/logger"
)

const (
	// DefaultProbeTimeout bounds the whole preflight request.
	DefaultProbeTimeout = 4 * time.Second

	// DefaultMaxHTMLBytes caps the stored HTML sample.
	DefaultMaxHTMLBytes = 200_000

	// defaultUserAgent matches a plain desktop Chrome so the probe itself
	// does not look like tooling.
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

// Preflighter probes URLs over plain HTTP before the browser touches
// them, producing classification reports. Probe failures are absorbed: a
// URL that cannot be fetched yields an empty report, never an error.
type Preflighter struct {
	client       *http.Client
	limiter      *rate.Limiter
	maxHTMLBytes int
	userAgent    string
	log          *logger.Logger
}

// PreflightOption tunes a Preflighter.
type PreflightOption func(*Preflighter)

// WithHTTPClient swaps the HTTP client used for probes.
func WithHTTPClient(client *http.Client) PreflightOption {
	return func(p *Preflighter) {
		if client != nil {
			p.client = client
		}
	}
}

// WithProbeInterval throttles probes to at most one per interval.
func WithProbeInterval(interval time.Duration) PreflightOption {
	return func(p *Preflighter) {
		if interval > 0 {
			p.limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

// WithMaxHTMLBytes overrides the sample cap.
func WithMaxHTMLBytes(n int) PreflightOption {
	return func(p *Preflighter) {
		if n > 0 {
			p.maxHTMLBytes = n
		}
	}
}

// WithUserAgent overrides the probe User-Agent.
func WithUserAgent(ua string) PreflightOption {
	return func(p *Preflighter) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// WithPreflightLogger attaches a logger.
func WithPreflightLogger(log *logger.Logger) PreflightOption {
	return func(p *Preflighter) {
		if log != nil {
			p.log = log
		}
	}
}

// NewPreflighter builds a preflighter with defaults: a 4 second probe
// timeout, a 200 KB sample cap, and no throttling.
func NewPreflighter(opts ...PreflightOption) *Preflighter {
	p := &Preflighter{
		client:       &http.Client{Timeout: DefaultProbeTimeout},
		limiter:      rate.NewLimiter(rate.Inf, 1),
		maxHTMLBytes: DefaultMaxHTMLBytes,
		userAgent:    defaultUserAgent,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Preflight fetches the URL and classifies the response. Transport
// failures degrade to an empty report so a dead probe never blocks a
// navigation.
func (p *Preflighter) Preflight(ctx context.Context, url string) *Report {
	report := EmptyReport(url)

	if err := p.limiter.Wait(ctx); err != nil {
		p.log.WithURL(url).Debugf("preflight throttle aborted: %v", err)
		return report
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.log.WithURL(url).Debugf("preflight request build failed: %v", err)
		return report
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.WithURL(url).Debugf("preflight failed: %v", err)
		return report
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		if len(values) > 0 {
			report.Headers[strings.ToLower(key)] = values[0]
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(p.maxHTMLBytes)))
	if err != nil {
		p.log.WithURL(url).Debugf("preflight body read failed: %v", err)
	}
	report.HTMLSample = string(body)
	report.Title = extractTitle(report.HTMLSample)

	Classify(report, scanBlob(report.HTMLSample))

	if len(report.TechHits) > 0 {
		p.log.WithURL(url).Infof("tech detected: %s", strings.Join(report.TechHits, ", "))
	}

	return report
}

// scanBlob widens the detection surface beyond the raw sample: attribute
// values and generator tags come back entity-decoded from the parser, so
// markers hidden behind HTML escaping still match.
func scanBlob(htmlSample string) string {
	if htmlSample == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSample))
	if err != nil {
		return htmlSample
	}

	var extras []string
	doc.Find("meta[name='generator']").Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok {
			extras = append(extras, content)
		}
	})
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			extras = append(extras, src)
		}
	})
	doc.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			extras = append(extras, src)
		}
	})

	if len(extras) == 0 {
		return htmlSample
	}
	return htmlSample + "\n" + strings.Join(extras, "\n")
}

func extractTitle(htmlSample string) string {
	if htmlSample == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSample))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
