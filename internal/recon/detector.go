package recon

import (
	"sort"
	"strings"
)

// Report captures what a probe of a URL revealed: the response headers
// (lowercased keys), a size-capped HTML sample, the page title, and the
// classification hit sets. Hits are sorted and deduplicated.
type Report struct {
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers"`
	HTMLSample  string            `json:"html_sample"`
	Title       string            `json:"title,omitempty"`
	WAFHits     []string          `json:"waf_hits"`
	TechHits    []string          `json:"tech_hits"`
	CaptchaHits []string          `json:"captcha_hits"`
}

// EmptyReport returns a report with no findings for a URL whose probe
// failed or was skipped.
func EmptyReport(url string) *Report {
	return &Report{
		URL:     url,
		Headers: map[string]string{},
	}
}

// HasWAF reports whether any perimeter defense was classified.
func (r *Report) HasWAF() bool {
	return len(r.WAFHits) > 0
}

// HasCaptcha reports whether any challenge vendor was classified.
func (r *Report) HasCaptcha() bool {
	return len(r.CaptchaHits) > 0
}

// DetectWAF classifies perimeter defense vendors from headers and HTML.
func DetectWAF(headers map[string]string, htmlSample string) []string {
	hits := map[string]struct{}{}
	hdrs := headerBlob(headers)
	html := strings.ToLower(htmlSample)

	for vendor, markers := range wafHeaderMarkers {
		if containsAny(hdrs, markers) {
			hits[vendor] = struct{}{}
		}
	}
	for vendor, markers := range wafHTMLMarkers {
		if containsAny(html, markers) {
			hits[vendor] = struct{}{}
		}
	}

	return sortedHits(hits)
}

// DetectTech classifies web technologies from headers and HTML.
func DetectTech(headers map[string]string, htmlSample string) []string {
	hits := map[string]struct{}{}
	hdrs := headerBlob(headers)
	html := strings.ToLower(htmlSample)

	for name, markers := range techHTMLMarkers {
		if containsAny(html, markers) {
			hits[name] = struct{}{}
		}
	}
	for name, markers := range techHeaderMarkers {
		if containsAny(hdrs, markers) {
			hits[name] = struct{}{}
		}
	}

	return sortedHits(hits)
}

// DetectCaptcha classifies challenge vendors. Challenge widgets only show
// up in markup, so headers are ignored.
func DetectCaptcha(_ map[string]string, htmlSample string) []string {
	hits := map[string]struct{}{}
	html := strings.ToLower(htmlSample)

	for vendor, markers := range captchaHTMLMarkers {
		if containsAny(html, markers) {
			hits[vendor] = struct{}{}
		}
	}

	return sortedHits(hits)
}

// Classify runs all three detectors over the same material.
func Classify(report *Report, htmlSample string) {
	report.WAFHits = DetectWAF(report.Headers, htmlSample)
	report.TechHits = DetectTech(report.Headers, htmlSample)
	report.CaptchaHits = DetectCaptcha(report.Headers, htmlSample)
}

// headerBlob flattens headers into one lowercased "key:value" string so
// markers can match either side of the colon.
func headerBlob(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}

	parts := make([]string, 0, len(headers))
	for key, value := range headers {
		parts = append(parts, strings.ToLower(key+":"+value))
	}
	return strings.Join(parts, " ")
}

func containsAny(blob string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(blob, marker) {
			return true
		}
	}
	return false
}

func sortedHits(hits map[string]struct{}) []string {
	if len(hits) == 0 {
		return nil
	}

	out := make([]string, 0, len(hits))
	for hit := range hits {
		out = append(out, hit)
	}
	sort.Strings(out)
	return out
}
