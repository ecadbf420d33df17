package browser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/GrindLabs/spectrum/internal/errors"
)

// PageSummary condenses fetched page content into the pieces callers
// usually want without re-parsing the full document.
type PageSummary struct {
	Title     string   `json:"title"`
	Links     []string `json:"links"`
	Scripts   []string `json:"scripts"`
	Generator string   `json:"generator,omitempty"`
}

// Summarize extracts the title, outbound links, and script sources from
// rendered HTML. Links and scripts are resolved against baseURL,
// deduplicated in document order, and limited to http/https. The
// generator meta tag is surfaced when present.
func Summarize(htmlContent, baseURL string) (*PageSummary, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.NewValidationError("summarize", "invalid base URL: "+baseURL)
	}

	root, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, errors.New(errors.Protocol, baseURL, "summarize", "failed to parse page content", err)
	}

	summary := &PageSummary{
		Links:   make([]string, 0),
		Scripts: make([]string, 0),
	}
	seenLinks := make(map[string]bool)
	seenScripts := make(map[string]bool)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if summary.Title == "" {
					summary.Title = strings.TrimSpace(nodeText(n))
				}
			case "a":
				if resolved := resolveLink(base, attrValue(n, "href")); resolved != "" && !seenLinks[resolved] {
					seenLinks[resolved] = true
					summary.Links = append(summary.Links, resolved)
				}
			case "script":
				if resolved := resolveLink(base, attrValue(n, "src")); resolved != "" && !seenScripts[resolved] {
					seenScripts[resolved] = true
					summary.Scripts = append(summary.Scripts, resolved)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent)); err == nil {
		doc.Find("meta[name='generator']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			summary.Generator, _ = s.Attr("content")
			return false
		})
	}

	return summary, nil
}

// resolveLink resolves href against base and returns the absolute URL
// without its fragment, or "" when the reference is empty, unparseable,
// an in-page anchor, or a non-web scheme.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			sb.WriteString(child.Data)
		}
	}
	return sb.String()
}
