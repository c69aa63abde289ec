package scrape

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

var (
	scriptRe  = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleRe   = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	navRe     = regexp.MustCompile(`(?is)<nav\b[^>]*>.*?</nav>`)
	footerRe  = regexp.MustCompile(`(?is)<footer\b[^>]*>.*?</footer>`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagRe     = regexp.MustCompile(`(?s)<[^>]+>`)
	spaceRe   = regexp.MustCompile(`\s+`)

	anchorRe = regexp.MustCompile(`(?is)<a\b[^>]*\bhref\s*=\s*["']([^"'#]+)["']`)
	srcRe    = regexp.MustCompile(`(?is)<(?:script|link|iframe|img)\b[^>]*\b(?:src|href)\s*=\s*["']([^"']+)["']`)
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
)

// StripHTML reduces raw HTML to readable text: scripts, styles, nav and
// footer chrome removed, entities decoded, whitespace collapsed.
func StripHTML(raw string) string {
	s := scriptRe.ReplaceAllString(raw, " ")
	s = styleRe.ReplaceAllString(s, " ")
	s = navRe.ReplaceAllString(s, " ")
	s = footerRe.ReplaceAllString(s, " ")
	s = commentRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ExtractLinks collects anchor hrefs plus script/link/iframe/img sources,
// resolved against the page URL. Third-party widget URLs here are the main
// vendor-detection signal.
func ExtractLinks(rawHTML, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	seen := make(map[string]struct{})
	var links []string
	add := func(raw string) {
		raw = strings.TrimSpace(html.UnescapeString(raw))
		if raw == "" || strings.HasPrefix(raw, "javascript:") ||
			strings.HasPrefix(raw, "mailto:") || strings.HasPrefix(raw, "tel:") ||
			strings.HasPrefix(raw, "data:") {
			return
		}
		if base != nil {
			if ref, err := url.Parse(raw); err == nil {
				raw = base.ResolveReference(ref).String()
			}
		}
		if _, ok := seen[raw]; ok {
			return
		}
		seen[raw] = struct{}{}
		links = append(links, raw)
	}

	for _, m := range anchorRe.FindAllStringSubmatch(rawHTML, -1) {
		add(m[1])
	}
	for _, m := range srcRe.FindAllStringSubmatch(rawHTML, -1) {
		add(m[1])
	}
	return links
}

// ExtractTitle returns the decoded, whitespace-collapsed <title> text.
func ExtractTitle(rawHTML string) string {
	m := titleRe.FindStringSubmatch(rawHTML)
	if m == nil {
		return ""
	}
	t := html.UnescapeString(m[1])
	return strings.TrimSpace(spaceRe.ReplaceAllString(t, " "))
}
