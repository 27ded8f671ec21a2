package scraper

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractCandidates parses page markup against a site profile and returns a
// deduplicated, quality-filtered list of candidate image URLs in discovery
// order.
func ExtractCandidates(markup []byte, profile *Profile) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}

	seen := make(map[string]struct{})
	var candidates []string

	collect := func(raw string) {
		u := canonicalize(raw)
		if u == "" {
			return
		}
		if profile.QualityScore(u) < profile.MinQualityScore {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		candidates = append(candidates, u)
	}

	for _, selector := range profile.Selectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			for _, attr := range SourceAttrs {
				val, ok := sel.Attr(attr)
				if !ok || val == "" {
					continue
				}
				if strings.HasSuffix(attr, "srcset") {
					collect(bestFromSrcset(val))
				} else {
					collect(val)
				}
			}
		})
	}

	return candidates, nil
}

// bestFromSrcset picks the entry with the highest declared width from a
// comma-separated srcset value. Entries without a width descriptor count as
// width 0, so a single bare URL still wins over nothing.
func bestFromSrcset(val string) string {
	best := ""
	bestWidth := -1

	for _, part := range strings.Split(val, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		width := 0
		if len(fields) > 1 && strings.HasSuffix(fields[1], "w") {
			if n, err := strconv.Atoi(strings.TrimSuffix(fields[1], "w")); err == nil {
				width = n
			}
		}
		if width > bestWidth {
			best = fields[0]
			bestWidth = width
		}
	}

	return best
}

// canonicalize strips the query-string suffix and rejects non-HTTP URLs.
func canonicalize(raw string) string {
	u := strings.TrimSpace(raw)
	if !strings.HasPrefix(strings.ToLower(u), "http") {
		return ""
	}
	if idx := strings.IndexByte(u, '?'); idx >= 0 {
		u = u[:idx]
	}
	return u
}
