package scraper

import (
	"fmt"
	"net/url"
	"regexp"
)

// SourceAttrs lists the img attributes scanned for candidate URLs, in
// priority order. The srcset-style attributes hold multiple comma-separated
// candidates and are parsed by declared width.
var SourceAttrs = []string{"src", "data-src", "data-lazy", "data-srcset", "srcset"}

// Profile declares how to search one site and how to tell full-resolution
// assets apart from thumbnails when no structured size metadata exists.
type Profile struct {
	Name            string
	SearchURL       func(query string, page int) string
	Selectors       []string
	QualityPatterns []*regexp.Regexp
	MinQualityScore int
}

// QualityScore counts how many quality patterns match the raw candidate URL.
func (p *Profile) QualityScore(rawURL string) int {
	score := 0
	for _, re := range p.QualityPatterns {
		if re.MatchString(rawURL) {
			score++
		}
	}
	return score
}

// SourceAPI is the source tag for records ingested through the API path.
const SourceAPI = "unsplash_api"

// SourceGeneric is the source tag for records ingested from caller-supplied
// page URLs with no site profile.
const SourceGeneric = "generic"

var profiles = map[string]*Profile{
	"unsplash": {
		Name: "unsplash",
		SearchURL: func(q string, page int) string {
			return fmt.Sprintf("https://unsplash.com/s/photos/%s?page=%d", url.QueryEscape(q), page)
		},
		Selectors: []string{"figure img", "img"},
		QualityPatterns: []*regexp.Regexp{
			regexp.MustCompile(`images\.unsplash\.com/photo-`),
			regexp.MustCompile(`/photo-\d+`),
		},
		MinQualityScore: 1,
	},
	"pexels": {
		Name: "pexels",
		SearchURL: func(q string, page int) string {
			return fmt.Sprintf("https://www.pexels.com/search/%s/?page=%d", url.QueryEscape(q), page)
		},
		Selectors: []string{"article img", "img"},
		QualityPatterns: []*regexp.Regexp{
			regexp.MustCompile(`images\.pexels\.com/photos/`),
			regexp.MustCompile(`/photos/\d+/`),
		},
		MinQualityScore: 1,
	},
	"pixabay": {
		Name: "pixabay",
		SearchURL: func(q string, page int) string {
			return fmt.Sprintf("https://pixabay.com/images/search/%s/?pagi=%d", url.QueryEscape(q), page)
		},
		Selectors: []string{"div.results img", "img"},
		QualityPatterns: []*regexp.Regexp{
			regexp.MustCompile(`cdn\.pixabay\.com/photo/`),
			regexp.MustCompile(`_\d{3,4}\.(jpg|png)$`),
		},
		MinQualityScore: 1,
	},
	"flickr": {
		Name: "flickr",
		SearchURL: func(q string, page int) string {
			return fmt.Sprintf("https://www.flickr.com/search/?text=%s&page=%d", url.QueryEscape(q), page)
		},
		Selectors: []string{"div.photo-list-photo-view img", "img"},
		QualityPatterns: []*regexp.Regexp{
			regexp.MustCompile(`live\.staticflickr\.com/`),
			regexp.MustCompile(`_[bckh]\.(jpg|png)$`),
		},
		MinQualityScore: 1,
	},
	"wallhaven": {
		Name: "wallhaven",
		SearchURL: func(q string, page int) string {
			return fmt.Sprintf("https://wallhaven.cc/search?q=%s&page=%d", url.QueryEscape(q), page)
		},
		Selectors: []string{"figure.thumb img", "img"},
		QualityPatterns: []*regexp.Regexp{
			regexp.MustCompile(`w\.wallhaven\.cc/full/`),
			regexp.MustCompile(`wallhaven-\w+\.(jpg|png)$`),
		},
		MinQualityScore: 1,
	},
}

// genericProfile accepts any candidate; it backs the source="generic" path
// for caller-supplied page URLs.
var genericProfile = &Profile{
	Name:            SourceGeneric,
	Selectors:       []string{"img"},
	MinQualityScore: 0,
}

// LookupProfile returns the profile for a configured site, or false when the
// site is unknown (callers warn and skip, they do not fail the run).
func LookupProfile(site string) (*Profile, bool) {
	p, ok := profiles[site]
	return p, ok
}

// GenericProfile returns the site-agnostic extraction profile.
func GenericProfile() *Profile {
	return genericProfile
}
