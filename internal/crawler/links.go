package crawler

import (
	"net/url"
	"strings"

	pkgerrors "gearshed/catalogworker/pkg/errors"

	"github.com/PuerkitoBio/goquery"
)

const (
	minSlugLen  = 8
	longSlugLen = 24
)

// CanonicalURL resolves href against base and strips query parameters and
// fragments, yielding the stable dedup key for a product page.
func CanonicalURL(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", pkgerrors.NewParsing(base, "invalid base URL", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", pkgerrors.NewParsing(href, "invalid href", err)
	}
	abs := baseURL.ResolveReference(ref)
	abs.RawQuery = ""
	abs.Fragment = ""
	return abs.String(), nil
}

// ExternalID derives the stable catalog identifier from a canonical URL: the
// final path segment with its extension stripped. It requires no fetch, which
// is what makes pre-fetch dedup possible.
func ExternalID(canonicalURL string) (string, error) {
	parsed, err := url.Parse(canonicalURL)
	if err != nil {
		return "", pkgerrors.NewParsing(canonicalURL, "invalid canonical URL", err)
	}
	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return "", pkgerrors.NewValidation(canonicalURL, "URL has no path segment")
	}
	segment := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		segment = path[idx+1:]
	}
	if idx := strings.LastIndex(segment, "."); idx > 0 {
		segment = segment[:idx]
	}
	if segment == "" {
		return "", pkgerrors.NewValidation(canonicalURL, "empty final path segment")
	}
	return segment, nil
}

// looksLikeProductSlug applies the structural plausibility check to the final
// path segment of a candidate URL: minimum length plus word separators,
// digits, or an unusually long descriptive slug.
func looksLikeProductSlug(segment string) bool {
	if idx := strings.LastIndex(segment, "."); idx > 0 {
		segment = segment[:idx]
	}
	if len(segment) < minSlugLen {
		return false
	}
	separators := strings.Count(segment, "-") + strings.Count(segment, "_")
	if separators >= 2 {
		return true
	}
	if strings.ContainsAny(segment, "0123456789") {
		return true
	}
	return len(segment) >= longSlugLen
}

// isDeniedPath reports whether the path contains a known non-product fragment.
func isDeniedPath(path string, fragments []string) bool {
	lower := strings.ToLower(path)
	for _, frag := range fragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// ExtractProductLinks returns the deduplicated canonical product URLs found on
// a listing page. Selector chains are tried in priority order; the first
// selector yielding any anchors wins. An empty result on a valid page is a
// legitimate outcome, not an error.
func ExtractProductLinks(doc *goquery.Document, profile *SiteProfile) []string {
	var anchors *goquery.Selection
	for _, sel := range profile.Listing.Containers {
		found := doc.Find(sel)
		if found.Length() > 0 {
			anchors = found
			break
		}
	}
	if anchors == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string

	anchors.Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return
		}
		canonical, err := CanonicalURL(profile.BaseURL, href)
		if err != nil {
			return
		}
		parsed, err := url.Parse(canonical)
		if err != nil || parsed.Path == "" || parsed.Path == "/" {
			return
		}
		if isDeniedPath(parsed.Path, profile.NonProductFragments) {
			return
		}
		segment := parsed.Path
		if idx := strings.LastIndex(strings.TrimRight(segment, "/"), "/"); idx >= 0 {
			segment = strings.TrimRight(segment, "/")[idx+1:]
		}
		if !looksLikeProductSlug(segment) {
			return
		}
		if _, dup := seen[canonical]; dup {
			return
		}
		seen[canonical] = struct{}{}
		links = append(links, canonical)
	})

	return links
}
