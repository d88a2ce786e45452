package crawler

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	pkgerrors "gearshed/catalogworker/pkg/errors"

	"github.com/PuerkitoBio/goquery"
)

// Trailing rating and review-count decorations some templates append to the
// product title.
var ratingSuffixRes = []*regexp.Regexp{
	regexp.MustCompile(`\s*\(\d+(\.\d+)?\s*/\s*5\)\s*$`),
	regexp.MustCompile(`(?i)\s*\d+(\.\d+)?\s*out of 5( stars)?\s*$`),
	regexp.MustCompile(`(?i)\s*\(\d+\s*reviews?\)\s*$`),
	regexp.MustCompile(`\s*★+☆*\s*$`),
}

// filename fragments that suggest a product photo, used by the last-resort
// image scan
var productImageHints = []string{"product", "prod_", "item", "main", "hero"}

// DetailExtractor turns a product detail page into a ProductRecord.
type DetailExtractor struct {
	fetcher PageFetcher
	profile *SiteProfile
}

// NewDetailExtractor creates a detail extractor bound to a site profile.
func NewDetailExtractor(fetcher PageFetcher, profile *SiteProfile) *DetailExtractor {
	return &DetailExtractor{fetcher: fetcher, profile: profile}
}

// firstText returns the trimmed text of the first selector in the chain that
// matches anything.
func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		found := doc.Find(sel)
		if found.Length() > 0 {
			return strings.TrimSpace(found.First().Text())
		}
	}
	return ""
}

// cleanName strips trailing rating and review-count decorations.
func cleanName(name string) string {
	name = strings.TrimSpace(name)
	for changed := true; changed; {
		changed = false
		for _, re := range ratingSuffixRes {
			if stripped := re.ReplaceAllString(name, ""); stripped != name {
				name = strings.TrimSpace(stripped)
				changed = true
			}
		}
	}
	return name
}

// composeDescription concatenates every matching description region plus up
// to maxFeatureLines bullet lines, bounded to maxLen characters so downstream
// consumers stay within budget.
func (e *DetailExtractor) composeDescription(doc *goquery.Document) string {
	var parts []string
	for _, sel := range e.profile.Detail.Descriptions {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				parts = append(parts, text)
			}
		})
	}

	if e.profile.Detail.FeatureItems != "" {
		count := 0
		doc.Find(e.profile.Detail.FeatureItems).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return true
			}
			parts = append(parts, "- "+text)
			count++
			return count < e.profile.MaxFeatureLines
		})
	}

	description := strings.Join(parts, "\n")
	if max := e.profile.MaxDescriptionLen; max > 0 && len(description) > max {
		// cut on a rune boundary so the truncated text stays valid UTF-8
		cut := max
		for cut > 0 && !utf8.RuneStart(description[cut]) {
			cut--
		}
		description = description[:cut]
	}
	return description
}

// extractSpecs parses key/value pairs from the first spec structure that
// yields anything: definition lists, table rows, or colon-delimited items.
func (e *DetailExtractor) extractSpecs(doc *goquery.Document) map[string]string {
	for _, sel := range e.profile.Detail.SpecRows {
		specs := make(map[string]string)
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			switch goquery.NodeName(s) {
			case "dl":
				terms := s.Find("dt")
				values := s.Find("dd")
				terms.Each(func(i int, dt *goquery.Selection) {
					if i < values.Length() {
						key := strings.TrimSpace(dt.Text())
						val := strings.TrimSpace(values.Eq(i).Text())
						if key != "" && val != "" {
							specs[key] = val
						}
					}
				})
			case "tr":
				key := strings.TrimSpace(s.Find("th").First().Text())
				val := strings.TrimSpace(s.Find("td").Last().Text())
				if key == "" {
					cells := s.Find("td")
					if cells.Length() >= 2 {
						key = strings.TrimSpace(cells.First().Text())
						val = strings.TrimSpace(cells.Last().Text())
					}
				}
				if key != "" && val != "" {
					specs[key] = val
				}
			case "li":
				text := s.Text()
				if idx := strings.Index(text, ":"); idx > 0 {
					key := strings.TrimSpace(text[:idx])
					val := strings.TrimSpace(text[idx+1:])
					if key != "" && val != "" {
						specs[key] = val
					}
				}
			}
		})
		if len(specs) > 0 {
			return specs
		}
	}
	return nil
}

// imageAttr returns the usable image source attribute of an img selection.
func imageAttr(s *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
		if val, exists := s.Attr(attr); exists && strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

// ResolveImageURL finds the primary product image: prioritized element
// selectors first, then meta tags, then a scan for any image whose filename
// suggests a product photo. Empty result is not an error.
func ResolveImageURL(doc *goquery.Document, profile *SiteProfile) string {
	for _, sel := range profile.Detail.Image {
		found := doc.Find(sel)
		if found.Length() > 0 {
			if src := imageAttr(found.First()); src != "" {
				if abs, err := CanonicalURL(profile.BaseURL, src); err == nil {
					return abs
				}
			}
		}
	}
	for _, sel := range profile.Detail.ImageMeta {
		if content, exists := doc.Find(sel).Attr("content"); exists && content != "" {
			if abs, err := CanonicalURL(profile.BaseURL, content); err == nil {
				return abs
			}
		}
	}

	var fallback string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src := imageAttr(s)
		if src == "" {
			return true
		}
		lower := strings.ToLower(src)
		for _, hint := range productImageHints {
			if strings.Contains(lower, hint) {
				if abs, err := CanonicalURL(profile.BaseURL, src); err == nil {
					fallback = abs
					return false
				}
			}
		}
		return true
	})
	return fallback
}

// Extract fetches a product page and builds its ProductRecord. A missing
// name is a validation failure; every other field defaults to empty.
func (e *DetailExtractor) Extract(ctx context.Context, canonicalURL, category string) (*ProductRecord, error) {
	externalID, err := ExternalID(canonicalURL)
	if err != nil {
		return nil, err
	}

	body, err := e.fetcher.FetchPage(ctx, canonicalURL, e.profile.BaseURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, pkgerrors.NewParsing(canonicalURL, "failed to parse product page", err)
	}

	return e.ExtractFromDocument(doc, canonicalURL, externalID, category)
}

// ExtractFromDocument builds a ProductRecord from an already-parsed page.
func (e *DetailExtractor) ExtractFromDocument(doc *goquery.Document, canonicalURL, externalID, category string) (*ProductRecord, error) {
	name := cleanName(firstText(doc, e.profile.Detail.Name))
	if name == "" {
		return nil, pkgerrors.NewValidation(canonicalURL, "product name not found")
	}

	return &ProductRecord{
		ExternalID:     externalID,
		Name:           name,
		Brand:          firstText(doc, e.profile.Detail.Brand),
		Price:          firstText(doc, e.profile.Detail.Price),
		Category:       category,
		Description:    e.composeDescription(doc),
		Specs:          e.extractSpecs(doc),
		ImageSourceURL: ResolveImageURL(doc, e.profile),
		SourceURL:      canonicalURL,
	}, nil
}
