package crawler

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"gearshed/catalogworker/logger"

	"github.com/PuerkitoBio/goquery"
)

// pageFacts is the input to one end-of-results heuristic.
type pageFacts struct {
	doc        *goquery.Document
	currentURL string
	pageIndex  int
	pageSize   int
	candidates int
	maxPages   int
}

// endHeuristic inspects a fetched listing page and either fires with a
// decision or passes. The chain is evaluated in order, first match wins;
// every firing heuristic means the current page is the last one.
type endHeuristic func(p *SiteProfile, f pageFacts) (reason string, fired bool)

var resultSummaryRe = regexp.MustCompile(`(?i)showing\s+(\d+)\s+(?:to|-)\s+(\d+)\s+of\s+(\d+)`)

// endHeuristics is the ordered decision chain. Ordering is load-bearing:
// markup-specific signals come before count-based fallbacks.
var endHeuristics = []endHeuristic{
	nextControlExhausted,
	enumeratedPagerAtMax,
	lastControlIsCurrent,
	noPagerControls,
	noResultsMarker,
	resultSummaryComplete,
	pageCeilingReached,
	partialPage,
}

func findFirst(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		found := doc.Find(sel)
		if found.Length() > 0 {
			return found
		}
	}
	return nil
}

func hasAnyPagerControl(p *SiteProfile, doc *goquery.Document) bool {
	if p.Listing.PagerItems != "" && doc.Find(p.Listing.PagerItems).Length() > 0 {
		return true
	}
	if findFirst(doc, p.Listing.Next) != nil {
		return true
	}
	if findFirst(doc, p.Listing.Last) != nil {
		return true
	}
	return false
}

// sameCanonical compares two page URLs after resolution against base. The
// query is kept because the page index lives there; only fragments are
// ignored.
func sameCanonical(base, href, current string) bool {
	baseURL, err := url.Parse(base)
	if err != nil {
		return false
	}
	a, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	b, err := url.Parse(strings.TrimSpace(current))
	if err != nil {
		return false
	}
	ra := baseURL.ResolveReference(a)
	rb := baseURL.ResolveReference(b)
	ra.Fragment = ""
	rb.Fragment = ""
	return ra.String() == rb.String()
}

// 1. A "next" control is absent, disabled, or points back at this page.
// Only applies when some pagination structure exists at all; a bare page is
// rule 4's territory.
func nextControlExhausted(p *SiteProfile, f pageFacts) (string, bool) {
	if !hasAnyPagerControl(p, f.doc) {
		return "", false
	}
	next := findFirst(f.doc, p.Listing.Next)
	if next == nil {
		return "next control absent", true
	}
	if next.HasClass("disabled") || next.Closest("li").HasClass("disabled") {
		return "next control disabled", true
	}
	if _, disabled := next.Attr("disabled"); disabled {
		return "next control disabled", true
	}
	href, exists := next.Attr("href")
	if !exists || href == "" || href == "#" {
		return "next control inert", true
	}
	if sameCanonical(p.BaseURL, href, f.currentURL) {
		return "next control self-referential", true
	}
	return "", false
}

// 2. Enumerated page numbers exist and this page is the highest among them.
func enumeratedPagerAtMax(p *SiteProfile, f pageFacts) (string, bool) {
	if p.Listing.PagerItems == "" {
		return "", false
	}
	items := f.doc.Find(p.Listing.PagerItems)
	if items.Length() == 0 {
		return "", false
	}
	maxIndex := 0
	items.Each(func(_ int, s *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(s.Text()))
		if err == nil && n > maxIndex {
			maxIndex = n
		}
	})
	if maxIndex > 0 && f.pageIndex >= maxIndex {
		return "current page is max enumerated page", true
	}
	return "", false
}

// 3. An explicit "last page" control points at the current URL.
func lastControlIsCurrent(p *SiteProfile, f pageFacts) (string, bool) {
	last := findFirst(f.doc, p.Listing.Last)
	if last == nil {
		return "", false
	}
	href, exists := last.Attr("href")
	if !exists {
		return "", false
	}
	if sameCanonical(p.BaseURL, href, f.currentURL) {
		return "last control points at current page", true
	}
	return "", false
}

// 4. No pagination controls anywhere; a short page means we are done, a full
// page means the category fits on a single page. Either way the walk ends.
func noPagerControls(p *SiteProfile, f pageFacts) (string, bool) {
	if hasAnyPagerControl(p, f.doc) {
		return "", false
	}
	if f.candidates < f.pageSize {
		return "no pager controls and partial page", true
	}
	return "no pager controls; single-page category", true
}

// 5. Explicit empty-result marker.
func noResultsMarker(p *SiteProfile, f pageFacts) (string, bool) {
	if findFirst(f.doc, p.Listing.NoResults) != nil {
		return "no-results marker present", true
	}
	return "", false
}

// 6. "Showing X to Y of Z" with Y >= Z.
func resultSummaryComplete(p *SiteProfile, f pageFacts) (string, bool) {
	if p.Listing.ResultSummary == "" {
		return "", false
	}
	text := strings.TrimSpace(f.doc.Find(p.Listing.ResultSummary).Text())
	if text == "" {
		return "", false
	}
	m := resultSummaryRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	y, errY := strconv.Atoi(m[2])
	z, errZ := strconv.Atoi(m[3])
	if errY == nil && errZ == nil && y >= z {
		return "result summary reports completion", true
	}
	return "", false
}

// 7. Hard ceiling against infinite pagination loops from broken markup.
func pageCeilingReached(_ *SiteProfile, f pageFacts) (string, bool) {
	if f.maxPages > 0 && f.pageIndex >= f.maxPages {
		return "page ceiling reached", true
	}
	return "", false
}

// 8. A page materially below the requested size is a strong partial-page
// signal even when pagination markup claims otherwise.
func partialPage(_ *SiteProfile, f pageFacts) (string, bool) {
	if f.pageSize > 0 && f.candidates > 0 && f.candidates < f.pageSize/2 {
		return "candidate count materially below page size", true
	}
	return "", false
}

// decideEndOfResults runs the heuristic chain; an empty reason means no
// heuristic fired and the walk continues.
func decideEndOfResults(p *SiteProfile, f pageFacts) (string, bool) {
	for _, h := range endHeuristics {
		if reason, fired := h(p, f); fired {
			return reason, true
		}
	}
	return "", false
}

// Walker drives the sequential pagination of one category. Page N+1 is never
// requested before page N's end-of-results decision.
type Walker struct {
	fetcher        PageFetcher
	profile        *SiteProfile
	pageSize       int
	maxPages       int
	emptyPageLimit int
}

// NewWalker builds a walker. The starting page is passed to Walk explicitly;
// progress is never kept in package state.
func NewWalker(fetcher PageFetcher, profile *SiteProfile, pageSize, maxPages, emptyPageLimit int) *Walker {
	if pageSize < 1 {
		pageSize = 100
	}
	if emptyPageLimit < 1 {
		emptyPageLimit = 3
	}
	return &Walker{
		fetcher:        fetcher,
		profile:        profile,
		pageSize:       pageSize,
		maxPages:       maxPages,
		emptyPageLimit: emptyPageLimit,
	}
}

// pageURL builds the listing URL for a page index, preserving an existing
// page-size parameter and defaulting it otherwise.
func (w *Walker) pageURL(categoryURL string, pageIndex int) (string, error) {
	parsed, err := url.Parse(categoryURL)
	if err != nil {
		return "", err
	}
	q := parsed.Query()
	q.Set(w.profile.PageParam, strconv.Itoa(pageIndex))
	if q.Get(w.profile.SizeParam) == "" {
		q.Set(w.profile.SizeParam, strconv.Itoa(w.pageSize))
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// Walk visits listing pages from startPage until an end-of-results decision
// or the consecutive-empty backstop, calling visit for every page. It returns
// the number of pages visited.
func (w *Walker) Walk(ctx context.Context, target CategoryTarget, startPage int, visit func(ListingPage)) (int, error) {
	log := logger.ForCategory(target.Label)
	if startPage < 1 {
		startPage = 1
	}

	visited := 0
	emptyRun := 0
	referer := w.profile.BaseURL

	for pageIndex := startPage; ; pageIndex++ {
		if ctx.Err() != nil {
			return visited, ctx.Err()
		}

		pageURL, err := w.pageURL(target.URL, pageIndex)
		if err != nil {
			return visited, err
		}

		body, err := w.fetcher.FetchPage(ctx, pageURL, referer)
		if err != nil {
			// A failed page counts toward the empty backstop instead of
			// aborting the category.
			log.Warn().Int("page", pageIndex).Err(err).Msg("Listing fetch failed; treating as empty page")
			visited++
			emptyRun++
			if emptyRun >= w.emptyPageLimit {
				log.Info().Int("page", pageIndex).Msg("Consecutive empty page limit reached")
				return visited, nil
			}
			referer = pageURL
			continue
		}

		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			log.Warn().Int("page", pageIndex).Err(err).Msg("Listing parse failed; treating as empty page")
			visited++
			emptyRun++
			if emptyRun >= w.emptyPageLimit {
				return visited, nil
			}
			referer = pageURL
			continue
		}

		candidates := ExtractProductLinks(doc, w.profile)
		reason, last := decideEndOfResults(w.profile, pageFacts{
			doc:        doc,
			currentURL: pageURL,
			pageIndex:  pageIndex,
			pageSize:   w.pageSize,
			candidates: len(candidates),
			maxPages:   w.maxPages,
		})

		page := ListingPage{
			URL:        pageURL,
			PageIndex:  pageIndex,
			Candidates: candidates,
			LastPage:   last,
			EndReason:  reason,
		}
		visit(page)
		visited++

		if len(candidates) == 0 {
			emptyRun++
		} else {
			emptyRun = 0
		}

		if last {
			log.Info().
				Int("page", pageIndex).
				Int("candidates", len(candidates)).
				Str("reason", reason).
				Msg("End of results")
			return visited, nil
		}
		if emptyRun >= w.emptyPageLimit {
			log.Info().Int("page", pageIndex).Msg("Consecutive empty page limit reached")
			return visited, nil
		}

		referer = pageURL
	}
}
