package crawler

import (
	"context"
	"io"
	"time"
)

// CategoryTarget is one listing root to walk. Targets are built once from the
// site profile and never mutated during a run.
type CategoryTarget struct {
	URL       string `json:"url"`
	Label     string `json:"label"`
	Partition int    `json:"partition"`
}

// ListingPage is the ephemeral result of fetching one listing page.
type ListingPage struct {
	URL        string
	PageIndex  int
	Candidates []string // canonical product URLs after filtering
	LastPage   bool
	EndReason  string // which heuristic decided the walk is over
}

// ProductRecord is the persisted unit of the catalog. A record is inserted
// once; only the image pipeline touches it afterwards, and only to add the
// image association.
type ProductRecord struct {
	ExternalID     string            `json:"external_id"`
	Name           string            `json:"name"`
	Brand          string            `json:"brand,omitempty"`
	Price          string            `json:"price,omitempty"`
	Category       string            `json:"category,omitempty"`
	Description    string            `json:"description,omitempty"`
	Specs          map[string]string `json:"specs,omitempty"`
	ImageSourceURL string            `json:"image_source_url,omitempty"`
	SourceURL      string            `json:"source_url"`

	ImageKey       string    `json:"image_key,omitempty"`
	ImageStoredURL string    `json:"image_stored_url,omitempty"`
	ImageFetchedAt time.Time `json:"image_fetched_at,omitzero"`
}

// PageFetcher is the fetch dependency of the crawl pipeline; satisfied by
// helpers.Fetcher and mocked in tests.
type PageFetcher interface {
	FetchPage(ctx context.Context, url, referer string) (io.Reader, error)
}

// ListingSelectors locates product anchors and pagination controls on a
// category listing page.
type ListingSelectors struct {
	// Containers is a prioritized list; the first selector yielding any
	// anchors wins.
	Containers []string

	Next          []string // "next page" controls
	PagerItems    string   // enumerated page-number controls
	Last          []string // explicit "last page" controls
	NoResults     []string // explicit empty-result markers
	ResultSummary string   // "showing X to Y of Z" text
}

// DetailSelectors locates fields on a product detail page. Each list is an
// ordered fallback chain evaluated first-match.
type DetailSelectors struct {
	Name         []string
	Brand        []string
	Price        []string
	Descriptions []string // all matching regions are concatenated
	FeatureItems string   // bullet-style feature lines
	SpecRows     []string // definition-list, table or colon-delimited items
	Image        []string // prioritized element selectors
	ImageMeta    []string // meta tags carrying the image URL
}

// SiteProfile carries everything site-specific: category roots, query
// parameter names and the selector sets. The harvesting engine itself stays
// generic.
type SiteProfile struct {
	BaseURL    string
	Categories []CategoryTarget

	PageParam string
	SizeParam string

	Listing ListingSelectors
	Detail  DetailSelectors

	// NonProductFragments rejects anchors whose path contains any fragment.
	NonProductFragments []string

	// MaxDescriptionLen bounds the composed description text.
	MaxDescriptionLen int

	// MaxFeatureLines bounds how many bullet lines join the description.
	MaxFeatureLines int
}
