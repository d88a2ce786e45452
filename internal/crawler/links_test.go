package crawler

import (
	"fmt"
	"strings"
	"testing"

	pkgerrors "gearshed/catalogworker/pkg/errors"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
)

const baseURL = "https://www.strumhouse.com"

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	assert.NoError(t, err)
	return doc
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name     string
		href     string
		expected string
	}{
		{
			name:     "relative path resolved against base",
			href:     "/prod_fender_strat_0144.html",
			expected: baseURL + "/prod_fender_strat_0144.html",
		},
		{
			name:     "query parameters stripped",
			href:     "/prod_fender_strat_0144.html?ref=listing&pos=3",
			expected: baseURL + "/prod_fender_strat_0144.html",
		},
		{
			name:     "fragment stripped",
			href:     "/prod_fender_strat_0144.html#reviews",
			expected: baseURL + "/prod_fender_strat_0144.html",
		},
		{
			name:     "absolute URL kept",
			href:     "https://www.strumhouse.com/prod_gibson_lp_0290.html?sid=abc",
			expected: baseURL + "/prod_gibson_lp_0290.html",
		},
		{
			name:     "surrounding whitespace trimmed",
			href:     "  /prod_ibanez_rg_0777.html  ",
			expected: baseURL + "/prod_ibanez_rg_0777.html",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(baseURL, tt.href)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExternalID(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
		wantErr  bool
	}{
		{
			name:     "extension stripped",
			url:      baseURL + "/prod_fender_strat_0144.html",
			expected: "prod_fender_strat_0144",
		},
		{
			name:     "nested path takes final segment",
			url:      baseURL + "/guitars/prod_gibson_lp_0290.html",
			expected: "prod_gibson_lp_0290",
		},
		{
			name:     "no extension",
			url:      baseURL + "/prod_marshall_dsl40",
			expected: "prod_marshall_dsl40",
		},
		{
			name:    "root URL has no path segment",
			url:     baseURL + "/",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExternalID(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, pkgerrors.ErrorTypeValidation, pkgerrors.TypeOf(err))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLooksLikeProductSlug(t *testing.T) {
	tests := []struct {
		segment  string
		expected bool
	}{
		{"prod_fender_strat_0144.html", true}, // separators and digits
		{"fender-player-stratocaster", true},  // two separators
		{"item9042.html", true},               // digits, length 8
		{"some-extraordinarily-long-descriptive-slug", true},
		{"about.html", false},   // too short
		{"shipping", false},     // no separators, digits, not long
		{"new-deals", false},    // one separator, no digits, short
		{"contact.html", false}, // one segment, no signal
	}

	for _, tt := range tests {
		t.Run(tt.segment, func(t *testing.T) {
			assert.Equal(t, tt.expected, looksLikeProductSlug(tt.segment))
		})
	}
}

func TestExtractProductLinks(t *testing.T) {
	profile := DefaultProfile(baseURL, 1)

	var b strings.Builder
	b.WriteString(`<html><body><div class="product-grid">`)
	// ten genuine product anchors, one duplicated with a tracking query
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, `<div class="product-tile"><a href="/prod_guitar_%04d.html">Guitar %d</a></div>`, i, i)
	}
	b.WriteString(`<div class="product-tile"><a href="/prod_guitar_0003.html?ref=grid">Guitar 3 again</a></div>`)
	// denylisted and implausible anchors mixed in
	b.WriteString(`<div class="product-tile"><a href="/cat_amps.html">Amplifiers</a></div>`)
	b.WriteString(`<div class="product-tile"><a href="/wishlist/add-item-12345">Save</a></div>`)
	b.WriteString(`<div class="product-tile"><a href="/account/order-history-page">Orders</a></div>`)
	b.WriteString(`<div class="product-tile"><a href="/brands/fender-musical-instruments">Fender</a></div>`)
	b.WriteString(`<div class="product-tile"><a href="/help.html">Help</a></div>`)
	b.WriteString(`</div></body></html>`)

	doc := mustDoc(t, b.String())
	links := ExtractProductLinks(doc, profile)

	assert.Len(t, links, 10)
	assert.Equal(t, baseURL+"/prod_guitar_0000.html", links[0])
	for _, link := range links {
		assert.NotContains(t, link, "?")
		assert.NotContains(t, link, "/cat_")
		assert.NotContains(t, link, "/wishlist")
	}
}

func TestExtractProductLinksSelectorPriority(t *testing.T) {
	profile := DefaultProfile(baseURL, 1)

	// Page uses the second container layout only
	html := `<html><body><ul class="product-list">
		<li class="product"><a href="/prod_boss_ds1_0001.html">DS-1</a></li>
		<li class="product"><a href="/prod_boss_bd2_0002.html">BD-2</a></li>
	</ul></body></html>`

	links := ExtractProductLinks(mustDoc(t, html), profile)
	assert.Equal(t, []string{
		baseURL + "/prod_boss_ds1_0001.html",
		baseURL + "/prod_boss_bd2_0002.html",
	}, links)
}

func TestExtractProductLinksEmptyPage(t *testing.T) {
	profile := DefaultProfile(baseURL, 1)
	links := ExtractProductLinks(mustDoc(t, `<html><body><div class="product-grid"></div></body></html>`), profile)
	assert.Empty(t, links)
}
