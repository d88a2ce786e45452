package crawler

import "fmt"

// DefaultProfile returns the site profile for the upstream retail site.
// Category targets are partitioned round-robin so independent processes can
// each take a disjoint subset without coordination.
func DefaultProfile(baseURL string, partitionCount int) *SiteProfile {
	if partitionCount < 1 {
		partitionCount = 1
	}

	categories := []struct {
		path  string
		label string
	}{
		{"/cat_guitars.html", "Electric Guitars"},
		{"/cat_acoustic_guitars.html", "Acoustic Guitars"},
		{"/cat_bass_guitars.html", "Bass Guitars"},
		{"/cat_amps.html", "Amplifiers"},
		{"/cat_effects.html", "Effects Pedals"},
		{"/cat_keyboards.html", "Keyboards"},
		{"/cat_drums.html", "Drums & Percussion"},
		{"/cat_studio.html", "Studio & Recording"},
		{"/cat_accessories.html", "Accessories"},
	}

	targets := make([]CategoryTarget, 0, len(categories))
	for i, c := range categories {
		targets = append(targets, CategoryTarget{
			URL:       fmt.Sprintf("%s%s", baseURL, c.path),
			Label:     c.label,
			Partition: i % partitionCount,
		})
	}

	return &SiteProfile{
		BaseURL:    baseURL,
		Categories: targets,

		PageParam: "page",
		SizeParam: "hitsPerPage",

		Listing: ListingSelectors{
			Containers: []string{
				"div.product-grid div.product-tile a[href]",
				"ul.product-list li.product a[href]",
				"div.search-results a.product-link[href]",
				"div.category-products a[href]",
			},
			Next: []string{
				"a.pagination-next",
				"li.pagination-next a",
				"a[rel='next']",
			},
			PagerItems: "ul.pagination li a.page-number",
			Last: []string{
				"a.pagination-last",
				"li.pagination-last a",
			},
			NoResults: []string{
				"div.no-results",
				"p.empty-category",
			},
			ResultSummary: "div.result-count",
		},

		Detail: DetailSelectors{
			Name: []string{
				"h1.product-title",
				"h1[itemprop='name']",
				"div.product-header h1",
			},
			Brand: []string{
				"span.product-brand",
				"a.brand-link",
				"[itemprop='brand']",
			},
			Price: []string{
				"span.price-current",
				"span[itemprop='price']",
				"div.product-price span.price",
			},
			Descriptions: []string{
				"div.product-description",
				"div#description div.content",
				"div[itemprop='description']",
			},
			FeatureItems: "ul.product-features li",
			SpecRows: []string{
				"dl.product-specs",
				"table.spec-table tr",
				"ul.spec-list li",
			},
			Image: []string{
				"img.product-image-main",
				"div.product-gallery img",
				"img[itemprop='image']",
			},
			ImageMeta: []string{
				"meta[property='og:image']",
				"meta[name='twitter:image']",
			},
		},

		NonProductFragments: []string{
			"/cat_", "/category/", "/wishlist", "/account", "/login",
			"/help", "/customer-service", "/brands/", "/brand_", "/cart",
			"/checkout", "/stores", "/giftcard",
		},

		MaxDescriptionLen: 3000,
		MaxFeatureLines:   5,
	}
}
