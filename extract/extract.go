// Package extract turns rendered HTML into semi-structured candidate records
// using a site descriptor's selectors. A selector that matches nothing means
// "field absent" — extraction degrades, it never fails.
package extract

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"property-scraper/models"
	"property-scraper/registry"
)

// List extracts one page's candidate listings in a single pass over the
// document. Candidates without a resolvable source URL are kept — the
// normalizer and quality gate decide their fate, not the extractor.
func List(html string, d *registry.SiteDescriptor, pageIndex int) ([]*models.RawCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	sel := d.Selectors
	var out []*models.RawCandidate

	doc.Find(sel.ListItem).Each(func(_ int, item *goquery.Selection) {
		c := &models.RawCandidate{
			SiteKey:   d.Key,
			PageIndex: pageIndex,
			ScrapedAt: time.Now(),
		}

		c.Title = text(item, sel.Title)
		c.RawPrice = text(item, sel.Price)
		c.RawLocation = text(item, sel.Location)
		c.RawBedrooms = text(item, sel.Bedrooms)
		c.RawBaths = text(item, sel.Bathrooms)
		c.RawType = text(item, sel.PropertyType)
		c.SourceURL = href(item, sel.URL, d.BaseURL)
		if img := attr(item, sel.Image, "src"); img != "" {
			c.Images = append(c.Images, resolve(d.BaseURL, img))
		}

		out = append(out, c)
	})

	return out, nil
}

// Overlay holds the optional fields a detail page can contribute. Zero
// values leave the base candidate untouched.
type Overlay struct {
	Description string
	RawPrice    string
	RawLocation string
	Images      []string
}

// Detail extracts the enrichment overlay from a detail page.
func Detail(html string, d *registry.SiteDescriptor) (Overlay, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Overlay{}, err
	}

	sel := d.Selectors
	o := Overlay{
		Description: text(doc.Selection, sel.DetailDescription),
		RawPrice:    text(doc.Selection, sel.DetailPrice),
		RawLocation: text(doc.Selection, sel.DetailLocation),
	}
	if sel.DetailImage != "" {
		doc.Find(sel.DetailImage).Each(func(_ int, img *goquery.Selection) {
			if src, ok := img.Attr("src"); ok && src != "" {
				o.Images = append(o.Images, resolve(d.BaseURL, src))
			}
		})
	}
	return o, nil
}

// Apply overlays detail fields onto a base candidate. Enrichment only fills
// gaps or adds — it never erases list-page data.
func (o Overlay) Apply(c *models.RawCandidate) {
	if o.Description != "" {
		c.Description = o.Description
	}
	if c.RawPrice == "" && o.RawPrice != "" {
		c.RawPrice = o.RawPrice
	}
	if c.RawLocation == "" && o.RawLocation != "" {
		c.RawLocation = o.RawLocation
	}
	if len(o.Images) > 0 {
		c.Images = append(c.Images, o.Images...)
	}
}

// NextPageURL finds the next-page link on a numbered-pagination site.
// Returns "" when the selector matches nothing, which is the stop condition.
func NextPageURL(html string, d *registry.SiteDescriptor) (string, error) {
	if d.Pagination.NextPageSelector == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	link := doc.Find(d.Pagination.NextPageSelector).First()
	if next, ok := link.Attr("href"); ok && next != "" {
		return resolve(d.BaseURL, next), nil
	}
	return "", nil
}

// PageURL builds the URL for page n of a site that paginates via a query
// parameter instead of a next link. Page 1 is the plain start URL.
func PageURL(d *registry.SiteDescriptor, n int) string {
	start := d.StartURL()
	if n <= 1 || d.Pagination.PageParam == "" {
		return start
	}
	u, err := url.Parse(start)
	if err != nil {
		return start
	}
	q := u.Query()
	q.Set(d.Pagination.PageParam, strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(s.Find(selector).First().Text())
}

func attr(s *goquery.Selection, selector, name string) string {
	if selector == "" {
		return ""
	}
	v, _ := s.Find(selector).First().Attr(name)
	return strings.TrimSpace(v)
}

func href(s *goquery.Selection, selector, base string) string {
	if selector == "" {
		return ""
	}
	link := s.Find(selector).First()
	if h, ok := link.Attr("href"); ok && h != "" {
		return resolve(base, h)
	}
	return ""
}

// resolve makes a possibly relative href absolute against the site base URL.
func resolve(base, ref string) string {
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return refURL.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
