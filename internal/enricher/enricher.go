// Package enricher adds detail-page facts to resolved records.
package enricher

import (
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/affiche/internal/cache"
	"github.com/JakeFAU/affiche/internal/htmlutil"
	"github.com/JakeFAU/affiche/internal/movie"
)

const (
	detailOp = "detail_page"

	descriptionSelector = "p#ctl00_CenterPlaceHolder_ucMainPageContent_pEditorComments"
)

// Config holds the pacing for detail page requests.
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Enricher implements movie.Enricher.
type Enricher struct {
	cfg     Config
	fetcher movie.Fetcher
	cache   *cache.Cache
	logger  *zap.Logger
}

var _ movie.Enricher = (*Enricher)(nil)

// New builds an Enricher.
func New(cfg Config, fetcher movie.Fetcher, c *cache.Cache, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{cfg: cfg, fetcher: fetcher, cache: c, logger: logger.Named("enricher")}
}

// Enrich fetches the record's source page and merges its details into a new record.
func (e *Enricher) Enrich(ctx context.Context, pools movie.Pools, record movie.ResolvedRecord) (movie.EnrichedRecord, error) {
	body, err := e.cache.FetchBody(ctx, e.fetcher, detailOp, movie.FetchRequest{
		URL:      record.SourceLink,
		Pools:    pools,
		MinDelay: e.cfg.MinDelay,
		MaxDelay: e.cfg.MaxDelay,
	})
	if err != nil {
		return movie.EnrichedRecord{}, fmt.Errorf("detail page %s: %w", record.SourceLink, err)
	}
	details, err := Parse(body, record.SourceLink)
	if err != nil {
		return movie.EnrichedRecord{}, fmt.Errorf("detail page %s: %w", record.SourceLink, err)
	}
	return record.Enrich(details), nil
}

// Parse reads the details block of a film page.
func Parse(body []byte, pageURL string) (movie.Details, error) {
	doc, err := htmlutil.Parse(body)
	if err != nil {
		return movie.Details{}, err
	}
	content := doc.Find("div#content").First()
	if content.Length() == 0 {
		return movie.Details{}, fmt.Errorf("%w: no content region", movie.ErrParse)
	}

	details := movie.Details{}
	required := []struct {
		name     string
		selector string
		dst      *string
	}{
		{"genre", "div.b-tags", &details.Genre},
		{"creation", "span.creation", &details.Creation},
		{"description", descriptionSelector, &details.Description},
	}
	for _, field := range required {
		sel := content.Find(field.selector)
		if sel.Length() == 0 {
			return movie.Details{}, fmt.Errorf("%w: missing %s", movie.ErrParse, field.name)
		}
		*field.dst = htmlutil.Text(sel)
	}

	if src, ok := content.Find("img[src]").First().Attr("src"); ok {
		details.ImageLink = htmlutil.ResolveURL(pageURL, src)
	}

	content.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td, th")
		if cells.Length() < 2 {
			return
		}
		label := htmlutil.NormHeader(cells.Eq(0).Text())
		value := htmlutil.NormSpace(cells.Eq(1).Text())
		if label == "" || value == "" {
			return
		}
		if !setFact(&details.Facts, label, value) {
			if details.Extra == nil {
				details.Extra = make(map[string]string)
			}
			details.Extra[label] = value
		}
	})
	return details, nil
}

func setFact(facts *movie.Facts, label, value string) bool {
	switch label {
	case "country", "страна", "производство":
		facts.Country = value
	case "director", "режиссер", "режиссёр":
		facts.Director = value
	case "duration", "продолжительность", "время":
		facts.Duration = value
	case "premiere", "премьера", "премьера в россии":
		facts.Premiere = value
	default:
		return false
	}
	return true
}
