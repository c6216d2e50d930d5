// Package resolver matches a listed film title to its catalog entry.
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/affiche/internal/cache"
	"github.com/JakeFAU/affiche/internal/htmlutil"
	"github.com/JakeFAU/affiche/internal/movie"
)

// DefaultSearchURL is the catalog search endpoint.
const DefaultSearchURL = "https://www.kinopoisk.ru/index.php"

const (
	searchOp = "catalog_search"
	// only the top results are considered when picking a match
	maxCandidates = 2
)

var (
	yearExpr = regexp.MustCompile(`\d{4}`)
	idExpr   = regexp.MustCompile(`\d{5,7}`)
)

// Config points the resolver at the catalog.
type Config struct {
	SearchURL string
	MinDelay  time.Duration
	MaxDelay  time.Duration
}

// Resolver implements movie.Resolver.
type Resolver struct {
	cfg     Config
	fetcher movie.Fetcher
	cache   *cache.Cache
	logger  *zap.Logger
}

var _ movie.Resolver = (*Resolver)(nil)

// New builds a Resolver.
func New(cfg Config, fetcher movie.Fetcher, c *cache.Cache, logger *zap.Logger) *Resolver {
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, fetcher: fetcher, cache: c, logger: logger.Named("resolver")}
}

// Resolve searches the catalog for candidate.Title and picks the best match.
func (r *Resolver) Resolve(ctx context.Context, pools movie.Pools, candidate movie.PopularCandidate) (movie.ResolvedRecord, error) {
	body, err := r.cache.FetchBody(ctx, r.fetcher, searchOp, movie.FetchRequest{
		URL: r.cfg.SearchURL,
		Params: url.Values{
			"first":    {"no"},
			"what":     {""},
			"kp_query": {candidate.Title},
		},
		Pools:    pools,
		MinDelay: r.cfg.MinDelay,
		MaxDelay: r.cfg.MaxDelay,
	})
	if err != nil {
		return movie.ResolvedRecord{}, fmt.Errorf("search %q: %w", candidate.Title, err)
	}
	record, err := Parse(body, r.cfg.SearchURL, candidate)
	if err != nil {
		return movie.ResolvedRecord{}, fmt.Errorf("resolve %q: %w", candidate.Title, err)
	}
	r.logger.Debug("resolved",
		zap.String("title", record.Title),
		zap.String("catalog_id", record.CatalogID),
		zap.Int("year", record.ReleaseYear),
	)
	return record, nil
}

// Parse picks the newest of the first two search results; on equal years the earlier result wins.
func Parse(body []byte, pageURL string, candidate movie.PopularCandidate) (movie.ResolvedRecord, error) {
	doc, err := htmlutil.Parse(body)
	if err != nil {
		return movie.ResolvedRecord{}, err
	}
	results := doc.Find("div.element")
	if results.Length() == 0 {
		return movie.ResolvedRecord{}, movie.ErrNoSearchResults
	}

	var (
		chosen   *goquery.Selection
		bestYear int
	)
	results.Slice(0, min(maxCandidates, results.Length())).Each(func(_ int, el *goquery.Selection) {
		year := releaseYear(el)
		if chosen == nil || year > bestYear {
			chosen, bestYear = el, year
		}
	})

	href, _ := chosen.Find("div.info").First().Find("p").First().Find("a").First().Attr("href")
	if href == "" {
		return movie.ResolvedRecord{}, fmt.Errorf("%w: result has no catalog link", movie.ErrParse)
	}
	id := idExpr.FindString(href)
	if id == "" {
		return movie.ResolvedRecord{}, fmt.Errorf("%w: no catalog id in %q", movie.ErrParse, href)
	}

	record := movie.ResolvedRecord{
		Title:       candidate.Title,
		SourceLink:  candidate.SourceLink,
		CatalogID:   id,
		ReleaseYear: bestYear,
		CatalogLink: htmlutil.ResolveURL(pageURL, href),
		Score:       movie.DefaultScore,
	}
	if score := htmlutil.Text(chosen.Find("div.rating")); score != "" {
		record.Score = score
		record.Rated = true
	}
	return record, nil
}

func releaseYear(el *goquery.Selection) int {
	match := yearExpr.FindString(el.Find("span.year").First().Text())
	if match == "" {
		return 0
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return year
}
