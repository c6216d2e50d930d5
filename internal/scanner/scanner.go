// Package scanner finds the films on the cinema schedule page that are shown in enough venues.
package scanner

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

// DefaultListingURL is the Moscow cinema schedule.
const DefaultListingURL = "https://www.afisha.ru/msk/schedule_cinema/"

const scanOp = "popular_movies"

// Config points the scanner at the listing page.
type Config struct {
	ListingURL string
	MinDelay   time.Duration
	MaxDelay   time.Duration
}

// Scanner implements movie.Scanner.
type Scanner struct {
	cfg     Config
	fetcher movie.Fetcher
	cache   *cache.Cache
	logger  *zap.Logger
}

var _ movie.Scanner = (*Scanner)(nil)

// New builds a Scanner.
func New(cfg Config, fetcher movie.Fetcher, c *cache.Cache, logger *zap.Logger) *Scanner {
	if cfg.ListingURL == "" {
		cfg.ListingURL = DefaultListingURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{cfg: cfg, fetcher: fetcher, cache: c, logger: logger.Named("scanner")}
}

// Scan returns every listed film shown in more than popLevel venues, in page order.
// The listing page being unreachable is the only error.
func (s *Scanner) Scan(ctx context.Context, pools movie.Pools, popLevel int) ([]movie.PopularCandidate, error) {
	return cache.Memoize(ctx, s.cache, scanOp, []any{popLevel}, func(ctx context.Context) ([]movie.PopularCandidate, error) {
		resp, err := s.fetcher.Fetch(ctx, movie.FetchRequest{
			URL:      s.cfg.ListingURL,
			Pools:    pools,
			MinDelay: s.cfg.MinDelay,
			MaxDelay: s.cfg.MaxDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch listing: %w", err)
		}
		candidates, err := Parse(resp.Body, s.cfg.ListingURL, popLevel)
		if err != nil {
			return nil, err
		}
		s.logger.Info("listing scanned", zap.Int("pop_level", popLevel), zap.Int("popular", len(candidates)))
		return candidates, nil
	})
}

// Parse extracts popular candidates from a listing page. A film block's venue
// count is the number of rows in the first table at or after the block in document order.
func Parse(body []byte, pageURL string, popLevel int) ([]movie.PopularCandidate, error) {
	doc, err := htmlutil.Parse(body)
	if err != nil {
		return nil, err
	}

	type block struct {
		sel    *goquery.Selection
		venues int
	}
	var (
		blocks  []*block
		pending []*block
	)
	// the union selection is in document order
	doc.Find("div.m-disp-table, table").Each(func(_ int, sel *goquery.Selection) {
		if sel.Is("div.m-disp-table") {
			b := &block{sel: sel}
			blocks = append(blocks, b)
			pending = append(pending, b)
			return
		}
		rows := sel.Find("tr").Length()
		for _, b := range pending {
			b.venues = rows
		}
		pending = pending[:0]
	})

	candidates := make([]movie.PopularCandidate, 0, len(blocks))
	for _, b := range blocks {
		if b.venues <= popLevel {
			continue
		}
		anchor := b.sel.Find("a").First()
		title := htmlutil.Text(anchor)
		href, _ := anchor.Attr("href")
		link := htmlutil.ResolveURL(pageURL, href)
		if title == "" || link == "" {
			continue
		}
		candidates = append(candidates, movie.PopularCandidate{Title: title, SourceLink: link})
	}
	return candidates, nil
}
