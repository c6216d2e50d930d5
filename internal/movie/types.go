// Package movie defines the records and contracts shared by the pipeline stages.
package movie

import (
	"net/http"
	"net/url"
	"time"
)

// DefaultScore is the score carried by a record whose rating could not be read.
const DefaultScore = "0"

// PopularCandidate is a film that passed the schedule popularity threshold.
type PopularCandidate struct {
	Title      string `json:"title"`
	SourceLink string `json:"source_link"`
}

// ResolvedRecord ties a candidate to its catalog identity and rating.
type ResolvedRecord struct {
	Title       string `json:"title"`
	SourceLink  string `json:"source_link"`
	CatalogID   string `json:"catalog_id"`
	ReleaseYear int    `json:"release_year"`
	CatalogLink string `json:"catalog_link"`
	Score       string `json:"score"`
	// Rated is false when the search hit had no rating tag and Score holds DefaultScore.
	Rated bool `json:"rated"`
}

// Facts holds the detail-table fields the enricher recognizes.
type Facts struct {
	Country  string `json:"country,omitempty"`
	Director string `json:"director,omitempty"`
	Duration string `json:"duration,omitempty"`
	Premiere string `json:"premiere,omitempty"`
}

// Details is the metadata parsed from a film's detail page.
type Details struct {
	Genre       string            `json:"genre"`
	Creation    string            `json:"creation"`
	Description string            `json:"description"`
	ImageLink   string            `json:"img_link,omitempty"`
	Facts       Facts             `json:"facts"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// EnrichedRecord is the terminal, externally visible unit of the pipeline.
type EnrichedRecord struct {
	ResolvedRecord
	Details
}

// Enrich returns a new EnrichedRecord built from r and d. Neither input is retained.
func (r ResolvedRecord) Enrich(d Details) EnrichedRecord {
	out := EnrichedRecord{ResolvedRecord: r, Details: d}
	if d.Extra != nil {
		out.Extra = make(map[string]string, len(d.Extra))
		for k, v := range d.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Pools is the identity pool used to shape one pipeline run.
type Pools struct {
	Proxies    []string
	UserAgents []string
}

// FetchRequest captures everything needed for one shaped GET.
type FetchRequest struct {
	URL      string
	Params   url.Values
	Pools    Pools
	MinDelay time.Duration
	MaxDelay time.Duration
}

// FetchResponse is the result of a successful (2xx) fetch.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Proxy      string
	UserAgent  string
	Duration   time.Duration
}
