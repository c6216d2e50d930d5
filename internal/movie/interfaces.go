package movie

import "context"

// Fetcher performs a single shaped HTTP GET.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// IdentitySource supplies the proxy and user-agent pools for one run.
type IdentitySource interface {
	Pools(ctx context.Context) Pools
}

// Scanner emits the popular films of the schedule listing.
type Scanner interface {
	Scan(ctx context.Context, pools Pools, popLevel int) ([]PopularCandidate, error)
}

// Resolver maps a candidate to its catalog identity.
type Resolver interface {
	Resolve(ctx context.Context, pools Pools, candidate PopularCandidate) (ResolvedRecord, error)
}

// Enricher adds detail-page metadata to a resolved record.
type Enricher interface {
	Enrich(ctx context.Context, pools Pools, record ResolvedRecord) (EnrichedRecord, error)
}
