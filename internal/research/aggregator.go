package research

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"aikun/internal/logging"
	"aikun/internal/types"
)

// socialSites is the fixed allow-list for the social sub-fetch.
var socialSites = []string{"x.com", "instagram.com", "reddit.com", "youtube.com"}

// workingCap bounds the internal working set kept for ranking before the
// final citation cap is applied.
const workingCap = 8

// Tunables are the aggregation parameters operators may adjust at runtime.
type Tunables struct {
	Locale      string
	ResultCount int // raw results requested per sub-fetch
	RecencyDays int // freshness parameter R
	FinalCap    int // citations handed to the synthesizer
}

// Aggregator fans a query out to a general web fetch and a social fetch,
// then merges, deduplicates and caps the combined evidence set.
type Aggregator struct {
	search types.SearchClient
	cache  *Cache

	mu  sync.RWMutex
	tun Tunables
}

// NewAggregator creates an aggregator. cache may be nil to disable caching.
func NewAggregator(search types.SearchClient, cache *Cache, tun Tunables) *Aggregator {
	if tun.ResultCount <= 0 {
		tun.ResultCount = 6
	}
	if tun.RecencyDays <= 0 {
		tun.RecencyDays = 14
	}
	if tun.FinalCap <= 0 {
		tun.FinalCap = 2
	}
	return &Aggregator{search: search, cache: cache, tun: tun}
}

// Retune replaces the runtime tunables (config hot reload).
func (a *Aggregator) Retune(tun Tunables) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if tun.ResultCount > 0 {
		a.tun.ResultCount = tun.ResultCount
	}
	if tun.RecencyDays > 0 {
		a.tun.RecencyDays = tun.RecencyDays
	}
	if tun.FinalCap > 0 {
		a.tun.FinalCap = tun.FinalCap
	}
	if tun.Locale != "" {
		a.tun.Locale = tun.Locale
	}
}

func (a *Aggregator) tunables() Tunables {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tun
}

// RecencyBucket maps the freshness parameter R (days) onto the coarse
// time-range filters search backends actually expose.
func RecencyBucket(days int) string {
	switch {
	case days <= 7:
		return "w"
	case days <= 31:
		return "m"
	default:
		return "y"
	}
}

// SocialSiteFilter returns the OR-restricted site clause for the social
// sub-fetch.
func SocialSiteFilter() string {
	parts := make([]string, len(socialSites))
	for i, s := range socialSites {
		parts[i] = "site:" + s
	}
	return strings.Join(parts, " OR ")
}

// Aggregate issues the web and social sub-fetches concurrently and joins
// them into one bounded EvidenceBundle. A failed or timed-out sub-fetch
// contributes an empty list; aggregation itself never fails.
func (a *Aggregator) Aggregate(ctx context.Context, query string, intent types.Intent) types.EvidenceBundle {
	timer := logging.StartTimer(logging.CategoryResearch, "aggregate")
	defer timer.StopWithThreshold(15 * time.Second)

	tun := a.tunables()
	recency := RecencyBucket(tun.RecencyDays)

	webOpts := types.SearchOptions{
		Locale: tun.Locale,
		Max:    tun.ResultCount,
	}
	socialOpts := types.SearchOptions{
		Locale:     tun.Locale,
		Recency:    recency,
		SiteFilter: SocialSiteFilter(),
		Max:        tun.ResultCount,
	}

	var webResults, socialResults []types.SearchResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		webResults = a.fetch(gctx, query, webOpts)
		return nil
	})
	g.Go(func() error {
		socialResults = a.fetch(gctx, query, socialOpts)
		return nil
	})
	_ = g.Wait() // sub-fetch errors are absorbed in fetch

	// Social evidence is treated as higher-priority recent signal, so it is
	// merged ahead of web results. Dedup keys on the URL with its query
	// string stripped; first seen wins.
	merged := Deduplicate(append(socialResults, webResults...))
	if len(merged) > workingCap {
		merged = merged[:workingCap]
	}
	if len(merged) > tun.FinalCap {
		merged = merged[:tun.FinalCap]
	}

	logging.Research("aggregate %s: web=%d social=%d final=%d recency=%s",
		intent, len(webResults), len(socialResults), len(merged), recency)

	return types.EvidenceBundle{
		Query:   query,
		Results: merged,
		Recency: recency,
	}
}

// fetch runs one sub-fetch through the cache, absorbing errors into an
// empty result list.
func (a *Aggregator) fetch(ctx context.Context, query string, opts types.SearchOptions) []types.SearchResult {
	var key string
	if a.cache != nil {
		key = CacheKey(query, opts)
		if results, ok := a.cache.Get(key); ok {
			logging.ResearchDebug("cache hit for %q", query)
			return results
		}
	}

	results, err := a.search.Search(ctx, query, opts)
	if err != nil {
		logging.ResearchWarn("sub-fetch failed for %q: %v", query, err)
		return nil
	}
	if a.cache != nil {
		a.cache.Set(key, results)
	}
	return results
}

// Deduplicate collapses results whose URLs differ only in query string,
// preserving first-seen order.
func Deduplicate(results []types.SearchResult) []types.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]types.SearchResult, 0, len(results))
	for _, r := range results {
		key := stripQuery(r.Link)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// stripQuery removes the query string and fragment from a URL.
func stripQuery(link string) string {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		return link[:i]
	}
	return link
}
