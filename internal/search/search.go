// ABOUTME: Web search lookup with result caching, merging, and relevance scoring
// ABOUTME: Fans out to all configured sources concurrently and collects what succeeded

package search

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/parley-gateway/internal/cache"
)

// DefaultMaxResults applies when the caller passes a non-positive limit
const DefaultMaxResults = 5

// Result is a single scored search hit.
type Result struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Snippet   string    `json:"snippet,omitempty"`
	Source    string    `json:"source"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Source is one upstream search provider.
type Source interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Lookup queries all configured sources, merges and scores their results,
// and memoizes the outcome per (query, limit, snippets) triple.
type Lookup struct {
	sources []Source
	cache   *cache.Cache[[]Result]
	trusted map[string]bool
	logger  *slog.Logger
}

// NewLookup creates a lookup over the given sources. Results are cached in
// the supplied cache; trustedSources names providers whose results get a
// score boost.
func NewLookup(sources []Source, resultCache *cache.Cache[[]Result], trustedSources []string, logger *slog.Logger) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	trusted := make(map[string]bool, len(trustedSources))
	for _, s := range trustedSources {
		trusted[s] = true
	}
	return &Lookup{
		sources: sources,
		cache:   resultCache,
		trusted: trusted,
		logger:  logger.With("component", "search"),
	}
}

// Search returns up to maxResults scored results for query, best first.
// Individual source failures are logged and contribute nothing; the call
// fails only if it cannot be attempted at all.
func (l *Lookup) Search(ctx context.Context, query string, maxResults int, includeSnippets bool) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	key := cacheKey(query, maxResults, includeSnippets)
	if cached, ok := l.cache.Get(key); ok {
		l.logger.Debug("search cache hit", "query", query)
		return cached, nil
	}

	// Fan out to every source; a failing source only loses its own results.
	// Slots keep the merge order deterministic regardless of completion order.
	slots := make([][]Result, len(l.sources))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range l.sources {
		g.Go(func() error {
			results, err := src.Search(gctx, query, maxResults)
			if err != nil {
				l.logger.Warn("search source failed", "source", src.Name(), "error", err)
				return nil
			}
			mu.Lock()
			slots[i] = results
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	var merged []Result
	for _, results := range slots {
		merged = append(merged, results...)
	}

	results := l.process(merged, maxResults, includeSnippets)
	l.cache.Set(key, results)
	return results, nil
}

// process cleans, dedupes, scores, sorts, and truncates merged results.
func (l *Lookup) process(merged []Result, maxResults int, includeSnippets bool) []Result {
	seen := make(map[string]bool, len(merged))
	results := make([]Result, 0, len(merged))

	for _, r := range merged {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true

		r.Title = cleanText(r.Title)
		if includeSnippets {
			r.Snippet = cleanText(r.Snippet)
		} else {
			r.Snippet = ""
		}
		r.Score = l.score(r, includeSnippets)
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// score rates a result on title shape, snippet shape, domain, and source trust.
func (l *Lookup) score(r Result, includeSnippets bool) float64 {
	var score float64

	if n := len(r.Title); n >= 20 && n <= 100 {
		score += 0.3
	}
	if includeSnippets {
		if n := len(r.Snippet); n >= 50 && n <= 300 {
			score += 0.3
		}
	}

	url := strings.ToLower(r.URL)
	if strings.Contains(url, ".edu") || strings.Contains(url, ".gov") || strings.Contains(url, ".org") {
		score += 0.2
	}

	if l.trusted[r.Source] {
		score += 0.2
	}

	return score
}

func cacheKey(query string, maxResults int, includeSnippets bool) string {
	return fmt.Sprintf("%s_%d_%t", query, maxResults, includeSnippets)
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	allowedPattern    = regexp.MustCompile(`[^\w\s.,!?-]`)
)

// cleanText strips markup and unusual characters from provider text.
// Only word characters, whitespace, and basic punctuation survive.
func cleanText(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = allowedPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
