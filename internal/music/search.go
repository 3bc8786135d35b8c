package music

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	zlog "github.com/rs/zerolog/log"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 10
	searchCacheTTL     = 5 * time.Minute
	searchTimeout      = 5 * time.Second
)

type SearchResult struct {
	Title string
	URL   string
}

// SearchFunc queries one provider.
type SearchFunc func(ctx context.Context, query string) ([]SearchResult, error)

type searchCacheEntry struct {
	results   []SearchResult
	expiresAt time.Time
}

// Searcher merges YouTube Music and YouTube results for the search command
// and caches them briefly.
type Searcher struct {
	providers []SearchFunc

	mu    sync.RWMutex
	cache map[string]searchCacheEntry
	now   func() time.Time
}

func NewSearcher(providers ...SearchFunc) *Searcher {
	if len(providers) == 0 {
		providers = []SearchFunc{searchYouTubeMusic, searchYouTube}
	}
	return &Searcher{
		providers: providers,
		cache:     make(map[string]searchCacheEntry),
		now:       time.Now,
	}
}

// Search queries every provider concurrently, keeping provider order and
// dropping duplicate URLs.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoSongsFound
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	key := strings.ToLower(query)
	if cached, ok := s.cached(key); ok {
		return truncateResults(cached, limit), nil
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	lists := make([][]SearchResult, len(s.providers))
	var wg sync.WaitGroup
	for i, provider := range s.providers {
		wg.Add(1)
		go func(i int, provider SearchFunc) {
			defer wg.Done()
			res, err := provider(ctx, query)
			if err != nil {
				zlog.Debug().Err(err).Str("query", query).Msg("search provider failed")
				return
			}
			lists[i] = res
		}(i, provider)
	}
	wg.Wait()

	seen := make(map[string]bool)
	var merged []SearchResult
	for _, list := range lists {
		for _, r := range list {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			merged = append(merged, r)
		}
	}
	if len(merged) == 0 {
		return nil, ErrNoSongsFound
	}

	s.store(key, merged)
	return truncateResults(merged, limit), nil
}

func (s *Searcher) cached(key string) ([]SearchResult, bool) {
	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.cache, key)
		s.mu.Unlock()
		return nil, false
	}
	return entry.results, true
}

func (s *Searcher) store(key string, results []SearchResult) {
	s.mu.Lock()
	s.cache[key] = searchCacheEntry{
		results:   results,
		expiresAt: s.now().Add(searchCacheTTL),
	}
	s.mu.Unlock()
}

func truncateResults(results []SearchResult, limit int) []SearchResult {
	if len(results) > limit {
		results = results[:limit]
	}
	out := make([]SearchResult, len(results))
	copy(out, results)
	return out
}

func searchYouTubeMusic(_ context.Context, query string) ([]SearchResult, error) {
	r, err := ytmusic.TrackSearch(query).Next()
	if err != nil {
		return nil, err
	}
	var out []SearchResult
	for _, v := range r.Tracks {
		if v.VideoID == "" {
			continue
		}
		title := v.Title
		if len(v.Artists) > 0 {
			title += " - " + v.Artists[0].Name
		}
		out = append(out, SearchResult{
			Title: title,
			URL:   "https://www.youtube.com/watch?v=" + v.VideoID,
		})
	}
	return out, nil
}

func searchYouTube(ctx context.Context, query string) ([]SearchResult, error) {
	c := ytsearch.NewClient(nil)
	r, err := c.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	var out []SearchResult
	for _, v := range r.Results {
		if v.VideoID == "" {
			continue
		}
		out = append(out, SearchResult{
			Title: v.Title,
			URL:   "https://www.youtube.com/watch?v=" + v.VideoID,
		})
	}
	return out, nil
}
