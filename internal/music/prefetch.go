package music

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prefetcher periodically resolves the first unresolved entries of every
// queue so they are ready by the time they reach the head.
type Prefetcher struct {
	manager  *PlayerManager
	resolver Resolver
	interval time.Duration
	depth    int
	limiter  *rate.Limiter
}

func NewPrefetcher(manager *PlayerManager, resolver Resolver, interval time.Duration, depth int, perSecond float64) *Prefetcher {
	if interval <= 0 {
		interval = 20 * time.Second
	}
	if perSecond <= 0 {
		perSecond = 2
	}
	return &Prefetcher{
		manager:  manager,
		resolver: resolver,
		interval: interval,
		depth:    depth,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (f *Prefetcher) Run(ctx context.Context) {
	if f.depth <= 0 {
		return
	}
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := f.RunOnce(ctx); n > 0 {
				zlog.Debug().Int("resolved", n).Msg("prefetched queued tracks")
			}
		}
	}
}

// RunOnce does a single pass and reports how many entries it resolved.
// Entries resolved concurrently by a player are left untouched.
func (f *Prefetcher) RunOnce(ctx context.Context) int {
	resolved := 0
	for _, p := range f.manager.Players() {
		for _, t := range p.Queue().Unresolved(f.depth) {
			if err := f.limiter.Wait(ctx); err != nil {
				return resolved
			}
			u, _ := t.Unresolved()
			r, err := f.resolver.ResolveText(ctx, u.SearchText, u.RequestedBy)
			if err != nil {
				zlog.Debug().Err(err).Str("guild", p.GuildID()).Str("search", u.SearchText).Msg("prefetch failed")
				continue
			}
			if p.Queue().ResolveInPlace(t.ID, r) {
				resolved++
			}
		}
	}
	return resolved
}
