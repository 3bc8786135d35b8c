package commands

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

const maxPrefixLength = 3

var ErrInvalidPrefix = errors.New("prefix must be 1 to 3 characters without spaces")

// PrefixStore persists per-guild prefixes.
type PrefixStore interface {
	GetPrefix(guildID string) (string, bool, error)
	SetPrefix(guildID, prefix string) error
	EnsureGuild(guildID, prefix string) error
	DeleteGuild(guildID string) error
}

// Prefixes caches guild prefixes in front of an optional store.
type Prefixes struct {
	store    PrefixStore
	fallback string

	mu    sync.RWMutex
	cache map[string]string
}

func NewPrefixes(store PrefixStore, fallback string) *Prefixes {
	return &Prefixes{
		store:    store,
		fallback: fallback,
		cache:    make(map[string]string),
	}
}

func (p *Prefixes) Default() string {
	return p.fallback
}

func (p *Prefixes) Get(guildID string) string {
	p.mu.RLock()
	prefix, ok := p.cache[guildID]
	p.mu.RUnlock()
	if ok {
		return prefix
	}

	prefix = p.fallback
	if p.store != nil {
		stored, found, err := p.store.GetPrefix(guildID)
		switch {
		case err != nil:
			// Not cached so the next message retries the store.
			log.Warn().Err(err).Str("guild", guildID).Msg("Failed to load prefix")
			return p.fallback
		case found && stored != "":
			prefix = stored
		}
	}

	p.mu.Lock()
	p.cache[guildID] = prefix
	p.mu.Unlock()
	return prefix
}

func (p *Prefixes) Set(guildID, prefix string) error {
	if !validPrefix(prefix) {
		return ErrInvalidPrefix
	}
	if p.store != nil {
		if err := p.store.SetPrefix(guildID, prefix); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.cache[guildID] = prefix
	p.mu.Unlock()
	return nil
}

// Register creates the default settings row for a newly joined guild.
func (p *Prefixes) Register(guildID string) error {
	if p.store == nil {
		return nil
	}
	return p.store.EnsureGuild(guildID, p.fallback)
}

// Forget drops the cached and stored prefix of a guild the bot left.
func (p *Prefixes) Forget(guildID string) error {
	p.mu.Lock()
	delete(p.cache, guildID)
	p.mu.Unlock()
	if p.store == nil {
		return nil
	}
	return p.store.DeleteGuild(guildID)
}

func validPrefix(prefix string) bool {
	n := len([]rune(prefix))
	if n == 0 || n > maxPrefixLength {
		return false
	}
	for _, r := range prefix {
		if r == ' ' || r == '\t' || r == '\n' {
			return false
		}
	}
	return true
}
