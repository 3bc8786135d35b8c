package commands

import (
	"sync"
	"time"

	"github.com/hxnx/tempo/internal/music"
)

const searchSessionTTL = 2 * time.Minute

type searchSession struct {
	results   []music.SearchResult
	createdAt time.Time
}

// searchSessions remembers the last search results per guild member so that
// a following play command can pick one by number.
type searchSessions struct {
	mu   sync.Mutex
	data map[string]searchSession
	now  func() time.Time
}

func newSearchSessions() *searchSessions {
	return &searchSessions{
		data: make(map[string]searchSession),
		now:  time.Now,
	}
}

func sessionKey(guildID, userID string) string {
	return guildID + ":" + userID
}

func (s *searchSessions) save(guildID, userID string, results []music.SearchResult) {
	if guildID == "" || userID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionKey(guildID, userID)] = searchSession{results: results, createdAt: s.now()}
}

// pick returns the 1-based choice from the member's live session and consumes
// the session.
func (s *searchSessions) pick(guildID, userID string, choice int) (music.SearchResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(guildID, userID)
	session, ok := s.data[key]
	if !ok {
		return music.SearchResult{}, false
	}
	if s.now().Sub(session.createdAt) > searchSessionTTL {
		delete(s.data, key)
		return music.SearchResult{}, false
	}
	if choice < 1 || choice > len(session.results) {
		return music.SearchResult{}, false
	}
	delete(s.data, key)
	return session.results[choice-1], true
}
