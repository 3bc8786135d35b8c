package music

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// PlayerManager maps guild IDs to their players.
type PlayerManager struct {
	mu      sync.RWMutex
	players map[string]*Player
	opts    PlayerOptions
}

func NewPlayerManager(opts PlayerOptions) *PlayerManager {
	if opts.Settings == nil {
		opts.Settings = NewMemorySettings()
	}
	return &PlayerManager{
		players: make(map[string]*Player),
		opts:    opts,
	}
}

// Join registers a guild, creating its player if it does not exist yet.
func (m *PlayerManager) Join(guildID string) *Player {
	return m.Get(guildID)
}

func (m *PlayerManager) Get(guildID string) *Player {
	m.mu.RLock()
	p, ok := m.players[guildID]
	m.mu.RUnlock()
	if ok {
		return p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[guildID]; ok {
		return p
	}
	p = NewPlayer(guildID, m.opts)
	m.players[guildID] = p
	return p
}

func (m *PlayerManager) Lookup(guildID string) (*Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[guildID]
	return p, ok
}

// Leave tears down the guild's player and forgets it along with its stored
// settings.
func (m *PlayerManager) Leave(guildID string) {
	m.mu.Lock()
	p, ok := m.players[guildID]
	delete(m.players, guildID)
	m.mu.Unlock()

	if ok {
		if err := p.Disconnect(); err != nil && !errors.Is(err, ErrNotConnected) {
			zlog.Warn().Err(err).Str("guild", guildID).Msg("failed to disconnect on leave")
		}
		p.Clear()
	}
	if err := m.opts.Settings.Forget(context.Background(), guildID); err != nil {
		zlog.Warn().Err(err).Str("guild", guildID).Msg("failed to forget guild settings")
	}
}

func (m *PlayerManager) Players() []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	return out
}

// Shutdown disconnects every connected player.
func (m *PlayerManager) Shutdown() {
	for _, p := range m.Players() {
		if p.Connected() {
			_ = p.Disconnect()
		}
	}
}

func (m *PlayerManager) Queue(guildID string) *Queue {
	return m.Get(guildID).Queue()
}

func (m *PlayerManager) Enqueue(guildID string, set TrackSet, pos Position) ([]Track, error) {
	return m.Get(guildID).Enqueue(set, pos)
}

func (m *PlayerManager) Clear(guildID string) {
	m.Get(guildID).Clear()
}

func (m *PlayerManager) RemoveAt(guildID string, displayIndex int) (Track, error) {
	return m.Get(guildID).RemoveAt(displayIndex)
}

func (m *PlayerManager) Shuffle(guildID string) {
	m.Get(guildID).Shuffle()
}

func (m *PlayerManager) StartOrResume(ctx context.Context, guildID string, sink VoiceSink) error {
	return m.Get(guildID).StartOrResume(ctx, sink)
}

func (m *PlayerManager) SetLoop(ctx context.Context, guildID string, on bool) error {
	return m.Get(guildID).SetLoop(ctx, on)
}

func (m *PlayerManager) Loop(ctx context.Context, guildID string) bool {
	return m.Get(guildID).Loop(ctx)
}

func (m *PlayerManager) Skip(ctx context.Context, guildID string, n int) (int, error) {
	return m.Get(guildID).Skip(ctx, n)
}

func (m *PlayerManager) Pause(guildID string) error {
	return m.Get(guildID).Pause()
}

func (m *PlayerManager) Resume(guildID string) error {
	return m.Get(guildID).Resume()
}

func (m *PlayerManager) Disconnect(guildID string) error {
	return m.Get(guildID).Disconnect()
}

func (m *PlayerManager) NowPlaying(guildID string) (Track, bool) {
	return m.Get(guildID).NowPlaying()
}

func (m *PlayerManager) State(guildID string) State {
	return m.Get(guildID).State()
}
