package commands

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"

	"github.com/hxnx/tempo/internal/music"
)

type sent struct {
	channel string
	text    string
	embed   *discordgo.MessageEmbed
}

type fakeOutput struct {
	mu    sync.Mutex
	bound map[string]string
	sent  []sent
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{bound: make(map[string]string)}
}

func (o *fakeOutput) Bind(guildID, channelID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bound[guildID] = channelID
}

func (o *fakeOutput) Send(channelID, message string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sent{channel: channelID, text: message})
}

func (o *fakeOutput) SendEmbed(channelID string, embed *discordgo.MessageEmbed, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sent{channel: channelID, embed: embed})
}

func (o *fakeOutput) last() sent {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		return sent{}
	}
	return o.sent[len(o.sent)-1]
}

func (o *fakeOutput) texts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, s := range o.sent {
		if s.embed == nil {
			out = append(out, s.text)
		}
	}
	return out
}

type fakeResolver struct {
	mu      sync.Mutex
	queries []string
	empty   bool
}

func (r *fakeResolver) Resolve(_ context.Context, _ string, query string, requester music.User) music.TrackSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	if r.empty {
		return music.TrackSet{}
	}
	return music.SingleTrack(music.ResolvedTrack{
		Title:       query,
		PlaybackURL: "stream://" + query,
		RequestedBy: requester,
	})
}

func (r *fakeResolver) ResolveText(_ context.Context, text string, requester music.User) (music.ResolvedTrack, error) {
	return music.ResolvedTrack{Title: text, PlaybackURL: "stream://" + text, RequestedBy: requester}, nil
}

func (r *fakeResolver) Queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

// fakeSink plays every stream until it is stopped.
type fakeSink struct {
	mu        sync.Mutex
	connected bool
	playing   bool
	paused    bool
	played    []string
	done      chan error
}

func (s *fakeSink) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *fakeSink) Play(_ context.Context, url string) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, url)
	s.playing = true
	s.paused = false
	s.done = make(chan error, 1)
	return s.done, nil
}

func (s *fakeSink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && !s.paused
}

func (s *fakeSink) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && s.paused
}

func (s *fakeSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing || s.paused {
		return errors.New("not playing")
	}
	s.paused = true
	return nil
}

func (s *fakeSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return errors.New("not paused")
	}
	s.paused = false
	return nil
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.playing = false
		s.paused = false
		s.done <- nil
	}
}

func (s *fakeSink) Disconnect() error {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *fakeSink) Played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.played...)
}

type fakeSearcher struct {
	results []music.SearchResult
}

func (f *fakeSearcher) Search(context.Context, string, int) ([]music.SearchResult, error) {
	if len(f.results) == 0 {
		return nil, music.ErrNoSongsFound
	}
	return f.results, nil
}

type memoryPrefixStore struct {
	mu       sync.Mutex
	prefixes map[string]string
	err      error
}

func (m *memoryPrefixStore) GetPrefix(guildID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	p, ok := m.prefixes[guildID]
	return p, ok, nil
}

func (m *memoryPrefixStore) SetPrefix(guildID, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.prefixes[guildID] = prefix
	return nil
}

func (m *memoryPrefixStore) EnsureGuild(guildID, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prefixes[guildID]; !ok {
		m.prefixes[guildID] = prefix
	}
	return nil
}

func (m *memoryPrefixStore) DeleteGuild(guildID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.prefixes, guildID)
	return nil
}
