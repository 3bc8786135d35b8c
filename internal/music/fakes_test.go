package music

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

type fakeSink struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	played      []string
	playing     bool
	paused      bool
	done        chan error
	playErr     map[string]error
	streamErr   map[string]error
	connectErr  error
	connectGate chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{playErr: make(map[string]error), streamErr: make(map[string]error)}
}

func (s *fakeSink) Connect(context.Context) error {
	if s.connectGate != nil {
		<-s.connectGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connects++
	return nil
}

func (s *fakeSink) Play(_ context.Context, url string) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playErr[url]; err != nil {
		return nil, err
	}
	s.played = append(s.played, url)
	ch := make(chan error, 1)
	if err := s.streamErr[url]; err != nil {
		// The stream starts but dies straight away.
		ch <- err
		s.playing = false
		return ch, nil
	}
	s.playing = true
	s.paused = false
	s.done = ch
	return ch, nil
}

// Finish simulates the stream reaching its natural end.
func (s *fakeSink) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked()
}

func (s *fakeSink) endLocked() {
	if s.done != nil {
		s.done <- nil
		s.done = nil
	}
	s.playing = false
	s.paused = false
}

func (s *fakeSink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && !s.paused
}

func (s *fakeSink) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *fakeSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return errors.New("not playing")
	}
	s.paused = true
	return nil
}

func (s *fakeSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked()
}

func (s *fakeSink) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	return nil
}

func (s *fakeSink) Played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.played...)
}

func (s *fakeSink) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *fakeSink) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

type fakeResolver struct {
	mu     sync.Mutex
	tracks map[string]ResolvedTrack
	fail   map[string]bool
	panics map[string]bool
	calls  map[string]int
}

func newFakeResolver(tracks ...ResolvedTrack) *fakeResolver {
	r := &fakeResolver{
		tracks: make(map[string]ResolvedTrack),
		fail:   make(map[string]bool),
		panics: make(map[string]bool),
		calls:  make(map[string]int),
	}
	for _, t := range tracks {
		r.tracks[t.Title] = t
	}
	return r
}

func (r *fakeResolver) Resolve(_ context.Context, _ string, query string, requester User) TrackSet {
	t, err := r.ResolveText(context.Background(), query, requester)
	if err != nil {
		return TrackSet{}
	}
	return SingleTrack(t)
}

func (r *fakeResolver) ResolveText(_ context.Context, text string, requester User) (ResolvedTrack, error) {
	r.mu.Lock()
	r.calls[text]++
	fail, boom := r.fail[text], r.panics[text]
	t, ok := r.tracks[text]
	r.mu.Unlock()

	if boom {
		panic("resolver exploded on " + text)
	}
	if fail || !ok {
		return ResolvedTrack{}, errors.Wrap(ErrResolveFailed, text)
	}
	t.RequestedBy = requester
	return t, nil
}

func (r *fakeResolver) Calls(text string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[text]
}

type fakeMessenger struct {
	mu       sync.Mutex
	messages []string
}

func (m *fakeMessenger) Notify(_ string, message string, _ time.Duration) {
	m.mu.Lock()
	m.messages = append(m.messages, message)
	m.mu.Unlock()
}

func (m *fakeMessenger) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

func song(title string) ResolvedTrack {
	return ResolvedTrack{
		Title:       title,
		PlaybackURL: "https://stream.example/" + title,
		SourceURL:   "https://www.youtube.com/watch?v=" + title,
		Duration:    3 * time.Minute,
	}
}

func titles(tracks []Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.Title()
	}
	return out
}
