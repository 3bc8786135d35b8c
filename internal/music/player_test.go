package music

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type playerFixture struct {
	player    *Player
	sink      *fakeSink
	resolver  *fakeResolver
	messenger *fakeMessenger
	settings  *MemorySettings
}

func newPlayerFixture(t *testing.T, idle time.Duration, tracks ...ResolvedTrack) *playerFixture {
	t.Helper()
	f := &playerFixture{
		sink:      newFakeSink(),
		resolver:  newFakeResolver(tracks...),
		messenger: &fakeMessenger{},
		settings:  NewMemorySettings(),
	}
	f.player = NewPlayer("guild", PlayerOptions{
		IdleTimeout: idle,
		Resolver:    f.resolver,
		Messenger:   f.messenger,
		Settings:    f.settings,
	})
	t.Cleanup(func() { _ = f.player.Disconnect() })
	return f
}

func (f *playerFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.player.StartOrResume(context.Background(), f.sink))
}

func (f *playerFixture) enqueue(t *testing.T, tracks ...Track) {
	t.Helper()
	_, err := f.player.Enqueue(TrackSet{Tracks: tracks}, PositionTail)
	require.NoError(t, err)
}

func (f *playerFixture) waitPlayed(t *testing.T, urls ...string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(urls, f.sink.Played())
	}, waitFor, tick, "played %v, want %v", f.sink.Played(), urls)
}

func (f *playerFixture) waitState(t *testing.T, s State) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return f.player.State() == s
	}, waitFor, tick, "state %s, want %s", f.player.State(), s)
}

func streamURL(title string) string {
	return song(title).PlaybackURL
}

func TestPlayerPlaysThenIdlesOut(t *testing.T) {
	f := newPlayerFixture(t, 50*time.Millisecond)
	f.enqueue(t, NewResolvedTrack(song("A")))
	assert.Equal(t, StateIdle, f.player.State())

	f.start(t)
	f.waitPlayed(t, streamURL("A"))
	f.waitState(t, StatePlaying)

	np, ok := f.player.NowPlaying()
	require.True(t, ok)
	assert.Equal(t, "A", np.Title())

	f.sink.Finish()

	f.waitState(t, StateIdle)
	assert.Eventually(t, func() bool { return f.sink.Disconnects() == 1 }, waitFor, tick)
	assert.Equal(t, 0, f.player.Queue().Len())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.sink.Disconnects())
	assert.True(t, errors.Is(f.player.Disconnect(), ErrNotConnected))
	assert.Equal(t, 1, f.sink.Disconnects())
}

func TestPlayerDrainingResumesOnEnqueue(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	f.enqueue(t, NewResolvedTrack(song("A")))
	f.start(t)
	f.waitPlayed(t, streamURL("A"))

	f.sink.Finish()
	f.waitState(t, StateDraining)

	f.enqueue(t, NewResolvedTrack(song("B")))
	f.waitPlayed(t, streamURL("A"), streamURL("B"))
	f.waitState(t, StatePlaying)
	assert.Equal(t, 0, f.sink.Disconnects())
}

func TestPlayerResolvesLazily(t *testing.T) {
	f := newPlayerFixture(t, time.Minute, song("x"))
	f.enqueue(t, NewUnresolvedTrack("x", User{ID: "1", Name: "alice"}))
	f.start(t)

	f.waitPlayed(t, streamURL("x"))
	head, ok := f.player.Queue().Head()
	require.True(t, ok)
	r, ok := head.Resolved()
	require.True(t, ok)
	assert.Equal(t, "alice", r.RequestedBy.Name)
	assert.Equal(t, 1, f.resolver.Calls("x"))
}

func TestPlayerDropsUnresolvableTrack(t *testing.T) {
	f := newPlayerFixture(t, time.Minute, song("y"))
	f.resolver.fail["bad"] = true
	f.enqueue(t, NewUnresolvedTrack("bad", User{}), NewUnresolvedTrack("y", User{}))
	f.start(t)

	f.waitPlayed(t, streamURL("y"))
	assert.Equal(t, []string{"y"}, titles(f.player.Queue().Snapshot()))
	assert.Contains(t, f.messenger.Messages(), "Could not find **bad**, skipping.")
}

func TestPlayerDropsTrackThatFailsToStart(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	f.sink.playErr[streamURL("A")] = errors.New("codec")
	f.enqueue(t, NewResolvedTrack(song("A")), NewResolvedTrack(song("B")))
	f.start(t)

	f.waitPlayed(t, streamURL("B"))
	assert.Equal(t, []string{"B"}, titles(f.player.Queue().Snapshot()))
}

func TestPlayerDropsBrokenStreamWhenLooping(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	require.NoError(t, f.player.SetLoop(context.Background(), true))
	f.sink.streamErr[streamURL("A")] = errors.New("ffmpeg: 403 Forbidden")
	f.enqueue(t, NewResolvedTrack(song("A")), NewResolvedTrack(song("B")))
	f.start(t)

	f.waitPlayed(t, streamURL("A"), streamURL("B"))
	assert.Equal(t, []string{"B"}, titles(f.player.Queue().Snapshot()))
	assert.Contains(t, f.messenger.Messages(), "Could not play **A**, skipping.")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{streamURL("A"), streamURL("B")}, f.sink.Played())
}

func TestPlayerBrokenOnlyTrackDrains(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	require.NoError(t, f.player.SetLoop(context.Background(), true))
	f.sink.streamErr[streamURL("A")] = errors.New("dead url")
	f.enqueue(t, NewResolvedTrack(song("A")))
	f.start(t)

	f.waitState(t, StateDraining)
	assert.Equal(t, 0, f.player.Queue().Len())
	assert.Equal(t, []string{streamURL("A")}, f.sink.Played())
}

func TestPlayerRecoversFromPanic(t *testing.T) {
	f := newPlayerFixture(t, time.Minute, song("A"))
	f.resolver.panics["boom"] = true
	f.enqueue(t, NewUnresolvedTrack("boom", User{}), NewResolvedTrack(song("A")))
	f.start(t)

	f.waitPlayed(t, streamURL("A"))
	assert.Equal(t, []string{"A"}, titles(f.player.Queue().Snapshot()))
}

func TestPlayerLoopRotatesOnCompletion(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	require.NoError(t, f.player.SetLoop(context.Background(), true))
	f.enqueue(t, NewResolvedTrack(song("A")), NewResolvedTrack(song("B")))
	f.start(t)
	f.waitPlayed(t, streamURL("A"))

	f.sink.Finish()
	f.waitPlayed(t, streamURL("A"), streamURL("B"))
	assert.Equal(t, []string{"B", "A"}, titles(f.player.Queue().Snapshot()))
}

func TestPlayerSkip(t *testing.T) {
	tests := []struct {
		name      string
		queue     []string
		n         int
		loop      bool
		moved     int
		played    []string
		remaining []string
	}{
		{name: "next", queue: []string{"A", "B", "C"}, n: 1, moved: 1, played: []string{"A", "B"}, remaining: []string{"B", "C"}},
		{name: "beyond length", queue: []string{"A", "B"}, n: 5, moved: 1, played: []string{"A", "B"}, remaining: []string{"B"}},
		{name: "several", queue: []string{"A", "B", "C", "D"}, n: 2, moved: 2, played: []string{"A", "C"}, remaining: []string{"C", "D"}},
		{name: "looped single entry replays", queue: []string{"A"}, n: 1, loop: true, moved: 0, played: []string{"A", "A"}, remaining: []string{"A"}},
		{name: "looped rotates skipped", queue: []string{"A", "B", "C"}, n: 1, loop: true, moved: 1, played: []string{"A", "B"}, remaining: []string{"B", "C", "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPlayerFixture(t, time.Minute)
			require.NoError(t, f.player.SetLoop(context.Background(), tt.loop))
			for _, name := range tt.queue {
				f.enqueue(t, NewResolvedTrack(song(name)))
			}
			f.start(t)
			f.waitPlayed(t, streamURL(tt.queue[0]))

			moved, err := f.player.Skip(context.Background(), tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.moved, moved)

			want := make([]string, len(tt.played))
			for i, name := range tt.played {
				want[i] = streamURL(name)
			}
			f.waitPlayed(t, want...)
			assert.Equal(t, tt.remaining, titles(f.player.Queue().Snapshot()))
		})
	}
}

func TestPlayerSkipLastTrackDrains(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	f.enqueue(t, NewResolvedTrack(song("A")))
	f.start(t)
	f.waitPlayed(t, streamURL("A"))

	moved, err := f.player.Skip(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, moved)

	f.waitState(t, StateDraining)
	assert.Equal(t, 0, f.player.Queue().Len())
}

func TestPlayerSkipWhenIdle(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	_, err := f.player.Skip(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrNotPlaying))
}

func TestPlayerPauseResume(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	assert.True(t, errors.Is(f.player.Pause(), ErrNotPlaying))
	assert.True(t, errors.Is(f.player.Resume(), ErrNotPaused))

	f.enqueue(t, NewResolvedTrack(song("A")), NewResolvedTrack(song("B")))
	f.start(t)
	f.waitPlayed(t, streamURL("A"))

	require.NoError(t, f.player.Pause())
	assert.Equal(t, StatePaused, f.player.State())
	assert.True(t, f.sink.IsPaused())
	assert.True(t, errors.Is(f.player.Pause(), ErrNotPlaying))

	require.NoError(t, f.player.Resume())
	assert.Equal(t, StatePlaying, f.player.State())
	assert.False(t, f.sink.IsPaused())
	assert.True(t, errors.Is(f.player.Resume(), ErrNotPaused))

	assert.Equal(t, 2, f.player.Queue().Len())
}

func TestPlayerStartOrResumeResumesPaused(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	f.enqueue(t, NewResolvedTrack(song("A")))
	f.start(t)
	f.waitPlayed(t, streamURL("A"))
	require.NoError(t, f.player.Pause())

	f.start(t)
	assert.Equal(t, StatePlaying, f.player.State())
	assert.Equal(t, 1, f.sink.connects)
}

func TestPlayerDisconnectResetsEverything(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, f.player.SetLoop(ctx, true))
	f.enqueue(t, NewResolvedTrack(song("A")), NewResolvedTrack(song("B")))
	f.start(t)
	f.waitPlayed(t, streamURL("A"))

	require.NoError(t, f.player.Disconnect())

	assert.Equal(t, StateIdle, f.player.State())
	assert.Equal(t, 0, f.player.Queue().Len())
	assert.False(t, f.player.Loop(ctx))
	assert.Equal(t, 1, f.sink.Disconnects())
	assert.True(t, errors.Is(f.player.Disconnect(), ErrNotConnected))
	assert.Equal(t, 1, f.sink.Disconnects())
}

func TestPlayerRemoveCurrentStopsStream(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	f.enqueue(t, NewResolvedTrack(song("A")), NewResolvedTrack(song("B")))
	f.start(t)
	f.waitPlayed(t, streamURL("A"))

	removed, err := f.player.RemoveAt(1)
	require.NoError(t, err)
	assert.Equal(t, "A", removed.Title())

	f.waitPlayed(t, streamURL("A"), streamURL("B"))
	assert.Equal(t, []string{"B"}, titles(f.player.Queue().Snapshot()))
}

func TestPlayerClearKeepsStream(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	f.enqueue(t, NewResolvedTrack(song("A")), NewResolvedTrack(song("B")))
	f.start(t)
	f.waitPlayed(t, streamURL("A"))

	f.player.Clear()
	assert.True(t, f.sink.IsPlaying())

	f.sink.Finish()
	f.waitState(t, StateDraining)
	assert.Equal(t, []string{streamURL("A")}, f.sink.Played())
}

func TestPlayerConcurrentStartsConnectOnce(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	f.enqueue(t, NewResolvedTrack(song("A")))

	gate := make(chan struct{})
	first, second := newFakeSink(), newFakeSink()
	first.connectGate = gate
	second.connectGate = gate

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, sink := range []*fakeSink{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.player.StartOrResume(context.Background(), sink)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, first.Connects()+second.Connects())
	assert.Equal(t, 0, first.Disconnects()+second.Disconnects())
	assert.True(t, f.player.Connected())
	assert.Eventually(t, func() bool {
		return len(first.Played())+len(second.Played()) == 1
	}, waitFor, tick)
}

func TestPlayerStartFailsWhenConnectFails(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	f.sink.connectErr = errors.New("no permission")

	err := f.player.StartOrResume(context.Background(), f.sink)
	assert.Error(t, err)
	assert.False(t, f.player.Connected())
}

func TestPlayerNotifiesNowPlaying(t *testing.T) {
	f := newPlayerFixture(t, time.Minute)
	f.enqueue(t, NewResolvedTrack(song("A")))
	f.start(t)
	f.waitPlayed(t, streamURL("A"))

	assert.Eventually(t, func() bool {
		for _, m := range f.messenger.Messages() {
			if m == "**Now Playing** [A](<https://www.youtube.com/watch?v=A>) `3:00`" {
				return true
			}
		}
		return false
	}, waitFor, tick)
}
