package music

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/hxnx/tempo/internal/logger"
)

var (
	ErrNotPlaying     = errors.New("nothing is playing")
	ErrNotPaused      = errors.New("playback is not paused")
	ErrNotConnected   = errors.New("not connected to a voice channel")
	ErrNoVoiceChannel = errors.New("user is not in a voice channel")
)

const DefaultIdleTimeout = 180 * time.Second

type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

type PlayerOptions struct {
	IdleTimeout  time.Duration
	MaxQueueSize int
	Resolver     Resolver
	Messenger    Messenger
	Settings     SettingsStore
}

// Player drives playback for one guild. A single worker goroutine pops the
// head of the queue, resolves it if needed, streams it through the sink and
// advances once the sink reports completion.
type Player struct {
	guildID     string
	queue       *Queue
	resolver    Resolver
	messenger   Messenger
	settings    SettingsStore
	idleTimeout time.Duration
	log         zerolog.Logger

	connectMu sync.Mutex

	mu      sync.Mutex
	sink    VoiceSink
	state   State
	current *Track
	cancel  context.CancelFunc

	wakeCh chan struct{}
}

func NewPlayer(guildID string, opts PlayerOptions) *Player {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Settings == nil {
		opts.Settings = NewMemorySettings()
	}
	return &Player{
		guildID:     guildID,
		queue:       NewQueue(opts.MaxQueueSize),
		resolver:    opts.Resolver,
		messenger:   opts.Messenger,
		settings:    opts.Settings,
		idleTimeout: opts.IdleTimeout,
		log:         logger.Guild("player", guildID),
		wakeCh:      make(chan struct{}, 1),
	}
}

func (p *Player) GuildID() string {
	return p.guildID
}

// Queue returns the live queue. Mutations through it are visible to the
// worker immediately.
func (p *Player) Queue() *Queue {
	return p.queue
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) NowPlaying() (Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Track{}, false
	}
	return *p.current, true
}

func (p *Player) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink != nil
}

func (p *Player) Enqueue(set TrackSet, pos Position) ([]Track, error) {
	added, err := p.queue.Enqueue(set.Tracks, pos)
	if err != nil {
		return nil, err
	}
	p.signalWake()
	return added, nil
}

// RemoveAt removes an entry by display index. Removing the entry that is
// currently streaming also stops the stream.
func (p *Player) RemoveAt(displayIndex int) (Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed, err := p.queue.RemoveAt(displayIndex)
	if err != nil {
		return Track{}, err
	}
	if p.current != nil && p.current.ID == removed.ID && p.sink != nil {
		p.sink.Stop()
	}
	return removed, nil
}

// Clear empties the queue without touching the active stream.
func (p *Player) Clear() {
	p.queue.Clear()
}

func (p *Player) Shuffle() {
	p.mu.Lock()
	keepHead := p.current != nil
	p.mu.Unlock()
	p.queue.Shuffle(keepHead)
}

func (p *Player) Loop(ctx context.Context) bool {
	on, err := p.settings.Loop(ctx, p.guildID)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to read loop flag")
		return false
	}
	return on
}

func (p *Player) SetLoop(ctx context.Context, on bool) error {
	if err := p.settings.SetLoop(ctx, p.guildID, on); err != nil {
		return errors.Wrap(err, "failed to store loop flag")
	}
	return nil
}

// StartOrResume attaches sink (unless one is already connected), starts the
// worker if it is not running and resumes a paused stream.
func (p *Player) StartOrResume(ctx context.Context, sink VoiceSink) error {
	if err := p.attach(ctx, sink); err != nil {
		return err
	}

	p.mu.Lock()
	if p.sink == nil {
		p.mu.Unlock()
		return ErrNotConnected
	}
	if p.state == StatePaused && p.sink.IsPaused() {
		if err := p.sink.Resume(); err == nil {
			p.state = StatePlaying
		}
	}
	p.ensureWorkerLocked()
	p.mu.Unlock()

	p.signalWake()
	return nil
}

// Skip moves past n entries and stops the active stream. The next track is
// started by the worker's regular completion path.
func (p *Player) Skip(ctx context.Context, n int) (int, error) {
	if n < 1 {
		n = 1
	}
	loop := p.Loop(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sink == nil || (p.state != StatePlaying && p.state != StatePaused) {
		return 0, ErrNotPlaying
	}
	moved := p.queue.SkipHeads(n, loop)
	p.sink.Stop()
	return moved, nil
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sink == nil || p.state != StatePlaying || !p.sink.IsPlaying() {
		return ErrNotPlaying
	}
	if err := p.sink.Pause(); err != nil {
		return errors.Wrap(err, "failed to pause")
	}
	p.state = StatePaused
	return nil
}

func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sink == nil || p.state != StatePaused || !p.sink.IsPaused() {
		return ErrNotPaused
	}
	if err := p.sink.Resume(); err != nil {
		return errors.Wrap(err, "failed to resume")
	}
	p.state = StatePlaying
	return nil
}

// Disconnect tears the player down: stops the stream, releases the voice
// connection, clears the queue and the loop flag.
func (p *Player) Disconnect() error {
	p.mu.Lock()
	connected := p.sink != nil || p.cancel != nil
	p.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	p.teardown(context.Background(), "disconnect requested")
	return nil
}

// attach connects sink when the player has no voice connection yet. The
// voice connection is shared per guild, so connects are serialized and a
// second caller reuses the first caller's sink instead of joining again.
func (p *Player) attach(ctx context.Context, sink VoiceSink) error {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	p.mu.Lock()
	active := p.sink
	p.mu.Unlock()
	if active != nil {
		return nil
	}
	if sink == nil {
		return ErrNotConnected
	}
	if err := sink.Connect(ctx); err != nil {
		return errors.Wrap(err, "failed to connect voice sink")
	}

	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
	return nil
}

func (p *Player) ensureWorkerLocked() {
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.workerLoop(ctx)
}

func (p *Player) signalWake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *Player) workerLoop(ctx context.Context) {
	p.log.Debug().Msg("worker started")
	defer p.log.Debug().Msg("worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		if p.step(ctx) {
			continue
		}

		p.setState(ctx, StateDraining)
		timer := time.NewTimer(p.idleTimeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.wakeCh:
			timer.Stop()
			continue
		case <-timer.C:
			if p.queue.Len() > 0 {
				continue
			}
			p.teardown(ctx, "idle timeout")
			return
		}
	}
}

// step plays the current head to completion. It returns false when the queue
// is empty. A panic while handling an entry drops that entry and is reported
// as progress so the loop keeps going.
func (p *Player) step(ctx context.Context) (progressed bool) {
	head, ok := p.queue.Head()
	if !ok {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error().
				Str("entry", head.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("recovered from panic in playback loop")
			p.queue.RemoveByID(head.ID)
			p.clearCurrent()
			progressed = true
		}
	}()

	p.playEntry(ctx, head)
	return true
}

func (p *Player) playEntry(ctx context.Context, entry Track) {
	track, ok := entry.Resolved()
	if !ok {
		resolved, ok := p.resolveEntry(ctx, entry)
		if !ok {
			return
		}
		track = resolved
	}

	done, started, err := p.begin(ctx, entry.ID, track)
	if err != nil {
		p.log.Warn().Err(err).Str("title", track.Title).Msg("failed to start playback")
		p.notify(fmt.Sprintf("Could not play **%s**, skipping.", track.Title), 30*time.Second)
		p.queue.RemoveByID(entry.ID)
		return
	}
	if !started {
		return
	}

	p.log.Info().Str("title", track.Title).Str("url", track.SourceURL).Msg("now playing")
	p.notify(nowPlayingMessage(track), track.Duration)

	var streamErr error
	select {
	case streamErr = <-done:
	case <-ctx.Done():
		return
	}

	p.clearCurrent()
	if streamErr != nil {
		// Broken streams are dropped even when looping.
		p.log.Warn().Err(streamErr).Str("title", track.Title).Msg("stream ended with error")
		p.notify(fmt.Sprintf("Could not play **%s**, skipping.", track.Title), 30*time.Second)
		p.queue.RemoveByID(entry.ID)
		return
	}
	p.queue.Advance(entry.ID, p.Loop(ctx))
}

// begin starts streaming track if entry id is still the head. Holding p.mu
// across the head check and Play serializes it with Skip and RemoveAt.
func (p *Player) begin(ctx context.Context, id string, track ResolvedTrack) (<-chan error, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ctx.Err() != nil || p.sink == nil {
		return nil, false, nil
	}
	if head, ok := p.queue.Head(); !ok || head.ID != id {
		// Skipped or removed while resolving.
		return nil, false, nil
	}
	done, err := p.sink.Play(ctx, track.PlaybackURL)
	if err != nil {
		return nil, false, err
	}
	playing := NewResolvedTrack(track)
	playing.ID = id
	p.current = &playing
	p.state = StatePlaying
	return done, true, nil
}

// resolveEntry resolves an unresolved head in place. On failure the entry is
// dropped so the rest of the queue keeps playing.
func (p *Player) resolveEntry(ctx context.Context, entry Track) (ResolvedTrack, bool) {
	u, _ := entry.Unresolved()
	if p.resolver == nil {
		p.queue.RemoveByID(entry.ID)
		return ResolvedTrack{}, false
	}

	r, err := p.resolver.ResolveText(ctx, u.SearchText, u.RequestedBy)
	if err != nil {
		if ctx.Err() != nil {
			return ResolvedTrack{}, false
		}
		p.log.Warn().Err(err).Str("search", u.SearchText).Msg("failed to resolve queued track")
		p.notify(fmt.Sprintf("Could not find **%s**, skipping.", u.SearchText), 30*time.Second)
		p.queue.RemoveByID(entry.ID)
		return ResolvedTrack{}, false
	}
	if r.RequestedBy.ID == "" {
		r.RequestedBy = u.RequestedBy
	}

	p.queue.ResolveInPlace(entry.ID, r)
	// The prefetcher may have won the race; use whatever the queue holds.
	if cur, ok := p.queue.Get(entry.ID); ok {
		if stored, ok := cur.Resolved(); ok {
			return stored, true
		}
	}
	return r, true
}

// teardown releases the voice connection exactly once. When called from a
// worker, ctx is that worker's context and teardown is skipped if the worker
// has already been superseded.
func (p *Player) teardown(ctx context.Context, reason string) {
	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	sink := p.sink
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.sink = nil
	p.current = nil
	p.state = StateIdle
	p.mu.Unlock()

	p.queue.Clear()
	if err := p.settings.SetLoop(context.Background(), p.guildID, false); err != nil {
		p.log.Warn().Err(err).Msg("failed to reset loop flag")
	}

	if sink != nil {
		sink.Stop()
		if err := sink.Disconnect(); err != nil {
			p.log.Warn().Err(err).Msg("voice disconnect failed")
		}
	}
	p.log.Info().Str("reason", reason).Msg("player torn down")
}

func (p *Player) setState(ctx context.Context, s State) {
	p.mu.Lock()
	if ctx.Err() == nil {
		p.state = s
	}
	p.mu.Unlock()
}

func (p *Player) clearCurrent() {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
}

func (p *Player) notify(message string, ttl time.Duration) {
	if p.messenger == nil {
		return
	}
	p.messenger.Notify(p.guildID, message, ttl)
}

func nowPlayingMessage(t ResolvedTrack) string {
	msg := fmt.Sprintf("**Now Playing** [%s](<%s>) `%s`", t.Title, t.SourceURL, FormatDuration(t.Duration))
	if t.RequestedBy.Name != "" {
		msg += " requested by " + t.RequestedBy.Name
	}
	return msg
}
