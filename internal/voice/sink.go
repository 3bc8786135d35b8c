package voice

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/hxnx/tempo/internal/logger"
	"github.com/hxnx/tempo/internal/music"
)

const (
	frameDuration   = 20 * time.Millisecond
	sendTimeout     = time.Second
	stderrTailLines = 5
)

var ErrStreamFailed = errors.New("audio stream failed")

// Sink streams audio through ffmpeg into a discord voice connection.
type Sink struct {
	session    *discordgo.Session
	guildID    string
	channelID  string
	ffmpegPath string
	log        zerolog.Logger

	mu       sync.Mutex
	vc       *discordgo.VoiceConnection
	cancel   context.CancelFunc
	gen      uint64
	paused   bool
	resumeCh chan struct{}
}

var _ music.VoiceSink = (*Sink)(nil)

func NewSink(s *discordgo.Session, guildID, channelID, ffmpegPath string) *Sink {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Sink{
		session:    s,
		guildID:    guildID,
		channelID:  channelID,
		ffmpegPath: ffmpegPath,
		log:        logger.Guild("voice", guildID),
	}
}

func (s *Sink) ChannelID() string {
	return s.channelID
}

func (s *Sink) Connect(ctx context.Context) error {
	if s.session == nil {
		return errors.New("discord session is nil")
	}
	if s.channelID == "" {
		return music.ErrNoVoiceChannel
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	vc, err := s.session.ChannelVoiceJoin(s.guildID, s.channelID, false, true)
	if err != nil {
		return errors.Wrapf(err, "join voice channel %s", s.channelID)
	}

	s.mu.Lock()
	s.vc = vc
	s.mu.Unlock()
	s.log.Info().Str("channel", s.channelID).Msg("Joined voice channel")
	return nil
}

func (s *Sink) Play(ctx context.Context, url string) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc == nil {
		return nil, music.ErrNotConnected
	}
	s.stopLocked()

	streamCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(streamCtx, s.ffmpegPath, ffmpegArgs(url)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to create ffmpeg stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to create ffmpeg stderr pipe")
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to start ffmpeg")
	}

	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.paused = false
	s.resumeCh = nil

	tail := &stderrTail{}
	tailDone := make(chan struct{})
	go func() {
		defer close(tailDone)
		tail.consume(stderr)
	}()

	vc := s.vc
	done := make(chan error, 1)
	go func() {
		defer cancel()

		safeSpeaking(vc, true)
		pumpErr := s.pump(streamCtx, stdout, vc.OpusSend)
		safeSpeaking(vc, false)

		// Drain what ffmpeg still writes so Wait can return.
		_, _ = io.Copy(io.Discard, stdout)
		<-tailDone
		waitErr := cmd.Wait()
		stopped := streamCtx.Err() != nil
		s.finished(gen)

		switch {
		case stopped:
			done <- nil
		case pumpErr != nil:
			done <- errors.Mark(errors.Wrap(pumpErr, "read opus stream"), ErrStreamFailed)
		case waitErr != nil:
			done <- errors.Mark(errors.Wrapf(waitErr, "ffmpeg: %s", tail.String()), ErrStreamFailed)
		default:
			done <- nil
		}
	}()

	return done, nil
}

// pump forwards opus packets from an ogg stream to out at frame pace until the
// stream ends, ctx is cancelled, or a read fails.
func (s *Sink) pump(ctx context.Context, r io.Reader, out chan<- []byte) error {
	pages := newOggReader(r)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	frames := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		page, err := pages.nextPage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || ctx.Err() != nil {
				s.log.Debug().Int("frames", frames).Msg("Audio stream ended")
				return nil
			}
			return err
		}
		if page.isHeader {
			continue
		}

		for _, packet := range page.packets {
			if !s.waitWhilePaused(ctx) {
				return nil
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return nil
			}

			select {
			case out <- packet:
				frames++
			case <-ctx.Done():
				return nil
			case <-time.After(sendTimeout):
				s.log.Warn().Int("frame", frames).Msg("Timeout sending opus frame")
			}
		}
	}
}

// waitWhilePaused blocks until playback is resumed. It reports false when ctx
// ends first.
func (s *Sink) waitWhilePaused(ctx context.Context) bool {
	for {
		s.mu.Lock()
		if !s.paused {
			s.mu.Unlock()
			return true
		}
		ch := s.resumeCh
		vc := s.vc
		s.mu.Unlock()

		safeSpeaking(vc, false)
		select {
		case <-ch:
			safeSpeaking(vc, true)
		case <-ctx.Done():
			return false
		}
	}
}

// finished clears the playing state unless a newer stream replaced it.
func (s *Sink) finished(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.stopLocked()
	}
}

func (s *Sink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil && !s.paused
}

func (s *Sink) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil && s.paused
}

func (s *Sink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil || s.paused {
		return music.ErrNotPlaying
	}
	s.paused = true
	s.resumeCh = make(chan struct{})
	return nil
}

func (s *Sink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil || !s.paused {
		return music.ErrNotPaused
	}
	s.paused = false
	close(s.resumeCh)
	s.resumeCh = nil
	return nil
}

func (s *Sink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Sink) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.resumeCh != nil {
		close(s.resumeCh)
		s.resumeCh = nil
	}
	s.paused = false
}

func (s *Sink) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	if s.vc == nil {
		return nil
	}
	err := s.vc.Disconnect()
	s.vc = nil
	s.log.Info().Msg("Left voice channel")
	return errors.Wrap(err, "disconnect voice")
}

func safeSpeaking(vc *discordgo.VoiceConnection, speaking bool) {
	if vc == nil || !vc.Ready {
		return
	}
	_ = vc.Speaking(speaking)
}

func ffmpegArgs(url string) []string {
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", url,
		"-c:a", "libopus",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", "96k",
		"-vbr", "on",
		"-frame_duration", "20",
		"-application", "audio",
		"-f", "ogg",
		"-loglevel", "warning",
		"pipe:1",
	}
}

// stderrTail keeps the last few lines ffmpeg wrote to stderr.
type stderrTail struct {
	mu    sync.Mutex
	lines []string
}

func (t *stderrTail) consume(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		t.mu.Lock()
		t.lines = append(t.lines, line)
		if len(t.lines) > stderrTailLines {
			t.lines = t.lines[1:]
		}
		t.mu.Unlock()
	}
}

func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == 0 {
		return "no output"
	}
	return strings.Join(t.lines, "; ")
}
