package bot

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const presenceUpdateInterval = time.Minute

type presence struct {
	prefix  string
	shard   int
	guilds  int
	playing int
}

func (p presence) String() string {
	s := fmt.Sprintf("%shelp | shard #%d | %d servers", p.prefix, max(1, p.shard+1), p.guilds)
	if p.playing > 0 {
		s += fmt.Sprintf(" | %d playing", p.playing)
	}
	return s
}

// runPresence refreshes every shard's status until stop is closed.
func (b *Bot) runPresence(stop <-chan struct{}) {
	ticker := time.NewTicker(presenceUpdateInterval)
	defer ticker.Stop()

	b.updatePresence()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.updatePresence()
		}
	}
}

func (b *Bot) startPresenceUpdater() {
	if b.presenceStop != nil {
		return
	}
	b.presenceStop = make(chan struct{})
	go b.runPresence(b.presenceStop)
}

func (b *Bot) stopPresenceUpdater() {
	if b.presenceStop == nil {
		return
	}
	close(b.presenceStop)
	b.presenceStop = nil
}

func (b *Bot) updatePresence() {
	playing := b.playingCount()
	for _, s := range b.sessions {
		p := presence{prefix: b.prefixes.Default(), shard: s.ShardID, guilds: shardGuilds(s)}
		// Player counts are process-wide, so only the first shard shows them.
		if s.ShardID == 0 {
			p.playing = playing
		}
		if err := s.UpdateGameStatus(0, p.String()); err != nil {
			log.Debug().Err(err).Int("shard", s.ShardID).Msg("Failed to update presence")
		}
	}
}

func shardGuilds(s *discordgo.Session) int {
	if s.State == nil {
		return 0
	}
	return len(s.State.Guilds)
}
