package bot

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/hxnx/tempo/internal/commands"
	"github.com/hxnx/tempo/internal/music"
	"github.com/hxnx/tempo/internal/voice"
)

const aloneNoticeTTL = 30 * time.Second

func (b *Bot) registerHandlers(s *discordgo.Session) {
	s.AddHandler(b.onReady)
	s.AddHandler(b.onGuildCreate)
	s.AddHandler(b.onGuildDelete)
	s.AddHandler(b.onVoiceStateUpdate)
	s.AddHandler(b.onMessageCreate)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		log.Info().Str("user", r.User.Username).Int("shard", s.ShardID).Msg("Bot ready")
	} else {
		log.Info().Int("shard", s.ShardID).Msg("Bot ready")
	}
	for _, g := range r.Guilds {
		b.manager.Join(g.ID)
	}
	b.updatePresence()
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.ID == "" {
		return
	}
	b.manager.Join(g.ID)
	if err := b.prefixes.Register(g.ID); err != nil {
		log.Warn().Err(err).Str("guild", g.ID).Msg("Failed to create guild settings")
	}
}

func (b *Bot) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Guild == nil || g.ID == "" {
		return
	}
	// Unavailable means an outage, not a removal.
	if g.Unavailable {
		return
	}
	b.manager.Leave(g.ID)
	b.messenger.Unbind(g.ID)
	if err := b.prefixes.Forget(g.ID); err != nil {
		log.Warn().Err(err).Str("guild", g.ID).Msg("Failed to delete guild settings")
	}
	log.Info().Str("guild", g.ID).Msg("Removed from guild")
}

// onVoiceStateUpdate disconnects the player when its voice connection was
// dropped or when nobody is left listening.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs == nil || vs.GuildID == "" {
		return
	}
	if s.State == nil || s.State.User == nil {
		return
	}
	botID := s.State.User.ID

	player, ok := b.manager.Lookup(vs.GuildID)
	if !ok || !player.Connected() {
		return
	}

	if vs.UserID == botID && vs.ChannelID == "" {
		_ = player.Disconnect()
		return
	}

	botChannel, err := voice.FindUserVoiceChannel(s, vs.GuildID, botID)
	if err != nil {
		return
	}
	if voice.ListenerCount(s, vs.GuildID, botChannel, botID) > 0 {
		return
	}

	if err := player.Disconnect(); err != nil {
		return
	}
	b.messenger.Notify(vs.GuildID, "Left the voice channel because nobody is listening.", aloneNoticeTTL)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	req := commands.Request{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Author: music.User{
			ID:        m.Author.ID,
			Name:      m.Author.Username,
			AvatarURL: m.Author.AvatarURL(""),
		},
		Content: m.Content,
	}
	if s.State != nil {
		if g, err := s.State.Guild(m.GuildID); err == nil {
			s.State.RLock()
			req.GuildName = g.Name
			s.State.RUnlock()
		}
	}
	if perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID); err == nil {
		req.CanManage = perms&discordgo.PermissionManageGuild != 0
	}

	b.router.Handle(context.Background(), req)
}
