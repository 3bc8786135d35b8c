package voice

import (
	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"

	"github.com/hxnx/tempo/internal/music"
)

func guildState(s *discordgo.Session, guildID string) (*discordgo.Guild, error) {
	if s == nil {
		return nil, errors.New("discord session is nil")
	}
	if s.State != nil {
		if g, err := s.State.Guild(guildID); err == nil {
			return g, nil
		}
	}
	g, err := s.Guild(guildID)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch guild %s", guildID)
	}
	return g, nil
}

// voiceStates copies the guild's voice states. The cached guild is shared
// with discordgo's event handlers, which rewrite the slice under the state
// lock.
func voiceStates(s *discordgo.Session, guildID string) ([]*discordgo.VoiceState, error) {
	guild, err := guildState(s, guildID)
	if err != nil {
		return nil, err
	}
	if s.State == nil {
		return guild.VoiceStates, nil
	}
	s.State.RLock()
	defer s.State.RUnlock()
	states := make([]*discordgo.VoiceState, len(guild.VoiceStates))
	copy(states, guild.VoiceStates)
	return states, nil
}

// FindUserVoiceChannel returns the voice channel the user is connected to in
// the guild.
func FindUserVoiceChannel(s *discordgo.Session, guildID, userID string) (string, error) {
	states, err := voiceStates(s, guildID)
	if err != nil {
		return "", err
	}
	if ch := userChannel(states, userID); ch != "" {
		return ch, nil
	}
	return "", music.ErrNoVoiceChannel
}

// ListenerCount counts the non-bot members sharing channelID, excluding selfID.
func ListenerCount(s *discordgo.Session, guildID, channelID, selfID string) int {
	states, err := voiceStates(s, guildID)
	if err != nil {
		return 0
	}
	return countListeners(states, channelID, selfID, func(userID string) bool {
		if s.State == nil {
			return false
		}
		m, err := s.State.Member(guildID, userID)
		return err == nil && m.User != nil && m.User.Bot
	})
}

func userChannel(states []*discordgo.VoiceState, userID string) string {
	for _, vs := range states {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID
		}
	}
	return ""
}

func countListeners(states []*discordgo.VoiceState, channelID, selfID string, isBot func(string) bool) int {
	n := 0
	for _, vs := range states {
		if vs.ChannelID != channelID || vs.UserID == selfID {
			continue
		}
		if vs.Member != nil && vs.Member.User != nil {
			if vs.Member.User.Bot {
				continue
			}
		} else if isBot(vs.UserID) {
			continue
		}
		n++
	}
	return n
}
