// Package messenger delivers bot status messages to the text channel each
// guild last issued a command from.
package messenger

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/hxnx/tempo/internal/music"
)

type (
	sendFunc   func(channelID string, embed *discordgo.MessageEmbed) (string, error)
	deleteFunc func(channelID, messageID string) error
)

// Discord posts embeds through a discordgo session. Sends run in their own
// goroutine and failures are only logged.
type Discord struct {
	color  int
	send   sendFunc
	remove deleteFunc

	mu       sync.RWMutex
	channels map[string]string
}

var _ music.Messenger = (*Discord)(nil)

func New(s *discordgo.Session, color int) *Discord {
	return newDiscord(color,
		func(channelID string, embed *discordgo.MessageEmbed) (string, error) {
			msg, err := s.ChannelMessageSendEmbed(channelID, embed)
			if err != nil {
				return "", err
			}
			return msg.ID, nil
		},
		func(channelID, messageID string) error {
			return s.ChannelMessageDelete(channelID, messageID)
		},
	)
}

func newDiscord(color int, send sendFunc, remove deleteFunc) *Discord {
	return &Discord{
		color:    color,
		send:     send,
		remove:   remove,
		channels: make(map[string]string),
	}
}

// Bind routes future notifications for guildID to channelID.
func (d *Discord) Bind(guildID, channelID string) {
	if guildID == "" || channelID == "" {
		return
	}
	d.mu.Lock()
	d.channels[guildID] = channelID
	d.mu.Unlock()
}

func (d *Discord) Unbind(guildID string) {
	d.mu.Lock()
	delete(d.channels, guildID)
	d.mu.Unlock()
}

func (d *Discord) Channel(guildID string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.channels[guildID]
}

func (d *Discord) Notify(guildID, message string, ttl time.Duration) {
	channelID := d.Channel(guildID)
	if channelID == "" {
		log.Debug().Str("guild", guildID).Msg("No bound channel, dropping notification")
		return
	}
	d.Send(channelID, message, ttl)
}

// Send posts message to channelID and deletes it after ttl when ttl > 0.
func (d *Discord) Send(channelID, message string, ttl time.Duration) {
	embed := &discordgo.MessageEmbed{
		Description: message,
		Color:       d.color,
	}
	go d.deliver(channelID, embed, ttl)
}

// SendEmbed is Send for a caller-built embed. A zero embed color is replaced
// with the configured one.
func (d *Discord) SendEmbed(channelID string, embed *discordgo.MessageEmbed, ttl time.Duration) {
	if embed.Color == 0 {
		embed.Color = d.color
	}
	go d.deliver(channelID, embed, ttl)
}

func (d *Discord) deliver(channelID string, embed *discordgo.MessageEmbed, ttl time.Duration) {
	id, err := d.send(channelID, embed)
	if err != nil {
		log.Debug().Err(err).Str("channel", channelID).Msg("Failed to send message")
		return
	}
	d.scheduleDelete(channelID, id, ttl)
}

func (d *Discord) scheduleDelete(channelID, messageID string, ttl time.Duration) {
	if ttl <= 0 || channelID == "" || messageID == "" {
		return
	}
	time.AfterFunc(ttl, func() {
		if err := d.remove(channelID, messageID); err != nil {
			log.Debug().Err(err).Str("channel", channelID).Msg("Failed to delete message")
		}
	})
}

