package commands

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// BotStats is a point-in-time health summary of the running bot.
type BotStats struct {
	Latency  time.Duration
	Guilds   int
	Shards   int
	Playing  int
	Uptime   time.Duration
	MemoryMB float64
}

func statsEmbed(s BotStats) *discordgo.MessageEmbed {
	shards := max(1, s.Shards)
	return &discordgo.MessageEmbed{
		Title: "Pong!",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Gateway Latency", Value: s.Latency.Round(time.Millisecond).String(), Inline: true},
			{Name: "Servers", Value: fmt.Sprintf("%d (%d shard(s))", s.Guilds, shards), Inline: true},
			{Name: "Active Players", Value: fmt.Sprintf("%d", s.Playing), Inline: true},
			{Name: "Uptime", Value: s.Uptime.Round(time.Second).String(), Inline: true},
			{Name: "Memory", Value: fmt.Sprintf("%.2f MB", s.MemoryMB), Inline: true},
		},
	}
}
