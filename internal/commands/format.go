package commands

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/hxnx/tempo/internal/music"
)

const maxFieldLength = 1024

func escapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"*", "\\*",
		"_", "\\_",
		"`", "\\`",
		"~", "\\~",
		"[", "\\[",
		"]", "\\]",
	)
	return replacer.Replace(text)
}

func truncate(text string, max int) string {
	r := []rune(text)
	if max <= 0 || len(r) <= max {
		return text
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}

// trackLine renders a linked title when the source page is known.
func trackLine(t music.Track) string {
	title := escapeMarkdown(truncate(t.Title(), 200))
	if r, ok := t.Resolved(); ok {
		line := title
		if r.SourceURL != "" {
			line = fmt.Sprintf("[%s](%s)", title, r.SourceURL)
		}
		return line + " `" + music.FormatDuration(r.Duration) + "`"
	}
	return title
}

func requesterFooter(u music.User) *discordgo.MessageEmbedFooter {
	if u.Name == "" {
		return nil
	}
	return &discordgo.MessageEmbedFooter{
		Text:    "Requested by " + u.Name,
		IconURL: u.AvatarURL,
	}
}

func numberedFields(tracks []music.Track, limit int) []*discordgo.MessageEmbedField {
	n := min(len(tracks), limit)
	fields := make([]*discordgo.MessageEmbedField, 0, n)
	for i := range n {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%d: ", i+1),
			Value: truncate(trackLine(tracks[i]), maxFieldLength),
		})
	}
	return fields
}

func overflowFooter(total, limit int) *discordgo.MessageEmbedFooter {
	if total <= limit {
		return nil
	}
	return &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("+%d more", total-limit)}
}

// addedEmbed lists what an enqueue call added, capped at limit entries.
func addedEmbed(added []music.Track, limit int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: "Added to Queue"}
	if len(added) == 0 {
		return embed
	}

	if len(added) == 1 {
		embed.Fields = []*discordgo.MessageEmbedField{{
			Name:  "Song: ",
			Value: truncate(trackLine(added[0]), maxFieldLength),
		}}
		embed.Footer = requesterFooter(added[0].RequestedBy())
		return embed
	}

	embed.Fields = numberedFields(added, limit)
	if footer := overflowFooter(len(added), limit); footer != nil {
		embed.Footer = footer
	} else {
		embed.Footer = requesterFooter(added[0].RequestedBy())
	}
	return embed
}

func queueEmbed(entries []music.Track, limit int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:  "Queue",
		Fields: numberedFields(entries, limit),
		Footer: overflowFooter(len(entries), limit),
	}
}

func nowPlayingEmbed(t music.Track) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: trackLine(t),
		Footer:      requesterFooter(t.RequestedBy()),
	}
	if r, ok := t.Resolved(); ok && r.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: r.Thumbnail}
	}
	return embed
}

func searchEmbed(query, prefix string, results []music.SearchResult) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(results))
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("%d. [%s](%s)", i+1, escapeMarkdown(truncate(r.Title, 80)), r.URL))
	}
	return &discordgo.MessageEmbed{
		Title:       "Search Results",
		Description: strings.Join(lines, "\n"),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Query", Value: escapeMarkdown(truncate(query, 200))},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Use %splay <number> to pick a result", prefix),
		},
	}
}

var helpLines = []struct {
	usage string
	text  string
}{
	{"play <query|link>", "Adds songs to the queue and joins your voice channel"},
	{"playnext <query|link>", "Adds songs right after the current one"},
	{"skip [n]", "Skips n songs"},
	{"queue", "Displays the queue"},
	{"np", "Displays the currently playing song"},
	{"pause", "Pauses the current song"},
	{"resume", "Resumes the current song"},
	{"remove <n>", "Removes the song at position n"},
	{"shuffle", "Shuffles the queue"},
	{"loop [on|off]", "Toggles loop mode"},
	{"clear", "Clears the queue"},
	{"disconnect", "Disconnects from voice"},
	{"search <keywords>", "Displays top search results"},
	{"prefix [new]", "Shows or changes the prefix for this server"},
	{"invite", "Shows the invite link"},
	{"ping", "Shows latency and bot status"},
}

func helpEmbed(prefix string) *discordgo.MessageEmbed {
	var b strings.Builder
	for _, l := range helpLines {
		fmt.Fprintf(&b, "`%s%s` %s\n", prefix, l.usage, l.text)
	}
	return &discordgo.MessageEmbed{
		Title:       "Commands",
		Description: strings.TrimSpace(b.String()),
	}
}
