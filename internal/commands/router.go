// Package commands implements the chat prefix commands on top of the player
// manager.
package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/hxnx/tempo/internal/music"
)

const (
	shortTTL     = 10 * time.Second
	clearTTL     = 20 * time.Second
	listTTL      = 60 * time.Second
	commandTTL   = 60 * time.Second
	resolveLimit = 2 * time.Minute
)

// Output is where command replies go.
type Output interface {
	Bind(guildID, channelID string)
	Send(channelID, message string, ttl time.Duration)
	SendEmbed(channelID string, embed *discordgo.MessageEmbed, ttl time.Duration)
}

// SinkFactory builds an unconnected voice sink for the channel the user is in.
// It returns music.ErrNoVoiceChannel when the user is not in voice.
type SinkFactory func(guildID, userID string) (music.VoiceSink, error)

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]music.SearchResult, error)
}

// Request is one chat message addressed to the bot.
type Request struct {
	GuildID   string
	GuildName string
	ChannelID string
	Author    music.User
	CanManage bool
	Content   string
}

type Options struct {
	Manager       *music.PlayerManager
	Resolver      music.Resolver
	Searcher      Searcher
	Prefixes      *Prefixes
	Output        Output
	Sinks         SinkFactory
	Stats         func() BotStats
	DisplayLength int
	SearchResults int
	InviteLink    string
}

type Router struct {
	opts     Options
	sessions *searchSessions
}

func NewRouter(opts Options) *Router {
	if opts.DisplayLength <= 0 {
		opts.DisplayLength = 10
	}
	if opts.SearchResults <= 0 {
		opts.SearchResults = 5
	}
	if opts.Prefixes == nil {
		opts.Prefixes = NewPrefixes(nil, "~")
	}
	return &Router{opts: opts, sessions: newSearchSessions()}
}

// Handle runs the command in req, if any. It reports whether the message was
// a command.
func (r *Router) Handle(ctx context.Context, req Request) bool {
	if req.GuildID == "" {
		return false
	}
	cmd, ok := Parse(req.Content, r.opts.Prefixes.Get(req.GuildID))
	if !ok {
		return false
	}

	r.opts.Output.Bind(req.GuildID, req.ChannelID)
	log.Debug().
		Str("guild", req.GuildID).
		Str("user", req.Author.ID).
		Str("command", cmd.Name).
		Msg("Handling command")

	switch cmd.Name {
	case "play":
		r.play(ctx, req, cmd.Args, music.PositionTail)
	case "playnext":
		r.play(ctx, req, cmd.Args, music.PositionNext)
	case "skip":
		r.skip(ctx, req, cmd.Args)
	case "clear":
		r.opts.Manager.Clear(req.GuildID)
		r.reply(req, "**Cleared the Queue!**", clearTTL)
	case "queue":
		r.queue(req)
	case "np":
		r.nowPlaying(req)
	case "pause":
		r.pause(req)
	case "resume":
		r.resume(req)
	case "disconnect":
		r.disconnect(req)
	case "remove":
		r.remove(req, cmd.Args)
	case "shuffle":
		r.shuffle(req)
	case "loop":
		r.loop(ctx, req, cmd.Args)
	case "search":
		r.search(ctx, req, cmd.Args)
	case "prefix":
		r.prefix(req, cmd.Args)
	case "invite":
		r.invite(req)
	case "help":
		r.opts.Output.SendEmbed(req.ChannelID, helpEmbed(r.opts.Prefixes.Get(req.GuildID)), listTTL)
	case "ping":
		if r.opts.Stats != nil {
			r.opts.Output.SendEmbed(req.ChannelID, statsEmbed(r.opts.Stats()), shortTTL)
		}
	}
	return true
}

func (r *Router) reply(req Request, message string, ttl time.Duration) {
	r.opts.Output.Send(req.ChannelID, message, ttl)
}

func (r *Router) play(ctx context.Context, req Request, query string, pos music.Position) {
	sink, err := r.opts.Sinks(req.GuildID, req.Author.ID)
	if err != nil {
		if !errors.Is(err, music.ErrNoVoiceChannel) {
			log.Warn().Err(err).Str("guild", req.GuildID).Msg("Failed to locate voice channel")
		}
		r.reply(req, "Not in a Voice Channel", shortTTL)
		return
	}

	if query == "" {
		if r.opts.Manager.Queue(req.GuildID).Len() == 0 {
			r.reply(req, fmt.Sprintf("Usage: `%splay <query|link>`", r.opts.Prefixes.Get(req.GuildID)), shortTTL)
			return
		}
		r.start(ctx, req, sink)
		return
	}

	if choice, err := strconv.Atoi(query); err == nil {
		if picked, ok := r.sessions.pick(req.GuildID, req.Author.ID, choice); ok {
			query = picked.URL
		}
	}

	resolveCtx, cancel := context.WithTimeout(ctx, resolveLimit)
	set := r.opts.Resolver.Resolve(resolveCtx, req.GuildID, query, req.Author)
	cancel()
	if set.Empty() {
		r.reply(req, "**No songs found!**", shortTTL)
		return
	}

	added, err := r.opts.Manager.Enqueue(req.GuildID, set, pos)
	if err != nil {
		if errors.Is(err, music.ErrQueueFull) {
			r.reply(req, "**The Queue is full!**", shortTTL)
			return
		}
		log.Error().Err(err).Str("guild", req.GuildID).Msg("Failed to enqueue")
		return
	}
	r.opts.Output.SendEmbed(req.ChannelID, addedEmbed(added, r.opts.DisplayLength), commandTTL)

	r.start(ctx, req, sink)
}

func (r *Router) start(ctx context.Context, req Request, sink music.VoiceSink) {
	if err := r.opts.Manager.StartOrResume(ctx, req.GuildID, sink); err != nil {
		log.Error().Err(err).Str("guild", req.GuildID).Msg("Failed to start playback")
		r.reply(req, "Could not join your Voice Channel", shortTTL)
	}
}

func (r *Router) skip(ctx context.Context, req Request, args string) {
	n := 1
	if args != "" {
		v, err := strconv.Atoi(args)
		if err != nil || v < 1 {
			r.reply(req, fmt.Sprintf("Usage: `%sskip [n]`", r.opts.Prefixes.Get(req.GuildID)), shortTTL)
			return
		}
		n = v
	}

	moved, err := r.opts.Manager.Skip(ctx, req.GuildID, n)
	if err != nil {
		r.reply(req, "Not Playing Anything", shortTTL)
		return
	}
	if moved <= 1 {
		r.reply(req, "**Skipped a Song!**", shortTTL)
		return
	}
	r.reply(req, fmt.Sprintf("**Skipped %d Songs!**", moved), shortTTL)
}

func (r *Router) queue(req Request) {
	entries := r.opts.Manager.Queue(req.GuildID).Snapshot()
	if len(entries) == 0 {
		r.reply(req, "**Queue is empty!**", shortTTL)
		return
	}
	r.opts.Output.SendEmbed(req.ChannelID, queueEmbed(entries, r.opts.DisplayLength), listTTL)
}

func (r *Router) nowPlaying(req Request) {
	t, ok := r.opts.Manager.NowPlaying(req.GuildID)
	if !ok {
		r.reply(req, "Not Playing Anything", shortTTL)
		return
	}
	r.opts.Output.SendEmbed(req.ChannelID, nowPlayingEmbed(t), listTTL)
}

func (r *Router) pause(req Request) {
	err := r.opts.Manager.Pause(req.GuildID)
	switch {
	case err == nil:
		r.reply(req, "**Music Paused!**", shortTTL)
	case r.opts.Manager.State(req.GuildID) == music.StatePaused:
		r.reply(req, "Already Paused", shortTTL)
	default:
		r.reply(req, "Not Playing Anything", shortTTL)
	}
}

func (r *Router) resume(req Request) {
	err := r.opts.Manager.Resume(req.GuildID)
	switch {
	case err == nil:
		r.reply(req, "**Music Resumed!**", shortTTL)
	case r.opts.Manager.State(req.GuildID) == music.StatePlaying:
		r.reply(req, "Already Playing", shortTTL)
	default:
		r.reply(req, "Not Playing Anything", shortTTL)
	}
}

func (r *Router) disconnect(req Request) {
	if err := r.opts.Manager.Disconnect(req.GuildID); err != nil {
		r.reply(req, "Not in a Voice Channel", shortTTL)
		return
	}
	r.reply(req, "**Disconnected!**", shortTTL)
}

func (r *Router) remove(req Request, args string) {
	idx, err := strconv.Atoi(args)
	if err != nil {
		r.reply(req, fmt.Sprintf("Usage: `%sremove <n>`", r.opts.Prefixes.Get(req.GuildID)), shortTTL)
		return
	}
	removed, err := r.opts.Manager.RemoveAt(req.GuildID, idx)
	if err != nil {
		r.reply(req, "**Invalid Queue Position!**", shortTTL)
		return
	}
	r.reply(req, fmt.Sprintf("**Removed** %s", escapeMarkdown(removed.Title())), shortTTL)
}

func (r *Router) shuffle(req Request) {
	if r.opts.Manager.Queue(req.GuildID).Len() < 2 {
		r.reply(req, "Nothing in the Queue!", shortTTL)
		return
	}
	r.opts.Manager.Shuffle(req.GuildID)
	r.reply(req, "**Shuffled the Queue!**", shortTTL)
}

func (r *Router) loop(ctx context.Context, req Request, args string) {
	var on bool
	switch strings.ToLower(args) {
	case "":
		on = !r.opts.Manager.Loop(ctx, req.GuildID)
	case "on", "true", "1":
		on = true
	case "off", "false", "0":
		on = false
	default:
		r.reply(req, fmt.Sprintf("Usage: `%sloop [on|off]`", r.opts.Prefixes.Get(req.GuildID)), shortTTL)
		return
	}

	if err := r.opts.Manager.SetLoop(ctx, req.GuildID, on); err != nil {
		log.Error().Err(err).Str("guild", req.GuildID).Msg("Failed to set loop")
		r.reply(req, "Could not change loop mode", shortTTL)
		return
	}
	state := "off"
	if on {
		state = "on"
	}
	r.reply(req, fmt.Sprintf("**Loop is now %s!**", state), shortTTL)
}

func (r *Router) search(ctx context.Context, req Request, query string) {
	prefix := r.opts.Prefixes.Get(req.GuildID)
	if query == "" {
		r.reply(req, fmt.Sprintf("Usage: `%ssearch <keywords>`", prefix), shortTTL)
		return
	}
	if r.opts.Searcher == nil {
		r.reply(req, "**No songs found!**", shortTTL)
		return
	}

	results, err := r.opts.Searcher.Search(ctx, query, r.opts.SearchResults)
	if err != nil {
		if !errors.Is(err, music.ErrNoSongsFound) {
			log.Warn().Err(err).Str("guild", req.GuildID).Msg("Search failed")
		}
		r.reply(req, "**No songs found!**", shortTTL)
		return
	}

	r.sessions.save(req.GuildID, req.Author.ID, results)
	r.opts.Output.SendEmbed(req.ChannelID, searchEmbed(query, prefix, results), listTTL)
}

func (r *Router) prefix(req Request, args string) {
	name := req.GuildName
	if name == "" {
		name = "this server"
	}
	if args == "" {
		r.reply(req, fmt.Sprintf("Prefix for %s is: **%s**", name, escapeMarkdown(r.opts.Prefixes.Get(req.GuildID))), shortTTL)
		return
	}
	if !req.CanManage {
		r.reply(req, "You need the Manage Server permission to change the prefix", shortTTL)
		return
	}

	if err := r.opts.Prefixes.Set(req.GuildID, args); err != nil {
		if errors.Is(err, ErrInvalidPrefix) {
			r.reply(req, "Prefix must be 1 to 3 characters without spaces", shortTTL)
			return
		}
		log.Error().Err(err).Str("guild", req.GuildID).Msg("Failed to store prefix")
		r.reply(req, "Could not change the prefix", shortTTL)
		return
	}
	r.reply(req, fmt.Sprintf("Prefix for %s has been changed to: **%s**", name, escapeMarkdown(args)), shortTTL)
}

func (r *Router) invite(req Request) {
	if r.opts.InviteLink == "" {
		r.reply(req, "No invite link configured", shortTTL)
		return
	}
	r.opts.Output.SendEmbed(req.ChannelID, &discordgo.MessageEmbed{
		Title: "Invite me to your server!",
		URL:   r.opts.InviteLink,
	}, listTTL)
}
