package bot

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/hxnx/tempo/config"
	"github.com/hxnx/tempo/internal/commands"
	"github.com/hxnx/tempo/internal/database"
	"github.com/hxnx/tempo/internal/messenger"
	"github.com/hxnx/tempo/internal/music"
	"github.com/hxnx/tempo/internal/redis"
	"github.com/hxnx/tempo/internal/voice"
)

type Bot struct {
	config       *config.Config
	sessions     []*discordgo.Session
	started      bool
	presenceStop chan struct{}

	manager    *music.PlayerManager
	messenger  *messenger.Discord
	prefixes   *commands.Prefixes
	router     *commands.Router
	prefetcher *music.Prefetcher
	stopTasks  context.CancelFunc
	startedAt  time.Time
}

func New(cfg *config.Config) (*Bot, error) {
	color, err := cfg.Color()
	if err != nil {
		return nil, errors.Wrap(err, "invalid embed color")
	}

	var store commands.PrefixStore
	if cfg.DBDriver != "" {
		if err := database.Initialize(cfg.GetDBConfig()); err != nil {
			log.Warn().Err(err).Msg("Database initialization failed, prefixes will not persist")
		} else {
			store = database.NewGuildRepository(database.GetDB())
		}
	}

	var settings music.SettingsStore = music.NewMemorySettings()
	if cfg.RedisEnabled() {
		if client, err := redis.Init(cfg.GetRedisConfig()); err != nil {
			log.Warn().Err(err).Msg("Redis initialization failed, loop flags will not persist")
		} else {
			settings = redis.NewSettings(client)
		}
	}

	var catalog music.Catalog
	if cfg.SpotifyEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sp, err := music.NewSpotifyCatalog(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Spotify login failed, Spotify links will not work")
		} else {
			catalog = sp
		}
	}

	sessions, err := openSessions(cfg)
	if err != nil {
		return nil, err
	}

	msgr := messenger.New(sessions[0], color)
	dispatcher := music.NewDispatcher(music.DispatcherOptions{
		Extractor:     music.NewYTDLP(cfg.YTProxy),
		Spotify:       catalog,
		Messenger:     msgr,
		PlaylistLimit: cfg.MaxQueueSize,
	})
	manager := music.NewPlayerManager(music.PlayerOptions{
		IdleTimeout:  cfg.IdleTimeout,
		MaxQueueSize: cfg.MaxQueueSize,
		Resolver:     dispatcher,
		Messenger:    msgr,
		Settings:     settings,
	})
	prefixes := commands.NewPrefixes(store, cfg.DefaultPrefix)

	b := &Bot{
		config:     cfg,
		sessions:   sessions,
		manager:    manager,
		messenger:  msgr,
		prefixes:   prefixes,
		prefetcher: music.NewPrefetcher(manager, dispatcher, cfg.PrefetchInterval, cfg.PrefetchDepth, cfg.PrefetchRate),
	}
	b.router = commands.NewRouter(commands.Options{
		Manager:       manager,
		Resolver:      dispatcher,
		Searcher:      music.NewSearcher(),
		Prefixes:      prefixes,
		Output:        msgr,
		Sinks:         b.sinkFor,
		Stats:         b.stats,
		DisplayLength: cfg.QueueDisplayLength,
		SearchResults: cfg.SearchResults,
		InviteLink:    cfg.InviteLink,
	})
	return b, nil
}

func openSessions(cfg *config.Config) ([]*discordgo.Session, error) {
	shardCount := cfg.ShardCount
	if shardCount < 1 {
		s, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			return nil, errors.Wrap(err, "create discord session")
		}

		if gw, err := s.GatewayBot(); err == nil && gw.Shards > 0 {
			shardCount = gw.Shards
		} else {
			log.Warn().Err(err).Msg("Failed to auto-detect shard count, defaulting to 1")
			shardCount = 1
		}
	}

	sessions := make([]*discordgo.Session, 0, shardCount)
	for shard := 0; shard < shardCount; shard++ {
		s, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			return nil, errors.Wrap(err, "create discord session")
		}

		s.Identify.Intents = discordgo.IntentsGuilds |
			discordgo.IntentsGuildVoiceStates |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsMessageContent

		if shardCount > 1 {
			s.Identify.Shard = &[2]int{shard, shardCount}
			s.ShardCount = shardCount
		}

		sessions = append(sessions, s)
	}
	return sessions, nil
}

// shardFor maps a guild to the shard whose gateway receives its events.
func shardFor(guildID string, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	id, err := strconv.ParseUint(guildID, 10, 64)
	if err != nil {
		return 0
	}
	return int((id >> 22) % uint64(shardCount))
}

func (b *Bot) sessionFor(guildID string) *discordgo.Session {
	return b.sessions[shardFor(guildID, len(b.sessions))]
}

func (b *Bot) sinkFor(guildID, userID string) (music.VoiceSink, error) {
	s := b.sessionFor(guildID)
	channelID, err := voice.FindUserVoiceChannel(s, guildID, userID)
	if err != nil {
		return nil, err
	}
	return voice.NewSink(s, guildID, channelID, b.config.FFmpegPath), nil
}

func (b *Bot) playingCount() int {
	n := 0
	for _, p := range b.manager.Players() {
		if p.Connected() {
			n++
		}
	}
	return n
}

func (b *Bot) stats() commands.BotStats {
	st := commands.BotStats{
		Shards: len(b.sessions),
		Uptime: time.Since(b.startedAt),
	}
	for _, s := range b.sessions {
		st.Guilds += shardGuilds(s)
	}
	if len(b.sessions) > 0 {
		st.Latency = b.sessions[0].HeartbeatLatency()
	}
	st.Playing = b.playingCount()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	st.MemoryMB = float64(mem.Alloc) / 1024.0 / 1024.0
	return st
}

func (b *Bot) Start() error {
	if b.started {
		return nil
	}

	for _, s := range b.sessions {
		b.registerHandlers(s)
	}

	for _, s := range b.sessions {
		if err := s.Open(); err != nil {
			return errors.Wrap(err, "open discord session")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.stopTasks = cancel
	go b.prefetcher.Run(ctx)

	b.startPresenceUpdater()
	b.startedAt = time.Now()
	b.started = true
	log.Info().Int("shards", len(b.sessions)).Msg("Bot session opened")
	return nil
}

func (b *Bot) Stop() error {
	if !b.started {
		return nil
	}

	b.started = false
	if b.stopTasks != nil {
		b.stopTasks()
	}
	b.manager.Shutdown()
	b.stopPresenceUpdater()
	for _, s := range b.sessions {
		if err := s.Close(); err != nil {
			return errors.Wrap(err, "close discord session")
		}
	}

	if err := database.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}

	if err := redis.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close redis")
	}

	log.Info().Int("shards", len(b.sessions)).Msg("Bot session closed")
	return nil
}
