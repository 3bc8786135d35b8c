// Package main provides the bot entry point.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/hxnx/tempo/config"
	"github.com/hxnx/tempo/internal/bot"
	"github.com/hxnx/tempo/internal/logger"
)

var (
	app     = kingpin.New("tempo", "Tempo - Discord music bot")
	envFile = app.Flag("env-file", "Path to a .env file").Default(".env").String()
	verbose = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n\n", err)
		fmt.Fprintln(os.Stderr, "Required: DISCORD_TOKEN")
		fmt.Fprintln(os.Stderr, "Optional: DEFAULT_PREFIX, IDLE_TIMEOUT, MAX_QUEUE_SIZE, LOG_LEVEL, FFMPEG_PATH")
		fmt.Fprintln(os.Stderr, "Database: DB_DRIVER (postgres|sqlite3), DB_PATH, DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSLMODE")
		fmt.Fprintln(os.Stderr, "Redis:    REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB")
		fmt.Fprintln(os.Stderr, "Spotify:  SPOTIFY_CLIENT_ID, SPOTIFY_CLIENT_SECRET")
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  cfg.LogLevel,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().
		Str("prefix", cfg.DefaultPrefix).
		Int("max_queue", cfg.MaxQueueSize).
		Dur("idle_timeout", cfg.IdleTimeout).
		Str("db_driver", cfg.DBDriver).
		Bool("redis", cfg.RedisEnabled()).
		Bool("spotify", cfg.SpotifyEnabled()).
		Msg("Configuration loaded")

	b, err := bot.New(cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to create bot")
	}

	if err := b.Start(); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to start bot")
	}
	zlog.Info().Msg("Bot is running. Press CTRL+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zlog.Info().Msg("Shutting down...")
	if err := b.Stop(); err != nil {
		zlog.Error().Err(err).Msg("Failed to stop bot")
	}
}
