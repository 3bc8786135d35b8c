package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN" validate:"required"`
	ShardCount   int    `env:"SHARD_COUNT" envDefault:"0" validate:"gte=0"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn warning error"`

	DefaultPrefix      string        `env:"DEFAULT_PREFIX" envDefault:"~" validate:"required,max=3"`
	IdleTimeout        time.Duration `env:"IDLE_TIMEOUT" envDefault:"180s" validate:"gte=0"`
	PrefetchInterval   time.Duration `env:"PREFETCH_INTERVAL" envDefault:"20s"`
	PrefetchRate       float64       `env:"PREFETCH_RATE" envDefault:"2" validate:"gt=0"`
	PrefetchDepth      int           `env:"PREFETCH_DEPTH" envDefault:"3" validate:"gte=0"`
	MaxQueueSize       int           `env:"MAX_QUEUE_SIZE" envDefault:"500" validate:"gte=1"`
	QueueDisplayLength int           `env:"QUEUE_DISPLAY_LENGTH" envDefault:"10" validate:"gte=1,lte=25"`
	SearchResults      int           `env:"SEARCH_RESULTS" envDefault:"5" validate:"gte=1,lte=10"`
	EmbedColor         string        `env:"EMBED_COLOR" envDefault:"0x3C6AA1"`
	InviteLink         string        `env:"INVITE_LINK"`

	FFmpegPath string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	YTProxy    string `env:"YOUTUBE_PROXY"`

	DBDriver   string `env:"DB_DRIVER" validate:"omitempty,oneof=postgres sqlite3"`
	DBPath     string `env:"DB_PATH" envDefault:"tempo.db"`
	DBHost     string `env:"DB_HOST"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`
}

// Load reads an optional .env file and parses the process environment.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	return parse(env.Options{})
}

// FromMap parses configuration from an explicit key/value set instead of the
// process environment.
func FromMap(values map[string]string) (*Config, error) {
	return parse(env.Options{Environment: values})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, errors.Wrap(err, "failed to parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "config validation failed")
	}
	if _, err := c.Color(); err != nil {
		return errors.Wrapf(err, "EMBED_COLOR %q is not a number", c.EmbedColor)
	}
	if c.DBDriver == "postgres" && (c.DBHost == "" || c.DBName == "") {
		return errors.New("DB_HOST and DB_NAME are required for the postgres driver")
	}
	return nil
}

func (c *Config) Color() (int, error) {
	v, err := strconv.ParseInt(c.EmbedColor, 0, 32)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

type DBConfig struct {
	Driver   string
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c *Config) GetDBConfig() *DBConfig {
	return &DBConfig{
		Driver:   c.DBDriver,
		Path:     c.DBPath,
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Name:     c.DBName,
		SSLMode:  c.DBSSLMode,
	}
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c *Config) GetRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
