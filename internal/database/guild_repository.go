package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

const guildRepoTimeout = 2 * time.Second

// GuildRepository stores per-guild command settings. A nil repository or one
// without a connection behaves as an empty store.
type GuildRepository struct {
	db *sql.DB
}

func NewGuildRepository(db *sql.DB) *GuildRepository {
	return &GuildRepository{db: db}
}

func (r *GuildRepository) enabled() bool {
	return r != nil && r.db != nil
}

// EnsureGuild inserts a settings row with the given prefix unless one exists.
func (r *GuildRepository) EnsureGuild(guildID, prefix string) error {
	if !r.enabled() || guildID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), guildRepoTimeout)
	defer cancel()

	const query = `
		INSERT INTO guild_settings (guild_id, prefix)
		VALUES ($1, $2)
		ON CONFLICT (guild_id) DO NOTHING;
	`

	_, err := r.db.ExecContext(ctx, query, guildID, prefix)
	return errors.Wrapf(err, "ensure settings for guild %s", guildID)
}

func (r *GuildRepository) SetPrefix(guildID, prefix string) error {
	if !r.enabled() || guildID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), guildRepoTimeout)
	defer cancel()

	const query = `
		INSERT INTO guild_settings (guild_id, prefix, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (guild_id)
		DO UPDATE SET
			prefix = EXCLUDED.prefix,
			updated_at = CURRENT_TIMESTAMP;
	`

	_, err := r.db.ExecContext(ctx, query, guildID, prefix)
	return errors.Wrapf(err, "set prefix for guild %s", guildID)
}

// GetPrefix reports the stored prefix and whether a row exists.
func (r *GuildRepository) GetPrefix(guildID string) (string, bool, error) {
	if !r.enabled() || guildID == "" {
		return "", false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), guildRepoTimeout)
	defer cancel()

	const query = `
		SELECT prefix
		FROM guild_settings
		WHERE guild_id = $1
	`

	var prefix string
	err := r.db.QueryRowContext(ctx, query, guildID).Scan(&prefix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "get prefix for guild %s", guildID)
	}

	return prefix, true, nil
}

func (r *GuildRepository) DeleteGuild(guildID string) error {
	if !r.enabled() || guildID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), guildRepoTimeout)
	defer cancel()

	const query = `
		DELETE FROM guild_settings
		WHERE guild_id = $1
	`

	_, err := r.db.ExecContext(ctx, query, guildID)
	return errors.Wrapf(err, "delete settings for guild %s", guildID)
}
