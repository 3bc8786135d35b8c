package music

import (
	"context"
	"time"
)

// VoiceSink is an audio output bound to one voice channel.
type VoiceSink interface {
	Connect(ctx context.Context) error
	// Play starts streaming url and returns a channel that receives exactly
	// one value (nil on natural end or Stop) when the stream is over.
	Play(ctx context.Context, url string) (<-chan error, error)
	IsPlaying() bool
	IsPaused() bool
	Pause() error
	Resume() error
	Stop()
	Disconnect() error
}

// Resolver turns user input into queue entries.
type Resolver interface {
	Resolve(ctx context.Context, guildID, query string, requester User) TrackSet
	ResolveText(ctx context.Context, text string, requester User) (ResolvedTrack, error)
}

// Messenger posts status messages to a guild. Delivery is best effort and
// must never block the caller.
type Messenger interface {
	Notify(guildID, message string, ttl time.Duration)
}

// SettingsStore persists the per-guild loop flag.
type SettingsStore interface {
	Loop(ctx context.Context, guildID string) (bool, error)
	SetLoop(ctx context.Context, guildID string, on bool) error
	// Forget drops everything stored for a guild the bot was removed from.
	Forget(ctx context.Context, guildID string) error
}
