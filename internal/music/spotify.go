package music

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

const spotifyPageSize = 100

// SpotifyCatalog reads track listings from the Spotify Web API with an app
// (client credentials) token.
type SpotifyCatalog struct {
	client     *spotify.Client
	maxRetries int
	retryDelay time.Duration
}

func NewSpotifyCatalog(ctx context.Context, clientID, clientSecret string) (*SpotifyCatalog, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	if _, err := cfg.Token(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to obtain spotify token")
	}

	return &SpotifyCatalog{
		client:     spotify.New(cfg.Client(ctx)),
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

func (c *SpotifyCatalog) Track(ctx context.Context, id string) (CatalogItem, error) {
	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return CatalogItem{}, errors.Wrap(err, "failed to get spotify track")
	}

	item := catalogItem(result.SimpleTrack)
	if len(result.Album.Images) > 0 {
		item.Thumbnail = result.Album.Images[0].URL
	}
	return item, nil
}

func (c *SpotifyCatalog) Playlist(ctx context.Context, id string, limit int) ([]CatalogItem, error) {
	var items []CatalogItem
	offset := 0

	for limit <= 0 || len(items) < limit {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(id),
				spotify.Limit(spotifyPageSize),
				spotify.Offset(offset),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get spotify playlist items")
		}

		for _, entry := range page.Items {
			// Episodes and local files come back without a track.
			if entry.Track.Track == nil || entry.Track.Track.Name == "" {
				continue
			}
			items = append(items, catalogItem(entry.Track.Track.SimpleTrack))
		}

		if len(page.Items) < spotifyPageSize {
			break
		}
		offset += spotifyPageSize
	}

	return truncateItems(items, limit), nil
}

func (c *SpotifyCatalog) Album(ctx context.Context, id string, limit int) ([]CatalogItem, error) {
	var items []CatalogItem
	offset := 0

	for limit <= 0 || len(items) < limit {
		var page *spotify.SimpleTrackPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetAlbumTracks(ctx, spotify.ID(id),
				spotify.Limit(50),
				spotify.Offset(offset),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get spotify album tracks")
		}

		for _, t := range page.Tracks {
			items = append(items, catalogItem(t))
		}

		if len(page.Tracks) < 50 {
			break
		}
		offset += 50
	}

	return truncateItems(items, limit), nil
}

func catalogItem(t spotify.SimpleTrack) CatalogItem {
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	return CatalogItem{
		Title:    t.Name,
		Artist:   artist,
		Duration: time.Duration(t.Duration) * time.Millisecond,
	}
}

func truncateItems(items []CatalogItem, limit int) []CatalogItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// retry retries rate limited and server side failures with a linear backoff.
func (c *SpotifyCatalog) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status == 429 || se.Status >= 500
	}
	msg := err.Error()
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "429")
}
