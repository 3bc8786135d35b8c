package music

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

var (
	ErrResolveFailed = errors.New("failed to resolve track")
	ErrNoSongsFound  = errors.New("no songs found")
)

const slowSourceTTL = 15 * time.Second

// PlaylistEntry is one item of a flat playlist listing.
type PlaylistEntry struct {
	Title    string
	Uploader string
	URL      string
}

// Extractor fetches metadata for single tracks and flat playlist listings.
type Extractor interface {
	Track(ctx context.Context, target string) (ResolvedTrack, error)
	Playlist(ctx context.Context, target string, limit int) ([]PlaylistEntry, error)
}

// CatalogItem is a track as listed by a streaming catalog.
type CatalogItem struct {
	Title     string
	Artist    string
	Duration  time.Duration
	Thumbnail string
}

// Catalog reads tracks from a streaming platform that has no playable audio
// of its own.
type Catalog interface {
	Track(ctx context.Context, id string) (CatalogItem, error)
	Playlist(ctx context.Context, id string, limit int) ([]CatalogItem, error)
	Album(ctx context.Context, id string, limit int) ([]CatalogItem, error)
}

type linkKind int

const (
	linkSearch linkKind = iota
	linkDirect
	linkYouTubePlaylist
	linkSpotifyTrack
	linkSpotifyPlaylist
	linkSpotifyAlbum
	linkSoundCloudTrack
	linkSoundCloudSet
	linkAppleMusic
)

type link struct {
	kind linkKind
	id   string
}

// Dispatcher classifies user input and hands it to the matching backend.
type Dispatcher struct {
	extractor     Extractor
	spotify       Catalog
	messenger     Messenger
	playlistLimit int
}

type DispatcherOptions struct {
	Extractor Extractor
	// Spotify is optional; without it Spotify links find nothing.
	Spotify       Catalog
	Messenger     Messenger
	PlaylistLimit int
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	limit := opts.PlaylistLimit
	if limit <= 0 {
		limit = 500
	}
	return &Dispatcher{
		extractor:     opts.Extractor,
		spotify:       opts.Spotify,
		messenger:     opts.Messenger,
		playlistLimit: limit,
	}
}

// Resolve never fails: backend errors are logged and yield an empty set,
// which callers report as "no songs found".
func (d *Dispatcher) Resolve(ctx context.Context, guildID, query string, requester User) TrackSet {
	query = strings.TrimSpace(query)
	if query == "" {
		return TrackSet{}
	}

	l := classify(query)
	log := zlog.With().Str("guild", guildID).Str("query", query).Logger()

	var (
		set TrackSet
		err error
	)
	switch l.kind {
	case linkAppleMusic:
		d.notify(guildID, "Apple Music support coming soon!")
		return TrackSet{}
	case linkSpotifyTrack, linkSpotifyPlaylist, linkSpotifyAlbum:
		d.notify(guildID, "**Spotify Link!** This may take a moment...")
		set, err = d.resolveSpotify(ctx, l, requester)
	case linkSoundCloudSet, linkYouTubePlaylist:
		source := "SoundCloud"
		if l.kind == linkYouTubePlaylist {
			source = "YouTube Playlist"
		}
		d.notify(guildID, "**"+source+" Link!** This may take a moment...")
		set, err = d.resolvePlaylist(ctx, query, requester)
	case linkSoundCloudTrack:
		d.notify(guildID, "**SoundCloud Link!** This may take a moment...")
		set, err = d.resolveSingle(ctx, query, requester)
	case linkDirect:
		set, err = d.resolveSingle(ctx, query, requester)
	default:
		set, err = d.resolveSingle(ctx, "ytsearch1:"+query, requester)
	}

	if err != nil {
		log.Warn().Err(err).Msg("resolution failed")
		return TrackSet{}
	}
	log.Debug().Int("tracks", len(set.Tracks)).Bool("playable", set.Playable).Msg("query resolved")
	return set
}

// ResolveText turns the search text of an unresolved entry into a playable
// track.
func (d *Dispatcher) ResolveText(ctx context.Context, text string, requester User) (ResolvedTrack, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ResolvedTrack{}, errors.Wrap(ErrResolveFailed, "empty search text")
	}
	target := text
	if !looksLikeURL(text) {
		target = "ytsearch1:" + text
	}
	r, err := d.extractor.Track(ctx, target)
	if err != nil {
		return ResolvedTrack{}, errors.Mark(errors.Wrapf(err, "resolve %q", text), ErrResolveFailed)
	}
	r.RequestedBy = requester
	return r, nil
}

func (d *Dispatcher) resolveSingle(ctx context.Context, target string, requester User) (TrackSet, error) {
	r, err := d.extractor.Track(ctx, target)
	if err != nil {
		return TrackSet{}, err
	}
	r.RequestedBy = requester
	return SingleTrack(r), nil
}

func (d *Dispatcher) resolvePlaylist(ctx context.Context, target string, requester User) (TrackSet, error) {
	entries, err := d.extractor.Playlist(ctx, target, d.playlistLimit)
	if err != nil {
		return TrackSet{}, err
	}
	tracks := make([]Track, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Title) == "" && e.URL == "" {
			continue
		}
		text := SearchText(e.Title, e.Uploader)
		if strings.TrimSpace(e.Title) == "" {
			text = e.URL
		}
		tracks = append(tracks, NewUnresolvedTrack(text, requester))
	}
	return TrackSet{Tracks: tracks}, nil
}

func (d *Dispatcher) resolveSpotify(ctx context.Context, l link, requester User) (TrackSet, error) {
	if d.spotify == nil {
		return TrackSet{}, errors.New("spotify is not configured")
	}

	switch l.kind {
	case linkSpotifyTrack:
		item, err := d.spotify.Track(ctx, l.id)
		if err != nil {
			return TrackSet{}, err
		}
		r, err := d.ResolveText(ctx, SearchText(item.Title, item.Artist), requester)
		if err != nil {
			return TrackSet{}, err
		}
		if item.Thumbnail != "" {
			r.Thumbnail = item.Thumbnail
		}
		return SingleTrack(r), nil
	case linkSpotifyPlaylist, linkSpotifyAlbum:
		var (
			items []CatalogItem
			err   error
		)
		if l.kind == linkSpotifyPlaylist {
			items, err = d.spotify.Playlist(ctx, l.id, d.playlistLimit)
		} else {
			items, err = d.spotify.Album(ctx, l.id, d.playlistLimit)
		}
		if err != nil {
			return TrackSet{}, err
		}
		tracks := make([]Track, 0, len(items))
		for _, item := range items {
			tracks = append(tracks, NewUnresolvedTrack(SearchText(item.Title, item.Artist), requester))
		}
		return TrackSet{Tracks: tracks}, nil
	}
	return TrackSet{}, errors.Newf("unexpected spotify link kind %d", l.kind)
}

func (d *Dispatcher) notify(guildID, message string) {
	if d.messenger == nil {
		return
	}
	d.messenger.Notify(guildID, message, slowSourceTTL)
}

func classify(query string) link {
	if strings.HasPrefix(query, "spotify:") {
		if kind, id, ok := parseSpotifyURI(query); ok {
			return link{kind: kind, id: id}
		}
		return link{kind: linkSearch}
	}
	if !looksLikeURL(query) {
		return link{kind: linkSearch}
	}

	u, err := url.Parse(query)
	if err != nil {
		return link{kind: linkSearch}
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	switch {
	case host == "open.spotify.com" || host == "play.spotify.com":
		if kind, id, ok := parseSpotifyPath(u.Path); ok {
			return link{kind: kind, id: id}
		}
		return link{kind: linkDirect}
	case strings.HasSuffix(host, "soundcloud.com"):
		if strings.Contains(u.Path, "/sets/") {
			return link{kind: linkSoundCloudSet}
		}
		return link{kind: linkSoundCloudTrack}
	case host == "music.apple.com":
		return link{kind: linkAppleMusic}
	case host == "youtube.com" || host == "m.youtube.com" || host == "music.youtube.com":
		q := u.Query()
		if strings.HasPrefix(u.Path, "/playlist") || (q.Get("list") != "" && q.Get("v") == "") {
			return link{kind: linkYouTubePlaylist}
		}
		return link{kind: linkDirect}
	default:
		return link{kind: linkDirect}
	}
}

// parseSpotifyPath handles /track/<id>, /playlist/<id>, /album/<id> with an
// optional /intl-xx/ locale prefix.
func parseSpotifyPath(path string) (linkKind, string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) < 2 || parts[1] == "" {
		return 0, "", false
	}
	return spotifyKind(parts[0], parts[1])
}

// parseSpotifyURI handles spotify:track:<id> style URIs.
func parseSpotifyURI(uri string) (linkKind, string, bool) {
	parts := strings.Split(uri, ":")
	if len(parts) != 3 || parts[2] == "" {
		return 0, "", false
	}
	return spotifyKind(parts[1], parts[2])
}

func spotifyKind(kind, id string) (linkKind, string, bool) {
	switch kind {
	case "track":
		return linkSpotifyTrack, id, true
	case "playlist":
		return linkSpotifyPlaylist, id, true
	case "album":
		return linkSpotifyAlbum, id, true
	}
	return 0, "", false
}

func looksLikeURL(value string) bool {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return true
	}
	u, err := url.Parse(value)
	return err == nil && u.Scheme != "" && u.Host != ""
}
