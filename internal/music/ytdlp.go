package music

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"
)

const (
	trackPrintFormat    = "%(url)s\t%(title)s\t%(webpage_url)s\t%(duration)s\t%(thumbnail)s"
	playlistPrintFormat = "%(url)s\t%(title)s\t%(uploader)s"
)

// YTDLP extracts stream URLs and playlist listings with the yt-dlp binary.
type YTDLP struct {
	proxy string
}

func NewYTDLP(proxy string) *YTDLP {
	return &YTDLP{proxy: proxy}
}

func (y *YTDLP) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings()
	if y.proxy != "" {
		cmd.Proxy(y.proxy)
	}
	return cmd
}

// Track resolves a URL or a "ytsearch1:" query to a playable track.
func (y *YTDLP) Track(ctx context.Context, target string) (ResolvedTrack, error) {
	res, err := y.command().
		Print(trackPrintFormat).
		IgnoreConfig().
		Run(ctx, "-f", "bestaudio/best", "--no-playlist", "--skip-download", target)
	if err != nil {
		return ResolvedTrack{}, errors.Wrapf(err, "yt-dlp failed: %s", stderrOf(res))
	}
	return parseTrackOutput(res.Stdout)
}

// Playlist lists up to limit entries without extracting each of them.
func (y *YTDLP) Playlist(ctx context.Context, target string, limit int) ([]PlaylistEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	res, err := y.command().
		FlatPlaylist().
		Print(playlistPrintFormat).
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		IgnoreConfig().
		Run(ctx, target)
	if err != nil {
		return nil, errors.Wrapf(err, "yt-dlp playlist failed: %s", stderrOf(res))
	}
	entries := parsePlaylistOutput(res.Stdout)
	if len(entries) == 0 {
		return nil, errors.Wrap(ErrNoSongsFound, "empty playlist")
	}
	return entries, nil
}

func stderrOf(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}
	return strings.TrimSpace(res.Stderr)
}

func parseTrackOutput(stdout string) (ResolvedTrack, error) {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 5 || parts[0] == "" || parts[0] == "NA" {
			continue
		}
		title := field(parts[1])
		if title == "" {
			title = "Unknown Title"
		}
		return ResolvedTrack{
			Title:       title,
			PlaybackURL: parts[0],
			SourceURL:   field(parts[2]),
			Duration:    parseSeconds(parts[3]),
			Thumbnail:   field(parts[4]),
		}, nil
	}
	return ResolvedTrack{}, errors.Wrap(ErrResolveFailed, "no usable yt-dlp output")
}

func parsePlaylistOutput(stdout string) []PlaylistEntry {
	var entries []PlaylistEntry
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			continue
		}
		e := PlaylistEntry{
			URL:      field(parts[0]),
			Title:    field(parts[1]),
			Uploader: field(parts[2]),
		}
		if e.URL == "" && e.Title == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// field maps yt-dlp's "NA" placeholder to an empty string.
func field(v string) string {
	v = strings.TrimSpace(v)
	if v == "NA" {
		return ""
	}
	return v
}

func parseSeconds(v string) time.Duration {
	f, err := strconv.ParseFloat(field(v), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
