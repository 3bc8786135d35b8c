package music

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type TrackKind int

const (
	TrackUnresolved TrackKind = iota
	TrackResolved
)

func (k TrackKind) String() string {
	switch k {
	case TrackResolved:
		return "resolved"
	case TrackUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// User identifies the member who requested a track.
type User struct {
	ID        string
	Name      string
	AvatarURL string
}

// ResolvedTrack carries everything needed to play and display a track.
type ResolvedTrack struct {
	Title       string
	PlaybackURL string
	SourceURL   string
	RequestedBy User
	Duration    time.Duration
	Thumbnail   string
}

// UnresolvedTrack is a placeholder that is turned into a ResolvedTrack once
// it gets close to the head of the queue.
type UnresolvedTrack struct {
	SearchText  string
	RequestedBy User
}

// Track is a queue entry. It holds exactly one of the two variants; the
// variant is fixed at construction and only changes through Queue.ResolveInPlace.
type Track struct {
	ID string

	kind       TrackKind
	resolved   ResolvedTrack
	unresolved UnresolvedTrack
}

func NewResolvedTrack(r ResolvedTrack) Track {
	return Track{kind: TrackResolved, resolved: r}
}

func NewUnresolvedTrack(searchText string, requester User) Track {
	return Track{
		kind:       TrackUnresolved,
		unresolved: UnresolvedTrack{SearchText: searchText, RequestedBy: requester},
	}
}

func (t Track) Kind() TrackKind {
	return t.kind
}

func (t Track) Resolved() (ResolvedTrack, bool) {
	if t.kind != TrackResolved {
		return ResolvedTrack{}, false
	}
	return t.resolved, true
}

func (t Track) Unresolved() (UnresolvedTrack, bool) {
	if t.kind != TrackUnresolved {
		return UnresolvedTrack{}, false
	}
	return t.unresolved, true
}

// Title is the display name: the real title when resolved, the search text
// otherwise.
func (t Track) Title() string {
	if t.kind == TrackResolved {
		return t.resolved.Title
	}
	return t.unresolved.SearchText
}

func (t Track) RequestedBy() User {
	if t.kind == TrackResolved {
		return t.resolved.RequestedBy
	}
	return t.unresolved.RequestedBy
}

// TrackSet is the outcome of resolving one user query.
type TrackSet struct {
	Tracks []Track
	// Playable is true when the set is a single track that was resolved
	// eagerly.
	Playable bool
}

func (s TrackSet) Empty() bool {
	return len(s.Tracks) == 0
}

func SingleTrack(r ResolvedTrack) TrackSet {
	return TrackSet{Tracks: []Track{NewResolvedTrack(r)}, Playable: true}
}

var (
	bracketNoise = regexp.MustCompile(`(?i)\s*[\(\[][^\)\]]*\b(feat\.?|ft\.?|with|remaster(ed)?|official|lyrics?|audio|video|visuali[sz]er|explicit|clean|version|edit|live|mono|stereo)\b[^\)\]]*[\)\]]`)
	featTail     = regexp.MustCompile(`(?i)\s+(feat\.?|ft\.?)\s.*$`)
	dashRemaster = regexp.MustCompile(`(?i)\s+-\s+(\d{4}\s+)?remaster(ed)?(\s+\d{4})?(\s+version)?$`)
	spaces       = regexp.MustCompile(`\s{2,}`)
)

// ScrubTitle strips decorations that make search-provider lookups miss, such
// as "(feat. X)", "[Official Video]" or "- 2011 Remaster".
func ScrubTitle(title string) string {
	out := bracketNoise.ReplaceAllString(title, "")
	out = dashRemaster.ReplaceAllString(out, "")
	out = featTail.ReplaceAllString(out, "")
	out = spaces.ReplaceAllString(out, " ")
	out = strings.TrimSpace(out)
	if out == "" {
		return strings.TrimSpace(title)
	}
	return out
}

// SearchText builds the lookup string used for lazily resolved entries.
func SearchText(title, artist string) string {
	title = ScrubTitle(title)
	artist = strings.TrimSpace(artist)
	if title == "" {
		title = "song"
	}
	if artist == "" {
		return title
	}
	return title + " " + artist
}

// FormatDuration renders m:ss, or h:mm:ss for long tracks. Unknown durations
// render as "live".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "live"
	}
	total := int(d.Round(time.Second) / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
