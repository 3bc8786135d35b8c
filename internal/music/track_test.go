package music

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackVariants(t *testing.T) {
	alice := User{ID: "1", Name: "alice"}

	resolved := NewResolvedTrack(ResolvedTrack{Title: "Song", PlaybackURL: "u", RequestedBy: alice})
	assert.Equal(t, TrackResolved, resolved.Kind())
	r, ok := resolved.Resolved()
	assert.True(t, ok)
	assert.Equal(t, "u", r.PlaybackURL)
	_, ok = resolved.Unresolved()
	assert.False(t, ok)
	assert.Equal(t, "Song", resolved.Title())
	assert.Equal(t, alice, resolved.RequestedBy())

	lazy := NewUnresolvedTrack("song artist", alice)
	assert.Equal(t, TrackUnresolved, lazy.Kind())
	_, ok = lazy.Resolved()
	assert.False(t, ok)
	u, ok := lazy.Unresolved()
	assert.True(t, ok)
	assert.Equal(t, "song artist", u.SearchText)
	assert.Equal(t, "song artist", lazy.Title())
	assert.Equal(t, alice, lazy.RequestedBy())
}

func TestScrubTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Song (feat. Someone)", "Song"},
		{"Song [Official Video]", "Song"},
		{"Song (Official Audio) [Lyrics]", "Song"},
		{"Song - 2011 Remaster", "Song"},
		{"Song - Remastered 2009", "Song"},
		{"Song ft. Someone Else", "Song"},
		{"Plain Title", "Plain Title"},
		{"(feat. Only)", "(feat. Only)"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ScrubTitle(tt.in))
		})
	}
}

func TestSearchText(t *testing.T) {
	assert.Equal(t, "Song Artist", SearchText("Song (feat. X)", "Artist"))
	assert.Equal(t, "Song", SearchText("Song", ""))
	assert.Equal(t, "song Artist", SearchText("", "Artist"))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "live"},
		{-time.Second, "live"},
		{5 * time.Second, "0:05"},
		{3*time.Minute + 7*time.Second, "3:07"},
		{59*time.Minute + 59*time.Second, "59:59"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
		{1500 * time.Millisecond, "0:02"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.in))
		})
	}
}
