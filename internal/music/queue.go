package music

import (
	"math/rand/v2"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	ErrQueueEmpty      = errors.New("queue is empty")
	ErrQueueFull       = errors.New("queue is full")
	ErrIndexOutOfRange = errors.New("queue index out of range")
)

type Position int

const (
	// PositionTail appends after the last entry.
	PositionTail Position = iota
	// PositionNext splices right after the head so the new entries play
	// before anything that was already waiting.
	PositionNext
)

// Queue is the ordered list of entries for one guild. Index 0 is the track
// being played while the player is active, and the next one up otherwise.
type Queue struct {
	mu      sync.Mutex
	entries []Track
	max     int
}

func NewQueue(maxSize int) *Queue {
	return &Queue{max: maxSize}
}

// Enqueue assigns fresh entry IDs and inserts the tracks. When the queue
// would overflow, only the tracks that fit are added; ErrQueueFull is
// returned if none did.
func (q *Queue) Enqueue(tracks []Track, pos Position) ([]Track, error) {
	if len(tracks) == 0 {
		return nil, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	room := len(tracks)
	if q.max > 0 {
		room = q.max - len(q.entries)
		if room <= 0 {
			return nil, ErrQueueFull
		}
		if room > len(tracks) {
			room = len(tracks)
		}
	}

	added := make([]Track, room)
	for i := range added {
		t := tracks[i]
		t.ID = uuid.NewString()
		added[i] = t
	}

	if pos == PositionNext && len(q.entries) > 0 {
		rest := append([]Track(nil), q.entries[1:]...)
		q.entries = append(q.entries[:1], added...)
		q.entries = append(q.entries, rest...)
	} else {
		q.entries = append(q.entries, added...)
	}

	out := make([]Track, len(added))
	copy(out, added)
	return out, nil
}

// RemoveAt removes the entry at a 1-based display index.
func (q *Queue) RemoveAt(displayIndex int) (Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := displayIndex - 1
	if i < 0 || i >= len(q.entries) {
		return Track{}, errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", displayIndex, len(q.entries))
	}
	removed := q.entries[i]
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return removed, nil
}

func (q *Queue) RemoveByID(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return true
}

func (q *Queue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()
}

// Shuffle permutes the queue. With keepHead the entry at index 0 stays put.
func (q *Queue) Shuffle(keepHead bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	start := 0
	if keepHead {
		start = 1
	}
	if len(q.entries)-start < 2 {
		return
	}
	rest := q.entries[start:]
	rand.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
}

// Rotate moves the head to the tail.
func (q *Queue) Rotate() {
	q.mu.Lock()
	q.rotateLocked()
	q.mu.Unlock()
}

func (q *Queue) rotateLocked() {
	if len(q.entries) < 2 {
		return
	}
	head := q.entries[0]
	q.entries = append(q.entries[1:], head)
}

func (q *Queue) Head() (Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return Track{}, false
	}
	return q.entries[0], true
}

func (q *Queue) Get(id string) (Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return Track{}, false
	}
	return q.entries[i], true
}

func (q *Queue) Snapshot() []Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Track, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Advance moves past the finished head. It is a no-op returning false when
// the head is no longer the entry with the given id, which happens when a
// skip, remove or clear got there first.
func (q *Queue) Advance(id string, loop bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 || q.entries[0].ID != id {
		return false
	}
	if loop {
		q.rotateLocked()
	} else {
		q.entries = q.entries[1:]
	}
	return true
}

// SkipHeads moves min(n, len-1) entries off the head, discarding them or
// rotating them to the tail when loop is set. The last entry is never
// touched here: ending it is left to the normal completion path.
func (q *Queue) SkipHeads(n int, loop bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.entries)-1 {
		n = len(q.entries) - 1
	}
	if n <= 0 {
		return 0
	}
	if loop {
		moved := append([]Track(nil), q.entries[:n]...)
		q.entries = append(q.entries[n:], moved...)
	} else {
		q.entries = q.entries[n:]
	}
	return n
}

// ResolveInPlace swaps an unresolved entry for its resolved form, keeping
// the entry ID and position. It returns false when the entry is gone or was
// already resolved, so racing resolutions settle on the first result.
func (q *Queue) ResolveInPlace(id string, r ResolvedTrack) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 || q.entries[i].kind != TrackUnresolved {
		return false
	}
	resolved := NewResolvedTrack(r)
	resolved.ID = id
	q.entries[i] = resolved
	return true
}

// Unresolved returns up to limit unresolved entries in queue order.
func (q *Queue) Unresolved(limit int) []Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Track
	for _, t := range q.entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		if t.kind == TrackUnresolved {
			out = append(out, t)
		}
	}
	return out
}

func (q *Queue) indexLocked(id string) int {
	for i, t := range q.entries {
		if t.ID == id {
			return i
		}
	}
	return -1
}
