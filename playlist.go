package playout

import (
	"sync"
)

// Playlist is an in-memory UriProvider. Register it as a TrackObserver so
// MoveNext and MovePrevious know which track is playing.
type Playlist struct {
	mode    string
	ids     *IDManager
	gorging bool

	m       sync.Mutex
	tracks  []Track
	pos     int
	fetched int
	playing int
	later   bool
	// exhausted is set when GetNext ran past the last track.
	exhausted bool
}

// NewPlaylist creates an empty playlist of mode. Track ids are minted
// by ids.
func NewPlaylist(mode string, ids *IDManager, supportsGorging bool) *Playlist {
	return &Playlist{
		mode:    mode,
		ids:     ids,
		gorging: supportsGorging,
		fetched: -1,
		playing: -1,
	}
}

// Add appends a track and returns it.
func (p *Playlist) Add(uri, metadata string) Track {
	t := Track{ID: p.ids.NextTrackID(), URI: uri, Metadata: metadata}
	p.m.Lock()
	defer p.m.Unlock()
	p.tracks = append(p.tracks, t)
	return t
}

// Tracks returns a copy of the playlist.
func (p *Playlist) Tracks() []Track {
	p.m.Lock()
	defer p.m.Unlock()
	return append([]Track(nil), p.tracks...)
}

// Exhausted reports if all tracks were fetched.
func (p *Playlist) Exhausted() bool {
	p.m.Lock()
	defer p.m.Unlock()
	return p.exhausted
}

// Mode implements UriProvider.
func (p *Playlist) Mode() string { return p.mode }

// SupportsGorging implements UriProvider.
func (p *Playlist) SupportsGorging() bool { return p.gorging }

// SupportsNextPrev implements UriProvider.
func (p *Playlist) SupportsNextPrev() bool { return true }

// Begin implements UriProvider. Unknown ids start from the first track.
func (p *Playlist) Begin(trackID uint32) {
	p.m.Lock()
	defer p.m.Unlock()
	p.pos = max(p.index(trackID), 0)
	p.later = false
	p.exhausted = false
}

// BeginLater implements UriProvider.
func (p *Playlist) BeginLater(trackID uint32) {
	p.m.Lock()
	defer p.m.Unlock()
	p.pos = max(p.index(trackID), 0)
	p.later = true
	p.exhausted = false
}

// GetNext implements UriProvider.
func (p *Playlist) GetNext() (Track, StreamPlay) {
	p.m.Lock()
	defer p.m.Unlock()
	if p.pos >= len(p.tracks) {
		p.exhausted = true
		return Track{}, PlayNo
	}
	t := p.tracks[p.pos]
	p.fetched = p.pos
	p.pos++
	if p.later {
		p.later = false
		return t, PlayLater
	}
	return t, PlayYes
}

// MoveNext implements UriProvider.
func (p *Playlist) MoveNext() bool {
	p.m.Lock()
	defer p.m.Unlock()
	next := p.current() + 1
	if next >= len(p.tracks) {
		return false
	}
	p.pos = next
	p.exhausted = false
	return true
}

// MovePrevious implements UriProvider.
func (p *Playlist) MovePrevious() bool {
	p.m.Lock()
	defer p.m.Unlock()
	prev := p.current() - 1
	if prev < 0 {
		return false
	}
	p.pos = prev
	p.exhausted = false
	return true
}

// NotifyTrackPlay implements TrackObserver.
func (p *Playlist) NotifyTrackPlay(t Track) {
	p.m.Lock()
	defer p.m.Unlock()
	if i := p.index(t.ID); i >= 0 {
		p.playing = i
	}
}

// NotifyTrackFail implements TrackObserver.
func (p *Playlist) NotifyTrackFail(Track) {}

// current is the playing track, or the last fetched one if nothing
// played yet.
func (p *Playlist) current() int {
	if p.playing >= 0 {
		return p.playing
	}
	return p.fetched
}

func (p *Playlist) index(trackID uint32) int {
	for i, t := range p.tracks {
		if t.ID == trackID {
			return i
		}
	}
	return -1
}
