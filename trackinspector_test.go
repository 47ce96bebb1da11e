package playout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type trackRecorder struct {
	nullObserver
	played []uint32
	failed []uint32
}

func (r *trackRecorder) NotifyTrackPlay(t Track) { r.played = append(r.played, t.ID) }
func (r *trackRecorder) NotifyTrackFail(t Track) { r.failed = append(r.failed, t.ID) }

func TestTrackInspector(t *testing.T) {
	f := newTestFactory()
	live := encodedStream(f, 3, 1, nil)
	live.Live = true
	src := newScript(t,
		f.CreateTrack(Track{ID: 1}, true),
		decodedStream(f, 1, 1, nil),
		pcm(f, 10, 100),
		pcm(f, 10, 100),
		f.CreateTrack(Track{ID: 2}, true),
		decodedStream(f, 2, 1, nil),
		f.CreateTrack(Track{ID: 3}, true),
		live,
		f.CreateTrack(Track{ID: 4}, true),
		f.CreateQuit(),
	)
	rec := &trackRecorder{}
	ti := NewTrackInspector(src)
	ti.AddObserver(rec)

	pullKinds(ti, 4)
	assert.Equal(t, []uint32{1}, rec.played)
	assert.Empty(t, rec.failed)

	pullKinds(ti, 3)
	assert.Equal(t, []uint32{2}, rec.failed, "next track before audio")

	pullKinds(ti, 2)
	assert.Equal(t, []uint32{2}, rec.failed, "live stream does not fail")

	pullKinds(ti, 1)
	assert.Equal(t, []uint32{2, 4}, rec.failed, "quit before audio")
	assert.Equal(t, []uint32{1}, rec.played)
	assertReleased(t, f)
}
