package playout

// StreamPlay is the answer of a StreamHandler on whether a stream may play.
type StreamPlay int

// Stream play answers.
const (
	PlayYes StreamPlay = iota
	PlayNo
	PlayLater
)

func (p StreamPlay) String() string {
	switch p {
	case PlayYes:
		return "yes"
	case PlayNo:
		return "no"
	case PlayLater:
		return "later"
	}
	return "unknown"
}

// StreamHandler is implemented by the producer of a stream. Elements use it
// to control the source of the stream they are playing.
type StreamHandler interface {
	// OkToPlay is asked once per stream before its audio is played.
	OkToPlay(trackID, streamID uint32) StreamPlay
	// TrySeek restarts the stream at byte offset. It returns the id of the
	// flush which will precede data from the new position, or
	// FlushIDInvalid if seek is not possible.
	TrySeek(trackID, streamID uint32, offset uint64) uint32
	// TryStop stops the stream. It returns the id of the flush which will
	// follow the last data of the stream, or FlushIDInvalid if the stream
	// is not active anymore.
	TryStop(trackID, streamID uint32) uint32
	// NotifyStarving reports an unplanned underrun while the stream plays.
	NotifyStarving(mode string, trackID, streamID uint32)
}

// StopperObserver is notified when the Stopper completes a pause or stop.
type StopperObserver interface {
	NotifyPaused()
	NotifyStopped()
}

// TrackObserver is notified by the TrackInspector.
type TrackObserver interface {
	NotifyTrackPlay(Track)
	NotifyTrackFail(Track)
}

// WaiterObserver is notified when a wait starts and ends.
type WaiterObserver interface {
	NotifyPipelineWaiting(bool)
}

// StarvationObserver is notified when the starvation monitor starts or
// stops buffering.
type StarvationObserver interface {
	NotifyStarvationMonitorBuffering(bool)
}

// PropertyObserver receives playback properties from the Reporter.
type PropertyObserver interface {
	NotifyMode(mode string)
	NotifyTrack(track Track, mode string, startOfStream bool)
	NotifyMetaText(text string)
	NotifyTime(seconds, trackDurationSeconds uint)
	NotifyStreamInfo(DecodedStreamInfo)
}

// Seekable maps a seek to a flush of the stream, implemented by the
// CodecController.
type Seekable interface {
	StartSeek(trackID, streamID uint32, seconds uint) (flushID uint32, err error)
}

// nullHandler answers for streams which arrived without a handler.
type nullHandler struct{}

func (nullHandler) OkToPlay(uint32, uint32) StreamPlay    { return PlayYes }
func (nullHandler) TrySeek(uint32, uint32, uint64) uint32 { return FlushIDInvalid }
func (nullHandler) TryStop(uint32, uint32) uint32         { return FlushIDInvalid }
func (nullHandler) NotifyStarving(string, uint32, uint32) {}

func handlerOrNull(h StreamHandler) StreamHandler {
	if h == nil {
		return nullHandler{}
	}
	return h
}

// nullObserver ignores all notifications.
type nullObserver struct{}

func (nullObserver) NotifyPaused()                         {}
func (nullObserver) NotifyStopped()                        {}
func (nullObserver) NotifyTrackPlay(Track)                 {}
func (nullObserver) NotifyTrackFail(Track)                 {}
func (nullObserver) NotifyPipelineWaiting(bool)            {}
func (nullObserver) NotifyStarvationMonitorBuffering(bool) {}
func (nullObserver) NotifyMode(string)                     {}
func (nullObserver) NotifyTrack(Track, string, bool)       {}
func (nullObserver) NotifyMetaText(string)                 {}
func (nullObserver) NotifyTime(uint, uint)                 {}
func (nullObserver) NotifyStreamInfo(DecodedStreamInfo)    {}
