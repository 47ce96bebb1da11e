package playout

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pipelined.dev/playout/log"
)

// prefetchTimeout bounds how long StopPrefetch waits for its stream.
const prefetchTimeout = 5 * time.Second

// Manager owns the pipeline, the filler and the id manager, and exposes
// the control surface of the player. Control calls are serialised.
type Manager struct {
	logger   log.Logger
	cfg      Config
	factory  *MsgFactory
	ids      *IDManager
	pipeline *Pipeline
	filler   *Filler
	prefetch prefetchObserver
	g        errgroup.Group
	// prefetchTimeout is changed by tests.
	prefetchTimeout time.Duration

	public    sync.Mutex
	m         sync.Mutex
	observers []Observer
	mode      string
	state     PipelineState
	started   bool
	quit      bool
}

// NewManager builds a stopped pipeline. Register codecs, protocols,
// providers and observers, then call Start.
func NewManager(cfg Config, logger log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Silent()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		logger:          logger,
		cfg:             cfg,
		factory:         NewMsgFactory(cfg.factoryConfig()),
		state:           PipelineStopped,
		prefetchTimeout: prefetchTimeout,
	}
	var err error
	if m.pipeline, err = NewPipeline(cfg, m.factory, m, logger); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	m.ids = NewIDManager(m.pipeline)
	m.ids.AddObserver(&m.prefetch)
	m.pipeline.AddTrackObserver(&m.prefetch)
	m.filler = NewFiller(m.factory, m.pipeline, m.ids, logger)
	return m, nil
}

// Factory returns the message factory.
func (m *Manager) Factory() *MsgFactory { return m.factory }

// IDs returns the id manager.
func (m *Manager) IDs() *IDManager { return m.ids }

// AddCodec registers a codec.
func (m *Manager) AddCodec(c Codec) { m.pipeline.AddCodec(c) }

// AddProtocol registers a protocol.
func (m *Manager) AddProtocol(p Protocol) { m.filler.AddProtocol(p) }

// AddUriProvider registers a provider for its mode.
func (m *Manager) AddUriProvider(p UriProvider) { m.filler.AddUriProvider(p) }

// AddTrackObserver registers o for track play and fail notifications.
func (m *Manager) AddTrackObserver(o TrackObserver) { m.pipeline.AddTrackObserver(o) }

// SetSender tees audio to s.
func (m *Manager) SetSender(s Pusher) { m.pipeline.SetSender(s) }

// LogElements logs kinds passing between elements.
func (m *Manager) LogElements(k Kind) { m.pipeline.LogElements(k) }

// AddObserver registers o for state and property notifications.
func (m *Manager) AddObserver(o Observer) {
	m.m.Lock()
	defer m.m.Unlock()
	m.observers = append(m.observers, o)
}

// Start starts the filler, codec, gorger and starvation monitor threads.
// Priorities increase toward the driver.
func (m *Manager) Start() {
	m.public.Lock()
	defer m.public.Unlock()
	if m.started {
		return
	}
	m.started = true
	threads := []struct {
		name string
		run  func() error
	}{
		{"filler", m.filler.Run},
		{"codec", m.pipeline.codec.Run},
		{"gorger", m.pipeline.gorger.Run},
		{"starvation", m.pipeline.starvation.Run},
	}
	priority := m.cfg.ThreadPriorityMax - len(threads) + 1
	for _, t := range threads {
		p := priority
		t := t
		m.g.Go(func() error {
			lockThread(p, t.name, m.logger)
			if err := t.run(); err != nil {
				return fmt.Errorf("%s: %w", t.name, err)
			}
			return nil
		})
		priority++
	}
	invariant(priority-1 == m.cfg.ThreadPriorityMax, "thread priority %d above max %d", priority-1, m.cfg.ThreadPriorityMax)
}

// Pull implements Element for the driver.
func (m *Manager) Pull() Msg {
	return m.pipeline.Pull()
}

// State returns the last reported pipeline state.
func (m *Manager) State() PipelineState {
	m.m.Lock()
	defer m.m.Unlock()
	return m.state
}

// Mode returns the mode of the stream playing.
func (m *Manager) Mode() string {
	m.m.Lock()
	defer m.m.Unlock()
	return m.mode
}

// Begin prepares trackID of mode for Play.
func (m *Manager) Begin(mode string, trackID uint32) error {
	m.public.Lock()
	defer m.public.Unlock()
	return m.filler.Play(mode, trackID)
}

// Play starts or resumes playback.
func (m *Manager) Play() {
	m.public.Lock()
	defer m.public.Unlock()
	m.pipeline.Play()
}

// Pause pauses playback.
func (m *Manager) Pause() {
	m.public.Lock()
	defer m.public.Unlock()
	m.pipeline.Pause()
}

// Stop stops playback and drops streams not yet playing.
func (m *Manager) Stop() {
	m.public.Lock()
	defer m.public.Unlock()
	haltID := m.filler.Stop()
	m.pipeline.Stop(haltID)
	m.ids.InvalidatePending()
}

// StopPrefetch stops playback and fetches trackID of mode so that it
// starts without delay on the next Play. It waits for the stream to reach
// the pipeline, a timeout is logged.
func (m *Manager) StopPrefetch(mode string, trackID uint32) error {
	m.public.Lock()
	defer m.public.Unlock()
	m.removeAll()
	done := m.prefetch.set(trackID)
	if err := m.filler.PlayLater(mode, trackID); err != nil {
		m.prefetch.clear()
		return err
	}
	m.pipeline.Play()
	select {
	case <-done:
	case <-time.After(m.prefetchTimeout):
		m.prefetch.clear()
		m.logger.WithField("track", trackID).Warn(ErrPrefetchTimeout)
	}
	return nil
}

// Seek moves the stream playing to seconds. It returns false if the
// stream is not current or not seekable.
func (m *Manager) Seek(trackID, streamID uint32, seconds uint) bool {
	m.public.Lock()
	defer m.public.Unlock()
	return m.pipeline.Seek(trackID, streamID, seconds)
}

// Next skips to the next track of the current mode.
func (m *Manager) Next() bool {
	return m.move((*Filler).Next)
}

// Prev skips to the previous track of the current mode.
func (m *Manager) Prev() bool {
	return m.move((*Filler).Prev)
}

func (m *Manager) move(move func(*Filler, string) bool) bool {
	m.public.Lock()
	defer m.public.Unlock()
	mode := m.Mode()
	if mode == "" {
		return false
	}
	haltID := m.filler.Stop()
	m.ids.InvalidatePending()
	m.pipeline.RemoveAll(haltID)
	return move(m.filler, mode)
}

// RemoveAll removes everything from the pipeline.
func (m *Manager) RemoveAll() {
	m.public.Lock()
	defer m.public.Unlock()
	m.removeAll()
}

func (m *Manager) removeAll() {
	m.pipeline.Block()
	haltID := m.filler.Stop()
	m.ids.InvalidatePending()
	m.pipeline.RemoveAll(haltID)
	m.pipeline.Unblock()
}

// Wait ramps down and discards until Flush(flushID) arrives.
func (m *Manager) Wait(flushID uint32) {
	m.public.Lock()
	defer m.public.Unlock()
	m.pipeline.Wait(flushID)
}

// Quit empties the pipeline and sends Quit to the driver. The driver has
// to keep pulling until it receives Quit. Quit returns once all threads
// have exited.
func (m *Manager) Quit() error {
	m.public.Lock()
	if m.quit {
		m.public.Unlock()
		return nil
	}
	m.quit = true
	m.removeAll()
	m.pipeline.Quit()
	m.filler.Quit()
	started := m.started
	m.public.Unlock()
	if !started {
		return nil
	}
	return m.g.Wait()
}

// NotifyPipelineState implements Observer.
func (m *Manager) NotifyPipelineState(s PipelineState) {
	m.m.Lock()
	m.state = s
	m.m.Unlock()
	m.logger.WithField("state", s.String()).Debug("pipeline state")
	for _, o := range m.observersCopy() {
		o.NotifyPipelineState(s)
	}
}

// NotifyMode implements Observer.
func (m *Manager) NotifyMode(mode string) {
	m.m.Lock()
	m.mode = mode
	m.m.Unlock()
	for _, o := range m.observersCopy() {
		o.NotifyMode(mode)
	}
}

// NotifyTrack implements Observer.
func (m *Manager) NotifyTrack(t Track, mode string, startOfStream bool) {
	for _, o := range m.observersCopy() {
		o.NotifyTrack(t, mode, startOfStream)
	}
}

// NotifyMetaText implements Observer.
func (m *Manager) NotifyMetaText(text string) {
	for _, o := range m.observersCopy() {
		o.NotifyMetaText(text)
	}
}

// NotifyTime implements Observer.
func (m *Manager) NotifyTime(seconds, trackDurationSeconds uint) {
	for _, o := range m.observersCopy() {
		o.NotifyTime(seconds, trackDurationSeconds)
	}
}

// NotifyStreamInfo implements Observer.
func (m *Manager) NotifyStreamInfo(info DecodedStreamInfo) {
	for _, o := range m.observersCopy() {
		o.NotifyStreamInfo(info)
	}
}

func (m *Manager) observersCopy() []Observer {
	m.m.Lock()
	defer m.m.Unlock()
	return append([]Observer(nil), m.observers...)
}

// prefetchObserver signals when the prefetched track reached the
// pipeline, either asked OkToPlay or failed.
type prefetchObserver struct {
	m       sync.Mutex
	trackID uint32
	done    chan struct{}
}

func (p *prefetchObserver) set(trackID uint32) <-chan struct{} {
	p.m.Lock()
	defer p.m.Unlock()
	p.trackID = trackID
	p.done = make(chan struct{})
	return p.done
}

func (p *prefetchObserver) clear() {
	p.m.Lock()
	defer p.m.Unlock()
	p.done = nil
}

func (p *prefetchObserver) signal(trackID uint32) {
	p.m.Lock()
	defer p.m.Unlock()
	if p.done != nil && p.trackID == trackID {
		close(p.done)
		p.done = nil
	}
}

func (p *prefetchObserver) NotifyStreamPlayStatus(trackID, _ uint32, _ StreamPlay) {
	p.signal(trackID)
}

func (p *prefetchObserver) NotifyTrackPlay(Track) {}

func (p *prefetchObserver) NotifyTrackFail(t Track) {
	p.signal(t.ID)
}
