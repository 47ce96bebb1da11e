package playout

import (
	"sync"

	"github.com/sirupsen/logrus"

	"pipelined.dev/playout/log"
	"pipelined.dev/playout/metric"
)

// PipelineState is the state reported to observers.
type PipelineState int

// Pipeline states.
const (
	PipelinePlaying PipelineState = iota
	PipelinePaused
	PipelineStopped
	PipelineBuffering
	PipelineWaiting
)

var pipelineStates = []string{"playing", "paused", "stopped", "buffering", "waiting"}

func (s PipelineState) String() string {
	if int(s) < len(pipelineStates) {
		return pipelineStates[s]
	}
	return "unknown"
}

// Observer receives the pipeline state and playback properties.
type Observer interface {
	PropertyObserver
	NotifyPipelineState(PipelineState)
}

// Pipeline is the chain of elements from the encoded reservoir to the
// driver. It tracks whether playback is running and translates control
// calls into calls on the right elements.
type Pipeline struct {
	observer Observer
	logger   log.Logger

	encoded    *Reservoir
	codec      *CodecController
	decoded    *Reservoir
	seeker     *Seeker
	delay1     *VariableDelay
	inspector  *TrackInspector
	skipper    *Skipper
	waiter     *Waiter
	stopper    *Stopper
	ramper     *Ramper
	gorger     *Gorger
	reporter   *Reporter
	splitter   *Splitter
	delay2     *VariableDelay
	starvation *StarvationMonitor
	pruner     *Pruner
	preDriver  *PreDriver
	loggers    []*Logger
	end        Element

	m         sync.Mutex
	state     PipelineState
	buffering bool
	waiting   bool
	quitting  bool
}

// NewPipeline builds the element chain. The pipeline starts stopped.
func NewPipeline(cfg Config, factory *MsgFactory, observer Observer, logger log.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		observer: observer,
		logger:   logger,
		state:    PipelineStopped,
	}
	p.encoded = NewEncodedReservoir(cfg.EncodedReservoirBytes, cfg.MaxStreamsPerReservoir)
	p.decoded = NewDecodedReservoir(cfg.DecodedReservoirJiffies, cfg.MaxStreamsPerReservoir)
	p.codec = NewCodecController(factory, p.wrap(cfg, p.encoded, "encoded reservoir"), p.decoded, logger)

	var e Element = p.wrap(cfg, p.decoded, "decoded reservoir")
	p.seeker = NewSeeker(e, p.codec, cfg.RampShortJiffies, logger)
	p.delay1 = NewVariableDelay(factory, p.wrap(cfg, p.seeker, "seeker"), "delay1",
		cfg.SenderMinLatencyJiffies, 0, cfg.RampEmergencyJiffies)
	p.inspector = NewTrackInspector(p.wrap(cfg, p.delay1, "delay1"))
	p.skipper = NewSkipper(factory, p.wrap(cfg, p.inspector, "track inspector"), cfg.RampLongJiffies)
	p.waiter = NewWaiter(p.wrap(cfg, p.skipper, "skipper"), p, cfg.RampShortJiffies)
	p.stopper = NewStopper(factory, p.wrap(cfg, p.waiter, "waiter"), p, cfg.RampLongJiffies)
	p.ramper = NewRamper(p.wrap(cfg, p.stopper, "stopper"), cfg.RampLongJiffies)
	p.gorger = NewGorger(p.wrap(cfg, p.ramper, "ramper"), cfg.GorgeDurationJiffies)
	p.reporter = NewReporter(p.wrap(cfg, p.gorger, "gorger"), p)
	p.splitter = NewSplitter(p.wrap(cfg, p.reporter, "reporter"))
	p.delay2 = NewVariableDelay(factory, p.wrap(cfg, p.splitter, "splitter"), "delay2",
		0, cfg.SenderMinLatencyJiffies, cfg.RampEmergencyJiffies)
	var err error
	p.starvation, err = NewStarvationMonitor(factory, p.wrap(cfg, p.delay2, "delay2"), p,
		cfg.StarvationMonitorMaxJiffies, cfg.StarvationThresholdJiffies,
		cfg.StarvationGorgeJiffies, cfg.RampUpJiffies)
	if err != nil {
		return nil, err
	}
	p.pruner = NewPruner(p.wrap(cfg, p.starvation, "starvation monitor"))
	p.preDriver = NewPreDriver(factory, p.wrap(cfg, p.pruner, "pruner"))
	p.end = p.wrap(cfg, p.preDriver, "pre driver")
	return p, nil
}

func (p *Pipeline) wrap(cfg Config, e Element, name string) Element {
	l := NewLogger(e, name, p.logger)
	l.SetFilter(cfg.LogElements)
	l.Enable(cfg.LogElements != KindNone)
	p.loggers = append(p.loggers, l)
	return l
}

// LogElements logs kinds passing between elements. KindNone disables
// logging.
func (p *Pipeline) LogElements(k Kind) {
	for _, l := range p.loggers {
		l.SetFilter(k)
		l.Enable(k != KindNone)
	}
}

// AddCodec registers a codec with the codec controller.
func (p *Pipeline) AddCodec(c Codec) {
	p.codec.AddCodec(c)
}

// AddTrackObserver registers o with the track inspector.
func (p *Pipeline) AddTrackObserver(o TrackObserver) {
	p.inspector.AddObserver(o)
}

// SetSender tees audio after the reporter to s.
func (p *Pipeline) SetSender(s Pusher) {
	p.splitter.SetBranch(s)
}

// Push adds m to the encoded reservoir.
func (p *Pipeline) Push(m Msg) {
	p.encoded.Push(m)
}

// Pull implements Element for the driver.
func (p *Pipeline) Pull() Msg {
	return p.end.Pull()
}

// Play starts or resumes playback.
func (p *Pipeline) Play() {
	p.m.Lock()
	notify := p.state != PipelinePlaying
	p.state = PipelinePlaying
	p.m.Unlock()
	p.stopper.Play()
	if notify {
		p.notifyStatus()
	}
}

// Pause ramps down and pauses. Observers are told once the ramp ends.
func (p *Pipeline) Pause() {
	p.stopper.BeginPause()
}

// Stop stops playback. While buffering there is no audio to ramp, so the
// current stream is dropped and the stopper stops at once.
func (p *Pipeline) Stop(haltID uint32) {
	p.m.Lock()
	buffering := p.buffering
	p.m.Unlock()
	if buffering {
		p.skipper.RemoveCurrentStream(false)
		p.stopper.StopNow(haltID)
		return
	}
	p.stopper.BeginStop(haltID)
}

// Wait ramps down and discards until Flush(flushID).
func (p *Pipeline) Wait(flushID uint32) {
	p.waiter.Wait(flushID, p.playing())
}

// Seek moves the current stream to seconds.
func (p *Pipeline) Seek(trackID, streamID uint32, seconds uint) bool {
	return p.seeker.Seek(trackID, streamID, seconds, p.playing())
}

// RemoveCurrentStream skips the stream currently playing.
func (p *Pipeline) RemoveCurrentStream() {
	p.skipper.RemoveCurrentStream(p.playing())
}

// RemoveStream implements StreamRemover.
func (p *Pipeline) RemoveStream(trackID, streamID uint32) bool {
	p.m.Lock()
	ramp := !p.buffering
	p.m.Unlock()
	return p.skipper.TryRemoveStream(trackID, streamID, ramp)
}

// RemoveAll removes the current stream and everything queued up to
// Halt(haltID). Queued encoded and decoded audio is purged.
func (p *Pipeline) RemoveAll(haltID uint32) {
	p.m.Lock()
	ramp := p.state == PipelinePlaying && !p.buffering
	p.m.Unlock()
	p.skipper.RemoveAll(haltID, ramp)
	p.encoded.Purge(keepControl)
	p.decoded.Purge(keepControl)
}

// Block holds the reservoirs and the skipper so that a removal is applied
// atomically.
func (p *Pipeline) Block() {
	p.encoded.Block()
	p.decoded.Block()
	p.skipper.Block()
}

// Unblock releases Block.
func (p *Pipeline) Unblock() {
	p.skipper.Unblock()
	p.decoded.Unblock()
	p.encoded.Unblock()
}

// Quit lets everything through so that Quit reaches the driver.
func (p *Pipeline) Quit() {
	p.m.Lock()
	if p.quitting {
		p.m.Unlock()
		return
	}
	p.quitting = true
	p.state = PipelinePlaying
	p.m.Unlock()
	p.stopper.Quit()
}

func (p *Pipeline) playing() bool {
	p.m.Lock()
	defer p.m.Unlock()
	return p.state == PipelinePlaying
}

func (p *Pipeline) notifyStatus() {
	p.m.Lock()
	if p.quitting {
		p.m.Unlock()
		return
	}
	state := p.state
	if state == PipelinePlaying {
		switch {
		case p.waiting:
			state = PipelineWaiting
		case p.buffering:
			state = PipelineBuffering
		}
	}
	p.m.Unlock()
	metric.State(state.String(), pipelineStates)
	p.observer.NotifyPipelineState(state)
}

// NotifyPaused implements StopperObserver.
func (p *Pipeline) NotifyPaused() {
	p.setState(PipelinePaused)
}

// NotifyStopped implements StopperObserver.
func (p *Pipeline) NotifyStopped() {
	p.setState(PipelineStopped)
}

func (p *Pipeline) setState(s PipelineState) {
	p.m.Lock()
	p.state = s
	p.m.Unlock()
	p.notifyStatus()
}

// NotifyPipelineWaiting implements WaiterObserver.
func (p *Pipeline) NotifyPipelineWaiting(waiting bool) {
	p.m.Lock()
	p.waiting = waiting
	p.m.Unlock()
	p.notifyStatus()
}

// NotifyStarvationMonitorBuffering implements StarvationObserver.
func (p *Pipeline) NotifyStarvationMonitorBuffering(buffering bool) {
	p.m.Lock()
	p.buffering = buffering
	notify := p.state == PipelinePlaying
	waiting := p.waiting
	p.m.Unlock()
	if !notify {
		return
	}
	p.notifyStatus()
	if buffering && !waiting {
		p.logger.WithFields(logrus.Fields{
			"encodedBytes": p.encoded.Size(),
			"decodedMs":    JiffiesToMs(p.decoded.Size()),
			"gorgedMs":     JiffiesToMs(p.gorger.Jiffies()),
		}).Info("pipeline buffering")
	}
}

// NotifyMode implements PropertyObserver.
func (p *Pipeline) NotifyMode(mode string) {
	p.observer.NotifyMode(mode)
}

// NotifyTrack implements PropertyObserver.
func (p *Pipeline) NotifyTrack(t Track, mode string, startOfStream bool) {
	p.observer.NotifyTrack(t, mode, startOfStream)
}

// NotifyMetaText implements PropertyObserver.
func (p *Pipeline) NotifyMetaText(text string) {
	p.observer.NotifyMetaText(text)
}

// NotifyTime implements PropertyObserver.
func (p *Pipeline) NotifyTime(seconds, trackDurationSeconds uint) {
	p.observer.NotifyTime(seconds, trackDurationSeconds)
}

// NotifyStreamInfo implements PropertyObserver.
func (p *Pipeline) NotifyStreamInfo(info DecodedStreamInfo) {
	p.observer.NotifyStreamInfo(info)
}
