package playout

import (
	"sync"

	"pipelined.dev/playout/metric"
)

// Gorger buffers audio at the start of playback and after every halt, in
// modes which allow it. Nothing is delivered while gorging until the
// buffer holds size jiffies or a Halt, Wait or Quit shows no more audio
// is coming soon.
type Gorger struct {
	upstream Element
	size     uint64
	gauges   metric.Gauges

	m        sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	q        sizedQueue
	canGorge bool
	gorging  bool
	// startGorge is set after a halt, the next audio starts gorging.
	startGorge bool
	// terminators counts queued Halt, Wait and Quit messages.
	terminators int
	quit        bool
}

// NewGorger creates a Gorger with buffer size in jiffies.
func NewGorger(upstream Element, size uint64) *Gorger {
	g := &Gorger{
		upstream:   upstream,
		size:       size,
		gauges:     metric.Reservoir("gorger"),
		q:          sizedQueue{size: jiffiesSize},
		startGorge: true,
	}
	g.notFull = sync.NewCond(&g.m)
	g.notEmpty = sync.NewCond(&g.m)
	return g
}

// Run pulls from upstream until Quit.
func (g *Gorger) Run() error {
	for {
		m := g.upstream.Pull()
		_, quit := m.(*MsgQuit)
		g.Enqueue(m)
		if quit {
			return nil
		}
	}
}

// Gorging reports if delivery is held back.
func (g *Gorger) Gorging() bool {
	g.m.Lock()
	defer g.m.Unlock()
	return g.gorging
}

// Enqueue adds m and blocks while the buffer is full.
func (g *Gorger) Enqueue(m Msg) {
	g.m.Lock()
	defer g.m.Unlock()
	for !g.quit && g.q.total >= g.size {
		g.notFull.Wait()
	}
	g.q.Enqueue(m)
	switch msg := m.(type) {
	case *MsgMode:
		g.canGorge = msg.SupportsGorging
		if !g.canGorge {
			g.gorging = false
		}
	case *MsgHalt, *MsgWait:
		g.terminators++
		g.gorging = false
		g.startGorge = true
	case *MsgQuit:
		g.terminators++
		g.gorging = false
		g.quit = true
	case *MsgAudioPcm, *MsgSilence:
		if g.startGorge {
			g.startGorge = false
			g.gorging = g.canGorge
		}
		if g.gorging && g.q.total >= g.size {
			g.gorging = false
		}
	}
	g.gauges.Set(g.q.total, g.q.streams)
	g.notEmpty.Broadcast()
}

func (g *Gorger) canPull() bool {
	if g.q.Empty() {
		return false
	}
	return !g.gorging || g.terminators > 0
}

// Pull implements Element.
func (g *Gorger) Pull() Msg {
	g.m.Lock()
	defer g.m.Unlock()
	for !g.canPull() {
		g.notEmpty.Wait()
	}
	m := g.q.Dequeue()
	switch m.(type) {
	case *MsgHalt, *MsgWait, *MsgQuit:
		g.terminators--
	}
	g.gauges.Set(g.q.total, g.q.streams)
	g.notFull.Broadcast()
	return m
}

// Jiffies returns buffered audio.
func (g *Gorger) Jiffies() uint64 {
	g.m.Lock()
	defer g.m.Unlock()
	return g.q.total
}
