package playout

// Pruner drops messages the driver has no use for. A DecodedStream is held
// back until audio of the stream arrives, so that streams which never
// produce audio do not reach the driver.
type Pruner struct {
	upstream Element
	queue    pendingQueue
	pending  *MsgDecodedStream
}

// NewPruner creates a Pruner.
func NewPruner(upstream Element) *Pruner {
	return &Pruner{upstream: upstream}
}

// Pull implements Element.
func (p *Pruner) Pull() Msg {
	for {
		m := p.queue.next(p.upstream)
		switch msg := m.(type) {
		case *MsgMode, *MsgSession, *MsgTrack, *MsgDelay, *MsgEncodedStream,
			*MsgMetaText, *MsgWait, *MsgFlush:
			m.RemoveRef()
			continue
		case *MsgDecodedStream:
			if p.pending != nil {
				p.pending.RemoveRef()
			}
			p.pending = msg
			continue
		case *MsgAudioPcm, *MsgSilence:
			if p.pending != nil {
				ds := p.pending
				p.pending = nil
				p.queue.EnqueueAtHead(m)
				return ds
			}
		case *MsgQuit:
			if p.pending != nil {
				p.pending.RemoveRef()
				p.pending = nil
			}
		}
		return m
	}
}
