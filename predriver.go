package playout

// PreDriver converts audio to MsgPlayable. A DecodedStream is passed only
// when the format differs from the previous stream's, the driver does not
// need to reconfigure otherwise.
type PreDriver struct {
	upstream Element
	factory  *MsgFactory
	format   PcmFormat
}

// NewPreDriver creates a PreDriver.
func NewPreDriver(factory *MsgFactory, upstream Element) *PreDriver {
	return &PreDriver{upstream: upstream, factory: factory}
}

// Pull implements Element.
func (p *PreDriver) Pull() Msg {
	for {
		m := p.upstream.Pull()
		switch msg := m.(type) {
		case *MsgAudioPcm:
			return p.factory.CreatePlayable(msg)
		case *MsgSilence:
			if p.format.SampleRate == 0 {
				p.format = msg.Format()
			}
			return p.factory.CreatePlayable(msg)
		case *MsgDecodedStream:
			if msg.Info.PcmFormat == p.format {
				msg.RemoveRef()
				continue
			}
			p.format = msg.Info.PcmFormat
		case *MsgHalt, *MsgQuit, *MsgPlayable:
		default:
			m.RemoveRef()
			continue
		}
		return m
	}
}
