package playout

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"pipelined.dev/playout/log"
)

// Logger is a pass-through element which logs messages passing between
// two elements. Only kinds in the filter are logged.
type Logger struct {
	upstream Element
	entry    *logrus.Entry
	enabled  atomic.Bool
	filter   atomic.Uint32
}

// NewLogger creates a disabled Logger named after the element upstream.
func NewLogger(upstream Element, name string, logger log.Logger) *Logger {
	return &Logger{
		upstream: upstream,
		entry:    logger.WithField("element", name),
	}
}

// Enable turns logging on or off.
func (l *Logger) Enable(enabled bool) {
	l.enabled.Store(enabled)
}

// SetFilter sets kinds which are logged.
func (l *Logger) SetFilter(k Kind) {
	l.filter.Store(uint32(k))
}

// Pull implements Element.
func (l *Logger) Pull() Msg {
	m := l.upstream.Pull()
	if l.enabled.Load() && Kind(l.filter.Load())&m.Kind() != 0 {
		l.entry.WithFields(msgFields(m)).Debug(m.Kind())
	}
	return m
}

func msgFields(m Msg) logrus.Fields {
	switch msg := m.(type) {
	case *MsgMode:
		return logrus.Fields{"mode": msg.Mode, "gorging": msg.SupportsGorging}
	case *MsgSession:
		return logrus.Fields{"id": msg.ID}
	case *MsgTrack:
		return logrus.Fields{"track": msg.Track.ID, "uri": msg.Track.URI, "startOfStream": msg.StartOfStream}
	case *MsgDelay:
		return logrus.Fields{"ms": JiffiesToMs(msg.Jiffies)}
	case *MsgEncodedStream:
		return logrus.Fields{"track": msg.TrackID, "stream": msg.StreamID, "uri": msg.URI,
			"bytes": msg.TotalBytes, "seekable": msg.Seekable, "live": msg.Live}
	case *MsgAudioEncoded:
		return logrus.Fields{"bytes": len(msg.Bytes())}
	case *MsgMetaText:
		return logrus.Fields{"text": msg.Text}
	case *MsgHalt:
		return logrus.Fields{"id": msg.ID}
	case *MsgFlush:
		return logrus.Fields{"id": msg.ID}
	case *MsgDecodedStream:
		i := msg.Info
		return logrus.Fields{"track": i.TrackID, "stream": i.StreamID, "format": i.PcmFormat.String(),
			"codec": i.CodecName, "bitRate": i.BitRate, "sampleStart": i.SampleStart,
			"lengthMs": JiffiesToMs(i.TrackLength), "seekable": i.Seekable, "live": i.Live}
	case *MsgAudioPcm:
		return logrus.Fields{"jiffies": msg.Jiffies(), "offset": msg.TrackOffset(), "ramp": msg.Ramp().Direction}
	case *MsgSilence:
		return logrus.Fields{"jiffies": msg.Jiffies(), "ramp": msg.Ramp().Direction}
	case *MsgPlayable:
		return logrus.Fields{"frames": msg.Frames(), "silent": msg.Silent(), "ramp": msg.Ramp().Direction}
	}
	return logrus.Fields{}
}
