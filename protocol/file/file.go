// Package file streams local files into the pipeline.
package file

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"pipelined.dev/playout"
)

const (
	scheme    = "file://"
	chunkSize = playout.EncodedAudioMaxBytes
)

// Protocol streams file:// URIs and plain paths.
type Protocol struct {
	buf []byte
}

// New returns a file protocol.
func New() *Protocol {
	return &Protocol{buf: make([]byte, chunkSize)}
}

// Stream implements playout.Protocol.
func (p *Protocol) Stream(ctx context.Context, uri string, out playout.Supply) playout.ProtocolStreamResult {
	path, ok := parse(uri)
	if !ok {
		return playout.StreamNotSupported
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return playout.StreamErrorUnrecoverable
		}
		return playout.StreamErrorRecoverable
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return playout.StreamErrorRecoverable
	}
	out.OutputStream(uri, uint64(info.Size()), true, false)
	for {
		if ctx.Err() != nil {
			return playout.StreamStopped
		}
		if offset, flushID, ok := out.SeekRequest(); ok {
			if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
				return playout.StreamErrorUnrecoverable
			}
			out.OutputFlush(flushID)
		}
		n, err := f.Read(p.buf)
		if n > 0 {
			if _, werr := out.Write(p.buf[:n]); werr != nil {
				return playout.StreamStopped
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			return playout.StreamSuccess
		case err != nil:
			return playout.StreamErrorRecoverable
		}
	}
}

func parse(uri string) (string, bool) {
	if strings.HasPrefix(uri, scheme) {
		return strings.TrimPrefix(uri, scheme), true
	}
	if strings.Contains(uri, "://") {
		return "", false
	}
	return uri, true
}
