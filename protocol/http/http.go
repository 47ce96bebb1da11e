// Package http streams http and https URIs into the pipeline.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pipelined.dev/playout"
	"pipelined.dev/playout/log"
)

const chunkSize = playout.EncodedAudioMaxBytes

// Protocol streams over http. Servers accepting byte ranges give seekable
// streams, responses without length are live.
type Protocol struct {
	client *http.Client
	logger log.Logger
	buf    []byte
}

// New returns an http protocol. A nil client uses http.DefaultClient.
func New(client *http.Client, logger log.Logger) *Protocol {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.Silent()
	}
	return &Protocol{
		client: client,
		logger: logger,
		buf:    make([]byte, chunkSize),
	}
}

// Stream implements playout.Protocol.
func (p *Protocol) Stream(ctx context.Context, uri string, out playout.Supply) playout.ProtocolStreamResult {
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return playout.StreamNotSupported
	}
	resp, err := p.get(ctx, uri, 0)
	if err != nil {
		return p.result(ctx, uri, err)
	}
	length := resp.ContentLength
	seekable := length > 0 && resp.Header.Get("Accept-Ranges") == "bytes"
	live := length <= 0
	var total uint64
	if length > 0 {
		total = uint64(length)
	}
	out.OutputStream(uri, total, seekable, live)
	body := resp.Body
	defer func() { body.Close() }()
	for {
		if offset, flushID, ok := out.SeekRequest(); ok {
			body.Close()
			resp, err := p.get(ctx, uri, offset)
			if err != nil {
				return p.result(ctx, uri, err)
			}
			body = resp.Body
			out.OutputFlush(flushID)
		}
		n, err := body.Read(p.buf)
		if n > 0 {
			if _, werr := out.Write(p.buf[:n]); werr != nil {
				return playout.StreamStopped
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			return playout.StreamSuccess
		case err != nil:
			return p.result(ctx, uri, err)
		}
	}
}

type statusError int

func (e statusError) Error() string {
	return fmt.Sprintf("status %d", int(e))
}

func (p *Protocol) get(ctx context.Context, uri string, offset uint64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, statusError(resp.StatusCode)
	}
	return resp, nil
}

func (p *Protocol) result(ctx context.Context, uri string, err error) playout.ProtocolStreamResult {
	if ctx.Err() != nil {
		return playout.StreamStopped
	}
	p.logger.WithField("uri", uri).Warn(err)
	var status statusError
	if errors.As(err, &status) && status >= 400 && status < 500 {
		return playout.StreamErrorUnrecoverable
	}
	return playout.StreamErrorRecoverable
}
