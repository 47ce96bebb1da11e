package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/playout"
	"pipelined.dev/playout/codec/mp3"
	"pipelined.dev/playout/codec/wav"
	"pipelined.dev/playout/driver"
	"pipelined.dev/playout/driver/portaudio"
	wavsink "pipelined.dev/playout/driver/wav"
	"pipelined.dev/playout/log"
	"pipelined.dev/playout/metric"
	"pipelined.dev/playout/protocol/file"
	httpprotocol "pipelined.dev/playout/protocol/http"
	mp3sender "pipelined.dev/playout/sender/mp3"
)

const (
	envPrefix    = "PLAYOUT_"
	playlistMode = "playlist"
	deviceFrames = 1024
)

type playCommand struct {
	uris    stringList
	out     string
	device  bool
	mp3     string
	env     string
	metrics string
}

func (cmd *playCommand) Name() string {
	return "play"
}

func (cmd *playCommand) Help() string {
	return "Play a list of files or http streams"
}

func (cmd *playCommand) Register(flags *flag.FlagSet) {
	flags.Var(&cmd.uris, "uri", "file path or http url to play, can be repeated (required)")
	flags.StringVar(&cmd.out, "out", "", "wav file to record the output to")
	flags.BoolVar(&cmd.device, "device", false, "play with the default output device")
	flags.StringVar(&cmd.mp3, "mp3", "", "mp3 file to send a copy of the output to")
	flags.StringVar(&cmd.env, "env", ".env", "file with PLAYOUT_ environment variables")
	flags.StringVar(&cmd.metrics, "metrics", "", "address to serve prometheus metrics on, e.g. :9090")
}

func (cmd *playCommand) Validate() error {
	var message []string
	if len(cmd.uris) == 0 {
		message = append(message, "Missing -uri required flag")
	}
	if cmd.out == "" && !cmd.device {
		message = append(message, "One of -out or -device is required")
	}
	if cmd.out != "" && cmd.device {
		message = append(message, "Only one of -out or -device can be used")
	}
	if len(message) > 0 {
		return errors.New(strings.Join(message, "\n"))
	}
	return nil
}

func (cmd *playCommand) Run() error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := godotenv.Load(cmd.env); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("env: %w", err)
	}
	logger := log.GetLogger()
	cfg, err := playout.ConfigFromEnv(envPrefix, playout.DefaultConfig())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	m, err := playout.NewManager(cfg, logger)
	if err != nil {
		return err
	}
	m.AddCodec(wav.New())
	m.AddCodec(mp3.New())
	m.AddProtocol(file.New())
	m.AddProtocol(httpprotocol.New(nil, logger))
	playlist := playout.NewPlaylist(playlistMode, m.IDs(), true)
	for _, uri := range cmd.uris {
		playlist.Add(uri, "")
	}
	m.AddUriProvider(playlist)
	m.AddTrackObserver(playlist)
	m.AddObserver(logObserver{logger: logger})

	var sink driver.Sink
	if cmd.device {
		sink = portaudio.NewSink(deviceFrames)
	} else {
		sink = wavsink.NewSink(cmd.out)
	}
	end := &endSink{Sink: sink, exhausted: playlist.Exhausted, done: make(chan struct{})}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	var options []driver.Option
	if cmd.metrics != "" {
		pullLatency := metric.NewLatency("driver_pull", "Duration of driver pulls")
		options = append(options, driver.WithPullLatency(pullLatency))
		srv, err := cmd.serveMetrics(pullLatency)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics: ", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	if cmd.mp3 != "" {
		f, err := os.Create(cmd.mp3)
		if err != nil {
			return err
		}
		defer f.Close()
		sender := mp3sender.New(m.Factory(), f, logger)
		m.SetSender(sender)
		g.Go(func() error {
			return sender.Run(gctx)
		})
	}

	m.Start()
	tracks := playlist.Tracks()
	if err := m.Begin(playlistMode, tracks[0].ID); err != nil {
		return err
	}
	m.Play()

	g.Go(func() error {
		err := driver.Run(ctx, m, end, logger, options...)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		select {
		case <-end.done:
			logger.Info("playlist finished")
		case <-gctx.Done():
		}
		return m.Quit()
	})
	err = g.Wait()
	if w, ok := sink.(*wavsink.Sink); ok {
		logger.WithField("files", w.Files()).Info("recorded")
	}
	return err
}

func (cmd *playCommand) serveMetrics(latencies ...prometheus.Collector) (*http.Server, error) {
	r := prometheus.NewRegistry()
	if err := metric.Register(r); err != nil {
		return nil, err
	}
	for _, l := range latencies {
		if err := r.Register(l); err != nil {
			return nil, err
		}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r, promhttp.HandlerOpts{}))
	return &http.Server{Addr: cmd.metrics, Handler: mux}, nil
}

// endSink signals done when the pipeline halts after the last track of
// the playlist was fetched.
type endSink struct {
	driver.Sink
	exhausted func() bool
	done      chan struct{}
	once      sync.Once
}

func (s *endSink) Halt() error {
	if h, ok := s.Sink.(driver.Halter); ok {
		if err := h.Halt(); err != nil {
			return err
		}
	}
	if s.exhausted() {
		s.once.Do(func() { close(s.done) })
	}
	return nil
}

// logObserver logs pipeline notifications.
type logObserver struct {
	logger log.Logger
}

func (o logObserver) NotifyPipelineState(s playout.PipelineState) {
	o.logger.WithField("state", s.String()).Info("state")
}

func (o logObserver) NotifyMode(mode string) {
	o.logger.WithField("mode", mode).Debug("mode")
}

func (o logObserver) NotifyTrack(t playout.Track, mode string, startOfStream bool) {
	o.logger.WithFields(logrus.Fields{
		"id":  t.ID,
		"uri": t.URI,
	}).Info("track")
}

func (o logObserver) NotifyMetaText(text string) {
	o.logger.WithField("text", text).Info("meta text")
}

func (o logObserver) NotifyTime(seconds, duration uint) {
	o.logger.WithFields(logrus.Fields{
		"seconds":  seconds,
		"duration": duration,
	}).Debug("time")
}

func (o logObserver) NotifyStreamInfo(info playout.DecodedStreamInfo) {
	o.logger.WithFields(logrus.Fields{
		"codec":    info.CodecName,
		"format":   info.PcmFormat.String(),
		"bitRate":  info.BitRate,
		"seekable": info.Seekable,
	}).Info("stream")
}
