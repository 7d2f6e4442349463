// Package recorder assembles the capture channel, the muxer, and the
// observability endpoints into the recorder application. Encoders remain
// external: whoever embeds the recorder registers one encoder per stream
// on the muxer returned by StartRecording, before starting that muxer.
package recorder

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	gotime "time"

	"github.com/screenrec/core/config"
	"github.com/screenrec/core/glinject"
	"github.com/screenrec/core/log"
	"github.com/screenrec/core/math/average"
	"github.com/screenrec/core/mux"
	"github.com/screenrec/core/prometheus"
)

// FrameSink consumes captured frames, typically an encoder front end.
// On success the sink takes ownership of the frame and releases it; on
// error the frame stays with the caller.
type FrameSink interface {
	WriteFrame(frame *glinject.Frame) error
}

// Config for a new Recorder.
type Config struct {
	Data *config.Data

	// Sink receives the captured frames. Optional; without a sink frames
	// are drained and dropped.
	Sink FrameSink

	// OnHotkey is invoked once per reported hotkey press. Optional.
	OnHotkey func()

	// Logger. Optional.
	Logger log.Logger
}

// Recorder owns the capture channel for the lifetime of the application
// and the muxer for the lifetime of one recording.
type Recorder struct {
	data   *config.Data
	logger log.Logger

	channel *glinject.Channel
	muxer   *mux.Muxer

	sink     FrameSink
	onHotkey func()

	metrics    prometheus.Metrics
	httpserver *http.Server

	fps *average.SMA

	cancel context.CancelFunc
	wg     sync.WaitGroup

	lock sync.Mutex
}

// New creates the capture channel and, when enabled, the metrics
// endpoint. The muxer is created per recording with StartRecording.
func New(cfg Config) (*Recorder, error) {
	if cfg.Data == nil {
		cfg.Data = config.New()
	}

	r := &Recorder{
		data:     cfg.Data,
		logger:   cfg.Logger,
		sink:     cfg.Sink,
		onHotkey: cfg.OnHotkey,
	}

	if r.logger == nil {
		r.logger = log.New("recorder")
	}

	flags := uint32(0)
	if r.data.Capture.LimitFPS {
		flags |= glinject.FlagLimitFPS
	}
	if r.data.Capture.Front {
		flags |= glinject.FlagCaptureFront
	}
	if r.data.Capture.Cursor {
		flags |= glinject.FlagRecordCursor
	}

	channel, err := glinject.NewChannel(glinject.ChannelConfig{
		RingSize:  r.data.Capture.RingSize,
		MaxBytes:  r.data.Capture.MaxBytes,
		TargetFPS: r.data.Capture.TargetFPS,
		Flags:     flags,
		Logger:    r.logger.WithComponent("capture"),
	})
	if err != nil {
		return nil, fmt.Errorf("can't create capture channel: %w", err)
	}

	r.channel = channel

	if r.data.Hotkey.Enable {
		channel.SetHotkey(true, r.data.Hotkey.Keycode, r.data.Hotkey.Modifiers)
	}

	r.fps, _ = average.NewSMA(10*gotime.Second, gotime.Second)

	if r.data.Metrics.Enable {
		r.metrics = prometheus.New()
		r.metrics.Register(prometheus.NewCaptureCollector(r.data.Name, channel))

		r.httpserver = &http.Server{
			Addr:    r.data.Metrics.Address,
			Handler: r.metrics.HTTPHandler(),
		}
	}

	return r, nil
}

// Channel returns the capture channel, e.g. for publishing its segment id
// to the injected producer.
func (r *Recorder) Channel() *glinject.Channel {
	return r.channel
}

// Muxer returns the muxer of the current recording, or nil.
func (r *Recorder) Muxer() *mux.Muxer {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.muxer
}

// StartRecording creates the muxer for the configured container and
// output file. Streams and encoders have to be registered on it before it
// is started.
func (r *Recorder) StartRecording() (*mux.Muxer, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.muxer != nil {
		return nil, fmt.Errorf("a recording is already running")
	}

	muxer, err := mux.New(r.data.Output.Container, r.data.Output.File, mux.Config{
		Logger: r.logger.WithComponent("muxer"),
	})
	if err != nil {
		return nil, err
	}

	r.muxer = muxer

	if r.metrics != nil {
		r.metrics.Register(prometheus.NewMuxerCollector(r.data.Name, muxer))
	}

	return muxer, nil
}

// StopRecording finishes the encoders and tears the muxer down once it
// has drained.
func (r *Recorder) StopRecording() {
	r.lock.Lock()
	muxer := r.muxer
	r.muxer = nil
	r.lock.Unlock()

	if muxer == nil {
		return
	}

	if muxer.IsStarted() {
		muxer.Finish()

		for !muxer.IsDone() && !muxer.ErrorOccurred() {
			gotime.Sleep(10 * gotime.Millisecond)
		}
	}

	muxer.Close()
}

// Run starts the frame pump, the hotkey poller, and the metrics endpoint,
// and blocks until the context is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	if r.httpserver != nil {
		r.wg.Add(1)

		go func() {
			defer r.wg.Done()

			r.logger.Info().WithField("address", r.httpserver.Addr).Log("Metrics enabled")

			if err := r.httpserver.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error().WithError(err).Log("Metrics endpoint failed")
			}
		}()
	}

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		r.pump(ctx)
	}()

	<-ctx.Done()

	if r.httpserver != nil {
		r.httpserver.Shutdown(context.Background())
	}

	r.wg.Wait()

	return nil
}

// pump drains the capture channel and forwards frames to the sink. It
// also polls the hotkey counter and logs the capture rate once per
// second.
func (r *Recorder) pump(ctx context.Context) {
	ticker := gotime.NewTicker(4 * gotime.Millisecond)
	defer ticker.Stop()

	statsTicker := gotime.NewTicker(gotime.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-statsTicker.C:
			width, height := r.channel.CurrentSize()

			r.logger.Debug().WithFields(log.Fields{
				"fps":    r.fps.Average(),
				"size":   fmt.Sprintf("%dx%d", width, height),
				"unread": r.channel.UnreadFrames(),
			}).Log("Capture")
		case <-ticker.C:
			for presses := r.channel.HotkeyPresses(); presses > 0; presses-- {
				r.logger.Info().Log("Hotkey pressed")

				if r.onHotkey != nil {
					r.onHotkey()
				}
			}

			for {
				frame, ok := r.channel.NextFrame()
				if !ok {
					break
				}

				r.fps.Add(1)

				if r.sink != nil {
					if err := r.sink.WriteFrame(frame); err != nil {
						r.logger.Error().WithError(err).Log("Frame sink failed")
						frame.Release()
					}
				} else {
					frame.Release()
				}
			}
		}
	}
}

// Destroy stops a running recording and releases the capture channel.
func (r *Recorder) Destroy() {
	if r.cancel != nil {
		r.cancel()
	}

	r.wg.Wait()

	r.StopRecording()

	if r.channel != nil {
		r.channel.Close()
		r.channel = nil
	}
}
