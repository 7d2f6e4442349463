// Package mux interleaves encoded packet streams from multiple encoders
// into one container file. A single background worker repeatedly picks the
// stream with the smallest last-written presentation time, rescales the
// next packet into the container time base, and writes it interleaved.
package mux

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	gotime "time"

	"github.com/screenrec/core/log"
	"github.com/screenrec/core/time"
)

// MaxStreams is the fixed capacity of the stream registry.
const MaxStreams = 8

var (
	ErrUnknownFormat     = errors.New("unknown container format")
	ErrHeaderWrite       = errors.New("can't write header")
	ErrAlreadyStarted    = errors.New("muxer is already started")
	ErrNotStarted        = errors.New("muxer is not started")
	ErrTooManyStreams    = errors.New("too many streams")
	ErrInvalidStream     = errors.New("invalid stream index")
	ErrNoEncoder         = errors.New("a stream has no registered encoder")
	ErrEncoderRegistered = errors.New("stream already has an encoder")
)

// emptyQueueDelay is how long the worker backs off when every eligible
// stream has a momentarily empty queue. There is no condition variable;
// ingestion latency is bounded by this constant.
const emptyQueueDelay = 10 * gotime.Millisecond

// Config configures a Muxer.
type Config struct {
	// Logger. Optional.
	Logger log.Logger

	// Sleeper paces the worker's empty-queue backoff. Optional.
	Sleeper time.Sleeper
}

type streamData struct {
	lock  sync.Mutex
	done  bool
	queue []*Packet
}

// Muxer owns a container context and the encoders registered to its
// streams. The zero value is not usable; create one with New, then add
// streams with CreateStream, bind encoders with RegisterEncoder, and call
// Start. Packets arrive through AddPacket and are written by the worker.
// Close tears everything down and writes the trailer.
type Muxer struct {
	logger  log.Logger
	sleeper time.Sleeper

	container Container
	encoders  []Encoder

	stream [MaxStreams]streamData

	stats *sharedStats
	rate  *writeRate

	started       bool
	isDone        atomic.Bool
	errorOccurred atomic.Bool

	workerDone chan struct{}
}

// New resolves the container format by name, opens the output file, and
// returns a muxer in the initialized state. The muxer owns the container
// until Close.
func New(containerName, path string, config Config) (*Muxer, error) {
	format := GuessFormat(containerName)
	if format == nil {
		return nil, fmt.Errorf("%q: %w", containerName, ErrUnknownFormat)
	}

	container, err := format.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open output %q: %w", path, err)
	}

	m, err := NewWithContainer(container, config)
	if err != nil {
		container.Close()
		return nil, err
	}

	m.logger.Info().WithField("format", format.Name()).Log("Using format")

	return m, nil
}

// NewWithContainer wraps an already opened container. The muxer takes
// ownership and closes it on Close.
func NewWithContainer(container Container, config Config) (*Muxer, error) {
	m := &Muxer{
		logger:    config.Logger,
		sleeper:   config.Sleeper,
		stats:     newSharedStats(),
		rate:      newWriteRate(),
		container: container,
	}

	if m.logger == nil {
		m.logger = log.New("muxer")
	}

	if m.sleeper == nil {
		m.sleeper = &time.StdSleeper{}
	}

	return m, nil
}

// CreateStream adds a stream for the given codec. It is legal only before
// Start. Indices are assigned densely from 0. When the container demands
// global codec headers, the flag is applied to the codec.
func (m *Muxer) CreateStream(codec *Codec) (*Stream, error) {
	if m.started {
		return nil, ErrAlreadyStarted
	}

	if len(m.container.Streams()) >= MaxStreams {
		return nil, ErrTooManyStreams
	}

	stream, err := m.container.NewStream(codec)
	if err != nil {
		return nil, fmt.Errorf("can't create stream: %w", err)
	}

	if m.container.NeedsGlobalHeader() {
		codec.GlobalHeader = true
	}

	m.encoders = append(m.encoders, nil)

	return stream, nil
}

// RegisterEncoder binds an encoder to a stream. Exactly one encoder per
// stream, before Start.
func (m *Muxer) RegisterEncoder(streamIndex int, encoder Encoder) error {
	if m.started {
		return ErrAlreadyStarted
	}

	if streamIndex < 0 || streamIndex >= len(m.encoders) {
		return ErrInvalidStream
	}

	if m.encoders[streamIndex] != nil {
		return ErrEncoderRegistered
	}

	m.encoders[streamIndex] = encoder

	return nil
}

// Start writes the container header and spawns the worker. Every stream
// must have a registered encoder. After Start the stream count is frozen.
func (m *Muxer) Start() error {
	if m.started {
		return ErrAlreadyStarted
	}

	for i, encoder := range m.encoders {
		if encoder == nil {
			return fmt.Errorf("stream %d: %w", i, ErrNoEncoder)
		}
	}

	if err := m.container.WriteHeader(); err != nil {
		m.logger.Error().WithError(err).Log("Can't write header")
		return fmt.Errorf("%w: %s", ErrHeaderWrite, err)
	}

	m.started = true
	m.workerDone = make(chan struct{})

	go m.worker()

	return nil
}

// IsStarted reports whether Start has succeeded.
func (m *Muxer) IsStarted() bool {
	return m.started
}

// Finish asks every encoder to flush. The encoders drain asynchronously
// and end their streams; the worker exits once every stream is done and
// empty.
func (m *Muxer) Finish() error {
	if !m.started {
		return ErrNotStarted
	}

	m.logger.Info().Log("Finishing encoders")

	for _, encoder := range m.encoders {
		encoder.Finish()
	}

	return nil
}

// AddPacket appends a packet to the stream's queue. It is the ingestion
// point used by encoders and legal only after Start. Queues are unbounded;
// backpressure is the encoder's concern.
func (m *Muxer) AddPacket(streamIndex int, p *Packet) error {
	if !m.started {
		return ErrNotStarted
	}

	if streamIndex < 0 || streamIndex >= len(m.encoders) {
		return ErrInvalidStream
	}

	sd := &m.stream[streamIndex]

	sd.lock.Lock()
	defer sd.lock.Unlock()

	sd.queue = append(sd.queue, p)

	return nil
}

// EndStream marks a stream as complete. The worker drains its remaining
// queue and then excludes it from selection.
func (m *Muxer) EndStream(streamIndex int) error {
	if streamIndex < 0 || streamIndex >= len(m.encoders) {
		return ErrInvalidStream
	}

	sd := &m.stream[streamIndex]

	sd.lock.Lock()
	defer sd.lock.Unlock()

	sd.done = true

	return nil
}

// QueuedPacketCount returns the number of packets waiting in the stream's
// queue.
func (m *Muxer) QueuedPacketCount(streamIndex int) int {
	if streamIndex < 0 || streamIndex >= len(m.encoders) {
		return 0
	}

	sd := &m.stream[streamIndex]

	sd.lock.Lock()
	defer sd.lock.Unlock()

	return len(sd.queue)
}

// TotalBytes returns the number of bytes the container has accepted.
func (m *Muxer) TotalBytes() uint64 {
	return m.stats.TotalBytes()
}

// ActualBitRate returns the output bit rate over the most recent
// statistics window, which spans at least one second of stream time.
func (m *Muxer) ActualBitRate() float64 {
	return m.stats.BitRate()
}

// WriteRate returns the wall-clock write throughput in bits per second.
func (m *Muxer) WriteRate() float64 {
	return m.rate.Rate()
}

// StreamCount returns the number of registered streams.
func (m *Muxer) StreamCount() int {
	return len(m.encoders)
}

// IsDone reports whether the worker has drained every stream.
func (m *Muxer) IsDone() bool {
	return m.isDone.Load()
}

// ErrorOccurred reports whether the worker has died on a runtime error.
func (m *Muxer) ErrorOccurred() bool {
	return m.errorOccurred.Load()
}

// Close tears the muxer down: encoders are stopped, the worker is joined,
// the trailer is written best-effort, and the container and encoders are
// closed. Close is safe to call on a muxer that never started.
func (m *Muxer) Close() {
	if m.started && !m.isDone.Load() {
		m.logger.Info().Log("Stopping encoders")

		for _, encoder := range m.encoders {
			encoder.Stop()
		}
	}

	if m.workerDone != nil {
		m.logger.Info().Log("Waiting for muxer thread to stop")
		<-m.workerDone
		m.workerDone = nil
	}

	m.free()
}

func (m *Muxer) free() {
	if m.container == nil {
		return
	}

	if m.started {
		if err := m.container.WriteTrailer(); err != nil {
			// Close can't fail, so the trailer error is only logged.
			m.logger.Error().WithError(err).Log("Can't write trailer, continuing anyway")
		}

		m.started = false
	}

	for i, encoder := range m.encoders {
		if closer, ok := encoder.(io.Closer); ok {
			closer.Close()
		}

		m.encoders[i] = nil
	}

	for i := range m.stream {
		sd := &m.stream[i]

		sd.lock.Lock()
		for _, p := range sd.queue {
			p.Free()
		}
		sd.queue = nil
		sd.lock.Unlock()
	}

	if err := m.container.Close(); err != nil {
		m.logger.Error().WithError(err).Log("Can't close container")
	}

	m.container = nil

	m.rate.Stop()
}

// worker is the muxing loop. It runs until every stream is done and
// drained, or until a container write fails.
func (m *Muxer) worker() {
	defer close(m.workerDone)

	m.logger.Info().Log("Muxer thread started")

	streams := m.container.Streams()

	for {
		// Select the stream with the smallest last-written pts among all
		// streams that can still produce packets. Strict comparison makes
		// the tie-break stable towards the lowest index.
		oldestStream := -1
		oldestPTS := math.MaxFloat64

		for i := range streams {
			sd := &m.stream[i]

			sd.lock.Lock()
			eligible := !sd.done || len(sd.queue) != 0
			sd.lock.Unlock()

			if !eligible {
				continue
			}

			pts := float64(streams[i].LastPTS) * streams[i].TimeBase.Float()
			if pts < oldestPTS {
				oldestStream = i
				oldestPTS = pts
			}
		}

		// No packets left anywhere, we're done.
		if oldestStream == -1 {
			break
		}

		var packet *Packet

		sd := &m.stream[oldestStream]

		sd.lock.Lock()
		if len(sd.queue) != 0 {
			packet = sd.queue[0]
			sd.queue = sd.queue[1:]
		}
		sd.lock.Unlock()

		// The selected stream has no packet yet, wait and try again.
		if packet == nil {
			m.sleeper.Sleep(emptyQueueDelay)
			continue
		}

		stream := streams[oldestStream]

		packet.StreamIndex = oldestStream

		if packet.PTS != NoPTS {
			packet.PTS = Rescale(packet.PTS, stream.Codec.TimeBase, stream.TimeBase)
		}

		if packet.DTS != NoPTS {
			packet.DTS = Rescale(packet.DTS, stream.Codec.TimeBase, stream.TimeBase)
		}

		packet.Duration = Rescale(packet.Duration, stream.Codec.TimeBase, stream.TimeBase)

		size := len(packet.Data)

		if err := m.container.WriteInterleaved(packet); err != nil {
			m.errorOccurred.Store(true)
			m.logger.Error().WithError(err).Log("Can't write packet to container")
			return
		}

		// The payload is owned by the container now.
		packet.FreeOnDestruct = false

		m.stats.update(oldestPTS, m.container.Offset())
		m.rate.Add(size)
	}

	m.isDone.Store(true)

	m.logger.Info().Log("Muxer thread stopped")
}
