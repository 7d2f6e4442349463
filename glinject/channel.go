package glinject

import (
	"fmt"

	"github.com/screenrec/core/log"
	"github.com/screenrec/core/mem"
	"github.com/screenrec/core/shm"
)

// ChannelConfig configures the recorder side of the capture channel.
type ChannelConfig struct {
	// RingSize is the number of frame slots, 1 to 1000.
	RingSize int

	// MaxBytes is the upper bound on the payload size per slot.
	MaxBytes int

	// TargetFPS is the frame rate the producer paces itself to. 0
	// disables pacing.
	TargetFPS int

	// Flags is the initial set of channel flags.
	Flags uint32

	// Logger. Optional.
	Logger log.Logger
}

// Frame is one captured frame read out of the channel. The pixel data is
// an owned copy in 32 bit BGRA with 16 byte aligned stride, rows bottom-up.
// Release returns the copy to the buffer pool.
type Frame struct {
	Timestamp int64 // microseconds
	Width     uint32
	Height    uint32
	Stride    int

	Data []byte

	buf *mem.Buffer
}

// Release hands the frame's pixel buffer back to the pool. The frame must
// not be used afterwards.
func (f *Frame) Release() {
	mem.Put(f.buf)
	f.buf = nil
	f.Data = nil
}

// Channel is the consumer side of the capture channel. The recorder
// creates it, hands the main segment id to the injected producer through
// the environment, and reads captured frames from it.
type Channel struct {
	segMain   *shm.Segment
	segFrames []*shm.Segment
	header    *Header

	ringSize int
	maxBytes int

	logger log.Logger

	hotkeyCounter uint32
}

// NewChannel allocates the shared segments, initializes the header, and
// freezes the channel configuration.
func NewChannel(config ChannelConfig) (*Channel, error) {
	if config.RingSize < MinRingSize || config.RingSize > MaxRingSize {
		return nil, fmt.Errorf("ring buffer size %d: %w", config.RingSize, ErrInvalidRingSize)
	}

	if config.MaxBytes <= 0 || config.MaxBytes > MaxMaxBytes {
		return nil, fmt.Errorf("maximum byte count %d: %w", config.MaxBytes, ErrInvalidMaxBytes)
	}

	c := &Channel{
		ringSize: config.RingSize,
		maxBytes: config.MaxBytes,
		logger:   config.Logger,
	}

	if c.logger == nil {
		c.logger = log.New("capture")
	}

	segMain, err := shm.Create(MainSegmentSize(config.RingSize))
	if err != nil {
		return nil, fmt.Errorf("can't create main segment: %w", err)
	}

	c.segMain = segMain
	c.header = headerOf(segMain.Bytes())

	for i := 0; i < config.RingSize; i++ {
		seg, err := shm.Create(config.MaxBytes)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("can't create frame segment %d: %w", i, err)
		}

		c.segFrames = append(c.segFrames, seg)

		frameInfoOf(segMain.Bytes(), i).ShmID = int32(seg.ID())
	}

	// Publishing the configuration is the last step; the producer only
	// attaches once it can read a complete header.
	c.header.storeConfig(uint32(config.RingSize), uint32(config.MaxBytes), uint32(config.TargetFPS), config.Flags)

	c.logger.Info().WithFields(log.Fields{
		"shm":       segMain.ID(),
		"ring":      config.RingSize,
		"max_bytes": config.MaxBytes,
	}).Log("Capture channel created")

	return c, nil
}

// MainID returns the id of the main segment. This is the value the
// recorder publishes to the producer in the environment.
func (c *Channel) MainID() int {
	return c.segMain.ID()
}

// RingSize returns the number of frame slots.
func (c *Channel) RingSize() int {
	return c.ringSize
}

// CurrentSize returns the most recent window geometry observed by the
// producer.
func (c *Channel) CurrentSize() (uint32, uint32) {
	return c.header.loadGeometry()
}

// FrameCounter returns the number of grab attempts the producer has made
// so far, including dropped frames.
func (c *Channel) FrameCounter() uint32 {
	return c.header.loadFrameCounter()
}

// UnreadFrames returns the number of published frames not yet read.
func (c *Channel) UnreadFrames() int {
	return unreadFrames(c.header.loadWritePos(), c.header.loadReadPos(), c.ringSize)
}

// NextFrame copies the oldest unread frame out of its slot and advances
// the read cursor. It returns false when no frame is pending.
func (c *Channel) NextFrame() (*Frame, bool) {
	readPos := c.header.loadReadPos()
	writePos := c.header.loadWritePos()

	if unreadFrames(writePos, readPos, c.ringSize) == 0 {
		return nil, false
	}

	slot := int(readPos) % c.ringSize
	info := frameInfoOf(c.segMain.Bytes(), slot)

	stride := int(growAlign16(info.Width * 4))
	size := stride * int(info.Height)

	buf := mem.Get()
	buf.Grow(size)
	buf.Write(c.segFrames[slot].Bytes()[:size])

	frame := &Frame{
		Timestamp: info.Timestamp,
		Width:     info.Width,
		Height:    info.Height,
		Stride:    stride,
		Data:      buf.Bytes(),
		buf:       buf,
	}

	c.header.storeReadPos((readPos + 1) % uint32(c.ringSize*2))

	return frame, true
}

// SetHotkey publishes the hotkey the producer should report presses for.
func (c *Channel) SetHotkey(enabled bool, keycode, modifiers uint32) {
	c.header.storeHotkey(enabled, keycode, modifiers)
}

// HotkeyPresses returns the number of hotkey presses the producer has
// reported since the last call.
func (c *Channel) HotkeyPresses() int {
	counter := c.header.loadHotkeyCounter()
	presses := int(counter - c.hotkeyCounter)
	c.hotkeyCounter = counter

	return presses
}

// Close detaches and removes all segments in reverse creation order.
func (c *Channel) Close() {
	for i := len(c.segFrames) - 1; i >= 0; i-- {
		c.segFrames[i].Close()
	}

	c.segFrames = nil

	if c.segMain != nil {
		c.segMain.Close()
		c.segMain = nil
		c.header = nil
	}
}
