package glinject

import (
	"fmt"
	"os"
	"strconv"
	gotime "time"

	"github.com/screenrec/core/log"
	"github.com/screenrec/core/shm"
	"github.com/screenrec/core/time"
)

// GrabberConfig configures a FrameGrabber.
type GrabberConfig struct {
	// GL is the graphics pipeline of the captured process. Mandatory.
	GL GL

	// Drawable is the captured window. Mandatory.
	Drawable Drawable

	// Cursor provides hardware cursor snapshots. Optional; without it
	// FlagRecordCursor has no effect.
	Cursor CursorSource

	// Logger. Optional.
	Logger log.Logger

	// Clock and Sleeper. Optional, default to the wall clock.
	Clock   time.Source
	Sleeper time.Sleeper

	// Getenv. Optional, defaults to os.Getenv.
	Getenv func(string) string
}

// HotkeyInfo is a snapshot of the hotkey configuration published by the
// recorder.
type HotkeyInfo struct {
	Enabled   bool
	Keycode   uint32
	Modifiers uint32
}

// FrameGrabber is the producer side of the capture channel. It lives
// inside the captured process and is driven by the graphics hooks at each
// buffer swap. It never blocks on the consumer; when the ring is full,
// frames are dropped.
type FrameGrabber struct {
	gl       GL
	debug    *debugGL
	drawable Drawable
	cursor   CursorSource
	logger   log.Logger
	clock    time.Source
	sleeper  time.Sleeper

	segMain   *shm.Segment
	segFrames []*shm.Segment
	header    *Header

	ringSize  uint32
	maxBytes  uint32
	targetFPS uint32
	flags     uint32

	width  uint32
	height uint32

	nextFrameTime  int64
	delayRemainder uint32

	warnTooSmall bool
	warnTooLarge bool
}

// NewFrameGrabber attaches to the channel whose main segment id is
// published in the environment and validates its layout. Any mismatch is
// an error; the caller is expected to treat it as fatal for the host
// process.
func NewFrameGrabber(config GrabberConfig) (*FrameGrabber, error) {
	g := &FrameGrabber{
		gl:       config.GL,
		drawable: config.Drawable,
		cursor:   config.Cursor,
		logger:   config.Logger,
		clock:    config.Clock,
		sleeper:  config.Sleeper,

		warnTooSmall: true,
		warnTooLarge: true,
	}

	if g.logger == nil {
		g.logger = log.New("glinject")
	}

	if g.clock == nil {
		g.clock = &time.StdSource{}
	}

	if g.sleeper == nil {
		g.sleeper = &time.StdSleeper{}
	}

	getenv := config.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	shmValue := getenv(EnvShmID)
	if len(shmValue) == 0 {
		return nil, fmt.Errorf("shared memory id is missing in %s", EnvShmID)
	}

	shmID, err := strconv.Atoi(shmValue)
	if err != nil {
		return nil, fmt.Errorf("shared memory id %q in %s is invalid: %w", shmValue, EnvShmID, err)
	}

	if d, err := strconv.Atoi(getenv(EnvDebug)); err == nil && d > 0 {
		g.debug = newDebugGL(config.GL, g.logger)
		g.gl = g.debug
		g.logger.Info().Log("Debug mode enabled")
	}

	if err := g.attach(shmID); err != nil {
		return nil, err
	}

	g.nextFrameTime = g.clock.Now().UnixMicro()

	g.logger.Info().WithFields(log.Fields{
		"shm":  shmID,
		"ring": g.ringSize,
	}).Log("Frame grabber created")

	return g, nil
}

func (g *FrameGrabber) attach(shmID int) error {
	segMain, err := shm.Attach(shmID)
	if err != nil {
		return fmt.Errorf("can't attach to main segment: %w", err)
	}

	g.segMain = segMain

	if segMain.Size() < HeaderSize {
		g.detach()
		return fmt.Errorf("main segment of %d bytes can't hold the header: %w", segMain.Size(), ErrSegmentSize)
	}

	g.header = headerOf(segMain.Bytes())
	g.ringSize, g.maxBytes, g.targetFPS, g.flags = g.header.loadConfig()

	if g.ringSize < MinRingSize || g.ringSize > MaxRingSize {
		g.detach()
		return fmt.Errorf("ring buffer size %d: %w", g.ringSize, ErrInvalidRingSize)
	}

	if g.maxBytes > MaxMaxBytes {
		g.detach()
		return fmt.Errorf("maximum byte count %d: %w", g.maxBytes, ErrInvalidMaxBytes)
	}

	if segMain.Size() != MainSegmentSize(int(g.ringSize)) {
		g.detach()
		return fmt.Errorf("main segment of %d bytes doesn't match %d frames: %w", segMain.Size(), g.ringSize, ErrSegmentSize)
	}

	for i := 0; i < int(g.ringSize); i++ {
		info := frameInfoOf(segMain.Bytes(), i)

		seg, err := shm.Attach(int(info.ShmID))
		if err != nil {
			g.detach()
			return fmt.Errorf("can't attach to frame segment %d: %w", info.ShmID, err)
		}

		g.segFrames = append(g.segFrames, seg)

		if seg.Size() != int(g.maxBytes) {
			g.detach()
			return fmt.Errorf("frame segment %d has %d bytes instead of %d: %w", info.ShmID, seg.Size(), g.maxBytes, ErrSegmentSize)
		}
	}

	return nil
}

// detach unmaps all segments in reverse attach order.
func (g *FrameGrabber) detach() {
	for i := len(g.segFrames) - 1; i >= 0; i-- {
		g.segFrames[i].Detach()
	}

	g.segFrames = nil

	if g.segMain != nil {
		g.segMain.Detach()
		g.segMain = nil
		g.header = nil
	}
}

// Close detaches from the channel. The segments stay alive; they belong
// to the recorder.
func (g *FrameGrabber) Close() {
	g.detach()

	g.logger.Info().Log("Frame grabber destroyed")
}

// GrabFrame captures the current content of the drawable into the next
// ring slot. It is called by the graphics hooks after a frame has been
// rendered but before it is displayed.
func (g *FrameGrabber) GrabFrame() {
	width, height := g.drawable.Geometry()
	if width != g.width || height != g.height {
		g.width, g.height = width, height
		g.logger.Info().WithField("size", fmt.Sprintf("%dx%d", width, height)).Log("Frame size")
	}

	g.header.storeGeometry(width, height)
	g.header.addFrameCounter()

	stride := growAlign16(width * 4)

	if width < 2 || height < 2 {
		if g.warnTooSmall {
			g.warnTooSmall = false
			g.logger.Warn().WithField("size", fmt.Sprintf("%dx%d", width, height)).Log("Frame is too small")
		}

		return
	}

	if width > maxFrameDim || height > maxFrameDim || stride*height > g.maxBytes {
		if g.warnTooLarge {
			g.warnTooLarge = false
			g.logger.Warn().WithField("size", fmt.Sprintf("%dx%d", width, height)).Log("Frame is too large to capture")
		}

		return
	}

	readPos := g.header.loadReadPos()
	writePos := g.header.loadWritePos()

	if unreadFrames(writePos, readPos, int(g.ringSize)) >= int(g.ringSize) {
		// Ring is full, drop the frame.
		return
	}

	timestamp := g.clock.Now().UnixMicro()

	if g.targetFPS > 0 {
		delay := int64(1000000 / g.targetFPS)

		if g.flags&FlagLimitFPS != 0 {
			if timestamp < g.nextFrameTime {
				g.sleeper.Sleep(gotime.Duration(g.nextFrameTime-timestamp) * gotime.Microsecond)
				timestamp = g.clock.Now().UnixMicro()
			}
		} else if timestamp < g.nextFrameTime {
			return
		}

		// Carry the remainder of the integer division over to later
		// frames such that the frame times don't drift ahead of the
		// target rate.
		g.delayRemainder += 1000000 % g.targetFPS
		if g.delayRemainder >= g.targetFPS {
			g.delayRemainder -= g.targetFPS
			delay++
		}

		g.nextFrameTime = max(g.nextFrameTime+delay, timestamp)
	}

	if g.debug != nil {
		g.debug.probeExternal()
	}

	state := saveGLState(g.gl)

	g.gl.BindPixelPackBuffer(0)
	g.gl.BindFramebuffer(0, 0)
	g.gl.SetPackParam(PackSwapBytes, 0)
	g.gl.SetPackParam(PackRowLength, int(stride/4))
	g.gl.SetPackParam(PackImageHeight, 0)
	g.gl.SetPackParam(PackSkipPixels, 0)
	g.gl.SetPackParam(PackSkipRows, 0)
	g.gl.SetPackParam(PackSkipImages, 0)
	g.gl.SetPackParam(PackAlignment, 8)

	if g.flags&FlagCaptureFront != 0 {
		g.gl.SetReadBuffer(ReadFront)
	} else {
		g.gl.SetReadBuffer(ReadBack)
	}

	slot := int(writePos % g.ringSize)

	info := frameInfoOf(g.segMain.Bytes(), slot)
	info.Timestamp = timestamp
	info.Width = width
	info.Height = height

	payload := g.segFrames[slot].Bytes()[:int(stride)*int(height)]
	g.gl.ReadPixels(0, 0, int(width), int(height), payload)

	if g.flags&FlagRecordCursor != 0 && g.cursor != nil {
		if x, y, ok := g.drawable.RootPosition(); ok {
			if image, ok := g.cursor.Image(); ok {
				compositeCursor(payload, int(stride), int(width), int(height), x, y, image)
			}
		}
	}

	g.header.storeWritePos((writePos + 1) % (g.ringSize * 2))

	restoreGLState(g.gl, state)
}

// GetHotkeyInfo snapshots the hotkey configuration published by the
// recorder.
func (g *FrameGrabber) GetHotkeyInfo() HotkeyInfo {
	enabled, keycode, modifiers := g.header.loadHotkey()

	return HotkeyInfo{
		Enabled:   enabled,
		Keycode:   keycode,
		Modifiers: modifiers,
	}
}

// TriggerHotkey reports one press of the published hotkey to the
// recorder.
func (g *FrameGrabber) TriggerHotkey() {
	g.header.addHotkeyCounter()
}
