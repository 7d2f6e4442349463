package glinject

import (
	"strconv"
	"testing"
	gotime "time"

	"github.com/screenrec/core/log"
	"github.com/screenrec/core/time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGL implements the GL interface with an explicit state record such
// that the save/restore discipline of the grabber can be verified.
type fakeGL struct {
	pack            map[PackParam]int
	pixelPackBuffer int
	drawFramebuffer int
	readFramebuffer int
	readBuffer      ReadBuffer

	fill      byte
	readCalls int

	errors []uint32
}

func newFakeGL() *fakeGL {
	return &fakeGL{
		pack: map[PackParam]int{},
	}
}

func (f *fakeGL) GetPackParam(p PackParam) int  { return f.pack[p] }
func (f *fakeGL) SetPackParam(p PackParam, v int) { f.pack[p] = v }

func (f *fakeGL) PixelPackBuffer() int      { return f.pixelPackBuffer }
func (f *fakeGL) BindPixelPackBuffer(id int) { f.pixelPackBuffer = id }

func (f *fakeGL) DrawFramebuffer() int { return f.drawFramebuffer }
func (f *fakeGL) ReadFramebuffer() int { return f.readFramebuffer }

func (f *fakeGL) BindFramebuffer(draw, read int) {
	f.drawFramebuffer = draw
	f.readFramebuffer = read
}

func (f *fakeGL) GetReadBuffer() ReadBuffer  { return f.readBuffer }
func (f *fakeGL) SetReadBuffer(b ReadBuffer) { f.readBuffer = b }

func (f *fakeGL) ReadPixels(x, y, width, height int, dst []byte) {
	f.readCalls++

	for i := range dst {
		dst[i] = f.fill
	}
}

func (f *fakeGL) Error() uint32 {
	if len(f.errors) == 0 {
		return 0
	}

	e := f.errors[0]
	f.errors = f.errors[1:]

	return e
}

type fakeDrawable struct {
	width  uint32
	height uint32

	rootX, rootY int
}

func (f *fakeDrawable) Geometry() (uint32, uint32) { return f.width, f.height }

func (f *fakeDrawable) RootPosition() (int, int, bool) { return f.rootX, f.rootY, true }

type fakeCursor struct {
	image *CursorImage
}

func (f *fakeCursor) Image() (*CursorImage, bool) {
	if f.image == nil {
		return nil, false
	}

	return f.image, true
}

type grabberEnv struct {
	channel *Channel
	grabber *FrameGrabber
	gl      *fakeGL
	draw    *fakeDrawable
	cursor  *fakeCursor
	clock   *time.TestSource
	sleeper *time.TestSleeper
	logbuf  log.BufferWriter
}

func newGrabberEnv(t *testing.T, config ChannelConfig) *grabberEnv {
	t.Helper()

	channel, err := NewChannel(config)
	require.NoError(t, err)

	t.Cleanup(channel.Close)

	e := &grabberEnv{
		channel: channel,
		gl:      newFakeGL(),
		draw:    &fakeDrawable{width: 64, height: 48},
		cursor:  &fakeCursor{},
		clock:   &time.TestSource{},
		logbuf:  log.NewBufferWriter(log.Ldebug, 100),
	}

	e.clock.Set(1000, 0)
	e.sleeper = &time.TestSleeper{Source: e.clock}

	env := map[string]string{
		EnvShmID: strconv.Itoa(channel.MainID()),
	}

	grabber, err := NewFrameGrabber(GrabberConfig{
		GL:       e.gl,
		Drawable: e.draw,
		Cursor:   e.cursor,
		Logger:   log.New("glinject").WithOutput(e.logbuf),
		Clock:    e.clock,
		Sleeper:  e.sleeper,
		Getenv:   func(key string) string { return env[key] },
	})
	require.NoError(t, err)

	t.Cleanup(grabber.Close)

	e.grabber = grabber

	return e
}

func (e *grabberEnv) warnings() []*log.Event {
	events := []*log.Event{}

	for _, event := range e.logbuf.Events() {
		if event.Level == log.Lwarn {
			events = append(events, event)
		}
	}

	return events
}

func TestGrabberAttachValidation(t *testing.T) {
	_, err := NewFrameGrabber(GrabberConfig{
		GL:       newFakeGL(),
		Drawable: &fakeDrawable{},
		Getenv:   func(string) string { return "" },
	})
	require.Error(t, err, "missing environment must be rejected")

	_, err = NewFrameGrabber(GrabberConfig{
		GL:       newFakeGL(),
		Drawable: &fakeDrawable{},
		Getenv: func(key string) string {
			if key == EnvShmID {
				return "-1"
			}
			return ""
		},
	})
	require.Error(t, err, "unattachable segment must be rejected")
}

func TestGrabberRingFull(t *testing.T) {
	e := newGrabberEnv(t, ChannelConfig{RingSize: 4, MaxBytes: 1 << 20})

	for i := 0; i < 10; i++ {
		e.grabber.GrabFrame()
	}

	assert.Equal(t, uint32(10), e.channel.FrameCounter(), "every grab attempt counts")
	assert.Equal(t, 4, e.channel.UnreadFrames(), "ring holds at most 4 frames")
	assert.Equal(t, uint32(4), e.channel.header.loadWritePos(), "write cursor saturates")
	assert.Equal(t, 4, e.gl.readCalls, "dropped frames are not read back")
}

func TestGrabberFrameContent(t *testing.T) {
	e := newGrabberEnv(t, ChannelConfig{RingSize: 4, MaxBytes: 1 << 20})

	e.gl.fill = 0xab
	e.grabber.GrabFrame()

	frame, ok := e.channel.NextFrame()
	require.True(t, ok)

	defer frame.Release()

	assert.Equal(t, uint32(64), frame.Width)
	assert.Equal(t, uint32(48), frame.Height)
	assert.Equal(t, int(growAlign16(64*4)), frame.Stride)
	assert.Equal(t, frame.Stride*48, len(frame.Data))
	assert.Equal(t, byte(0xab), frame.Data[0])
	assert.Equal(t, e.clock.Now().UnixMicro(), frame.Timestamp)

	_, ok = e.channel.NextFrame()
	assert.False(t, ok, "only one frame was published")
}

func TestGrabberFIFOOrder(t *testing.T) {
	e := newGrabberEnv(t, ChannelConfig{RingSize: 4, MaxBytes: 1 << 20})

	for i := 0; i < 3; i++ {
		e.gl.fill = byte(i + 1)
		e.grabber.GrabFrame()
	}

	for i := 0; i < 3; i++ {
		frame, ok := e.channel.NextFrame()
		require.True(t, ok)

		assert.Equal(t, byte(i+1), frame.Data[0])
		frame.Release()
	}
}

func TestGrabberTooSmall(t *testing.T) {
	e := newGrabberEnv(t, ChannelConfig{RingSize: 4, MaxBytes: 1 << 20})

	e.draw.width, e.draw.height = 1, 1

	e.grabber.GrabFrame()
	e.grabber.GrabFrame()

	assert.Equal(t, uint32(2), e.channel.FrameCounter())
	assert.Equal(t, 0, e.channel.UnreadFrames())
	assert.Equal(t, 1, len(e.warnings()), "too-small warning is one-shot")
}

func TestGrabberTooLarge(t *testing.T) {
	// 64x48 BGRA doesn't fit into 1024 bytes per slot.
	e := newGrabberEnv(t, ChannelConfig{RingSize: 4, MaxBytes: 1024})

	e.grabber.GrabFrame()
	e.grabber.GrabFrame()

	assert.Equal(t, 0, e.channel.UnreadFrames())
	assert.Equal(t, 1, len(e.warnings()), "too-large warning is one-shot")
}

func TestGrabberFPSLimit(t *testing.T) {
	e := newGrabberEnv(t, ChannelConfig{
		RingSize:  8,
		MaxBytes:  1 << 20,
		TargetFPS: 30,
		Flags:     FlagLimitFPS,
	})

	start := e.clock.Now()
	grabbed := 0

	for e.clock.Now().Sub(start) < gotime.Second {
		before := e.channel.header.loadWritePos()
		e.grabber.GrabFrame()

		if e.channel.header.loadWritePos() != before {
			grabbed++
		}

		// drain so the ring never fills up
		if frame, ok := e.channel.NextFrame(); ok {
			frame.Release()
		}
	}

	assert.GreaterOrEqual(t, grabbed, 29)
	assert.LessOrEqual(t, grabbed, 31)
	assert.NotEmpty(t, e.sleeper.Slept, "pacing must sleep when limiting")
}

func TestGrabberFPSDrop(t *testing.T) {
	e := newGrabberEnv(t, ChannelConfig{
		RingSize:  8,
		MaxBytes:  1 << 20,
		TargetFPS: 30,
	})

	grabbed := 0

	// call at 1 kHz for one second
	for i := 0; i < 1000; i++ {
		before := e.channel.header.loadWritePos()
		e.grabber.GrabFrame()

		if e.channel.header.loadWritePos() != before {
			grabbed++
		}

		if frame, ok := e.channel.NextFrame(); ok {
			frame.Release()
		}

		e.clock.Advance(gotime.Millisecond)
	}

	assert.GreaterOrEqual(t, grabbed, 28)
	assert.LessOrEqual(t, grabbed, 32)
	assert.Empty(t, e.sleeper.Slept, "dropping must not sleep")
}

func TestGrabberCursorComposite(t *testing.T) {
	e := newGrabberEnv(t, ChannelConfig{
		RingSize: 4,
		MaxBytes: 1 << 20,
		Flags:    FlagRecordCursor,
	})

	e.draw.width, e.draw.height = 4, 4

	// fully opaque red 2x2 cursor at window coordinate (1,1)
	red := uint32(0xffff0000)
	e.cursor.image = &CursorImage{
		X:      1,
		Y:      1,
		Width:  2,
		Height: 2,
		Pixels: []uint32{red, red, red, red},
	}

	e.grabber.GrabFrame()

	frame, ok := e.channel.NextFrame()
	require.True(t, ok)

	defer frame.Release()

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			// rows are bottom-up
			pixel := frame.Data[frame.Stride*(3-y)+4*x:]

			if x >= 1 && x <= 2 && y >= 1 && y <= 2 {
				assert.Equal(t, byte(0), pixel[0], "B at %d,%d", x, y)
				assert.Equal(t, byte(0), pixel[1], "G at %d,%d", x, y)
				assert.Equal(t, byte(255), pixel[2], "R at %d,%d", x, y)
			} else {
				assert.Equal(t, byte(0), pixel[0], "B at %d,%d", x, y)
				assert.Equal(t, byte(0), pixel[1], "G at %d,%d", x, y)
				assert.Equal(t, byte(0), pixel[2], "R at %d,%d", x, y)
			}
		}
	}
}

func TestGrabberCursorBlend(t *testing.T) {
	frame := make([]byte, 16)
	for i := range frame {
		frame[i] = 100
	}

	// one half-transparent premultiplied pixel
	cursor := &CursorImage{
		Width:  1,
		Height: 1,
		Pixels: []uint32{0x80402010},
	}

	compositeCursor(frame, 16, 1, 1, 0, 0, cursor)

	// out = (in * (255 - a) + 127) / 255 + c
	assert.Equal(t, byte((100*(255-0x80)+127)/255+0x10), frame[0]) // B
	assert.Equal(t, byte((100*(255-0x80)+127)/255+0x20), frame[1]) // G
	assert.Equal(t, byte((100*(255-0x80)+127)/255+0x40), frame[2]) // R
}

func TestGrabberStateRestore(t *testing.T) {
	e := newGrabberEnv(t, ChannelConfig{RingSize: 4, MaxBytes: 1 << 20})

	e.gl.pack[PackAlignment] = 4
	e.gl.pack[PackRowLength] = 123
	e.gl.pixelPackBuffer = 7
	e.gl.drawFramebuffer = 8
	e.gl.readFramebuffer = 9
	e.gl.readBuffer = ReadFront

	e.grabber.GrabFrame()

	assert.Equal(t, 4, e.gl.pack[PackAlignment])
	assert.Equal(t, 123, e.gl.pack[PackRowLength])
	assert.Equal(t, 7, e.gl.pixelPackBuffer)
	assert.Equal(t, 8, e.gl.drawFramebuffer)
	assert.Equal(t, 9, e.gl.readFramebuffer)
	assert.Equal(t, ReadFront, e.gl.readBuffer)
}

func TestGrabberHotkey(t *testing.T) {
	e := newGrabberEnv(t, ChannelConfig{RingSize: 4, MaxBytes: 1 << 20})

	e.channel.SetHotkey(true, 64, 3)

	info := e.grabber.GetHotkeyInfo()
	assert.Equal(t, HotkeyInfo{Enabled: true, Keycode: 64, Modifiers: 3}, info)

	again := e.grabber.GetHotkeyInfo()
	assert.Equal(t, info, again, "snapshots without intervening writes are identical")

	e.grabber.TriggerHotkey()
	e.grabber.TriggerHotkey()
	e.grabber.TriggerHotkey()

	assert.Equal(t, 3, e.channel.HotkeyPresses())
	assert.Equal(t, 0, e.channel.HotkeyPresses())
}

func TestGrabberDebugProbe(t *testing.T) {
	e := newGrabberEnv(t, ChannelConfig{RingSize: 4, MaxBytes: 1 << 20})

	debug := newDebugGL(e.gl, log.New("glinject").WithOutput(e.logbuf))

	e.gl.errors = []uint32{0x0502}
	debug.probeExternal()

	warnings := e.warnings()
	require.Equal(t, 1, len(warnings))
	assert.Equal(t, "<external code>", warnings[0].Data["call"])
}
