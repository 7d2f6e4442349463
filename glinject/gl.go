package glinject

import (
	"github.com/screenrec/core/log"
)

// The grabber runs inside the captured process and talks to the graphics
// pipeline through the interfaces below. The concrete implementations live
// in the interceptor that hooks the buffer-swap calls; the grabber itself
// never links against the graphics library.

// PackParam identifies one pixel-pack parameter.
type PackParam int

const (
	PackSwapBytes PackParam = iota
	PackRowLength
	PackImageHeight
	PackSkipPixels
	PackSkipRows
	PackSkipImages
	PackAlignment
)

var packParams = []PackParam{
	PackSwapBytes,
	PackRowLength,
	PackImageHeight,
	PackSkipPixels,
	PackSkipRows,
	PackSkipImages,
	PackAlignment,
}

// ReadBuffer selects the color buffer glReadPixels reads from.
type ReadBuffer int

const (
	ReadBack ReadBuffer = iota
	ReadFront
)

// GL is the slice of the graphics pipeline the grabber mutates. Every
// mutating call has a matching query such that the grabber can save and
// restore the state it touches.
type GL interface {
	// GetPackParam and SetPackParam access one pixel-pack parameter.
	GetPackParam(p PackParam) int
	SetPackParam(p PackParam, v int)

	// PixelPackBuffer and BindPixelPackBuffer access the buffer bound to
	// the pixel-pack target. Binding 0 unbinds.
	PixelPackBuffer() int
	BindPixelPackBuffer(id int)

	// DrawFramebuffer/ReadFramebuffer return the current framebuffer
	// bindings. BindFramebuffer(0, 0) selects the default framebuffer for
	// both targets; distinct ids rebind draw and read separately.
	DrawFramebuffer() int
	ReadFramebuffer() int
	BindFramebuffer(draw, read int)

	// GetReadBuffer and SetReadBuffer access the color buffer selection.
	GetReadBuffer() ReadBuffer
	SetReadBuffer(b ReadBuffer)

	// ReadPixels reads a width x height block of 32 bit BGRA pixels into
	// dst. The row length set through SetPackParam determines the stride.
	ReadPixels(x, y, width, height int, dst []byte)

	// Error drains the error flag of the pipeline. Zero means no error.
	Error() uint32
}

// Drawable is the window whose rendered output is captured.
type Drawable interface {
	// Geometry returns the current pixel dimensions of the drawable.
	Geometry() (width, height uint32)

	// RootPosition translates the drawable origin to root-window
	// coordinates. ok is false when the translation is unavailable.
	RootPosition() (x, y int, ok bool)
}

// glState is the pipeline state the grabber saves before a capture and
// restores afterwards.
type glState struct {
	pack            [7]int
	pixelPackBuffer int
	drawFramebuffer int
	readFramebuffer int
	readBuffer      ReadBuffer
}

func saveGLState(gl GL) glState {
	var s glState

	for i, p := range packParams {
		s.pack[i] = gl.GetPackParam(p)
	}

	s.pixelPackBuffer = gl.PixelPackBuffer()
	s.drawFramebuffer = gl.DrawFramebuffer()
	s.readFramebuffer = gl.ReadFramebuffer()
	s.readBuffer = gl.GetReadBuffer()

	return s
}

func restoreGLState(gl GL, s glState) {
	gl.BindPixelPackBuffer(s.pixelPackBuffer)
	gl.BindFramebuffer(s.drawFramebuffer, s.readFramebuffer)
	gl.SetReadBuffer(s.readBuffer)

	for i, p := range packParams {
		gl.SetPackParam(p, s.pack[i])
	}
}

// debugGL wraps a GL and probes the error flag after every call. Errors
// are logged and swallowed; probing is diagnostic only.
type debugGL struct {
	gl     GL
	logger log.Logger
}

func newDebugGL(gl GL, logger log.Logger) *debugGL {
	return &debugGL{
		gl:     gl,
		logger: logger,
	}
}

func (d *debugGL) probe(call string) {
	if e := d.gl.Error(); e != 0 {
		d.logger.Warn().WithField("call", call).WithField("gl_error", e).Log("OpenGL error")
	}
}

// probeExternal reports errors that host code left on the error flag, so
// that they are not attributed to the grabber.
func (d *debugGL) probeExternal() {
	d.probe("<external code>")
}

func (d *debugGL) GetPackParam(p PackParam) int {
	v := d.gl.GetPackParam(p)
	d.probe("GetPackParam")
	return v
}

func (d *debugGL) SetPackParam(p PackParam, v int) {
	d.gl.SetPackParam(p, v)
	d.probe("SetPackParam")
}

func (d *debugGL) PixelPackBuffer() int {
	v := d.gl.PixelPackBuffer()
	d.probe("PixelPackBuffer")
	return v
}

func (d *debugGL) BindPixelPackBuffer(id int) {
	d.gl.BindPixelPackBuffer(id)
	d.probe("BindPixelPackBuffer")
}

func (d *debugGL) DrawFramebuffer() int {
	v := d.gl.DrawFramebuffer()
	d.probe("DrawFramebuffer")
	return v
}

func (d *debugGL) ReadFramebuffer() int {
	v := d.gl.ReadFramebuffer()
	d.probe("ReadFramebuffer")
	return v
}

func (d *debugGL) BindFramebuffer(draw, read int) {
	d.gl.BindFramebuffer(draw, read)
	d.probe("BindFramebuffer")
}

func (d *debugGL) GetReadBuffer() ReadBuffer {
	v := d.gl.GetReadBuffer()
	d.probe("GetReadBuffer")
	return v
}

func (d *debugGL) SetReadBuffer(b ReadBuffer) {
	d.gl.SetReadBuffer(b)
	d.probe("SetReadBuffer")
}

func (d *debugGL) ReadPixels(x, y, width, height int, dst []byte) {
	d.gl.ReadPixels(x, y, width, height, dst)
	d.probe("ReadPixels")
}

func (d *debugGL) Error() uint32 {
	return d.gl.Error()
}
