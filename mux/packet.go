package mux

import (
	"math"

	"github.com/screenrec/core/mem"
)

// NoPTS marks an unknown presentation or decoding timestamp. Rescaling
// preserves it.
const NoPTS = int64(math.MinInt64)

// Packet is one timed compressed buffer on its way from an encoder into
// the container. A packet is owned by exactly one side at a time: the
// encoder hands it to the muxer with AddPacket, and the muxer hands the
// payload to the container on write, at which point FreeOnDestruct is
// cleared and Free no longer recycles the buffer.
type Packet struct {
	Data []byte

	// PTS, DTS, and Duration are in ticks of the encoder time base until
	// the worker rescales them into the container stream time base.
	PTS      int64
	DTS      int64
	Duration int64

	StreamIndex int

	// Key marks packets a decoder can start on.
	Key bool

	// FreeOnDestruct is set while the packet still owns a pooled payload
	// buffer.
	FreeOnDestruct bool

	buf *mem.Buffer
}

// NewPacket wraps a payload the caller owns. The muxer will not recycle
// it.
func NewPacket(data []byte, pts, dts int64) *Packet {
	return &Packet{
		Data: data,
		PTS:  pts,
		DTS:  dts,
	}
}

// NewPooledPacket copies the payload into a pooled buffer that Free
// returns to the pool.
func NewPooledPacket(data []byte, pts, dts int64) *Packet {
	buf := mem.Get()
	buf.Grow(len(data))
	buf.Write(data)

	return &Packet{
		Data:           buf.Bytes(),
		PTS:            pts,
		DTS:            dts,
		FreeOnDestruct: true,
		buf:            buf,
	}
}

// Free releases the payload buffer if the packet still owns it.
func (p *Packet) Free() {
	if p.FreeOnDestruct {
		mem.Put(p.buf)
	}

	p.buf = nil
	p.Data = nil
}
