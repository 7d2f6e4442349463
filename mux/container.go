package mux

import (
	"sort"
	"sync"
)

// Rational is a time base: one tick is Num/Den seconds.
type Rational struct {
	Num int64
	Den int64
}

func (r Rational) Float() float64 {
	return float64(r.Num) / float64(r.Den)
}

// Rescale converts a tick count from one time base into another, rounding
// to the nearest tick with halfway cases away from zero. NoPTS is
// preserved.
func Rescale(a int64, from, to Rational) int64 {
	if a == NoPTS {
		return NoPTS
	}

	b := from.Num * to.Den
	c := from.Den * to.Num

	neg := a < 0
	if neg {
		a = -a
	}

	r := (a*b + c/2) / c

	if neg {
		r = -r
	}

	return r
}

// CodecType distinguishes the kinds of streams a container can carry.
type CodecType int

const (
	CodecVideo CodecType = iota
	CodecAudio
)

// Codec describes the encoded stream an encoder will feed into the muxer.
// TimeBase is the encoder time base that incoming packet timestamps are
// expressed in. Config carries the codec-specific sequence header, if any.
type Codec struct {
	Name string
	Type CodecType

	TimeBase Rational

	Width  int
	Height int

	SampleRate int
	Channels   int

	Config []byte

	// GlobalHeader is set by the muxer when the container requires codec
	// configuration in the container header instead of the stream.
	GlobalHeader bool
}

// Stream is one stream of an open container.
type Stream struct {
	Index int

	// TimeBase is the container time base of this stream. It is writable
	// until the header is written.
	TimeBase Rational

	Codec *Codec

	// LastPTS is the presentation time, in TimeBase ticks, at which the
	// stream continues: pts plus duration of the most recently written
	// packet. It is maintained by the container on every successful
	// interleaved write; the muxer worker keys its stream selection on it.
	LastPTS int64
}

// Container is the interface the muxer consumes from a container format
// library.
type Container interface {
	// NewStream adds a stream before the header is written. Stream
	// indices are assigned densely from 0.
	NewStream(codec *Codec) (*Stream, error)

	// Streams returns the registered streams.
	Streams() []*Stream

	// NeedsGlobalHeader reports whether the format wants codec
	// configuration in the container header.
	NeedsGlobalHeader() bool

	WriteHeader() error

	// WriteInterleaved writes one packet whose timestamps are already in
	// the stream time base. On success the container owns the payload and
	// updates the stream's LastPTS.
	WriteInterleaved(p *Packet) error

	WriteTrailer() error

	// Offset is the number of bytes written to the output so far.
	Offset() int64

	Close() error
}

// Format creates containers for one container format.
type Format interface {
	Name() string
	Open(path string) (Container, error)
}

var formats = struct {
	sync.Mutex
	m map[string]Format
}{
	m: map[string]Format{},
}

// RegisterFormat makes a format available to GuessFormat. Format packages
// register themselves in their init.
func RegisterFormat(f Format) {
	formats.Lock()
	defer formats.Unlock()

	formats.m[f.Name()] = f
}

// GuessFormat resolves a format by name. It returns nil when the name is
// unknown.
func GuessFormat(name string) Format {
	formats.Lock()
	defer formats.Unlock()

	return formats.m[name]
}

// Formats returns the names of all registered formats, sorted.
func Formats() []string {
	formats.Lock()
	defer formats.Unlock()

	names := make([]string, 0, len(formats.m))
	for name := range formats.m {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
