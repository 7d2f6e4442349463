// Package flv provides an FLV container backend for the muxer, built on
// the joy4 FLV tag codec. Importing the package registers the "flv"
// format.
package flv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/datarhei/joy4/format/flv/flvio"

	"github.com/screenrec/core/mux"
)

var (
	ErrUnsupportedCodec = errors.New("codec can't be carried in flv")
	ErrHeaderTwice      = errors.New("header was already written")
)

func init() {
	mux.RegisterFormat(&format{})
}

type format struct{}

func (f *format) Name() string {
	return "flv"
}

func (f *format) Open(path string) (mux.Container, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return NewContainer(file), nil
}

// countWriter tracks the logical output offset, including bytes still
// sitting in the bufio layer.
type countWriter struct {
	w      *bufio.Writer
	offset atomic.Int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.offset.Add(int64(n))

	return n, err
}

// Container writes one FLV file. Timestamps handed to WriteInterleaved
// are expected in the stream time base and are converted to the
// millisecond timestamps FLV carries.
type Container struct {
	sink io.Closer
	w    *countWriter
	b    []byte

	streams []*mux.Stream

	headerWritten bool
}

// NewContainer wraps a writer into an FLV container. When w is also an
// io.Closer it is closed with the container.
func NewContainer(w io.Writer) *Container {
	c := &Container{
		w: &countWriter{w: bufio.NewWriter(w)},
		b: make([]byte, 256),
	}

	if closer, ok := w.(io.Closer); ok {
		c.sink = closer
	}

	return c
}

func (c *Container) NewStream(codec *mux.Codec) (*mux.Stream, error) {
	if c.headerWritten {
		return nil, ErrHeaderTwice
	}

	switch codec.Type {
	case mux.CodecVideo:
		if codec.Name != "h264" {
			return nil, fmt.Errorf("video codec %q: %w", codec.Name, ErrUnsupportedCodec)
		}
	case mux.CodecAudio:
		if codec.Name != "aac" {
			return nil, fmt.Errorf("audio codec %q: %w", codec.Name, ErrUnsupportedCodec)
		}
	default:
		return nil, ErrUnsupportedCodec
	}

	stream := &mux.Stream{
		Index:    len(c.streams),
		TimeBase: mux.Rational{Num: 1, Den: 1000},
		Codec:    codec,
	}

	c.streams = append(c.streams, stream)

	return stream, nil
}

func (c *Container) Streams() []*mux.Stream {
	return c.streams
}

// NeedsGlobalHeader is always true: FLV wants the codec configuration up
// front as sequence header tags.
func (c *Container) NeedsGlobalHeader() bool {
	return true
}

func (c *Container) WriteHeader() error {
	if c.headerWritten {
		return ErrHeaderTwice
	}

	var flags uint8

	for _, stream := range c.streams {
		switch stream.Codec.Type {
		case mux.CodecVideo:
			flags |= flvio.FILE_HAS_VIDEO
		case mux.CodecAudio:
			flags |= flvio.FILE_HAS_AUDIO
		}
	}

	n := flvio.FillFileHeader(c.b, flags)
	if _, err := c.w.Write(c.b[:n]); err != nil {
		return err
	}

	// sequence headers before any frame data
	for _, stream := range c.streams {
		if len(stream.Codec.Config) == 0 {
			continue
		}

		var tag flvio.Tag

		switch stream.Codec.Type {
		case mux.CodecVideo:
			tag = flvio.Tag{
				Type:          flvio.TAG_VIDEO,
				FrameType:     flvio.FRAME_KEY,
				CodecID:       flvio.VIDEO_H264,
				AVCPacketType: flvio.AVC_SEQHDR,
				Data:          stream.Codec.Config,
			}
		case mux.CodecAudio:
			tag = audioTag(stream.Codec, flvio.AAC_SEQHDR, stream.Codec.Config)
		}

		if err := flvio.WriteTag(c.w, tag, 0, c.b); err != nil {
			return err
		}
	}

	c.headerWritten = true

	return nil
}

func (c *Container) WriteInterleaved(p *mux.Packet) error {
	if p.StreamIndex < 0 || p.StreamIndex >= len(c.streams) {
		return fmt.Errorf("packet for unknown stream %d", p.StreamIndex)
	}

	stream := c.streams[p.StreamIndex]

	pts := p.PTS
	if pts == mux.NoPTS {
		pts = p.DTS
	}
	if pts == mux.NoPTS {
		pts = stream.LastPTS
	}

	dts := p.DTS
	if dts == mux.NoPTS {
		dts = pts
	}

	timestamp := int32(mux.Rescale(dts, stream.TimeBase, mux.Rational{Num: 1, Den: 1000}))

	var tag flvio.Tag

	switch stream.Codec.Type {
	case mux.CodecVideo:
		frameType := uint8(flvio.FRAME_INTER)
		if p.Key {
			frameType = flvio.FRAME_KEY
		}

		tag = flvio.Tag{
			Type:            flvio.TAG_VIDEO,
			FrameType:       frameType,
			CodecID:         flvio.VIDEO_H264,
			AVCPacketType:   flvio.AVC_NALU,
			CompositionTime: int32(mux.Rescale(pts-dts, stream.TimeBase, mux.Rational{Num: 1, Den: 1000})),
			Data:            p.Data,
		}
	case mux.CodecAudio:
		tag = audioTag(stream.Codec, flvio.AAC_RAW, p.Data)
	}

	if err := flvio.WriteTag(c.w, tag, timestamp, c.b); err != nil {
		return err
	}

	stream.LastPTS = pts + p.Duration

	return nil
}

func (c *Container) WriteTrailer() error {
	// FLV has no trailer, flush the buffered tags.
	return c.w.w.Flush()
}

func (c *Container) Offset() int64 {
	return c.w.offset.Load()
}

func (c *Container) Close() error {
	err := c.w.w.Flush()

	if c.sink != nil {
		if cerr := c.sink.Close(); err == nil {
			err = cerr
		}
	}

	return err
}

func audioTag(codec *mux.Codec, packetType uint8, data []byte) flvio.Tag {
	soundType := uint8(flvio.SOUND_MONO)
	if codec.Channels > 1 {
		soundType = flvio.SOUND_STEREO
	}

	return flvio.Tag{
		Type:          flvio.TAG_AUDIO,
		SoundFormat:   flvio.SOUND_AAC,
		SoundRate:     flvio.SOUND_44Khz,
		SoundSize:     flvio.SOUND_16BIT,
		SoundType:     soundType,
		AACPacketType: packetType,
		Data:          data,
	}
}
