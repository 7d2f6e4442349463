// Package glinject implements the shared memory capture channel between a
// process whose graphical output is being captured and the out-of-process
// recorder.
//
// The channel is a single-producer/single-consumer ring. The recorder
// creates one main segment holding the channel header and the frame
// descriptor table, plus one payload segment per ring slot. The injected
// producer attaches to these segments, writes rendered frames into the
// slots, and advances the write cursor. The recorder consumes frames and
// advances the read cursor. No kernel synchronization primitive crosses the
// process boundary; ordering is enforced with atomic loads and stores on
// the header cursors.
package glinject

import "errors"

// Environment variables read by the injected producer.
const (
	// EnvShmID carries the decimal id of the main shared memory segment.
	EnvShmID = "SSR_GLINJECT_SHM"

	// EnvDebug enables per-call graphics error probing when set to a
	// value greater than zero.
	EnvDebug = "SSR_GLINJECT_DEBUG"
)

// Channel flags.
const (
	// FlagLimitFPS makes the producer sleep to hold the target frame rate
	// instead of dropping early frames.
	FlagLimitFPS = uint32(1) << iota

	// FlagCaptureFront reads from the front buffer instead of the back
	// buffer.
	FlagCaptureFront

	// FlagRecordCursor composites the hardware cursor into captured
	// frames.
	FlagRecordCursor
)

// FatalStatus is the process exit status for unrecoverable channel setup
// errors on the producer side. It is deliberately unusual so that a
// terminated host process can be traced back to the capture channel.
const FatalStatus = 187

// Bounds for the channel configuration. They are enforced on both sides.
const (
	MinRingSize = 1
	MaxRingSize = 1000
	MaxMaxBytes = 1024 * 1024 * 1024

	// Frames with a dimension above this are never captured.
	maxFrameDim = 10000
)

var (
	ErrInvalidRingSize = errors.New("ring buffer size is out of bounds")
	ErrInvalidMaxBytes = errors.New("maximum frame byte count is out of bounds")
	ErrSegmentSize     = errors.New("shared memory segment has an unexpected size")
)
