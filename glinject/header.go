package glinject

import (
	"sync/atomic"
	"unsafe"
)

// Header is the fixed layout record at the start of the main shared
// segment. All fields are 32 bit wide and word aligned such that both
// processes agree on the layout and can access each field atomically.
//
// Ownership is split: the recorder writes the configuration block
// (RingBufferSize, MaxBytes, TargetFPS, Flags), ReadPos, and the hotkey
// configuration. The producer writes CurrentWidth, CurrentHeight,
// FrameCounter, WritePos, and HotkeyCounter.
type Header struct {
	RingBufferSize uint32
	MaxBytes       uint32
	TargetFPS      uint32
	Flags          uint32

	CurrentWidth  uint32
	CurrentHeight uint32
	FrameCounter  uint32

	ReadPos  uint32
	WritePos uint32

	HotkeyEnabled   uint32
	HotkeyKeycode   uint32
	HotkeyModifiers uint32
	HotkeyCounter   uint32

	_ uint32 // keep the descriptor table 8-byte aligned
}

// FrameInfo is one entry of the descriptor table that immediately follows
// the header, one per ring slot. ShmID is frozen by the recorder; the
// remaining fields are filled by the producer before it publishes the slot.
type FrameInfo struct {
	ShmID int32
	_     uint32

	Timestamp int64 // microseconds

	Width  uint32
	Height uint32
}

const (
	HeaderSize    = int(unsafe.Sizeof(Header{}))
	FrameInfoSize = int(unsafe.Sizeof(FrameInfo{}))
)

// MainSegmentSize returns the required size of the main segment for the
// given ring size.
func MainSegmentSize(ringSize int) int {
	return HeaderSize + FrameInfoSize*ringSize
}

func headerOf(b []byte) *Header {
	return (*Header)(unsafe.Pointer(&b[0]))
}

func frameInfoOf(b []byte, slot int) *FrameInfo {
	return (*FrameInfo)(unsafe.Pointer(&b[HeaderSize+FrameInfoSize*slot]))
}

// The cursors and counters are accessed with atomic loads and stores. The
// atomics give the acquire/release bracketing the channel relies on: a
// consumer that observes an advanced WritePos also observes the slot
// contents written before it, and a producer that observes ReadPos cannot
// have its later payload writes reordered before the observation.

// loadConfig snapshots the configuration block the recorder froze before
// handing out the segment id.
func (h *Header) loadConfig() (ringSize, maxBytes, targetFPS, flags uint32) {
	ringSize = atomic.LoadUint32(&h.RingBufferSize)
	maxBytes = atomic.LoadUint32(&h.MaxBytes)
	targetFPS = atomic.LoadUint32(&h.TargetFPS)
	flags = atomic.LoadUint32(&h.Flags)

	return
}

func (h *Header) storeConfig(ringSize, maxBytes, targetFPS, flags uint32) {
	atomic.StoreUint32(&h.RingBufferSize, ringSize)
	atomic.StoreUint32(&h.MaxBytes, maxBytes)
	atomic.StoreUint32(&h.TargetFPS, targetFPS)
	atomic.StoreUint32(&h.Flags, flags)
}

func (h *Header) loadReadPos() uint32 {
	return atomic.LoadUint32(&h.ReadPos)
}

func (h *Header) storeReadPos(v uint32) {
	atomic.StoreUint32(&h.ReadPos, v)
}

func (h *Header) loadWritePos() uint32 {
	return atomic.LoadUint32(&h.WritePos)
}

func (h *Header) storeWritePos(v uint32) {
	atomic.StoreUint32(&h.WritePos, v)
}

func (h *Header) storeGeometry(width, height uint32) {
	atomic.StoreUint32(&h.CurrentWidth, width)
	atomic.StoreUint32(&h.CurrentHeight, height)
}

func (h *Header) loadGeometry() (uint32, uint32) {
	return atomic.LoadUint32(&h.CurrentWidth), atomic.LoadUint32(&h.CurrentHeight)
}

func (h *Header) addFrameCounter() uint32 {
	return atomic.AddUint32(&h.FrameCounter, 1)
}

func (h *Header) loadFrameCounter() uint32 {
	return atomic.LoadUint32(&h.FrameCounter)
}

func (h *Header) loadHotkey() (bool, uint32, uint32) {
	enabled := atomic.LoadUint32(&h.HotkeyEnabled)
	keycode := atomic.LoadUint32(&h.HotkeyKeycode)
	modifiers := atomic.LoadUint32(&h.HotkeyModifiers)

	return enabled != 0, keycode, modifiers
}

func (h *Header) storeHotkey(enabled bool, keycode, modifiers uint32) {
	e := uint32(0)
	if enabled {
		e = 1
	}

	atomic.StoreUint32(&h.HotkeyKeycode, keycode)
	atomic.StoreUint32(&h.HotkeyModifiers, modifiers)
	atomic.StoreUint32(&h.HotkeyEnabled, e)
}

func (h *Header) addHotkeyCounter() uint32 {
	return atomic.AddUint32(&h.HotkeyCounter, 1)
}

func (h *Header) loadHotkeyCounter() uint32 {
	return atomic.LoadUint32(&h.HotkeyCounter)
}

// positiveMod returns a mod b with the result in [0, b).
func positiveMod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}

	return m
}

// unreadFrames returns the number of frames the producer has published but
// the consumer has not read yet.
func unreadFrames(writePos, readPos uint32, ringSize int) int {
	return positiveMod(int(writePos)-int(readPos), ringSize*2)
}

// growAlign16 rounds up to the next multiple of 16. The frame stride is
// aligned this way on both sides of the channel.
func growAlign16(n uint32) uint32 {
	return (n + 15) &^ 15
}
