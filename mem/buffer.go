// Package mem provides a pool of reusable byte buffers in order to take
// pressure off the garbage collector on the hot frame and packet paths.
package mem

import (
	"bytes"
)

type Buffer struct {
	data bytes.Buffer
}

// Len returns the length of the buffer.
func (b *Buffer) Len() int {
	return b.data.Len()
}

// Bytes returns the buffer, but keeps ownership.
func (b *Buffer) Bytes() []byte {
	return b.data.Bytes()
}

// Reset empties the buffer and keeps it's capacity.
func (b *Buffer) Reset() {
	b.data.Reset()
}

// Grow reserves capacity for at least n more bytes.
func (b *Buffer) Grow(n int) {
	b.data.Grow(n)
}

// Write appends to the buffer.
func (b *Buffer) Write(p []byte) (int, error) {
	return b.data.Write(p)
}

// WriteByte appends a byte to the buffer.
func (b *Buffer) WriteByte(c byte) error {
	return b.data.WriteByte(c)
}

// String returns the data in the buffer as a string.
func (b *Buffer) String() string {
	return b.data.String()
}
