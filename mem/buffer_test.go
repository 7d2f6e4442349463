package mem

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferWrite(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 1024)

	buf := &Buffer{}
	n, err := buf.Write(data)

	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, 0, bytes.Compare(data, buf.Bytes()))
}

func TestBufferReset(t *testing.T) {
	buf := &Buffer{}
	buf.Write([]byte("some data"))

	require.NotEqual(t, 0, buf.Len())

	buf.Reset()

	require.Equal(t, 0, buf.Len())
}

func TestPoolRecycles(t *testing.T) {
	pool := NewBufferPool()

	buf := pool.Get()
	buf.Write([]byte("stale"))
	pool.Put(buf)

	buf = pool.Get()

	require.Equal(t, 0, buf.Len(), "recycled buffer must be empty")
}
