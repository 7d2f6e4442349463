package glinject

import (
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelConfigBounds(t *testing.T) {
	_, err := NewChannel(ChannelConfig{RingSize: 0, MaxBytes: 1024})
	assert.ErrorIs(t, err, ErrInvalidRingSize)

	_, err = NewChannel(ChannelConfig{RingSize: 1001, MaxBytes: 1024})
	assert.ErrorIs(t, err, ErrInvalidRingSize)

	_, err = NewChannel(ChannelConfig{RingSize: 4, MaxBytes: 0})
	assert.ErrorIs(t, err, ErrInvalidMaxBytes)

	_, err = NewChannel(ChannelConfig{RingSize: 4, MaxBytes: MaxMaxBytes + 1})
	assert.ErrorIs(t, err, ErrInvalidMaxBytes)
}

func TestChannelHeaderContents(t *testing.T) {
	channel, err := NewChannel(ChannelConfig{
		RingSize:  4,
		MaxBytes:  1 << 16,
		TargetFPS: 30,
		Flags:     FlagLimitFPS | FlagRecordCursor,
	})
	require.NoError(t, err)

	defer channel.Close()

	ringSize, maxBytes, targetFPS, flags := channel.header.loadConfig()

	assert.Equal(t, uint32(4), ringSize)
	assert.Equal(t, uint32(1<<16), maxBytes)
	assert.Equal(t, uint32(30), targetFPS)
	assert.Equal(t, FlagLimitFPS|FlagRecordCursor, flags)

	for i := 0; i < 4; i++ {
		info := frameInfoOf(channel.segMain.Bytes(), i)
		assert.NotEqual(t, int32(0), info.ShmID, "slot %d must reference a payload segment", i)
	}
}

func TestChannelAttachDetachRoundtrip(t *testing.T) {
	channel, err := NewChannel(ChannelConfig{RingSize: 2, MaxBytes: 4096})
	require.NoError(t, err)

	env := map[string]string{
		EnvShmID: strconv.Itoa(channel.MainID()),
	}

	grabber, err := NewFrameGrabber(GrabberConfig{
		GL:       newFakeGL(),
		Drawable: &fakeDrawable{width: 8, height: 8},
		Getenv:   func(key string) string { return env[key] },
	})
	require.NoError(t, err)

	grabber.Close()
	assert.Nil(t, grabber.segMain)
	assert.Empty(t, grabber.segFrames)

	channel.Close()
	assert.Nil(t, channel.segMain)
	assert.Empty(t, channel.segFrames)
}

func TestChannelRejectsTamperedHeader(t *testing.T) {
	channel, err := NewChannel(ChannelConfig{RingSize: 2, MaxBytes: 4096})
	require.NoError(t, err)

	defer channel.Close()

	env := map[string]string{
		EnvShmID: strconv.Itoa(channel.MainID()),
	}

	// A ring size that doesn't match the segment size must be fatal for
	// the producer.
	atomic.StoreUint32(&channel.header.RingBufferSize, 3)

	_, err = NewFrameGrabber(GrabberConfig{
		GL:       newFakeGL(),
		Drawable: &fakeDrawable{},
		Getenv:   func(key string) string { return env[key] },
	})
	assert.ErrorIs(t, err, ErrSegmentSize)

	atomic.StoreUint32(&channel.header.RingBufferSize, 2000)

	_, err = NewFrameGrabber(GrabberConfig{
		GL:       newFakeGL(),
		Drawable: &fakeDrawable{},
		Getenv:   func(key string) string { return env[key] },
	})
	assert.ErrorIs(t, err, ErrInvalidRingSize)
}

func TestChannelHotkeySnapshot(t *testing.T) {
	channel, err := NewChannel(ChannelConfig{RingSize: 2, MaxBytes: 4096})
	require.NoError(t, err)

	defer channel.Close()

	channel.SetHotkey(true, 107, 5)

	enabled, keycode, modifiers := channel.header.loadHotkey()
	assert.True(t, enabled)
	assert.Equal(t, uint32(107), keycode)
	assert.Equal(t, uint32(5), modifiers)

	assert.Equal(t, 0, channel.HotkeyPresses())
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(nil)

	channel, err := NewChannel(ChannelConfig{RingSize: 2, MaxBytes: 4096})
	require.NoError(t, err)

	defer channel.Close()

	env := map[string]string{
		EnvShmID: strconv.Itoa(channel.MainID()),
	}

	grabber := registry.NewGrabber(1, 2, GrabberConfig{
		GL:       newFakeGL(),
		Drawable: &fakeDrawable{width: 8, height: 8},
		Getenv:   func(key string) string { return env[key] },
	})
	require.NotNil(t, grabber)

	assert.Equal(t, grabber, registry.FindGrabber(1, 2))
	assert.Nil(t, registry.FindGrabber(1, 3))

	registry.Teardown()
	assert.Nil(t, registry.FindGrabber(1, 2))
}
