package average

import (
	"testing"
	"time"

	timesrc "github.com/screenrec/core/time"

	"github.com/stretchr/testify/require"
)

func TestNewSMA(t *testing.T) {
	_, err := NewSMA(time.Second, time.Second)
	require.ErrorIs(t, err, ErrMultiplier)

	_, err = NewSMA(time.Second, 2*time.Second)
	require.ErrorIs(t, err, ErrMultiplier)

	_, err = NewSMA(3*time.Second, 2*time.Second)
	require.ErrorIs(t, err, ErrMultiplier)

	_, err = NewSMA(0, time.Second)
	require.ErrorIs(t, err, ErrWindow)

	_, err = NewSMA(time.Second, 0)
	require.ErrorIs(t, err, ErrGranularity)

	sma, err := NewSMA(10*time.Second, time.Second)
	require.NoError(t, err)
	require.NotNil(t, sma)
}

func TestAddSMA(t *testing.T) {
	ts := &timesrc.TestSource{
		N: time.Unix(0, 0),
	}

	sma := &SMA{
		ts:          ts,
		window:      time.Second.Nanoseconds(),
		granularity: time.Millisecond.Nanoseconds(),
	}
	sma.init()

	sma.Add(42)

	total, samplecount := sma.Total()
	require.Equal(t, float64(42), total)
	require.Equal(t, int(time.Second/time.Millisecond), samplecount)

	sma.Add(5)

	total, _ = sma.Total()
	require.Equal(t, float64(47), total)

	// one granularity slot later the values stay within the window
	ts.Advance(time.Millisecond)

	sma.Add(3)

	total, _ = sma.Total()
	require.Equal(t, float64(50), total)

	// after a full window everything has fallen out
	ts.Advance(2 * time.Second)

	total, _ = sma.Total()
	require.Equal(t, float64(0), total)
}

func TestAverageSMA(t *testing.T) {
	ts := &timesrc.TestSource{
		N: time.Unix(0, 0),
	}

	sma := &SMA{
		ts:          ts,
		window:      (4 * time.Second).Nanoseconds(),
		granularity: time.Second.Nanoseconds(),
	}
	sma.init()

	for i := 0; i < 4; i++ {
		sma.Add(10)
		ts.Advance(time.Second)
	}

	// 40 over 4 buckets, but Total shifts one slot forward first
	require.Equal(t, float64(30)/4, sma.Average())
}
