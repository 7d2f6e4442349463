package mux

import (
	"math"
	"sync"
	"time"

	"github.com/prep/average"
)

// noPTSSeconds marks the statistics window as not yet seeded.
const noPTSSeconds = -math.MaxFloat64

const (
	averageWindow      = 10 * time.Second
	averageGranularity = time.Second
)

// sharedStats is the statistics block shared between the muxer worker and
// the callers polling throughput. One mutex guards all fields.
type sharedStats struct {
	lock sync.Mutex

	totalBytes uint64
	bitRate    float64

	prevPTS   float64
	prevBytes uint64
}

func newSharedStats() *sharedStats {
	return &sharedStats{
		prevPTS: noPTSSeconds,
	}
}

// update records the container offset after a successful write. pts is
// the stream time, in seconds, that the written packet was selected at.
// Whenever more than one second of stream time has passed since the window
// was seeded, the bit rate over that window is computed and the window
// re-seeded.
func (s *sharedStats) update(pts float64, offset int64) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.totalBytes = uint64(offset)

	if s.prevPTS == noPTSSeconds {
		s.prevPTS = pts
		s.prevBytes = s.totalBytes
	}

	timedelta := pts - s.prevPTS
	if timedelta > 0.999999 {
		s.bitRate = float64((s.totalBytes-s.prevBytes)*8) / timedelta
		s.prevPTS = pts
		s.prevBytes = s.totalBytes
	}
}

func (s *sharedStats) TotalBytes() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.totalBytes
}

func (s *sharedStats) BitRate() float64 {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.bitRate
}

// writeRate tracks the wall-clock write throughput of the worker,
// independent of stream time.
type writeRate struct {
	sw *average.SlidingWindow
}

func newWriteRate() *writeRate {
	return &writeRate{
		sw: average.MustNew(averageWindow, averageGranularity),
	}
}

func (w *writeRate) Add(size int) {
	w.sw.Add(int64(size) * 8)
}

// Rate returns the current write throughput in bits per second.
func (w *writeRate) Rate() float64 {
	return w.sw.Average(averageWindow)
}

func (w *writeRate) Stop() {
	w.sw.Stop()
}
