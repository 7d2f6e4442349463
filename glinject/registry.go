package glinject

import (
	"os"
	"sync"

	"github.com/screenrec/core/log"
)

// The graphics-call interceptor needs to find the grabber bound to a
// drawable from whichever hook fires. Grabbers of this process are kept
// in a registry keyed by display and drawable handle.

// Registry holds the frame grabbers of one process.
type Registry struct {
	mu       sync.Mutex
	grabbers map[registryKey]*FrameGrabber
	logger   log.Logger
}

type registryKey struct {
	display  uintptr
	drawable uintptr
}

// NewRegistry creates an empty registry. A process normally uses the
// package level Default registry, initialized on library load.
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.New("glinject")
	}

	return &Registry{
		grabbers: map[registryKey]*FrameGrabber{},
		logger:   logger,
	}
}

// NewGrabber creates a frame grabber for the given drawable and registers
// it. Channel setup errors are fatal: the injected library cannot recover
// from a misconfigured channel, so the host process is terminated with
// FatalStatus.
func (r *Registry) NewGrabber(display, drawable uintptr, config GrabberConfig) *FrameGrabber {
	grabber, err := NewFrameGrabber(config)
	if err != nil {
		r.logger.Error().WithError(err).WithFields(log.Fields{
			"display":  display,
			"drawable": drawable,
			"status":   FatalStatus,
			// FatalStatus is the low byte of this sentinel.
			"sentinel": -181818181,
		}).Log("Can't set up the capture channel, terminating")

		os.Exit(FatalStatus)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.grabbers[registryKey{display: display, drawable: drawable}] = grabber

	return grabber
}

// FindGrabber returns the grabber bound to the drawable, or nil.
func (r *Registry) FindGrabber(display, drawable uintptr) *FrameGrabber {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.grabbers[registryKey{display: display, drawable: drawable}]
}

// Teardown closes all grabbers. It is called on library unload.
func (r *Registry) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, grabber := range r.grabbers {
		grabber.Close()
		delete(r.grabbers, key)
	}
}

// Default is the process-wide registry the interceptor uses.
var Default = NewRegistry(nil)
