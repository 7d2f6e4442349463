package mux

// Encoder is the capability set the muxer requires from an encoder. The
// muxer owns all registered encoders and closes them on Free when they
// also implement io.Closer.
type Encoder interface {
	// Stop requests cessation without blocking. It must be callable from
	// the muxer teardown while the worker still runs.
	Stop()

	// Finish begins flushing. The encoder drains asynchronously and calls
	// EndStream on the muxer once its stream is complete.
	Finish()
}
