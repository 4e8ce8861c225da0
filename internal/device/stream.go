package device

import "github.com/rs/zerolog/log"

// Stream is a single logical device timeline. Kernels enqueued on a stream
// execute in enqueue order, asynchronously with respect to the issuing
// goroutine, until Synchronize drains the queue. A panic inside a kernel is
// a device fault and aborts the process; there is no abort path for work
// already enqueued.
type Stream struct {
	ops chan func()
}

const streamDepth = 64

// NewStream starts a stream with its own execution goroutine.
func NewStream() *Stream {
	s := &Stream{ops: make(chan func(), streamDepth)}
	go s.run()
	return s
}

func (s *Stream) run() {
	for op := range s.ops {
		op()
	}
}

// Enqueue submits a kernel to the stream.
func (s *Stream) Enqueue(op func()) {
	s.ops <- op
}

// Synchronize blocks the caller until every previously enqueued kernel has
// completed. Host reads of device-written memory are valid only after the
// barrier returns.
func (s *Stream) Synchronize() {
	done := make(chan struct{})
	s.ops <- func() { close(done) }
	<-done
}

// Close drains the stream and stops its goroutine. The stream must not be
// used afterwards.
func (s *Stream) Close() {
	s.Synchronize()
	close(s.ops)
}

// launch enqueues a named kernel and records it in the launch metrics.
func launch(s *Stream, kernel string, op func()) {
	if s == nil {
		log.Panic().Msgf("device: %s launched on nil stream", kernel)
	}
	kernelLaunches.WithLabelValues(kernel).Inc()
	s.Enqueue(op)
}
