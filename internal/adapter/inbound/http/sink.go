package http

import "sync"

// sinkBuffer is the per-peer downlink buffer size. A slow consumer drops
// frames rather than blocking the router.
const sinkBuffer = 100

// channelSink adapts a buffered channel to the session.Sink interface. The
// events handler drains ch and writes frames to the HTTP response.
type channelSink struct {
	ch     chan []byte
	mu     sync.Mutex
	closed bool
}

func newChannelSink() *channelSink {
	return &channelSink{ch: make(chan []byte, sinkBuffer)}
}

// Push enqueues a frame without blocking. Returns false when the sink is
// closed or the buffer is full.
func (s *channelSink) Push(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- frame:
		return true
	default:
		return false
	}
}

// Close closes the channel once; the draining handler observes the close
// and ends the stream.
func (s *channelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
