package faultsync

import (
	"context"
	"errors"
	"sync"
)

// ErrChannelSinkClosed is returned by Deliver after the channel sink's
// close function has run.
var ErrChannelSinkClosed = errors.New("faultsync: channel sink closed")

type callbackSink struct {
	name string
	fn   func(ctx context.Context, c Candidate) (string, error)
}

// NewCallbackSink adapts a plain function into a CandidateSink. The
// returned reference id is surfaced in run stats and logs; return ""
// when the handler has no natural id.
func NewCallbackSink(name string, fn func(ctx context.Context, c Candidate) (string, error)) CandidateSink {
	return &callbackSink{name: name, fn: fn}
}

func (s *callbackSink) Deliver(ctx context.Context, c Candidate) (string, error) {
	if s.fn == nil {
		return "", errors.New("faultsync: callback sink has no handler")
	}
	return s.fn(ctx, c)
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name string

	mu     sync.RWMutex
	out    chan Candidate
	closed bool
}

// NewChannelSink returns a sink that forwards winning candidates onto
// a channel, the receive side of that channel, and a close function.
// Close waits for in-flight deliveries to finish, then closes the
// channel; subsequent deliveries fail with ErrChannelSinkClosed.
func NewChannelSink(name string, buffer int) (CandidateSink, <-chan Candidate, func()) {
	if buffer < 0 {
		buffer = 0
	}
	s := &channelSink{name: name, out: make(chan Candidate, buffer)}
	return s, s.out, s.close
}

func (s *channelSink) Deliver(ctx context.Context, c Candidate) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrChannelSinkClosed
	}
	select {
	case s.out <- c:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}
