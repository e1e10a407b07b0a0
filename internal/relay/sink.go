package relay

import (
	"context"
	"fmt"
	"sync"
)

// Sink receives broadcast updates for one subscriber.
type Sink interface {
	// Deliver hands u to the subscriber. It must return once ctx is done.
	Deliver(ctx context.Context, u Update) error
	// Close releases the subscriber; later Deliver calls fail.
	Close()
}

// ChannelSink is a buffered channel Sink consumed by a transport goroutine.
// The data channel is never closed; Done signals termination instead.
type ChannelSink struct {
	ch   chan Update
	done chan struct{}
	once sync.Once
}

// NewChannelSink creates a sink with the given buffer (minimum 1).
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{
		ch:   make(chan Update, buffer),
		done: make(chan struct{}),
	}
}

func (c *ChannelSink) Deliver(ctx context.Context, u Update) error {
	select {
	case <-c.done:
		return ErrSubscriberClosed
	default:
	}

	select {
	case c.ch <- u:
		return nil
	case <-c.done:
		return ErrSubscriberClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrDeliveryTimeout, ctx.Err())
	}
}

func (c *ChannelSink) Close() {
	c.once.Do(func() { close(c.done) })
}

// C returns the receive side of the sink.
func (c *ChannelSink) C() <-chan Update {
	return c.ch
}

// Done is closed once the sink is closed.
func (c *ChannelSink) Done() <-chan struct{} {
	return c.done
}

var _ Sink = (*ChannelSink)(nil)
