// Package transport owns the single long-lived channel between the client
// and the chat relay. A Channel carries named JSON events in both directions;
// the Manager dials it lazily, hands the same instance to every caller, and
// tears it down at the end of the session. Nothing in this package retries:
// a failed or dropped channel is reported to the caller and stays dead.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/whisper/roomchat/internal/metrics"
)

var (
	// ErrNotConnected is returned by Manager operations before Connect.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrChannelClosed is returned when emitting on, or reconnecting to, a
	// channel that has shut down. Errors for channels lost to a transport
	// failure also wrap the cause.
	ErrChannelClosed = errors.New("transport: channel closed")

	// ErrManagerClosed is returned by Connect after Close.
	ErrManagerClosed = errors.New("transport: manager closed")

	// ErrChannelBusy is returned by Acquire while another owner holds the
	// channel.
	ErrChannelBusy = errors.New("transport: channel in use by another session")
)

// Handler receives the raw JSON frame of an inbound event.
type Handler func(payload json.RawMessage)

// Channel is a bidirectional named-event channel to the relay.
type Channel interface {
	// Emit sends a fire-and-forget event. No acknowledgment is awaited.
	Emit(event string, payload interface{}) error

	// Subscribe registers handler for event and returns a function that
	// deregisters it. The returned function is idempotent.
	Subscribe(event string, handler Handler) func()

	// Done is closed once the channel has shut down for any reason.
	Done() <-chan struct{}

	// Err returns the transport error that shut the channel down, or nil
	// while open or after a local Close.
	Err() error

	// Close releases the channel. Safe to call multiple times.
	Close() error
}

// Dialer opens a new Channel.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Channel, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context) (Channel, error) {
	return f(ctx)
}

// closedError builds the error reported for a shut-down channel.
func closedError(cause error) error {
	if cause == nil {
		return ErrChannelClosed
	}
	return fmt.Errorf("%w: %w", ErrChannelClosed, cause)
}

// lifecycle is the shutdown bookkeeping shared by all Channel
// implementations: a handler registry, a done channel and the first cause.
type lifecycle struct {
	registry *Registry
	name     string

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func newLifecycle(name string) *lifecycle {
	metrics.ChannelsOpen.Inc()
	return &lifecycle{
		registry: NewRegistry(),
		name:     name,
		done:     make(chan struct{}),
	}
}

// shutdown marks the channel closed with cause (nil for a local close). It
// returns false if the channel was already closed.
func (l *lifecycle) shutdown(cause error) bool {
	first := false
	l.closeOnce.Do(func() {
		first = true
		l.mu.Lock()
		l.err = cause
		l.mu.Unlock()
		close(l.done)

		metrics.ChannelsOpen.Dec()
		if cause != nil {
			metrics.ChannelFailures.Inc()
			log.Printf("[%s] channel lost: %v", l.name, cause)
		} else {
			log.Printf("[%s] channel closed", l.name)
		}
	})
	return first
}

func (l *lifecycle) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Subscribe implements Channel.
func (l *lifecycle) Subscribe(event string, handler Handler) func() {
	return l.registry.Register(event, handler)
}

// Done implements Channel.
func (l *lifecycle) Done() <-chan struct{} {
	return l.done
}

// Err implements Channel.
func (l *lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
