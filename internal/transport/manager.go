package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Manager owns the one channel shared by every room session of a process.
// The channel is dialed on the first Connect and reused afterwards; it is
// never redialed. At most one owner holds it at a time: room-scoped events
// such as user_typing carry no room, so two joined sessions on one channel
// would see each other's traffic.
type Manager struct {
	dialer Dialer

	mu     sync.Mutex
	ch     Channel
	owner  interface{}
	closed bool
}

// NewManager creates a Manager that dials with dialer.
func NewManager(dialer Dialer) *Manager {
	return &Manager{dialer: dialer}
}

// Connect returns the shared channel, dialing it on first use. If the shared
// channel has since died, the returned error wraps ErrChannelClosed and the
// transport cause; callers treat that as fatal for their session.
func (m *Manager) Connect(ctx context.Context) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if m.ch != nil {
		select {
		case <-m.ch.Done():
			return nil, closedError(m.ch.Err())
		default:
			return m.ch, nil
		}
	}

	ch, err := m.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: connect: %w", err)
	}
	m.ch = ch
	return ch, nil
}

// Acquire makes owner the exclusive user of the channel. It fails with
// ErrChannelBusy while a different owner holds it; acquiring again as the
// current owner succeeds.
func (m *Manager) Acquire(owner interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.owner != nil && m.owner != owner {
		return ErrChannelBusy
	}
	m.owner = owner
	return nil
}

// Release gives the channel up if owner holds it. Releasing as a non-owner
// does nothing.
func (m *Manager) Release(owner interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == owner {
		m.owner = nil
	}
}

// Channel returns the shared channel, or nil before the first successful
// Connect.
func (m *Manager) Channel() Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch
}

// Emit sends a fire-and-forget event on the shared channel.
func (m *Manager) Emit(event string, payload interface{}) error {
	ch := m.Channel()
	if ch == nil {
		return ErrNotConnected
	}
	return ch.Emit(event, payload)
}

// Subscribe registers handler for event on the shared channel and returns
// the function that deregisters it.
func (m *Manager) Subscribe(event string, handler Handler) (func(), error) {
	ch := m.Channel()
	if ch == nil {
		return nil, ErrNotConnected
	}
	return ch.Subscribe(event, handler), nil
}

// Close tears down the shared channel. Later Connect calls fail with
// ErrManagerClosed. Safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ch := m.ch
	m.mu.Unlock()

	if ch == nil {
		return nil
	}
	if err := ch.Close(); err != nil {
		log.Printf("transport: close channel: %v", err)
		return err
	}
	return nil
}
