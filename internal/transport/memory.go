package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/whisper/roomchat/internal/protocol"
)

// Emitted is an outbound event recorded by a MemoryChannel.
type Emitted struct {
	Event string
	Frame json.RawMessage // encoded frame, including "type"
}

// Decode unmarshals the recorded frame into v.
func (e Emitted) Decode(v interface{}) error {
	return json.Unmarshal(e.Frame, v)
}

// MemoryChannel is an in-process Channel with no relay behind it. Emitted
// events are recorded and inbound events are injected with Deliver. Tests
// use it in place of a relay.
type MemoryChannel struct {
	*lifecycle

	mu      sync.Mutex
	emitted []Emitted
}

// NewMemoryChannel creates an open MemoryChannel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{lifecycle: newLifecycle("memory")}
}

// Emit implements Channel.
func (c *MemoryChannel) Emit(event string, payload interface{}) error {
	if c.closed() {
		return closedError(c.Err())
	}
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.emitted = append(c.emitted, Emitted{Event: event, Frame: data})
	c.mu.Unlock()
	return nil
}

// Close implements Channel.
func (c *MemoryChannel) Close() error {
	c.shutdown(nil)
	return nil
}

// Fail shuts the channel down as if the transport had dropped with cause.
func (c *MemoryChannel) Fail(cause error) {
	c.shutdown(cause)
}

// Deliver injects an inbound event, synchronously running its handlers.
// Events delivered after the channel closed are discarded.
func (c *MemoryChannel) Deliver(event string, payload interface{}) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	return c.DeliverRaw(data)
}

// DeliverRaw injects a raw inbound frame.
func (c *MemoryChannel) DeliverRaw(data []byte) error {
	if c.closed() {
		return closedError(c.Err())
	}
	c.registry.Dispatch(data)
	return nil
}

// Emitted returns a copy of every event emitted so far.
func (c *MemoryChannel) Emitted() []Emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Emitted, len(c.emitted))
	copy(out, c.emitted)
	return out
}

// EmittedOf returns the recorded events named event.
func (c *MemoryChannel) EmittedOf(event string) []Emitted {
	var out []Emitted
	for _, e := range c.Emitted() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Handlers returns the number of handlers registered for event.
func (c *MemoryChannel) Handlers(event string) int {
	return c.registry.Count(event)
}

// MemoryDialer hands out a preset MemoryChannel, or Err when set.
type MemoryDialer struct {
	Channel *MemoryChannel
	Err     error

	mu    sync.Mutex
	dials int
}

// Dial implements Dialer.
func (d *MemoryDialer) Dial(ctx context.Context) (Channel, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Channel, nil
}

// Dials returns how many times Dial was called.
func (d *MemoryDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
