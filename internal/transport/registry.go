package transport

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/samber/lo"

	"github.com/whisper/roomchat/internal/metrics"
	"github.com/whisper/roomchat/internal/protocol"
)

type registration struct {
	id      uint64
	handler Handler
}

// Registry routes inbound frames to handlers by event type. Several handlers
// may be registered for the same event; they run in registration order on
// the goroutine calling Dispatch.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]registration
	nextID   uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string][]registration),
	}
}

// Register adds handler for event and returns the function that removes it.
func (r *Registry) Register(event string, handler Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[event] = append(r.handlers[event], registration{id: id, handler: handler})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			remaining := lo.Filter(r.handlers[event], func(reg registration, _ int) bool {
				return reg.id != id
			})
			if len(remaining) == 0 {
				delete(r.handlers, event)
				return
			}
			r.handlers[event] = remaining
		})
	}
}

// Count returns the number of handlers registered for event.
func (r *Registry) Count(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}

// Dispatch parses a raw frame and hands it to the handlers registered for its
// type at the time of the call. Malformed frames are logged and dropped;
// frames nobody listens for are ignored. It reports whether any handler ran.
func (r *Registry) Dispatch(data []byte) bool {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Printf("transport: dispatch parse error: %v", err)
		metrics.InboundDropped.WithLabelValues("malformed").Inc()
		return false
	}

	r.mu.RLock()
	regs := make([]registration, len(r.handlers[env.Type]))
	copy(regs, r.handlers[env.Type])
	r.mu.RUnlock()

	for _, reg := range regs {
		reg.handler(json.RawMessage(env.Raw))
	}
	return len(regs) > 0
}
