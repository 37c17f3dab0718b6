package chat

import (
	"sync"

	"github.com/samber/lo"
)

// Log is the append-only, ordered record of messages for one room session.
// Order is insertion order; the log never sorts, removes, edits or dedups.
// It is goroutine-safe.
type Log struct {
	mu        sync.RWMutex
	items     []Message
	observers []observer
	nextID    int
}

type observer struct {
	id int
	fn func(Message)
}

// NewLog creates a new empty Log.
func NewLog() *Log {
	return &Log{}
}

// Append adds msg to the end of the log and notifies observers in
// registration order. Observers run after the lock is released so they may
// read the log.
func (l *Log) Append(msg Message) {
	l.mu.Lock()
	l.items = append(l.items, msg)
	obs := make([]observer, len(l.observers))
	copy(obs, l.observers)
	l.mu.Unlock()

	for _, o := range obs {
		o.fn(msg)
	}
}

// All returns a copy of the messages in insertion order. Returns an empty
// slice if nothing was appended.
func (l *Log) All() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Message, len(l.items))
	copy(result, l.items)
	return result
}

// Len returns the number of messages in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Last returns the most recently appended message.
func (l *Log) Last() (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.items) == 0 {
		return Message{}, false
	}
	return l.items[len(l.items)-1], true
}

// Observe registers fn to be called with every message appended from now on,
// e.g. to scroll a view to the latest entry. The returned function removes
// the observer; calling it more than once is harmless.
func (l *Log) Observe(fn func(Message)) func() {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.observers = append(l.observers, observer{id: id, fn: fn})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.observers = lo.Filter(l.observers, func(o observer, _ int) bool {
			return o.id != id
		})
	}
}
