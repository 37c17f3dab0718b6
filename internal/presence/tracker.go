// Package presence derives the "someone is typing" indicator for a room from
// inbound typing events. The indicator decays: it clears on its own once no
// typing event has arrived from the shown name for the decay window.
package presence

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// DefaultDecayWindow is how long the indicator stays up after the last
// typing event.
const DefaultDecayWindow = 1500 * time.Millisecond

// Tracker is the typing presence state machine for one room session. At most
// one decay timer is outstanding at any time. It is goroutine-safe.
//
// Observers see changes in the order they were made: a notification that
// lost a race with a newer change is not delivered. Observers may read the
// Tracker but must not change it.
type Tracker struct {
	self   string
	sched  Scheduler
	window time.Duration

	mu        sync.Mutex
	active    string
	timer     Timer
	gen       uint64 // bumped on every schedule/cancel; stale fires compare against it
	seq       uint64 // bumped on every change of active
	observers []observer
	nextID    int

	notifyMu  sync.Mutex
	delivered uint64 // seq of the last change handed to observers
}

type observer struct {
	id int
	fn func(string)
}

// change is a shown-name transition waiting to be delivered to observers.
type change struct {
	seq  uint64
	name string
}

// NewTracker creates a Tracker for the local user self. A nil sched uses
// SystemScheduler and a non-positive window uses DefaultDecayWindow.
func NewTracker(self string, sched Scheduler, window time.Duration) *Tracker {
	if sched == nil {
		sched = SystemScheduler{}
	}
	if window <= 0 {
		window = DefaultDecayWindow
	}
	return &Tracker{
		self:   self,
		sched:  sched,
		window: window,
	}
}

// OnTypingEvent records that sender is typing. Events from the local user
// and empty names are ignored and return false. Any pending decay timer is
// replaced, so a steady stream of events keeps the indicator up without
// flicker.
func (t *Tracker) OnTypingEvent(sender string) bool {
	if sender == "" || sender == t.self {
		return false
	}

	t.mu.Lock()
	c, changed := t.setLocked(sender)
	t.stopLocked()
	gen := t.gen
	t.timer = t.sched.AfterFunc(t.window, func() { t.expire(gen) })
	t.mu.Unlock()

	if changed {
		t.deliver(c)
	}
	return true
}

// OnMessageFrom clears the indicator if author is the one shown as typing.
func (t *Tracker) OnMessageFrom(author string) {
	t.mu.Lock()
	if t.active == "" || t.active != author {
		t.mu.Unlock()
		return
	}
	t.stopLocked()
	c, _ := t.setLocked("")
	t.mu.Unlock()

	t.deliver(c)
}

// OnSend cancels the decay timer and clears the indicator.
func (t *Tracker) OnSend() {
	t.reset()
}

// OnLeave cancels the decay timer and clears the indicator. Safe to call
// more than once.
func (t *Tracker) OnLeave() {
	t.reset()
}

// Active returns the name currently shown as typing.
func (t *Tracker) Active() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active, t.active != ""
}

// Indicator returns the display text, or "" when nobody is typing.
func (t *Tracker) Indicator() string {
	name, ok := t.Active()
	if !ok {
		return ""
	}
	return name + " is typing..."
}

// Pending reports whether a decay timer is outstanding.
func (t *Tracker) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Observe registers fn to be called whenever the shown name changes; fn
// receives "" when the indicator clears. The returned function removes the
// observer.
func (t *Tracker) Observe(fn func(name string)) func() {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.observers = append(t.observers, observer{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.observers = lo.Filter(t.observers, func(o observer, _ int) bool {
			return o.id != id
		})
	}
}

func (t *Tracker) reset() {
	t.mu.Lock()
	t.stopLocked()
	c, changed := t.setLocked("")
	t.mu.Unlock()

	if changed {
		t.deliver(c)
	}
}

// expire is the decay timer callback.
func (t *Tracker) expire(gen uint64) {
	if c, changed := t.expireChange(gen); changed {
		t.deliver(c)
	}
}

// expireChange clears the indicator for the timer of generation gen. A timer
// that fired after being replaced or cancelled carries an old generation and
// changes nothing.
func (t *Tracker) expireChange(gen uint64) (change, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return change{}, false
	}
	t.timer = nil
	t.gen++
	return t.setLocked("")
}

// setLocked shows name and reports the change to deliver, if any.
func (t *Tracker) setLocked(name string) (change, bool) {
	if t.active == name {
		return change{}, false
	}
	t.active = name
	t.seq++
	return change{seq: t.seq, name: name}, true
}

func (t *Tracker) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

// deliver hands c to the observers unless a newer change already went out.
func (t *Tracker) deliver(c change) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	if c.seq <= t.delivered {
		return
	}
	t.delivered = c.seq

	t.mu.Lock()
	obs := make([]observer, len(t.observers))
	copy(obs, t.observers)
	t.mu.Unlock()

	for _, o := range obs {
		o.fn(c.name)
	}
}
