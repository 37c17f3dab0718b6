package session

import (
	"time"

	"github.com/whisper/roomchat/internal/presence"
	"github.com/whisper/roomchat/internal/ratelimit"
)

// Option configures a Session.
type Option func(*Session)

// WithScheduler sets the scheduler used for typing decay timers.
func WithScheduler(sched presence.Scheduler) Option {
	return func(s *Session) {
		if sched != nil {
			s.sched = sched
		}
	}
}

// WithDecayWindow overrides how long a typing indicator stays up.
func WithDecayWindow(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithLimiter throttles outbound typing notifications.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Session) { s.limiter = l }
}

// WithClock sets the clock used to stamp sent messages.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOnFatal registers fn to be called once when the channel under a joined
// session dies. fn runs on its own goroutine, outside the session lock.
func WithOnFatal(fn func(error)) Option {
	return func(s *Session) { s.onFatal = fn }
}

// WithOnJoin registers fn to run on every Join once the fresh log and
// tracker exist and before the session subscribes to the relay, so observers
// attached in fn see every inbound event of the join.
func WithOnJoin(fn func(JoinedRoom)) Option {
	return func(s *Session) { s.onJoin = fn }
}
