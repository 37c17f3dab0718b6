// Package session implements the room session: the join/leave lifecycle for
// one chat room on top of the shared relay channel, outbound send and typing
// notifications, and the routing of inbound relay events into the session's
// message log and typing presence tracker.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/whisper/roomchat/internal/chat"
	"github.com/whisper/roomchat/internal/metrics"
	"github.com/whisper/roomchat/internal/presence"
	"github.com/whisper/roomchat/internal/protocol"
	"github.com/whisper/roomchat/internal/ratelimit"
	"github.com/whisper/roomchat/internal/transport"
)

// State is the connection state of a Session.
type State string

// Session states. A session moves idle -> connecting -> joined -> closed and
// may go closed -> connecting again on a new Join.
const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateJoined     State = "joined"
	StateClosed     State = "closed"
)

var (
	// ErrInvalidJoin is returned when the room id or username is missing.
	ErrInvalidJoin = errors.New("session: room id and username are required")

	// ErrAlreadyJoined is returned by Join while connecting or joined.
	ErrAlreadyJoined = errors.New("session: already joined")

	// ErrNotJoined is returned by room operations outside the joined state.
	ErrNotJoined = errors.New("session: not joined")

	// ErrTransport wraps channel failures. It is fatal for the session.
	ErrTransport = errors.New("session: transport failure")
)

type joinRequest struct {
	RoomID   string `validate:"required,max=128"`
	Username string `validate:"required,max=64"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Session is one user's membership in one room at a time. While joined it
// is the exclusive owner of the Manager's channel.
//
// Inbound events, timer callbacks and user actions arrive on different
// goroutines; every state change happens under mu, so they apply one at a
// time. Log and presence observers run inside that serialized section. They
// may read the session through its accessors, which only take viewMu, but
// must not call Join, Leave, Send or NotifyTyping.
type Session struct {
	mgr     *transport.Manager
	sched   presence.Scheduler
	window  time.Duration
	limiter ratelimit.Limiter
	now     func() time.Time
	onFatal func(error)
	onJoin  func(JoinedRoom)

	mu     sync.Mutex
	gen    uint64              // bumped on every join and teardown; stale handlers compare against it
	sent   map[string]struct{} // ids of messages this join sent
	unsubs []func()
	stop   chan struct{}

	// Written with both mu and viewMu held, read under either.
	viewMu   sync.RWMutex
	state    State
	roomID   string
	username string
	log      *chat.Log
	typing   *presence.Tracker
}

// JoinedRoom is what a join hook receives: the room, the local user and the
// fresh log and tracker of the join, before any inbound event can reach them.
type JoinedRoom struct {
	RoomID   string
	Username string
	Log      *chat.Log
	Typing   *presence.Tracker
}

// New creates an idle Session on top of mgr.
func New(mgr *transport.Manager, opts ...Option) *Session {
	s := &Session{
		mgr:    mgr,
		sched:  presence.SystemScheduler{},
		window: presence.DefaultDecayWindow,
		now:    time.Now,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = chat.NewLog()
	s.typing = presence.NewTracker("", s.sched, s.window)
	return s
}

// Join enters roomID as username. It acquires the shared channel, subscribes
// to inbound messages and typing events, and announces membership with
// join_room. Each join starts with an empty log; history is not fetched.
// While another Session owns the channel Join fails with
// transport.ErrChannelBusy and leaves this session unchanged.
func (s *Session) Join(ctx context.Context, roomID, username string) error {
	req := joinRequest{
		RoomID:   strings.TrimSpace(roomID),
		Username: strings.TrimSpace(username),
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJoin, err)
	}

	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateJoined {
		s.mu.Unlock()
		return ErrAlreadyJoined
	}
	if err := s.mgr.Acquire(s); err != nil {
		s.mu.Unlock()
		return err
	}
	s.gen++
	gen := s.gen
	room := JoinedRoom{
		RoomID:   req.RoomID,
		Username: req.Username,
		Log:      chat.NewLog(),
		Typing:   presence.NewTracker(req.Username, s.sched, s.window),
	}
	s.viewMu.Lock()
	s.state = StateConnecting
	s.roomID = room.RoomID
	s.username = room.Username
	s.log = room.Log
	s.typing = room.Typing
	s.viewMu.Unlock()
	s.sent = make(map[string]struct{})
	s.mu.Unlock()

	if s.onJoin != nil {
		s.onJoin(room)
	}

	ch, err := s.mgr.Connect(ctx)
	if err != nil {
		s.abortJoin(gen)
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	// Subscribe before announcing so nothing the relay sends right after
	// join_room is missed.
	unsubs := []func(){
		ch.Subscribe(protocol.TypeReceiveMessage, func(raw json.RawMessage) { s.onMessage(gen, raw) }),
		ch.Subscribe(protocol.TypeUserTyping, func(raw json.RawMessage) { s.onTyping(gen, raw) }),
	}

	s.mu.Lock()
	if s.gen != gen {
		// Left while connecting.
		s.mu.Unlock()
		unsubscribeAll(unsubs)
		return ErrNotJoined
	}
	if err := ch.Emit(protocol.TypeJoinRoom, protocol.JoinRoomEvent{RoomID: req.RoomID}); err != nil {
		s.mu.Unlock()
		unsubscribeAll(unsubs)
		s.abortJoin(gen)
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	s.setStateLocked(StateJoined)
	s.unsubs = unsubs
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	metrics.SessionsJoined.Inc()
	log.Printf("[session] user=%s joined room=%s", req.Username, req.RoomID)

	go s.watch(gen, ch, stop)
	return nil
}

// Leave deregisters the session's handlers and cancels the typing decay
// timer. Once Leave returns no inbound event can change the session. The
// shared channel stays open for a later Join. Safe to call multiple times.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle || s.state == StateClosed {
		return
	}
	wasJoined := s.teardownLocked()
	if wasJoined {
		log.Printf("[session] user=%s left room=%s", s.username, s.roomID)
	}
}

// Send validates body, emits it as send_message and appends it to the log
// without waiting for the relay. Whitespace-only bodies are rejected before
// anything is emitted or logged.
func (s *Session) Send(body string) (chat.Message, error) {
	if err := chat.ValidateMessage(body); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return chat.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateJoined {
		return chat.Message{}, ErrNotJoined
	}

	msg := chat.NewMessage(s.roomID, s.username, body, s.now())
	if err := s.mgr.Emit(protocol.TypeSendMessage, msg.Event()); err != nil {
		return chat.Message{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	s.sent[msg.ID] = struct{}{}
	s.log.Append(msg)
	s.typing.OnSend()
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	return msg, nil
}

// NotifyTyping emits a typing event for the local user. With a limiter
// configured, notifications over the limit are skipped silently.
func (s *Session) NotifyTyping(ctx context.Context) error {
	s.mu.Lock()
	state, roomID, username := s.state, s.roomID, s.username
	s.mu.Unlock()

	if state != StateJoined {
		return ErrNotJoined
	}
	if s.limiter != nil {
		// Limiter errors fail open.
		if ok, _ := s.limiter.Allow(ctx, roomID+":"+username); !ok {
			metrics.TypingEventsTotal.WithLabelValues("throttled").Inc()
			return nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateJoined || s.roomID != roomID {
		return ErrNotJoined
	}
	if err := s.mgr.Emit(protocol.TypeTyping, protocol.TypingEvent{Username: username, RoomID: roomID}); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	metrics.TypingEventsTotal.WithLabelValues("out").Inc()
	return nil
}

// State returns the current connection state.
func (s *Session) State() State {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.state
}

// RoomID returns the room of the current or last join.
func (s *Session) RoomID() string {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.roomID
}

// Username returns the username of the current or last join.
func (s *Session) Username() string {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.username
}

// Log returns the message log of the current or last join.
func (s *Session) Log() *chat.Log {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.log
}

// Typing returns the typing presence tracker of the current or last join.
func (s *Session) Typing() *presence.Tracker {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.typing
}

// onMessage handles receive_message. Messages for other rooms and echoes of
// this session's own messages are dropped; the local copy is authoritative.
func (s *Session) onMessage(gen uint64, raw json.RawMessage) {
	ev, err := protocol.DecodeMessage(raw)
	if err != nil {
		log.Printf("[session] %v", err)
		metrics.InboundDropped.WithLabelValues("malformed").Inc()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.state != StateJoined {
		metrics.InboundDropped.WithLabelValues("stale").Inc()
		return
	}
	if ev.Room != "" && ev.Room != s.roomID {
		metrics.InboundDropped.WithLabelValues("other_room").Inc()
		return
	}
	if _, own := s.sent[ev.ID]; own {
		metrics.MessagesTotal.WithLabelValues("echo").Inc()
		return
	}

	msg := chat.FromEvent(ev)
	s.log.Append(msg)
	s.typing.OnMessageFrom(msg.Author)
	metrics.MessagesTotal.WithLabelValues("received").Inc()
}

// onTyping handles user_typing.
func (s *Session) onTyping(gen uint64, raw json.RawMessage) {
	ev, err := protocol.DecodeUserTyping(raw)
	if err != nil {
		log.Printf("[session] %v", err)
		metrics.InboundDropped.WithLabelValues("malformed").Inc()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.state != StateJoined {
		metrics.InboundDropped.WithLabelValues("stale").Inc()
		return
	}
	if s.typing.OnTypingEvent(ev.Sender) {
		metrics.TypingEventsTotal.WithLabelValues("in").Inc()
	} else {
		metrics.TypingEventsTotal.WithLabelValues("ignored").Inc()
	}
}

// watch ends the session when the channel it joined on dies.
func (s *Session) watch(gen uint64, ch transport.Channel, stop <-chan struct{}) {
	select {
	case <-stop:
		return
	case <-ch.Done():
	}

	cause := ch.Err()
	if cause == nil {
		cause = transport.ErrChannelClosed
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	roomID, onFatal := s.roomID, s.onFatal
	s.mu.Unlock()

	err := fmt.Errorf("%w: %w", ErrTransport, cause)
	log.Printf("[session] room=%s ended: %v", roomID, err)
	if onFatal != nil {
		onFatal(err)
	}
}

// abortJoin returns a failed join to the closed state unless a Leave already
// superseded it.
func (s *Session) abortJoin(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.setStateLocked(StateClosed)
		s.gen++
		s.mgr.Release(s)
	}
}

// teardownLocked moves the session to closed, deregisters its handlers,
// cancels its timers and gives up the channel. It reports whether the
// session had been joined.
func (s *Session) teardownLocked() bool {
	wasJoined := s.state == StateJoined
	s.setStateLocked(StateClosed)
	s.gen++
	s.mgr.Release(s)

	unsubscribeAll(s.unsubs)
	s.unsubs = nil
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.typing.OnLeave()

	if wasJoined {
		metrics.SessionsJoined.Dec()
	}
	return wasJoined
}

func (s *Session) setStateLocked(state State) {
	s.viewMu.Lock()
	s.state = state
	s.viewMu.Unlock()
}

func unsubscribeAll(unsubs []func()) {
	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
}
