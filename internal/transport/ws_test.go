package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"

	"github.com/whisper/roomchat/internal/protocol"
)

// fakeRelay is a single-connection WebSocket relay. Every accepted
// connection is handed to serve on its own goroutine.
func fakeRelay(t *testing.T, serve func(conn net.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		go func() {
			defer conn.Close()
			serve(conn)
		}()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testWSConfig(url string) WSConfig {
	config := DefaultWSConfig()
	config.URL = url
	config.DialTimeout = 2 * time.Second
	config.Heartbeat = HeartbeatConfig{}
	return config
}

func TestWSChannel_EmitReachesRelay(t *testing.T) {
	req := require.New(t)
	frames := make(chan []byte, 4)
	url := fakeRelay(t, func(conn net.Conn) {
		for {
			data, err := wsutil.ReadClientText(conn)
			if err != nil {
				return
			}
			frames <- data
		}
	})

	ch, err := NewWSDialer(testWSConfig(url)).Dial(context.Background())
	req.NoError(err)
	defer ch.Close()

	req.NoError(ch.Emit(protocol.TypeJoinRoom, protocol.JoinRoomEvent{RoomID: "r1"}))

	select {
	case data := <-frames:
		env, err := protocol.Decode(data)
		req.NoError(err)
		req.Equal(protocol.TypeJoinRoom, env.Type)
		req.JSONEq(`{"type":"join_room","room_id":"r1"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("relay never received join_room")
	}
}

func TestWSChannel_InboundEventsInOrder(t *testing.T) {
	req := require.New(t)
	url := fakeRelay(t, func(conn net.Conn) {
		// Wait for join_room so the client has subscribed.
		if _, err := wsutil.ReadClientText(conn); err != nil {
			return
		}
		for _, sender := range []string{"Alice", "Bob", "Carol"} {
			data, _ := protocol.Encode(protocol.TypeUserTyping, protocol.UserTypingEvent{Sender: sender})
			if err := wsutil.WriteServerText(conn, data); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		_, _ = wsutil.ReadClientText(conn)
	})

	got := make(chan string, 3)
	ch, err := NewWSDialer(testWSConfig(url)).Dial(context.Background())
	req.NoError(err)
	defer ch.Close()

	ch.Subscribe(protocol.TypeUserTyping, func(raw json.RawMessage) {
		ev, err := protocol.DecodeUserTyping(raw)
		if err == nil {
			got <- ev.Sender
		}
	})
	req.NoError(ch.Emit(protocol.TypeJoinRoom, protocol.JoinRoomEvent{RoomID: "r1"}))

	var senders []string
	for len(senders) < 3 {
		select {
		case s := <-got:
			senders = append(senders, s)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", senders)
		}
	}
	req.Equal([]string{"Alice", "Bob", "Carol"}, senders)
}

func TestWSChannel_RelayDropIsReported(t *testing.T) {
	req := require.New(t)
	url := fakeRelay(t, func(conn net.Conn) {
		// Returning closes the TCP connection without a close frame.
	})

	ch, err := NewWSDialer(testWSConfig(url)).Dial(context.Background())
	req.NoError(err)

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not notice the dropped connection")
	}
	req.Error(ch.Err())
	req.ErrorIs(ch.Emit(protocol.TypeJoinRoom, protocol.JoinRoomEvent{RoomID: "r1"}), ErrChannelClosed)
}

func TestWSChannel_LocalCloseIsNotAnError(t *testing.T) {
	req := require.New(t)
	url := fakeRelay(t, func(conn net.Conn) {
		for {
			if _, err := wsutil.ReadClientText(conn); err != nil {
				return
			}
		}
	})

	ch, err := NewWSDialer(testWSConfig(url)).Dial(context.Background())
	req.NoError(err)

	req.NoError(ch.Close())
	req.NoError(ch.Close())
	<-ch.Done()
	req.NoError(ch.Err())
}

func TestWSChannel_HeartbeatTimeout(t *testing.T) {
	req := require.New(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	url := fakeRelay(t, func(conn net.Conn) {
		// Never read, so pings are never answered.
		<-release
	})

	config := testWSConfig(url)
	config.Heartbeat = HeartbeatConfig{Interval: 20 * time.Millisecond, Timeout: 20 * time.Millisecond}
	ch, err := NewWSDialer(config).Dial(context.Background())
	req.NoError(err)

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat never timed out")
	}
	req.True(errors.Is(ch.Err(), ErrHeartbeatTimeout), "unexpected cause: %v", ch.Err())
}

func TestWSDialer_DialFailure(t *testing.T) {
	config := testWSConfig("ws://127.0.0.1:1/ws")
	config.DialTimeout = 500 * time.Millisecond

	_, err := NewWSDialer(config).Dial(context.Background())
	require.Error(t, err)
}
