package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/whisper/roomchat/internal/metrics"
	"github.com/whisper/roomchat/internal/protocol"
)

// WSConfig holds tunable parameters for the WebSocket channel.
type WSConfig struct {
	URL          string          // relay endpoint, e.g. "ws://localhost:3001/ws"
	DialTimeout  time.Duration   // TCP connect + handshake timeout
	WriteTimeout time.Duration   // per-frame write deadline
	Heartbeat    HeartbeatConfig // zero Interval disables pings
}

// DefaultWSConfig returns a WSConfig with sensible defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		URL:          "ws://localhost:3001/ws",
		DialTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Heartbeat:    DefaultHeartbeatConfig(),
	}
}

// WSDialer opens WebSocket channels to the relay.
type WSDialer struct {
	Config WSConfig
}

// NewWSDialer creates a WSDialer with the given configuration.
func NewWSDialer(config WSConfig) *WSDialer {
	return &WSDialer{Config: config}
}

// Dial connects to the relay and starts the read loop (and the heartbeat,
// when enabled).
func (d *WSDialer) Dial(ctx context.Context) (Channel, error) {
	start := time.Now()
	dialer := ws.Dialer{Timeout: d.Config.DialTimeout}
	conn, br, _, err := dialer.Dial(ctx, d.Config.URL)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", d.Config.URL, err)
	}
	metrics.ConnectLatency.Observe(time.Since(start).Seconds())

	var src io.Reader = conn
	if br != nil {
		// The handshake reader may already hold frames sent right after
		// the upgrade response.
		src = br
	}

	c := newWSChannel(conn, src, d.Config.WriteTimeout)
	log.Printf("[ws] connected to %s in %s", d.Config.URL, time.Since(start).Round(time.Millisecond))

	go c.readLoop()
	if d.Config.Heartbeat.Interval > 0 {
		go c.heartbeat(d.Config.Heartbeat)
	}
	return c, nil
}

// wsChannel is a Channel over a client-side WebSocket connection. Outbound
// frames are serialized by writeMu; inbound frames are read by a single
// goroutine, so handlers observe the relay's order.
type wsChannel struct {
	*lifecycle

	conn         net.Conn
	src          io.Reader
	writeTimeout time.Duration
	writeMu      sync.Mutex
	lastRead     atomic.Int64 // unix nanos of the last frame received
}

func newWSChannel(conn net.Conn, src io.Reader, writeTimeout time.Duration) *wsChannel {
	c := &wsChannel{
		lifecycle:    newLifecycle("ws"),
		conn:         conn,
		src:          src,
		writeTimeout: writeTimeout,
	}
	c.lastRead.Store(time.Now().UnixNano())
	return c
}

// Emit implements Channel.
func (c *wsChannel) Emit(event string, payload interface{}) error {
	if c.closed() {
		return closedError(c.Err())
	}
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	if err := c.write(ws.OpText, data); err != nil {
		c.shutdown(fmt.Errorf("transport: write %s: %w", event, err))
		c.conn.Close()
		return closedError(err)
	}
	return nil
}

// Close implements Channel. It sends a normal-closure frame on a best-effort
// basis and closes the connection.
func (c *wsChannel) Close() error {
	if !c.shutdown(nil) {
		return nil
	}
	_ = c.write(ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	return c.conn.Close()
}

// write sends one masked client frame under the write mutex.
func (c *wsChannel) write(op ws.OpCode, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return wsutil.WriteClientMessage(c.conn, op, data)
}

// writeRaw writes pre-encoded frame bytes under the write mutex.
func (c *wsChannel) writeRaw(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.conn.Write(p)
	return err
}

// handleControl answers ping and close frames. The response is rendered into
// a buffer first so it goes out as one write under the write mutex and can
// never interleave with an application frame.
func (c *wsChannel) handleControl(hdr ws.Header, r io.Reader) error {
	var buf bytes.Buffer
	h := wsutil.ControlHandler{
		Src:   r,
		Dst:   &buf,
		State: ws.StateClientSide,
	}
	err := h.Handle(hdr)
	if buf.Len() > 0 {
		if werr := c.writeRaw(buf.Bytes()); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

// readLoop reads frames until the connection fails or is closed, dispatching
// every complete text message to the registry.
func (c *wsChannel) readLoop() {
	rd := wsutil.Reader{
		Source:         c.src,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: c.handleControl,
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			c.readFailed(err)
			return
		}
		c.lastRead.Store(time.Now().UnixNano())

		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, &rd); err != nil {
				c.readFailed(err)
				return
			}
			continue
		}
		if hdr.OpCode&ws.OpText == 0 {
			if err := rd.Discard(); err != nil {
				c.readFailed(err)
				return
			}
			continue
		}

		data, err := io.ReadAll(&rd)
		if err != nil {
			c.readFailed(err)
			return
		}
		if c.closed() {
			return
		}
		c.registry.Dispatch(data)
	}
}

// readFailed shuts the channel down after a read error. A read error caused
// by a local Close is not a transport failure.
func (c *wsChannel) readFailed(err error) {
	if c.closed() {
		return
	}
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		err = fmt.Errorf("transport: relay closed connection: code=%d reason=%q", closed.Code, closed.Reason)
	} else {
		err = fmt.Errorf("transport: read: %w", err)
	}
	c.shutdown(err)
	c.conn.Close()
}
