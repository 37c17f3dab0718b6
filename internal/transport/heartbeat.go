package transport

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gobwas/ws"
)

// ErrHeartbeatTimeout is the cause reported when the relay went silent.
var ErrHeartbeatTimeout = errors.New("transport: heartbeat timeout")

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping (default: 30s)
	Timeout  time.Duration // max time to wait for activity after ping (default: 10s)
}

// DefaultHeartbeatConfig returns sensible defaults for heartbeat monitoring.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// heartbeat periodically sends WebSocket ping frames to the relay and shuts
// the channel down once nothing (pong or data) has been read within
// Interval + Timeout. It exits when the channel is done.
func (c *wsChannel) heartbeat(config HeartbeatConfig) {
	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	deadline := config.Interval + config.Timeout
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			silent := now.Sub(time.Unix(0, c.lastRead.Load()))
			if silent > deadline {
				log.Printf("[ws] heartbeat timeout last_activity=%s ago", silent.Round(time.Second))
				c.shutdown(ErrHeartbeatTimeout)
				c.conn.Close()
				return
			}

			// Protocol-level ping (opcode 0x9); the relay answers with a pong
			// that refreshes lastRead in the read loop.
			if err := c.write(ws.OpPing, nil); err != nil {
				c.shutdown(fmt.Errorf("transport: heartbeat ping: %w", err))
				c.conn.Close()
				return
			}
		}
	}
}
