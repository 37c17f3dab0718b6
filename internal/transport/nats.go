package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/whisper/roomchat/internal/metrics"
	"github.com/whisper/roomchat/internal/protocol"
)

// NATS subject patterns for relays reached over a NATS bus. The relay
// consumes relay.in.> and publishes each client's events on its own
// relay.out.<client_id> subject.
const (
	SubjectInbound  = "relay.in"  // + .<client_id> (client -> relay)
	SubjectOutbound = "relay.out" // + .<client_id> (relay -> client)
)

// ErrConnectionLost is the cause reported when NATS closed the connection
// without a more specific error.
var ErrConnectionLost = errors.New("transport: nats connection lost")

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL            string        // nats://localhost:4222
	Name           string        // client name for identification
	ClientID       string        // routing identity; generated when empty
	ConnectTimeout time.Duration // initial connect timeout
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            "nats://localhost:4222",
		Name:           "roomchat",
		ConnectTimeout: 5 * time.Second,
	}
}

// NATSDialer opens channels over a NATS connection.
type NATSDialer struct {
	Config NATSConfig
}

// NewNATSDialer creates a NATSDialer with the given configuration.
func NewNATSDialer(config NATSConfig) *NATSDialer {
	return &NATSDialer{Config: config}
}

// Dial connects to NATS and subscribes to the client's outbound subject.
// Reconnects are disabled: a lost connection ends the channel.
func (d *NATSDialer) Dial(ctx context.Context) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("transport: nats dial: %w", err)
	}

	clientID := d.Config.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	c := &natsChannel{
		lifecycle: newLifecycle("nats"),
		clientID:  clientID,
	}

	start := time.Now()
	opts := []nats.Option{
		nats.Name(d.Config.Name),
		nats.Timeout(d.Config.ConnectTimeout),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
			c.setCause(err)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.shutdown(c.lostCause())
		}),
	}

	nc, err := nats.Connect(d.Config.URL, opts...)
	if err != nil {
		c.shutdown(nil)
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	c.conn = nc

	subject := SubjectOutbound + "." + clientID
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		if c.closed() {
			return
		}
		c.registry.Dispatch(msg.Data)
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	c.sub = sub

	metrics.ConnectLatency.Observe(time.Since(start).Seconds())
	log.Printf("[nats] connected to %s client_id=%s", nc.ConnectedUrl(), clientID)
	return c, nil
}

// natsChannel is a Channel over a NATS connection. A single subscription
// delivers inbound events in publish order.
type natsChannel struct {
	*lifecycle

	clientID string
	conn     *nats.Conn
	sub      *nats.Subscription

	causeMu sync.Mutex
	cause   error
}

// ClientID returns the routing identity used on the relay subjects.
func (c *natsChannel) ClientID() string {
	return c.clientID
}

// Emit implements Channel.
func (c *natsChannel) Emit(event string, payload interface{}) error {
	if c.closed() {
		return closedError(c.Err())
	}
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	if err := c.conn.Publish(SubjectInbound+"."+c.clientID, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", event, err)
	}
	return nil
}

// Close implements Channel. It unsubscribes and closes the NATS connection.
func (c *natsChannel) Close() error {
	if !c.shutdown(nil) {
		return nil
	}
	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			log.Printf("[nats] unsubscribe %s: %v", c.sub.Subject, err)
		}
	}
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

func (c *natsChannel) setCause(err error) {
	if err == nil {
		return
	}
	c.causeMu.Lock()
	if c.cause == nil {
		c.cause = err
	}
	c.causeMu.Unlock()
}

func (c *natsChannel) lostCause() error {
	c.causeMu.Lock()
	defer c.causeMu.Unlock()
	if c.cause != nil {
		return c.cause
	}
	return ErrConnectionLost
}
