// Package bus holds the NATS connection shared by the event source, the
// alert publisher and the countermeasure sink.
package bus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	DefaultURL           = "nats://127.0.0.1:4222"
	ConnectTimeout       = 10 * time.Second
	ReconnectInterval    = 2 * time.Second
	MaxReconnectAttempts = 60
)

// Publisher is the subset of *nats.Conn used to publish.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
}

// QueueSubscriber is the subset of *nats.Conn used to consume.
type QueueSubscriber interface {
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Connect dials the server with reconnect handling and connection state
// logging.
func Connect(url, name string) (*nats.Conn, error) {
	if url == "" {
		url = DefaultURL
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(ConnectTimeout),
		nats.ReconnectWait(ReconnectInterval),
		nats.MaxReconnects(MaxReconnectAttempts),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Str("url", url).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.Info().Str("url", url).Str("name", name).Msg("Connected to NATS")
	return conn, nil
}
