package sink

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NATSConfig holds configuration for the NATS publisher.
type NATSConfig struct {
	URL     string
	Subject string // batches go to Subject.<kind>
	Name    string
}

// publisher is the part of *nats.Conn the sink uses.
type publisher interface {
	PublishMsg(m *nats.Msg) error
	Drain() error
}

// NATSSink publishes each batch as one message. The batch id travels in the
// Nats-Msg-Id header so JetStream streams can deduplicate redeliveries.
type NATSSink struct {
	config NATSConfig
	conn   publisher
	log    *zap.Logger
}

func NewNATSSinkFromEnv(logger *zap.Logger) *NATSSink {
	return &NATSSink{
		config: NATSConfig{
			URL:     getEnvOr("NATS_URL", nats.DefaultURL),
			Subject: getEnvOr("NATS_SUBJECT", "passivecaptcha.batches"),
			Name:    getEnvOr("NATS_CLIENT_NAME", "passivecaptcha-relay"),
		},
		log: named(logger, "nats"),
	}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Start(ctx context.Context) error {
	nc, err := nats.Connect(s.config.URL,
		nats.Name(s.config.Name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.log.Warn("disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.log.Info("reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "connect %s", s.config.URL)
	}
	s.conn = nc
	return nil
}

func (s *NATSSink) subject(b Batch) string {
	if b.Kind == "" {
		return s.config.Subject
	}
	return s.config.Subject + "." + b.Kind
}

func (s *NATSSink) Enqueue(b Batch) error {
	if s.conn == nil {
		return errors.New("nats connection not initialized")
	}
	data, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "failed to serialize batch")
	}
	msg := nats.NewMsg(s.subject(b))
	msg.Header.Set(nats.MsgIdHdr, b.BatchID)
	msg.Header.Set("Session-Id", b.SessionID())
	msg.Data = data
	return errors.Wrap(s.conn.PublishMsg(msg), "publish")
}

func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
