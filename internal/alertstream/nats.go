package alertstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dashsync/internal/domain"

	"github.com/nats-io/nats.go"
)

const streamMaxAge = 24 * time.Hour

// Config carries fired-alert stream settings.
// Params: connection URL and stream/subject names.
// Returns: publisher configuration from the events config section.
type Config struct {
	URL     string
	Stream  string
	Subject string
}

// NATSPublisher publishes fired alerts into one JetStream stream.
// Params: NATS connection and publish subject.
// Returns: publisher implementation backed by JetStream.
type NATSPublisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// NewNATSPublisher connects and ensures the fired-alert stream exists.
// Params: stream config.
// Returns: initialized publisher or setup error.
func NewNATSPublisher(cfg Config) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect alert stream nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for alert stream: %w", err)
	}
	if err := ensureStream(js, cfg.Stream, cfg.Subject); err != nil {
		nc.Close()
		return nil, err
	}
	return &NATSPublisher{nc: nc, js: js, subject: cfg.Subject}, nil
}

// Publish emits one fired alert as a JSON message.
// Params: context and fired alert.
// Returns: publish error.
func (p *NATSPublisher) Publish(ctx context.Context, fired domain.FiredAlert) error {
	body, err := json.Marshal(fired)
	if err != nil {
		return fmt.Errorf("marshal fired alert: %w", err)
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = body
	msg.Header.Set("Nats-Msg-Id", MessageID(fired))
	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish fired alert: %w", err)
	}
	return nil
}

// MessageID builds the dedupe id for one fired alert.
// Params: fired alert.
// Returns: deterministic id keyed by rule and trigger instant.
func MessageID(fired domain.FiredAlert) string {
	return fmt.Sprintf("%s:%d", fired.RuleID, fired.TriggeredAt.UnixNano())
}

// Close closes the publisher connection.
// Params: none.
// Returns: nil after connection close.
func (p *NATSPublisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	p.nc.Close()
	return nil
}

// ensureStream ensures the fired-alert stream exists.
// Params: JetStream context and stream/subject names.
// Returns: stream create/lookup error.
func ensureStream(js nats.JetStreamContext, streamName, subject string) error {
	if _, err := js.StreamInfo(streamName); err == nil {
		return nil
	} else if err != nats.ErrStreamNotFound && !strings.Contains(strings.ToLower(err.Error()), "stream not found") {
		return fmt.Errorf("stream info %q: %w", streamName, err)
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    streamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", streamName, err)
	}
	return nil
}
