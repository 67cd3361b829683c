package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"studyhub-quiz-service/internal/domain"
)

// DefaultTelemetryStream is used when no stream name is configured.
const DefaultTelemetryStream = "telemetry:events"

// TelemetrySink appends analytics events to a Redis stream.
// Each entry carries: name, at (RFC3339Nano) and properties (JSON).
type TelemetrySink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewTelemetrySink(client *redis.Client, stream string, maxLen int64) *TelemetrySink {
	if stream == "" {
		stream = DefaultTelemetryStream
	}
	return &TelemetrySink{client: client, stream: stream, maxLen: maxLen}
}

func (s *TelemetrySink) Send(ctx context.Context, event domain.TelemetryEvent) error {
	props, err := json.Marshal(event.Properties)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"name":       event.Name,
			"at":         event.At.UTC().Format(time.RFC3339Nano),
			"properties": string(props),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}
