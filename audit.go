package goToken

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AuditEvent describes one token operation. It never carries token text,
// key material or proof contents.
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Service   string    `json:"service,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Issuer    string    `json:"issuer,omitempty"`
	Success   bool      `json:"success"`
	// ErrorKind is the taxonomy kind of Error, e.g. "BindingFailure".
	ErrorKind string            `json:"error_kind,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events into a buffered channel. Emit blocks until
// there is room or ctx is done.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}

// LoggerSink writes events as structured log entries: successes at info,
// rejections at warn.
type LoggerSink struct {
	log zerolog.Logger
}

func NewLoggerSink(l zerolog.Logger) LoggerSink {
	return LoggerSink{log: l}
}

func (s LoggerSink) Emit(_ context.Context, event AuditEvent) {
	entry := s.log.Info()
	if !event.Success {
		entry = s.log.Warn().Str("error_kind", event.ErrorKind).Str("error", event.Error)
	}
	entry = entry.
		Time("at", event.Timestamp).
		Str("service", event.Service).
		Str("subject", event.Subject).
		Str("issuer", event.Issuer)
	if len(event.Metadata) > 0 {
		dict := zerolog.Dict()
		for k, v := range event.Metadata {
			dict = dict.Str(k, v)
		}
		entry = entry.Dict("metadata", dict)
	}
	entry.Msg(event.EventType)
}

// RedisStreamSink appends each event as a JSON "event" field to a Redis
// stream, trimmed to roughly MaxLen entries.
type RedisStreamSink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	onErr  func(error)
}

// DefaultAuditStream is the stream key used when none is given.
const DefaultAuditStream = "gt:audit"

// NewRedisStreamSink returns a sink writing to stream. maxLen <= 0 disables
// trimming. Write errors are passed to onErr when it is non-nil.
func NewRedisStreamSink(client redis.UniversalClient, stream string, maxLen int64, onErr func(error)) *RedisStreamSink {
	if stream == "" {
		stream = DefaultAuditStream
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen, onErr: onErr}
}

func (s *RedisStreamSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.client == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.fail(err)
		return
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{"type": event.EventType, "event": string(data)},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		s.fail(err)
	}
}

func (s *RedisStreamSink) fail(err error) {
	if s.onErr != nil {
		s.onErr(err)
	}
}
