package goToken

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/goToken/token"
)

func TestAuditRejectedEventCarriesErrorKind(t *testing.T) {
	sink := NewChannelSink(4)
	e := buildTestEngine(t, auditConfig(), func(b *Builder) { b.WithAuditSink(sink) })

	if _, err := e.Verify(context.Background(), "not-a-token", token.VerifyOptions{}); err == nil {
		t.Fatal("expected verify failure")
	}
	ev := collect(t, sink, 1)[0]
	if ev.Success || ev.ErrorKind != string(token.KindMalformed) {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestLoggerSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLoggerSink(zerolog.New(&buf))
	sink.Emit(context.Background(), AuditEvent{
		EventType: auditEventBindingRejected,
		Service:   ServiceDPoP,
		ErrorKind: string(token.KindBinding),
		Error:     token.ErrBindingMismatch.Error(),
		Metadata:  map[string]string{"ip": "203.0.113.7"},
	})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["level"] != "warn" || line["message"] != auditEventBindingRejected {
		t.Fatalf("unexpected log line %v", line)
	}
	if line["error_kind"] != "BindingFailure" || line["service"] != ServiceDPoP {
		t.Fatalf("unexpected fields %v", line)
	}
	meta, _ := line["metadata"].(map[string]any)
	if meta["ip"] != "203.0.113.7" {
		t.Fatalf("expected metadata, got %v", line["metadata"])
	}

	buf.Reset()
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventTokenVerified, Success: true})
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["level"] != "info" {
		t.Fatalf("expected info level, got %v", line["level"])
	}
}

func TestRedisStreamSink(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	sink := NewRedisStreamSink(rdb, "", 100, nil)
	sink.Emit(ctx, AuditEvent{EventType: auditEventTokenMinted, Service: ServiceJWT, Subject: "alice", Success: true})
	sink.Emit(ctx, AuditEvent{EventType: auditEventReplayDetected, Service: ServiceDPoP, ErrorKind: string(token.KindReplay)})

	msgs, err := rdb.XRange(ctx, DefaultAuditStream, "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 stream entries, got %d", len(msgs))
	}
	if msgs[1].Values["type"] != auditEventReplayDetected {
		t.Fatalf("unexpected entry %v", msgs[1].Values)
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(msgs[0].Values["event"].(string)), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Subject != "alice" || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestRedisStreamSinkReportsErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	var got error
	sink := NewRedisStreamSink(rdb, "audit", 0, func(err error) { got = err })
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventTokenMinted})
	if got == nil {
		t.Fatal("expected write error to be reported")
	}
}
