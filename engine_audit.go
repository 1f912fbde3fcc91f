package goToken

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/token"
)

const (
	auditEventTokenMinted     = "token_minted"
	auditEventTokenMintFailed = "token_mint_failed"
	auditEventTokenVerified   = "token_verified"
	auditEventTokenRejected   = "token_rejected"
	auditEventReplayDetected  = "replay_detected"
	auditEventBindingRejected = "binding_rejected"
)

// rejectionEvent picks the audit event type for a failed verification.
func rejectionEvent(err error) string {
	switch token.KindOf(err) {
	case token.KindReplay:
		if errors.Is(err, token.ErrProofReplayed) {
			return auditEventReplayDetected
		}
	case token.KindBinding:
		return auditEventBindingRejected
	}
	return auditEventTokenRejected
}

// auditErrorCode renders err without token or key contents: taxonomy errors
// as "Kind: Reason", context errors by name, anything else as internal_error.
func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var te *token.Error
	switch {
	case errors.As(err, &te):
		return te.Error()
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "internal_error"
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	svc token.Service,
	subject string,
	issuer string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["ip"] = ip
	}
	if id := requestIDFromContext(ctx); id != "" {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["request_id"] = id
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Subject:   subject,
		Issuer:    issuer,
		Success:   err == nil,
		ErrorKind: string(token.KindOf(err)),
		Error:     auditErrorCode(err),
		Metadata:  metadata,
	}
	if svc != nil {
		event.Service = svc.Kind()
	}
	e.audit.Emit(ctx, event)
}
