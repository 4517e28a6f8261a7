package logging

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Audit records security-relevant events (authentication outcomes, token
// revocations, integrity mismatches, deletions) on a channel separate from
// ordinary diagnostic logs. Events are append-only: there is no API to
// filter, rewrite or suppress them once emitted.
type Audit struct {
	l *slog.Logger
}

// NewAudit returns an Audit writing JSON events to w. Every event carries
// channel=audit so downstream collectors can split the stream.
func NewAudit(w io.Writer) *Audit {
	h := slog.NewJSONHandler(w, nil)
	return &Audit{l: slog.New(h).With("channel", "audit")}
}

// Event emits a single audit record. The event name should be a stable
// upper-snake identifier ("AUTH_SUCCESS", "TOKEN_REVOKED", ...), args are
// key/value pairs.
func (a *Audit) Event(ctx context.Context, event string, args ...any) {
	kv := make([]any, 0, len(args)+2)
	kv = append(kv, "at", time.Now().UTC().Format(time.RFC3339))
	kv = append(kv, args...)
	a.l.InfoContext(ctx, event, kv...)
}
