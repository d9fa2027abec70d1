package audit

import (
	"context"
	"sync/atomic"
)

type requestKey struct{}

type requestMeta struct {
	id       string
	actor    string
	recorded atomic.Bool
}

// WithRequest attaches the request ID and actor that engines stamp on records.
func WithRequest(ctx context.Context, requestID, actor string) context.Context {
	return context.WithValue(ctx, requestKey{}, &requestMeta{id: requestID, actor: actor})
}

// Stamp fills rec's RequestID and Actor from ctx and marks the request as
// recorded.
func Stamp(ctx context.Context, rec Record) Record {
	if meta, ok := ctx.Value(requestKey{}).(*requestMeta); ok {
		if rec.RequestID == "" {
			rec.RequestID = meta.id
		}
		if rec.Actor == "" {
			rec.Actor = meta.actor
		}
		meta.recorded.Store(true)
	}
	return rec
}

// Recorded reports whether a record has been stamped for the request in ctx.
func Recorded(ctx context.Context) bool {
	meta, ok := ctx.Value(requestKey{}).(*requestMeta)
	return ok && meta.recorded.Load()
}
