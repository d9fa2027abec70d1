package dispatch

import (
	"context"
	"fmt"
	"reflect"

	"github.com/Cyclone1070/gatekeep/internal/gateerr"
	"github.com/mitchellh/mapstructure"
)

// Handler serves one operation kind.
type Handler interface {
	Kind() string
	Description() string
	Handle(ctx context.Context, input map[string]any) (any, error)
}

// Operation runs a typed request.
type Operation[Req, Resp any] func(context.Context, Req) (Resp, error)

// route adapts an Operation to Handler, decoding the input map into Req.
type route[Req, Resp any] struct {
	kind        string
	description string
	run         Operation[Req, Resp]
}

// NewRoute creates a Handler for kind backed by run.
func NewRoute[Req, Resp any](kind, description string, run Operation[Req, Resp]) Handler {
	if run == nil {
		panic("run is required")
	}
	return &route[Req, Resp]{kind: kind, description: description, run: run}
}

func (r *route[Req, Resp]) Kind() string {
	return r.kind
}

func (r *route[Req, Resp]) Description() string {
	return r.description
}

// Handle decodes input and runs the operation. Decoding failures are
// returned as *DecodeError; the operation never runs in that case.
func (r *route[Req, Resp]) Handle(ctx context.Context, input map[string]any) (any, error) {
	var req Req
	if err := decode(input, &req); err != nil {
		return nil, &DecodeError{Kind: r.kind, Cause: err}
	}

	resp, err := r.run(ctx, req)
	if isNil(resp) {
		return nil, err
	}
	return resp, err
}

// DecodeError reports a payload that does not fit the operation's request.
type DecodeError struct {
	Kind  string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid payload for %s: %v", e.Kind, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

func (e *DecodeError) InvalidInput() bool {
	return true
}

func decode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
		Squash:      true,
	})
	if err != nil {
		return gateerr.Wrap(gateerr.KindInternal, "", err)
	}
	return dec.Decode(input)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
