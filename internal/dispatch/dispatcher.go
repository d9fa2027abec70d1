// Package dispatch routes operation requests to the engines under a global
// admission limit and converts their errors into caller-facing responses.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"

	"github.com/Cyclone1070/gatekeep/internal/audit"
	"github.com/Cyclone1070/gatekeep/internal/config"
	"github.com/Cyclone1070/gatekeep/internal/gateerr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type recorder interface {
	Record(rec audit.Record)
}

// Dispatcher owns the handler registry. Engines audit their own side
// effects; the dispatcher records only outcomes no engine saw: unknown
// kinds, rejected admission, undecodable payloads and panics.
type Dispatcher struct {
	handlers  map[string]Handler
	order     []string
	admission *admission
	audit     recorder
	logger    zerolog.Logger
}

// New creates a Dispatcher with no handlers.
func New(rec recorder, cfg config.ServerConfig, logger zerolog.Logger) *Dispatcher {
	if rec == nil {
		panic("recorder is required")
	}
	if cfg.MaxConcurrentRequests < 1 {
		panic("MaxConcurrentRequests must be positive")
	}
	return &Dispatcher{
		handlers:  make(map[string]Handler),
		admission: newAdmission(cfg.MaxConcurrentRequests, cfg.MaxQueueDepth),
		audit:     rec,
		logger:    logger.With().Str("component", "dispatch").Logger(),
	}
}

// Register adds handlers. Registering a kind twice panics.
func (d *Dispatcher) Register(handlers ...Handler) {
	for _, h := range handlers {
		if _, dup := d.handlers[h.Kind()]; dup {
			panic(fmt.Sprintf("handler for %q already registered", h.Kind()))
		}
		d.handlers[h.Kind()] = h
		d.order = append(d.order, h.Kind())
	}
}

// Tools lists the registered kinds in registration order.
func (d *Dispatcher) Tools() []Tool {
	tools := make([]Tool, 0, len(d.order))
	for _, kind := range d.order {
		tools = append(tools, Tool{Kind: kind, Description: d.handlers[kind].Description()})
	}
	return tools
}

// Stats returns the number of admitted and queued requests.
func (d *Dispatcher) Stats() (active, queued int) {
	return d.admission.active(), d.admission.queued()
}

// Handle runs one request to completion. It never panics and always
// returns a response carrying the request ID.
func (d *Dispatcher) Handle(ctx context.Context, req OperationRequest) (resp OperationResponse) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	resp = OperationResponse{RequestID: req.RequestID, Kind: req.Kind}
	ctx = audit.WithRequest(ctx, req.RequestID, req.Actor)
	logger := d.logger.With().Str("requestId", req.RequestID).Str("kind", req.Kind).Logger()

	h, ok := d.handlers[req.Kind]
	if !ok {
		err := gateerr.Newf(gateerr.KindInvalidParams, "unknown operation kind %q", req.Kind)
		d.record(ctx, req, err)
		return d.fail(logger, resp, err)
	}

	if err := d.admission.acquire(ctx); err != nil {
		logger.Warn().Err(err).Msg("request not admitted")
		d.record(ctx, req, err)
		return d.fail(logger, resp, err)
	}
	defer d.admission.release()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("handler panicked")
			err := gateerr.Panic(r)
			if !audit.Recorded(ctx) {
				d.record(ctx, req, err)
			}
			resp = d.fail(logger, OperationResponse{RequestID: req.RequestID, Kind: req.Kind}, err)
		}
	}()

	result, err := h.Handle(ctx, input(req))
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		d.record(ctx, req, err)
	}

	resp.Result = result
	if err != nil {
		return d.fail(logger, resp, err)
	}
	resp.OK = true
	logger.Debug().Msg("request completed")
	return resp
}

func (d *Dispatcher) fail(logger zerolog.Logger, resp OperationResponse, err error) OperationResponse {
	kind := gateerr.KindOf(err)
	if kind == gateerr.KindInternal {
		logger.Error().Err(err).Msg("request failed")
	} else {
		logger.Debug().Err(err).Str("errorKind", string(kind)).Msg("request rejected")
	}
	resp.OK = false
	resp.Error = &ErrorBody{Kind: kind, Message: gateerr.Public(err)}
	var ge *gateerr.Error
	if errors.As(err, &ge) && len(ge.Details) > 0 {
		resp.Error.Details = maps.Clone(ge.Details)
	}
	return resp
}

func (d *Dispatcher) record(ctx context.Context, req OperationRequest, err error) {
	d.audit.Record(audit.Stamp(ctx, audit.Record{
		Kind:    req.Kind,
		Params:  summarize(req),
		Outcome: audit.OutcomeFor(err),
		Error:   audit.ErrorText(err),
	}))
}

// input folds Paths and Options into a copy of the payload. Payload keys
// win over options; a single entry in Paths becomes "path".
func input(req OperationRequest) map[string]any {
	in := make(map[string]any, len(req.Payload)+len(req.Options)+1)
	maps.Copy(in, req.Options)
	maps.Copy(in, req.Payload)
	if _, ok := in["path"]; !ok && len(req.Paths) == 1 {
		in["path"] = req.Paths[0]
	}
	return in
}

func summarize(req OperationRequest) map[string]string {
	params := make(map[string]string)
	if p, ok := req.Payload["path"].(string); ok {
		params["path"] = p
	} else if len(req.Paths) > 0 {
		params["path"] = req.Paths[0]
	}
	if c, ok := req.Payload["command"].(string); ok {
		params["command"] = c
	}
	return params
}
