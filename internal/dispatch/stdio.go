package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/Cyclone1070/gatekeep/internal/audit"
	"github.com/Cyclone1070/gatekeep/internal/gateerr"
	"github.com/google/uuid"
)

// maxRequestBytes bounds a single request line.
const maxRequestBytes = 16 * 1024 * 1024

// Serve reads newline-delimited JSON requests from r and writes one JSON
// response line per request to w. Requests run concurrently, so responses
// are written in completion order and must be matched by requestId. Serve
// returns once r is exhausted and every request has been answered.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	var (
		mu  sync.Mutex
		enc = json.NewEncoder(w)
		wg  sync.WaitGroup
	)
	write := func(resp OperationResponse) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(resp); err != nil {
			d.logger.Error().Err(err).Str("requestId", resp.RequestID).Msg("failed to write response")
		}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var req OperationRequest
		if err := json.Unmarshal(line, &req); err != nil {
			bad := OperationRequest{Kind: "invalidRequest", RequestID: uuid.NewString()}
			err := gateerr.Wrap(gateerr.KindInvalidParams, "malformed request: "+err.Error(), err)
			d.record(audit.WithRequest(ctx, bad.RequestID, ""), bad, err)
			write(d.fail(d.logger, OperationResponse{RequestID: bad.RequestID, Kind: bad.Kind}, err))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			write(d.Handle(ctx, req))
		}()
	}

	wg.Wait()
	return sc.Err()
}
