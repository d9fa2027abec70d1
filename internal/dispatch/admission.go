package dispatch

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/Cyclone1070/gatekeep/internal/gateerr"
)

// admission bounds in-flight requests. Arrivals beyond the limit take a
// ticket and are admitted in ticket order as slots free up; with
// maxQueue > 0, arrivals that would exceed the queue are turned away.
type admission struct {
	mu       sync.Mutex
	capacity int
	maxQueue int
	inFlight int
	tickets  []chan struct{}
}

func newAdmission(capacity, maxQueue int) *admission {
	return &admission{capacity: capacity, maxQueue: maxQueue}
}

func (a *admission) acquire(ctx context.Context) error {
	a.mu.Lock()
	if a.inFlight < a.capacity && len(a.tickets) == 0 {
		a.inFlight++
		a.mu.Unlock()
		return nil
	}
	if a.maxQueue > 0 && len(a.tickets) >= a.maxQueue {
		a.mu.Unlock()
		return gateerr.Newf(gateerr.KindBackpressure, "server busy: %d requests already queued", a.maxQueue)
	}
	ticket := make(chan struct{})
	a.tickets = append(a.tickets, ticket)
	a.mu.Unlock()

	select {
	case <-ticket:
		return nil
	case <-ctx.Done():
	}

	a.mu.Lock()
	i := slices.Index(a.tickets, ticket)
	if i >= 0 {
		a.tickets = slices.Delete(a.tickets, i, i+1)
	}
	a.mu.Unlock()
	if i < 0 {
		// Admitted while cancelling; pass the slot on.
		a.release()
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return gateerr.Wrap(gateerr.KindBackpressure, "request cancelled while queued", ctx.Err())
	}
	return ctx.Err()
}

// release frees a slot, handing it straight to the oldest ticket if any.
func (a *admission) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.tickets) > 0 {
		next := a.tickets[0]
		a.tickets = a.tickets[1:]
		close(next)
		return
	}
	a.inFlight--
}

func (a *admission) active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight
}

func (a *admission) queued() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tickets)
}
