package iap

import (
	"context"
	"sync"

	"github.com/xraph/iap/billing"
	"github.com/xraph/iap/id"
)

// flowTable tracks the purchase flow open on each host. A flow is opened
// when a purchase is launched and closed when its result arrives or the
// host goes away. It only feeds diagnostics.
type flowTable struct {
	mu     sync.Mutex
	byHost map[string]id.FlowID
}

func newFlowTable() *flowTable {
	return &flowTable{byHost: make(map[string]id.FlowID)}
}

// open starts a new flow on hostID, replacing any previous one.
func (t *flowTable) open(hostID string) id.FlowID {
	flow := id.NewFlowID()

	t.mu.Lock()
	t.byHost[hostID] = flow
	t.mu.Unlock()

	return flow
}

// close ends flow on hostID. It reports false when the flow was already
// closed or replaced.
func (t *flowTable) close(hostID string, flow id.FlowID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.byHost[hostID]; !ok || cur.String() != flow.String() {
		return false
	}
	delete(t.byHost, hostID)
	return true
}

// abandon ends whatever flow is open on hostID.
func (t *flowTable) abandon(hostID string) (id.FlowID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	flow, ok := t.byHost[hostID]
	if ok {
		delete(t.byHost, hostID)
	}
	return flow, ok
}

func (t *flowTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byHost)
}

// PendingFlows returns the number of purchase flows still waiting for a
// backend response.
func (o *Orchestrator) PendingFlows() int {
	return o.flows.count()
}

// HostDestroyed tells the orchestrator that host went away. A flow still
// waiting for the backend is reported as an unexpected error. The backend
// call itself is not aborted.
func (o *Orchestrator) HostDestroyed(ctx context.Context, host billing.Host) {
	flow, ok := o.flows.abandon(host.ID())
	if !ok {
		return
	}
	o.unexpected(ctx, ErrHostDestroyed.Error(),
		"host", host.ID(),
		"flow_id", flow.String(),
	)
}

// HandleHostResult routes a result the host received back to the backend,
// then finishes the host. It reports whether the backend recognized the
// result.
func (o *Orchestrator) HandleHostResult(ctx context.Context, host billing.Host, requestCode, resultCode int, data map[string]string) bool {
	defer host.Finish()

	if o.backend == nil {
		o.unexpected(ctx, ErrNoBackend.Error())
		return false
	}
	if o.backend.HandleExternalResult(requestCode, resultCode, data) {
		return true
	}
	if !o.backend.IsInitialized() {
		o.unexpected(ctx, ErrBackendNotStarted.Error(),
			"host", host.ID(),
			"request_code", requestCode,
		)
	}
	return false
}
