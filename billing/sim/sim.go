// Package sim provides an in-process simulated marketplace implementing
// billing.Backend.
//
// The simulator keeps its own inventory of unconsumed purchases, answers
// asynchronously on fresh goroutines, and can be scripted per product to
// return cancellations, refunds, failures or duplicated callbacks. It backs
// the test suite, the iapsim CLI and local development.
package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/iap/billing"
	"github.com/xraph/iap/verify"
)

// Request and result codes understood by HandleExternalResult.
const (
	RequestCodeBase = 10001
	ResultOK        = -1
	ResultCanceled  = 0
)

// ErrNotInitialized is returned when an operation needs Initialize first.
var ErrNotInitialized = errors.New("sim: backend not initialized")

// compile-time interface check
var _ billing.Backend = (*Backend)(nil)

// Step scripts the result of one purchase attempt.
type Step struct {
	Outcome billing.Outcome
	// State applies to OutcomeSuccess.
	State billing.PurchaseState
	// Err is reported for OutcomeFailed.
	Err error
	// Duplicate delivers the result twice.
	Duplicate bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// WithDetails seeds listing metadata returned by inventory queries.
func WithDetails(details ...billing.SkuDetails) Option {
	return func(b *Backend) {
		for _, d := range details {
			b.details[d.ProductID] = d
		}
	}
}

// WithStrayDetails makes inventory queries also report listings nobody
// asked for, as misconfigured marketplaces do.
func WithStrayDetails(details ...billing.SkuDetails) Option {
	return func(b *Backend) { b.stray = append(b.stray, details...) }
}

// WithSigningSecret signs every purchase receipt with secret.
func WithSigningSecret(secret string) Option {
	return func(b *Backend) { b.secret = secret }
}

// WithSynchronous delivers every callback on the calling goroutine.
func WithSynchronous() Option {
	return func(b *Backend) { b.sync = true }
}

// WithDeferredResults holds purchase results until the host reports them
// through HandleExternalResult, like a real marketplace activity does.
func WithDeferredResults() Option {
	return func(b *Backend) { b.deferred = true }
}

type pendingFlow struct {
	productID string
	payload   string
	onResult  billing.ResultFunc
}

// Backend is a simulated marketplace.
type Backend struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	logger *slog.Logger

	sync     bool
	deferred bool
	secret   string

	initialized bool
	background  bool
	initErr     error
	queryErr    error
	launchErr   error
	consumeErr  map[string]error

	owned    map[string]billing.Purchase
	details  map[string]billing.SkuDetails
	stray    []billing.SkuDetails
	script   map[string][]Step
	consumed []billing.Purchase
	pending  map[int]pendingFlow
	nextCode int
	launches int
}

// New creates a simulated marketplace.
func New(opts ...Option) *Backend {
	b := &Backend{
		logger:     slog.Default(),
		consumeErr: make(map[string]error),
		owned:      make(map[string]billing.Purchase),
		details:    make(map[string]billing.SkuDetails),
		script:     make(map[string][]Step),
		pending:    make(map[int]pendingFlow),
		nextCode:   RequestCodeBase,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ──────────────────────────────────────────────────
// Scripting
// ──────────────────────────────────────────────────

// Script queues results for the next purchase attempts of productID.
func (b *Backend) Script(productID string, steps ...Step) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.script[productID] = append(b.script[productID], steps...)
}

// AddOwned places an unconsumed purchase in the user's inventory.
func (b *Backend) AddOwned(p billing.Purchase) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.owned[p.ProductID] = b.sign(p)
}

// SetInitError makes Initialize and StartBackground fail with err.
func (b *Backend) SetInitError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initErr = err
}

// SetQueryError makes QueryInventory fail with err.
func (b *Backend) SetQueryError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queryErr = err
}

// SetLaunchError makes LaunchPurchase return err.
func (b *Backend) SetLaunchError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.launchErr = err
}

// FailConsume makes consumption of productID fail with err.
func (b *Backend) FailConsume(productID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumeErr[productID] = err
}

// Consumed returns the purchases consumed so far.
func (b *Backend) Consumed() []billing.Purchase {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]billing.Purchase, len(b.consumed))
	copy(out, b.consumed)
	return out
}

// Owned returns the unconsumed purchases sorted by product id.
func (b *Backend) Owned() []billing.Purchase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ownedLocked()
}

// Launches returns how many purchase flows were started.
func (b *Backend) Launches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.launches
}

// PendingRequests returns the request codes of deferred flows.
func (b *Backend) PendingRequests() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int, 0, len(b.pending))
	for code := range b.pending {
		out = append(out, code)
	}
	sort.Ints(out)
	return out
}

// Wait blocks until every callback dispatched so far, and every callback
// those dispatched in turn, has returned.
func (b *Backend) Wait() {
	b.wg.Wait()
}

// ──────────────────────────────────────────────────
// billing.Backend
// ──────────────────────────────────────────────────

// Initialize implements billing.Backend.
func (b *Backend) Initialize(onReady billing.ReadyFunc, onFail billing.FailFunc) {
	b.mu.Lock()
	err := b.initErr
	already := b.background
	if err == nil {
		b.initialized = true
	}
	b.mu.Unlock()

	b.dispatch(func() {
		if err != nil {
			onFail(err)
			return
		}
		onReady(already)
	})
}

// StartBackground implements billing.Backend.
func (b *Backend) StartBackground(onReady billing.ReadyFunc, onFail billing.FailFunc) {
	b.mu.Lock()
	err := b.initErr
	already := b.background
	if err == nil {
		b.initialized = true
		b.background = true
	}
	b.mu.Unlock()

	b.dispatch(func() {
		if err != nil {
			onFail(err)
			return
		}
		onReady(already)
	})
}

// StopBackground implements billing.Backend.
func (b *Backend) StopBackground(onReady billing.ReadyFunc, _ billing.FailFunc) {
	b.mu.Lock()
	was := b.background
	b.background = false
	b.mu.Unlock()

	b.dispatch(func() { onReady(was) })
}

// QueryInventory implements billing.Backend.
func (b *Backend) QueryInventory(refreshDetails bool, productIDs []string, onSuccess billing.InventoryFunc, onFail billing.FailFunc) {
	b.mu.Lock()
	err := b.queryErr
	if err == nil && !b.initialized {
		err = ErrNotInitialized
	}
	owned := b.ownedLocked()
	var details []billing.SkuDetails
	if refreshDetails {
		for _, pid := range productIDs {
			if d, ok := b.details[pid]; ok {
				details = append(details, d)
			}
		}
		details = append(details, b.stray...)
	}
	b.mu.Unlock()

	b.dispatch(func() {
		if err != nil {
			onFail(err)
			return
		}
		onSuccess(owned, details)
	})
}

// LaunchPurchase implements billing.Backend.
func (b *Backend) LaunchPurchase(host billing.Host, productID string, onResult billing.ResultFunc, payload string) error {
	b.mu.Lock()
	if b.launchErr != nil {
		err := b.launchErr
		b.mu.Unlock()
		return err
	}
	if !b.initialized {
		b.mu.Unlock()
		return ErrNotInitialized
	}
	b.launches++

	if b.deferred {
		code := b.nextCode
		b.nextCode++
		b.pending[code] = pendingFlow{productID: productID, payload: payload, onResult: onResult}
		b.mu.Unlock()
		b.logger.Debug("sim: purchase deferred", "host", host.ID(), "product_id", productID, "request_code", code)
		return nil
	}

	res, times := b.resolveLocked(productID, payload)
	b.mu.Unlock()

	b.deliver(onResult, res, times)
	return nil
}

// Consume implements billing.Backend.
func (b *Backend) Consume(p billing.Purchase, onDone billing.DoneFunc, onFail billing.FailFunc) {
	b.mu.Lock()
	err := b.consumeErr[p.ProductID]
	if err == nil {
		delete(b.owned, p.ProductID)
		b.consumed = append(b.consumed, p)
	}
	b.mu.Unlock()

	b.dispatch(func() {
		if err != nil {
			onFail(err)
			return
		}
		onDone(p)
	})
}

// HandleExternalResult implements billing.Backend.
func (b *Backend) HandleExternalResult(requestCode, resultCode int, _ map[string]string) bool {
	b.mu.Lock()
	flow, ok := b.pending[requestCode]
	if !ok {
		b.mu.Unlock()
		return false
	}
	delete(b.pending, requestCode)

	var (
		res   billing.Result
		times = 1
	)
	if resultCode == ResultCanceled {
		res = billing.Result{
			Outcome:  billing.OutcomeCancelled,
			Purchase: &billing.Purchase{ProductID: flow.productID, Payload: flow.payload},
		}
	} else {
		res, times = b.resolveLocked(flow.productID, flow.payload)
	}
	b.mu.Unlock()

	b.deliver(flow.onResult, res, times)
	return true
}

// IsInitialized implements billing.Backend.
func (b *Backend) IsInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// resolveLocked decides the result of a purchase attempt and how many
// times to deliver it. b.mu must be held.
func (b *Backend) resolveLocked(productID, payload string) (billing.Result, int) {
	step, scripted := b.nextStepLocked(productID)
	if !scripted {
		if p, ok := b.owned[productID]; ok {
			return billing.Result{Outcome: billing.OutcomeAlreadyOwned, Purchase: &p}, 1
		}
		step = Step{Outcome: billing.OutcomeSuccess, State: billing.StatePurchased}
	}

	var res billing.Result
	switch step.Outcome {
	case billing.OutcomeSuccess:
		p := b.newPurchaseLocked(productID, payload, step.State)
		if step.State == billing.StatePurchased {
			b.owned[productID] = p
		} else {
			delete(b.owned, productID)
		}
		res = billing.Result{Outcome: billing.OutcomeSuccess, Purchase: &p}
	case billing.OutcomeAlreadyOwned:
		p, ok := b.owned[productID]
		if !ok {
			p = b.newPurchaseLocked(productID, payload, billing.StatePurchased)
			b.owned[productID] = p
		}
		res = billing.Result{Outcome: billing.OutcomeAlreadyOwned, Purchase: &p}
	case billing.OutcomeCancelled:
		res = billing.Result{Outcome: billing.OutcomeCancelled, Purchase: &billing.Purchase{ProductID: productID, Payload: payload}}
	default:
		err := step.Err
		if err == nil {
			err = fmt.Errorf("sim: purchase of %s failed", productID)
		}
		res = billing.Result{Outcome: billing.OutcomeFailed, Err: err}
	}

	if step.Duplicate {
		return res, 2
	}
	return res, 1
}

func (b *Backend) nextStepLocked(productID string) (Step, bool) {
	steps := b.script[productID]
	if len(steps) == 0 {
		return Step{}, false
	}
	b.script[productID] = steps[1:]
	return steps[0], true
}

func (b *Backend) newPurchaseLocked(productID, payload string, state billing.PurchaseState) billing.Purchase {
	return b.sign(billing.Purchase{
		ProductID:    productID,
		Token:        uuid.NewString(),
		Payload:      payload,
		OrderID:      "GPA." + uuid.NewString(),
		State:        state,
		PurchaseTime: time.Now().UTC(),
	})
}

// sign fills the receipt fields of p when a signing secret is set.
func (b *Backend) sign(p billing.Purchase) billing.Purchase {
	if b.secret == "" {
		return p
	}
	receipt, err := json.Marshal(struct {
		ProductID string `json:"productId"`
		Token     string `json:"purchaseToken"`
		OrderID   string `json:"orderId"`
		State     int    `json:"purchaseState"`
		Payload   string `json:"developerPayload"`
	}{p.ProductID, p.Token, p.OrderID, int(p.State), p.Payload})
	if err != nil {
		b.logger.Error("sim: failed to encode receipt", "error", err)
		return p
	}
	p.OriginalJSON = string(receipt)
	p.Signature = verify.Sign(b.secret, p.OriginalJSON)
	return p
}

func (b *Backend) ownedLocked() []billing.Purchase {
	out := make([]billing.Purchase, 0, len(b.owned))
	for _, p := range b.owned {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// deliver hands res to onResult the given number of times.
func (b *Backend) deliver(onResult billing.ResultFunc, res billing.Result, times int) {
	for i := 0; i < times; i++ {
		b.dispatch(func() { onResult(res) })
	}
}

// dispatch runs fn asynchronously, or inline for synchronous backends.
func (b *Backend) dispatch(fn func()) {
	if b.sync {
		fn()
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}
