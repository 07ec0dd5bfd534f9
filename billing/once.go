package billing

import (
	"log/slog"
	"sync/atomic"
)

// once wraps fn so that only its first invocation runs. Later invocations
// are dropped and logged.
func once[T any](logger *slog.Logger, name string, fn func(T)) func(T) {
	var fired atomic.Bool
	return func(v T) {
		if !fired.CompareAndSwap(false, true) {
			logger.Warn("billing: continuation invoked more than once", "continuation", name)
			return
		}
		fn(v)
	}
}

// OnceReady wraps a ReadyFunc so it runs at most once.
func OnceReady(logger *slog.Logger, name string, fn ReadyFunc) ReadyFunc {
	return once[bool](logger, name, fn)
}

// OnceFail wraps a FailFunc so it runs at most once.
func OnceFail(logger *slog.Logger, name string, fn FailFunc) FailFunc {
	return once[error](logger, name, fn)
}

// OnceResult wraps a ResultFunc so it runs at most once.
func OnceResult(logger *slog.Logger, name string, fn ResultFunc) ResultFunc {
	return once[Result](logger, name, fn)
}

// OnceDone wraps a DoneFunc so it runs at most once.
func OnceDone(logger *slog.Logger, name string, fn DoneFunc) DoneFunc {
	return once[Purchase](logger, name, fn)
}

// settler admits the first of several competing continuations.
type settler struct {
	fired  atomic.Bool
	logger *slog.Logger
	name   string
}

func (s *settler) admit() bool {
	if !s.fired.CompareAndSwap(false, true) {
		s.logger.Warn("billing: operation settled more than once", "operation", s.name)
		return false
	}
	return true
}

// Settle pairs a success and a failure continuation so that only the first
// call to either of them runs.
func Settle[S any](logger *slog.Logger, name string, onSuccess func(S), onFail FailFunc) (func(S), FailFunc) {
	s := &settler{logger: logger, name: name}
	success := func(v S) {
		if s.admit() {
			onSuccess(v)
		}
	}
	fail := func(err error) {
		if s.admit() {
			onFail(err)
		}
	}
	return success, fail
}

// SettleInventory is Settle for inventory queries.
func SettleInventory(logger *slog.Logger, name string, onSuccess InventoryFunc, onFail FailFunc) (InventoryFunc, FailFunc) {
	s := &settler{logger: logger, name: name}
	success := func(owned []Purchase, details []SkuDetails) {
		if s.admit() {
			onSuccess(owned, details)
		}
	}
	fail := func(err error) {
		if s.admit() {
			onFail(err)
		}
	}
	return success, fail
}
