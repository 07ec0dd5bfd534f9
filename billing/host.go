package billing

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Host is the UI context a purchase flow runs in. The engine calls Finish
// once the flow on the host has resolved.
type Host interface {
	ID() string
	Finish()
}

// Launcher opens a host for a purchase and runs the inner purchase step on
// it. run reports whether the flow was started.
type Launcher interface {
	Launch(productID, payload string, run func(h Host) bool) error
}

// LauncherFunc adapts a plain function to Launcher.
type LauncherFunc func(productID, payload string, run func(h Host) bool) error

// Launch implements Launcher.
func (f LauncherFunc) Launch(productID, payload string, run func(h Host) bool) error {
	return f(productID, payload, run)
}

// InlineLauncher runs the purchase step on an in-process host without any
// UI. It suits headless servers, simulators and tests.
type InlineLauncher struct{}

// Launch implements Launcher.
func (InlineLauncher) Launch(_, _ string, run func(h Host) bool) error {
	h := NewInlineHost()
	if !run(h) {
		h.Finish()
	}
	return nil
}

// InlineHost is a Host with no UI behind it.
type InlineHost struct {
	id       string
	finished atomic.Bool
}

// NewInlineHost creates a host with a random id.
func NewInlineHost() *InlineHost {
	return &InlineHost{id: "host-" + uuid.NewString()}
}

// ID implements Host.
func (h *InlineHost) ID() string { return h.id }

// Finish implements Host.
func (h *InlineHost) Finish() { h.finished.Store(true) }

// Finished reports whether Finish has been called.
func (h *InlineHost) Finished() bool { return h.finished.Load() }
