// Package verify validates purchase receipts before they are credited.
//
// Validators are asynchronous like the billing backend: Verify returns at
// once and reports the verdict through done.
package verify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/xraph/iap/billing"
)

// ErrBadSignature is reported when a receipt signature does not match.
var ErrBadSignature = errors.New("verify: receipt signature mismatch")

// DoneFunc receives the verdict. err explains a rejection.
type DoneFunc func(approved bool, err error)

// Validator verifies a purchase receipt.
type Validator interface {
	Verify(ctx context.Context, p billing.Purchase, done DoneFunc)
}

// ValidatorFunc adapts a plain function to Validator.
type ValidatorFunc func(ctx context.Context, p billing.Purchase, done DoneFunc)

// Verify implements Validator.
func (f ValidatorFunc) Verify(ctx context.Context, p billing.Purchase, done DoneFunc) {
	f(ctx, p, done)
}

// AutoApprove approves every receipt. It logs a warning for each so that
// it is not mistaken for real verification in production.
type AutoApprove struct {
	Logger *slog.Logger
}

// Verify implements Validator.
func (a AutoApprove) Verify(_ context.Context, p billing.Purchase, done DoneFunc) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("verify: receipt auto-approved, configure a real validator",
		"product_id", p.ProductID,
		"order_id", p.OrderID,
	)
	done(true, nil)
}

// HMAC verifies receipts signed with a shared secret as hex HMAC-SHA256 of
// the original receipt JSON.
type HMAC struct {
	Secret string
}

// Verify implements Validator.
func (h HMAC) Verify(_ context.Context, p billing.Purchase, done DoneFunc) {
	if p.OriginalJSON == "" || p.Signature == "" {
		done(false, ErrBadSignature)
		return
	}
	want := Sign(h.Secret, p.OriginalJSON)
	if !hmac.Equal([]byte(want), []byte(p.Signature)) {
		done(false, ErrBadSignature)
		return
	}
	done(true, nil)
}

// Sign returns the hex HMAC-SHA256 of receipt under secret.
func Sign(secret, receipt string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(receipt))
	return hex.EncodeToString(mac.Sum(nil))
}
