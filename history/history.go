// Package history journals every ownership change applied from a
// marketplace result.
package history

import (
	"context"

	"github.com/xraph/iap/id"
	"github.com/xraph/iap/types"
)

// Action is what happened to the ledger.
type Action string

const (
	ActionGranted  Action = "granted"
	ActionRefunded Action = "refunded"
	ActionConsumed Action = "consumed"
	ActionRejected Action = "rejected"
)

// Entry is one journaled change.
type Entry struct {
	types.Entity

	ID        id.RecordID `json:"id"`
	ItemID    string      `json:"item_id"`
	ProductID string      `json:"product_id"`
	Action    Action      `json:"action"`
	Token     string      `json:"token,omitempty"`
	OrderID   string      `json:"order_id,omitempty"`
	Payload   string      `json:"payload,omitempty"`
	Balance   int         `json:"balance"`
}

// ListOpts filters and pages history queries. Results are newest first.
type ListOpts struct {
	ItemID string
	Action Action
	Limit  int
	Offset int
}

// Store persists history entries.
type Store interface {
	RecordEntry(ctx context.Context, e *Entry) error
	ListEntries(ctx context.Context, opts ListOpts) ([]*Entry, error)
}
