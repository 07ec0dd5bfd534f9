// Package event defines the envelope published for every purchase engine
// notification. Typed plugin hooks receive the same information as
// parameters; the envelope serves generic listeners such as event sinks.
package event

import (
	"time"

	"github.com/xraph/iap/id"
	"github.com/xraph/iap/item"
)

// Type names an event.
type Type string

const (
	OrchestratorInitialized Type = "orchestrator.initialized"
	BillingSupported        Type = "billing.supported"
	BillingNotSupported     Type = "billing.not_supported"
	BackendStarted          Type = "backend.started"
	BackendStopped          Type = "backend.stopped"
	RestoreStarted          Type = "restore.started"
	RestoreFinished         Type = "restore.finished"
	MarketItemsRefreshed    Type = "market.items_refreshed"
	PurchaseStarted         Type = "purchase.started"
	MarketPurchase          Type = "market.purchase"
	PurchaseVerification    Type = "market.purchase_verification"
	ItemPurchased           Type = "item.purchased"
	PurchaseCancelled       Type = "purchase.cancelled"
	MarketRefund            Type = "market.refund"
	UnexpectedError         Type = "error.unexpected"
)

// Event is a published notification.
type Event struct {
	ID   id.EventID `json:"id"`
	Type Type       `json:"type"`
	Time time.Time  `json:"time"`

	ItemID    string `json:"item_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Payload   string `json:"payload,omitempty"`
	Token     string `json:"token,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	Message   string `json:"message,omitempty"`

	// Success is set for RestoreFinished.
	Success bool `json:"success,omitempty"`
	// Listings is set for MarketItemsRefreshed.
	Listings []item.Listing `json:"listings,omitempty"`
}

// New creates an event of type t stamped with a fresh id and the current time.
func New(t Type) *Event {
	return &Event{ID: id.NewEventID(), Type: t, Time: time.Now().UTC()}
}

// ForItem creates an event about it.
func ForItem(t Type, it item.Item) *Event {
	e := New(t)
	e.ItemID = it.ID
	e.ProductID = it.ProductID()
	return e
}
