package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/iap/history"
	"github.com/xraph/iap/id"
	"github.com/xraph/iap/types"
)

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:iap_balances"`

	ItemID    string    `grove:"item_id,pk"`
	Balance   int       `grove:"balance"`
	Owned     bool      `grove:"owned"`
	UpdatedAt time.Time `grove:"updated_at"`
}

// ==================== Setting models ====================

type settingModel struct {
	grove.BaseModel `grove:"table:iap_settings"`

	Name      string    `grove:"name,pk"`
	Value     string    `grove:"value"`
	UpdatedAt time.Time `grove:"updated_at"`
}

// ==================== History models ====================

type entryModel struct {
	grove.BaseModel `grove:"table:iap_history"`

	ID        string    `grove:"id,pk"`
	ItemID    string    `grove:"item_id"`
	ProductID string    `grove:"product_id"`
	Action    string    `grove:"action"`
	Token     string    `grove:"token"`
	OrderID   string    `grove:"order_id"`
	Payload   string    `grove:"payload"`
	Balance   int       `grove:"balance"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toEntryModel(e *history.Entry) *entryModel {
	return &entryModel{
		ID:        e.ID.String(),
		ItemID:    e.ItemID,
		ProductID: e.ProductID,
		Action:    string(e.Action),
		Token:     e.Token,
		OrderID:   e.OrderID,
		Payload:   e.Payload,
		Balance:   e.Balance,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func fromEntryModel(m *entryModel) (*history.Entry, error) {
	recID, err := id.ParseRecordID(m.ID)
	if err != nil {
		return nil, err
	}
	return &history.Entry{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        recID,
		ItemID:    m.ItemID,
		ProductID: m.ProductID,
		Action:    history.Action(m.Action),
		Token:     m.Token,
		OrderID:   m.OrderID,
		Payload:   m.Payload,
		Balance:   m.Balance,
	}, nil
}
