package domain

import (
	"time"

	"github.com/google/uuid"
)

type Event interface {
	Type() string
	AggregateID() uuid.UUID
}

type ItemCreated struct {
	ItemID       uuid.UUID `json:"itemId"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	InitialStock int64     `json:"initialStock"`
	InitialPrice *string   `json:"initialPrice"`
}

func (e ItemCreated) Type() string           { return "ItemCreated" }
func (e ItemCreated) AggregateID() uuid.UUID { return e.ItemID }

type ItemUpdated struct {
	ItemID uuid.UUID `json:"itemId"`
	Name   string    `json:"name"`
}

func (e ItemUpdated) Type() string           { return "ItemUpdated" }
func (e ItemUpdated) AggregateID() uuid.UUID { return e.ItemID }

type ItemDeleted struct {
	ItemID uuid.UUID `json:"itemId"`
}

func (e ItemDeleted) Type() string           { return "ItemDeleted" }
func (e ItemDeleted) AggregateID() uuid.UUID { return e.ItemID }

type StockAdjusted struct {
	ItemID     uuid.UUID `json:"itemId"`
	Delta      int64     `json:"delta"`
	Note       *string   `json:"note"`
	TxnDate    Date      `json:"txnDate"`
	TotalStock int64     `json:"totalStock"`
}

func (e StockAdjusted) Type() string           { return "StockAdjusted" }
func (e StockAdjusted) AggregateID() uuid.UUID { return e.ItemID }

type PriceSet struct {
	ItemID        uuid.UUID `json:"itemId"`
	Price         string    `json:"price"`
	EffectiveDate Date      `json:"effectiveDate"`
}

func (e PriceSet) Type() string           { return "PriceSet" }
func (e PriceSet) AggregateID() uuid.UUID { return e.ItemID }

// Envelope is the wire shape of a published event.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       Event     `json:"data"`
}
