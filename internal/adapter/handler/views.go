package handler

import (
	"strconv"
	"time"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

// Item stock and prices cross the wire as exact decimal strings. Report totals are plain integers.

type itemView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Stock     string    `json:"stock"`
	Price     *string   `json:"price"`
	PhotoRef  *string   `json:"photoRef"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newItemView(item *domain.Item) itemView {
	return itemView{
		ID:        item.ID.String(),
		Name:      item.Name,
		Code:      item.Code,
		Stock:     strconv.FormatInt(item.Stock, 10),
		Price:     domain.FormatNullPrice(item.Price),
		PhotoRef:  item.PhotoRef,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

type stockEntryView struct {
	ID        int64       `json:"id"`
	Delta     string      `json:"delta"`
	Note      *string     `json:"note"`
	TxnDate   domain.Date `json:"txnDate"`
	CreatedAt time.Time   `json:"createdAt"`
}

type priceEntryView struct {
	ID            int64       `json:"id"`
	Price         string      `json:"price"`
	EffectiveDate domain.Date `json:"effectiveDate"`
	CreatedAt     time.Time   `json:"createdAt"`
}

type stockTotalView struct {
	ItemID     string `json:"itemId"`
	TotalStock int64  `json:"totalStock"`
}

type priceChangeView struct {
	ItemID        string      `json:"itemId"`
	Price         string      `json:"price"`
	EffectiveDate domain.Date `json:"effectiveDate"`
}

type stockReportRow struct {
	ItemID     string `json:"itemId"`
	ItemName   string `json:"itemName"`
	TotalStock int64  `json:"totalStock"`
}

type priceReportRow struct {
	ItemID   string  `json:"itemId"`
	ItemName string  `json:"itemName"`
	Price    *string `json:"price"`
}

type userView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newUserView(u *domain.User) userView {
	return userView{
		ID:        u.ID.String(),
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
