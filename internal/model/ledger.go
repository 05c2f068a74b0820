package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionType classifies a stock-affecting event.
type TransactionType string

const (
	TransactionPurchase   TransactionType = "PURCHASE"
	TransactionSale       TransactionType = "SALE"
	TransactionAdjustment TransactionType = "ADJUSTMENT"
	TransactionReturn     TransactionType = "RETURN"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionPurchase, TransactionSale, TransactionAdjustment, TransactionReturn:
		return true
	}
	return false
}

// LedgerEntry is one immutable stock-affecting event. Entries are append-only;
// CurrentStock carries the running balance computed at insertion time and
// Sequence is a per-product monotonic counter so that "latest balance" does
// not depend on wall-clock ordering of backfilled rows.
type LedgerEntry struct {
	ID              string          `json:"id" gorm:"type:varchar(36);primarykey"`
	ProductID       string          `json:"product_id" gorm:"type:varchar(36);index:idx_ledger_product_seq,priority:1;not null"`
	Product         *Product        `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	TransactionType TransactionType `json:"transaction_type" gorm:"type:varchar(20);not null;index"`
	Quantity        int             `json:"quantity" gorm:"not null"`
	CurrentStock    int             `json:"current_stock" gorm:"default:0"`
	Sequence        uint64          `json:"sequence" gorm:"index:idx_ledger_product_seq,priority:2;not null"`
	Notes           string          `json:"notes" gorm:"type:text"`
	CreatedAt       time.Time       `json:"created_at" gorm:"index"`
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
