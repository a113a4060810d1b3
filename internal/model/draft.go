package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind distinguishes money coming in from money going out.
type TransactionKind string

const (
	KindIncome  TransactionKind = "INCOME"
	KindExpense TransactionKind = "EXPENSE"
)

// TransactionDraft is the unpersisted structured transaction extracted from
// a free-form chat message, pending wallet assignment and storage.
type TransactionDraft struct {
	Kind        TransactionKind `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description"`
	OccurredOn  string          `json:"date,omitempty"` // YYYY-MM-DD
	WalletHint  string          `json:"walletName,omitempty"`
	Confidence  float64         `json:"confidence,omitempty"`
}

// Date parses OccurredOn, falling back to today when absent or malformed.
func (d *TransactionDraft) Date(now time.Time) time.Time {
	if t, err := time.Parse("2006-01-02", d.OccurredOn); err == nil {
		return t
	}
	return now
}
