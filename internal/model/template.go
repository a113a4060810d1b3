package model

import "time"

// Template is a reusable message body with named {{variable}} placeholders.
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Content     string    `json:"content"`
	Variables   []string  `json:"variables"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EventType identifies an application event a trigger can react to.
type EventType string

const (
	EventTransactionCreated EventType = "TRANSACTION_CREATED"
	EventTransactionUpdated EventType = "TRANSACTION_UPDATED"
	EventWalletCreated      EventType = "WALLET_CREATED"
	EventBudgetExceeded     EventType = "BUDGET_EXCEEDED"
	EventReminder           EventType = "REMINDER"
)

// TriggerConditions narrows which events a trigger fires on. Zero-valued
// fields match anything.
type TriggerConditions struct {
	WalletID        string          `json:"walletId,omitempty"`
	CategoryID      string          `json:"categoryId,omitempty"`
	AmountThreshold string          `json:"amountThreshold,omitempty"` // decimal string
	TransactionType TransactionKind `json:"transactionType,omitempty"`
}

// Trigger sends a templated message whenever a matching event occurs.
type Trigger struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	EventType  EventType         `json:"eventType"`
	Conditions TriggerConditions `json:"conditions"`
	TemplateID string            `json:"templateId"`
	Enabled    bool              `json:"enabled"`
	CreatedAt  time.Time         `json:"createdAt"`
}
