// Package trigger fires templated notification messages when application
// events occur.
package trigger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/fintrack/wa-gateway/internal/delivery"
	"github.com/fintrack/wa-gateway/internal/model"
	"github.com/fintrack/wa-gateway/internal/templates"
)

// Store provides the triggers and templates behind the service.
type Store interface {
	ListEnabledTriggers(ctx context.Context, eventType model.EventType) ([]model.Trigger, error)
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
}

// Outbox accepts outbound messages for delivery.
type Outbox interface {
	Enqueue(ctx context.Context, req delivery.Request) (*model.DeliveryJob, error)
}

// Event is one application event with its payload. Well-known data keys:
// recipient, userId, walletId, categoryId, amount, type, plus any template
// variables.
type Event struct {
	Type model.EventType
	Data map[string]string
}

// Service evaluates triggers against events and enqueues the resulting
// messages.
type Service struct {
	store  Store
	outbox Outbox
	logger *slog.Logger
}

// NewService creates a trigger service.
func NewService(store Store, outbox Outbox, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, outbox: outbox, logger: logger}
}

// Fire evaluates all enabled triggers for the event and enqueues a message
// for each match. One trigger's failure does not stop the others; the
// first error is returned after all triggers ran.
func (s *Service) Fire(ctx context.Context, ev Event) error {
	triggers, err := s.store.ListEnabledTriggers(ctx, ev.Type)
	if err != nil {
		return fmt.Errorf("failed to list triggers: %w", err)
	}

	var firstErr error
	for _, trg := range triggers {
		if !matches(trg.Conditions, ev.Data) {
			continue
		}
		if err := s.fireOne(ctx, trg, ev); err != nil {
			s.logger.Error("trigger failed", "trigger_id", trg.ID, "trigger", trg.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) fireOne(ctx context.Context, trg model.Trigger, ev Event) error {
	recipient := ev.Data["recipient"]
	if recipient == "" {
		return fmt.Errorf("event has no recipient")
	}

	tmpl, err := s.store.GetTemplate(ctx, trg.TemplateID)
	if err != nil {
		return fmt.Errorf("failed to load template %s: %w", trg.TemplateID, err)
	}

	body := templates.Render(tmpl.Content, ev.Data)

	if _, err := s.outbox.Enqueue(ctx, delivery.Request{
		UserID:     ev.Data["userId"],
		Recipient:  recipient,
		Body:       body,
		TemplateID: tmpl.ID,
	}); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	s.logger.Debug("trigger fired", "trigger", trg.Name, "event", ev.Type, "recipient", recipient)
	return nil
}

// matches checks every set condition against the event data. Unset
// conditions match anything.
func matches(cond model.TriggerConditions, data map[string]string) bool {
	if cond.WalletID != "" && cond.WalletID != data["walletId"] {
		return false
	}
	if cond.CategoryID != "" && cond.CategoryID != data["categoryId"] {
		return false
	}
	if cond.TransactionType != "" && string(cond.TransactionType) != data["type"] {
		return false
	}
	if cond.AmountThreshold != "" {
		threshold, err := decimal.NewFromString(cond.AmountThreshold)
		if err != nil {
			return false
		}
		amount, err := decimal.NewFromString(data["amount"])
		if err != nil {
			return false
		}
		if amount.LessThan(threshold) {
			return false
		}
	}
	return true
}
