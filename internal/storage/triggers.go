package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fintrack/wa-gateway/internal/common"
	"github.com/fintrack/wa-gateway/internal/model"
)

// CreateTrigger persists a new trigger.
func (s *SQLiteStorage) CreateTrigger(ctx context.Context, t *model.Trigger) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%w: trigger", ErrNilParameter)
	}
	if err := validateString(t.ID, "id"); err != nil {
		return err
	}
	if err := validateString(t.Name, "name"); err != nil {
		return err
	}
	if err := validateString(t.TemplateID, "templateID"); err != nil {
		return err
	}

	conditions, err := json.Marshal(t.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode conditions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO triggers (id, name, event_type, conditions, template_id, enabled)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.EventType, string(conditions), t.TemplateID, boolToInt(t.Enabled))
	if err != nil {
		return fmt.Errorf("failed to insert trigger: %w", err)
	}
	return nil
}

// ListTriggers returns all triggers, optionally filtered by event type.
func (s *SQLiteStorage) ListTriggers(ctx context.Context, eventType model.EventType) ([]model.Trigger, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, name, event_type, conditions, template_id, enabled, created_at FROM triggers`
	var args []any
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var triggers []model.Trigger
	for rows.Next() {
		t, scanErr := scanTrigger(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", scanErr)
		}
		triggers = append(triggers, *t)
	}
	return triggers, rows.Err()
}

// ListEnabledTriggers returns the enabled triggers for an event type.
func (s *SQLiteStorage) ListEnabledTriggers(ctx context.Context, eventType model.EventType) ([]model.Trigger, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, event_type, conditions, template_id, enabled, created_at
		FROM triggers
		WHERE event_type = ? AND enabled = 1`, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled triggers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var triggers []model.Trigger
	for rows.Next() {
		t, scanErr := scanTrigger(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", scanErr)
		}
		triggers = append(triggers, *t)
	}
	return triggers, rows.Err()
}

// DeleteTrigger removes a trigger.
func (s *SQLiteStorage) DeleteTrigger(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trigger %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func scanTrigger(row rowScanner) (*model.Trigger, error) {
	var (
		t          model.Trigger
		conditions string
		enabled    int
	)
	if err := row.Scan(&t.ID, &t.Name, &t.EventType, &conditions, &t.TemplateID, &enabled, &t.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(conditions), &t.Conditions); err != nil {
		return nil, fmt.Errorf("failed to decode conditions: %w", err)
	}
	t.Enabled = enabled != 0
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
