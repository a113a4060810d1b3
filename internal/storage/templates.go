package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fintrack/wa-gateway/internal/common"
	"github.com/fintrack/wa-gateway/internal/model"
	"github.com/mattn/go-sqlite3"
)

// CreateTemplate persists a new message template.
func (s *SQLiteStorage) CreateTemplate(ctx context.Context, t *model.Template) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%w: template", ErrNilParameter)
	}
	if err := validateString(t.ID, "id"); err != nil {
		return err
	}
	if err := validateString(t.Name, "name"); err != nil {
		return err
	}
	if err := validateString(t.Content, "content"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (id, name, content, variables, description)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Content, strings.Join(t.Variables, ","), nullable(t.Description))
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && errors.Is(sqliteErr.ExtendedCode, sqlite3.ErrConstraintUnique) {
		return fmt.Errorf("template %q: %w", t.Name, common.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

// GetTemplate returns a template by id.
func (s *SQLiteStorage) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, content, variables, description, created_at, updated_at
		FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

// ListTemplates returns all templates, newest first.
func (s *SQLiteStorage) ListTemplates(ctx context.Context) ([]model.Template, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, content, variables, description, created_at, updated_at
		FROM templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var templates []model.Template
	for rows.Next() {
		t, scanErr := scanTemplate(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan template: %w", scanErr)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// UpdateTemplate replaces a template's mutable fields.
func (s *SQLiteStorage) UpdateTemplate(ctx context.Context, t *model.Template) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%w: template", ErrNilParameter)
	}
	if err := validateString(t.ID, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE templates
		SET name = ?, content = ?, variables = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		t.Name, t.Content, strings.Join(t.Variables, ","), nullable(t.Description), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("template %s: %w", t.ID, common.ErrNotFound)
	}
	return nil
}

// DeleteTemplate removes a template.
func (s *SQLiteStorage) DeleteTemplate(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("template %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func scanTemplate(row rowScanner) (*model.Template, error) {
	var (
		t    model.Template
		vars string
		desc sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Content, &vars, &desc, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if vars != "" {
		t.Variables = strings.Split(vars, ",")
	}
	t.Description = desc.String
	return &t, nil
}
