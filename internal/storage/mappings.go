package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fintrack/wa-gateway/internal/common"
	"github.com/fintrack/wa-gateway/internal/model"
)

// GetMapping returns the mapping for a canonical phone number.
// Returns common.ErrNotFound when no row exists.
func (s *SQLiteStorage) GetMapping(ctx context.Context, canonicalPhone string) (*model.UserMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(canonicalPhone, "canonicalPhone"); err != nil {
		return nil, err
	}

	var (
		m         model.UserMapping
		verified  int
		code      sql.NullString
		verAt     sql.NullTime
		expiresAt sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, phone_number, is_verified, verified_at, verification_code, verification_expires_at
		FROM user_mappings
		WHERE phone_number = ?`, canonicalPhone,
	).Scan(&m.UserID, &m.PhoneNumber, &verified, &verAt, &code, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping for %s: %w", canonicalPhone, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}

	m.IsVerified = verified != 0
	if verAt.Valid {
		t := verAt.Time
		m.VerifiedAt = &t
	}
	if code.Valid {
		m.VerificationCode = code.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		m.VerificationCodeExpiresAt = &t
	}
	return &m, nil
}

// VerifyMapping marks a mapping verified if and only if the stored code
// matches, is unexpired, and the mapping is not already verified. The single
// conditional UPDATE makes the code single-use even under concurrent calls.
func (s *SQLiteStorage) VerifyMapping(ctx context.Context, canonicalPhone, code string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(canonicalPhone, "canonicalPhone"); err != nil {
		return false, err
	}
	if err := validateString(code, "code"); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE user_mappings
		SET is_verified = 1,
		    verified_at = ?,
		    verification_code = NULL,
		    verification_expires_at = NULL,
		    updated_at = ?
		WHERE phone_number = ?
		  AND verification_code = ?
		  AND is_verified = 0
		  AND verification_expires_at > ?`,
		time.Now().UTC(), time.Now().UTC(), canonicalPhone, code, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to verify mapping: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// UpsertPendingMapping creates or refreshes an unverified mapping with a new
// verification code and expiry. Used by the registration flow, not the
// message hot path.
func (s *SQLiteStorage) UpsertPendingMapping(ctx context.Context, userID, canonicalPhone, code string, expiresAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(canonicalPhone, "canonicalPhone"); err != nil {
		return err
	}
	if err := validateString(code, "code"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_mappings (phone_number, user_id, verification_code, verification_expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (phone_number) DO UPDATE
		SET verification_code = excluded.verification_code,
		    verification_expires_at = excluded.verification_expires_at,
		    updated_at = CURRENT_TIMESTAMP`,
		canonicalPhone, userID, code, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}
