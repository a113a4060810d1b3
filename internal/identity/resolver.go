// Package identity maps raw chat-channel identifiers to verified application
// users. Every inbound message passes through here before anything else: an
// unknown or unverified phone number must never authorize an action, and
// callers get a single uniform "not found" answer for both cases so the
// channel never leaks whether a number is registered.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fintrack/wa-gateway/internal/common"
	"github.com/fintrack/wa-gateway/internal/model"
	"github.com/fintrack/wa-gateway/internal/phone"
)

// VerificationTTL is how long a pending verification code stays valid.
const VerificationTTL = 10 * time.Minute

// MappingStore is the persistence contract the resolver needs.
type MappingStore interface {
	GetMapping(ctx context.Context, canonicalPhone string) (*model.UserMapping, error)
	VerifyMapping(ctx context.Context, canonicalPhone, code string) (bool, error)
	UpsertPendingMapping(ctx context.Context, userID, canonicalPhone, code string, expiresAt time.Time) error
}

// Resolver resolves channel identities to users.
type Resolver struct {
	store       MappingStore
	logger      *slog.Logger
	countryCode string
}

// NewResolver creates a resolver with the given backing store.
func NewResolver(store MappingStore, countryCode string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:       store,
		countryCode: countryCode,
		logger:      logger.With("component", "identity"),
	}
}

// Resolve returns the verified mapping for a raw channel identifier.
// Unknown and registered-but-unverified numbers both return
// common.ErrNotFound; callers must treat either as unauthenticated.
func (r *Resolver) Resolve(ctx context.Context, rawChannelID string) (*model.UserMapping, error) {
	canonical := phone.Normalize(rawChannelID, r.countryCode)
	if canonical == "" {
		return nil, fmt.Errorf("channel id %q has no phone digits: %w", rawChannelID, common.ErrNotFound)
	}

	mapping, err := r.store.GetMapping(ctx, canonical)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			r.logger.Warn("Phone number not registered", "phone", canonical)
		}
		return nil, err
	}

	if !mapping.IsVerified {
		r.logger.Warn("Phone number not verified", "phone", canonical)
		return nil, fmt.Errorf("mapping for %s unverified: %w", canonical, common.ErrNotFound)
	}

	return mapping, nil
}

// Verify consumes a verification code for a phone number. The code is
// single-use: the store performs one conditional update, so at most one
// concurrent call can succeed.
func (r *Resolver) Verify(ctx context.Context, rawChannelID, code string) (bool, error) {
	canonical := phone.Normalize(rawChannelID, r.countryCode)
	if canonical == "" {
		return false, nil
	}
	return r.store.VerifyMapping(ctx, canonical, code)
}

// CreatePendingMapping upserts an unverified mapping with a fresh code and
// expiry, keyed by canonical phone. Called by the registration flow.
func (r *Resolver) CreatePendingMapping(ctx context.Context, userID, rawChannelID, code string) error {
	canonical := phone.Normalize(rawChannelID, r.countryCode)
	if canonical == "" {
		return fmt.Errorf("channel id %q has no phone digits", rawChannelID)
	}
	return r.store.UpsertPendingMapping(ctx, userID, canonical, code, time.Now().Add(VerificationTTL))
}
