package model

import "time"

// UserMapping links a canonical phone number to an application user.
// Only verified mappings authorize actions on behalf of the user.
type UserMapping struct {
	UserID                    string
	PhoneNumber               string // canonical form, e.g. 6281234567890
	IsVerified                bool
	VerifiedAt                *time.Time
	VerificationCode          string
	VerificationCodeExpiresAt *time.Time
}

// WalletOption is a read-only projection of one of the user's wallets,
// fetched live per resolution attempt.
type WalletOption struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"wallet_type"`
	IsDefault bool   `json:"is_default"`
}
