// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Accounts are created two ways: password registration (PasswordHash set) or
// first login through an OAuth provider (PasswordHash empty, a linked
// Identity row instead). Every user has at least one of the two.
//
// Email is stored lower-cased and is unique case-insensitively — it is the
// only uniqueness constraint on users.
//
// PasswordHash carries the json:"-" tag so it can never appear in an API
// response, no matter which handler serialises the struct.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Name         string    `json:"name"      db:"name"`
	Role         string    `json:"role"      db:"role"` // opaque label from registration, no authorization semantics
	Email        string    `json:"email"     db:"email"`
	AvatarURL    string    `json:"avatarUrl" db:"avatar_url"`
	PasswordHash string    `json:"-"         db:"password_hash"` // empty for OAuth-only accounts
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Identity links a user to an external identity provider account.
// The (Provider, ProviderUserID) pair is unique — one external account maps
// to exactly one local user.
type Identity struct {
	Provider       string    `json:"provider"       db:"provider"` // "github" or "google"
	ProviderUserID string    `json:"providerUserId" db:"provider_user_id"`
	UserID         string    `json:"userId"         db:"user_id"`
	CreatedAt      time.Time `json:"createdAt"      db:"created_at"`
}
