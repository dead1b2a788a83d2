// Package repository defines the storage interfaces the service layer
// programs against. The sqlite subpackage is the only implementation;
// service tests substitute in-memory mocks.
package repository

import (
	"context"

	"github.com/sakif/snipshare/internal/model"
)

// SnippetFilter narrows a snippet listing.
//
// Query matches case-insensitively against title, code, language, or exact
// tag membership (logical OR). AuthorID restricts to one author. ViewerID,
// when set, scopes the LikedByMe field of the results; empty means an
// anonymous viewer.
type SnippetFilter struct {
	Query    string
	AuthorID string
	ViewerID string
}

type UserRepository interface {
	// Create inserts a new user. Returns apperror.ErrConflict when the
	// email is already taken (case-insensitively).
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByEmail looks a user up by lower-cased email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetByIdentity resolves an external (provider, providerUserID) pair to
	// the linked local user.
	GetByIdentity(ctx context.Context, provider, providerUserID string) (*model.User, error)
	// LinkIdentity records an external identity for an existing user.
	LinkIdentity(ctx context.Context, identity *model.Identity) error
}

type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	// List returns summaries newest-first with author fields and like
	// aggregates attached.
	List(ctx context.Context, filter SnippetFilter) ([]model.SnippetSummary, error)
	// Get returns the full aggregate: snippet, comments newest-first, likes.
	Get(ctx context.Context, id, viewerID string) (*model.SnippetDetail, error)
	AddComment(ctx context.Context, comment *model.Comment) error
	// Like records a like; duplicate likes are absorbed as success.
	Like(ctx context.Context, snippetID, userID string) error
	// Unlike removes a like; removing a nonexistent like is a no-op.
	Unlike(ctx context.Context, snippetID, userID string) error
}
