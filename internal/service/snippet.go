package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
)

// Validation limits. Constants rather than magic numbers so they're easy to
// find, change, and reference in error messages.
const (
	MaxTitleLength = 200
	MaxCodeLength  = 100000 // ~100KB of code
	MaxTagLength   = 50
)

// SnippetService handles the snippet aggregate: snippets with their nested
// comments and likes. It enforces the per-entity invariants; storage-level
// uniqueness (one like per user per snippet) lives in the repository.
type SnippetService struct {
	repo   repository.SnippetRepository
	logger *slog.Logger
}

func NewSnippetService(repo repository.SnippetRepository, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:   repo,
		logger: logger,
	}
}

// Create validates and saves a new snippet.
//
// Title, code and language are required non-empty after trimming. The code
// body itself is stored as-is — leading whitespace is often significant.
// Tags are normalised: trimmed, empties dropped, nil becomes the empty set.
func (s *SnippetService) Create(ctx context.Context, authorID, title, code, language string, tags []string) (*model.Snippet, error) {
	if authorID == "" {
		return nil, apperror.Unauthorized("authentication required to create snippets")
	}

	title = strings.TrimSpace(title)
	language = strings.TrimSpace(language)

	switch {
	case title == "":
		return nil, apperror.ValidationFailed("title", "title is required")
	case len(title) > MaxTitleLength:
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	case strings.TrimSpace(code) == "":
		return nil, apperror.ValidationFailed("code", "code is required")
	case len(code) > MaxCodeLength:
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	case language == "":
		return nil, apperror.ValidationFailed("language", "language is required")
	}

	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if len(tag) > MaxTagLength {
			return nil, apperror.ValidationFailed("tags",
				fmt.Sprintf("tags must be %d characters or less", MaxTagLength))
		}
		cleaned = append(cleaned, tag)
	}

	snippet := &model.Snippet{
		Title:    title,
		Code:     code,
		Language: language,
		Tags:     cleaned,
		AuthorID: authorID,
	}

	if err := s.repo.Create(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("authorID", authorID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("authorID", authorID),
	)

	return snippet, nil
}

// List returns snippets newest-first. query and authorID filter per the
// repository contract; viewerID scopes the likedByMe field and is empty for
// anonymous viewers.
func (s *SnippetService) List(ctx context.Context, query, authorID, viewerID string) ([]model.SnippetSummary, error) {
	snippets, err := s.repo.List(ctx, repository.SnippetFilter{
		Query:    query,
		AuthorID: authorID,
		ViewerID: viewerID,
	})
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}

	return snippets, nil
}

// Get returns the full aggregate for one snippet, or ErrNotFound.
func (s *SnippetService) Get(ctx context.Context, id, viewerID string) (*model.SnippetDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}

	return s.repo.Get(ctx, id, viewerID)
}

// AddComment validates and persists a comment. Whitespace-only content is
// rejected; surrounding whitespace is stripped before storage, so
// "  hello  " persists as "hello".
func (s *SnippetService) AddComment(ctx context.Context, snippetID, authorID, content string) (*model.Comment, error) {
	if authorID == "" {
		return nil, apperror.Unauthorized("authentication required to comment")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "comment must not be empty")
	}

	comment := &model.Comment{
		SnippetID: snippetID,
		AuthorID:  authorID,
		Content:   content,
	}
	if err := s.repo.AddComment(ctx, comment); err != nil {
		return nil, err
	}

	s.logger.Info("comment added",
		slog.String("snippetID", snippetID),
		slog.String("authorID", authorID),
	)

	return comment, nil
}

// Like records that userID likes snippetID. Idempotent: liking an
// already-liked snippet is a success, not a conflict.
func (s *SnippetService) Like(ctx context.Context, snippetID, userID string) error {
	if userID == "" {
		return apperror.Unauthorized("authentication required to like snippets")
	}

	if err := s.repo.Like(ctx, snippetID, userID); err != nil {
		return err
	}

	s.logger.Info("snippet liked",
		slog.String("snippetID", snippetID),
		slog.String("userID", userID),
	)
	return nil
}

// Unlike removes a like. Idempotent: unliking a snippet never liked is a
// success and changes nothing.
func (s *SnippetService) Unlike(ctx context.Context, snippetID, userID string) error {
	if userID == "" {
		return apperror.Unauthorized("authentication required to unlike snippets")
	}

	if err := s.repo.Unlike(ctx, snippetID, userID); err != nil {
		return err
	}

	s.logger.Info("snippet unliked",
		slog.String("snippetID", snippetID),
		slog.String("userID", userID),
	)
	return nil
}
