// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other
// languages, but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Snippet represents a shared code snippet.
//
// Snippets are creation-only: there is no edit or delete operation, so the
// struct has no UpdatedAt. Title, Code and Language are required non-empty;
// Tags defaults to an empty set.
type Snippet struct {
	ID        string    `json:"id"        db:"id"`
	Title     string    `json:"title"     db:"title"`
	Code      string    `json:"code"      db:"code"`
	Language  string    `json:"language"  db:"language"`
	Tags      []string  `json:"tags"`
	AuthorID  string    `json:"authorId"  db:"author_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Comment is a user comment on a snippet. Immutable once created.
type Comment struct {
	ID        string    `json:"id"        db:"id"`
	SnippetID string    `json:"snippetId" db:"snippet_id"`
	AuthorID  string    `json:"authorId"  db:"author_id"`
	Author    *Author   `json:"author,omitempty"`
	Content   string    `json:"content"   db:"content"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Author is the public slice of a user attached to snippets and comments
// when listing. Deliberately tiny: attaching the full User would drag the
// password hash through the aggregate read path.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SnippetSummary is a snippet plus the viewer-scoped like aggregate used by
// list responses. LikedByMe is false for anonymous viewers.
type SnippetSummary struct {
	Snippet
	Author     *Author `json:"author,omitempty"`
	LikesCount int     `json:"likesCount"`
	LikedByMe  bool    `json:"likedByMe"`
}

// SnippetDetail is the full aggregate returned for a single snippet:
// the snippet, its comments newest-first, and the like aggregate.
type SnippetDetail struct {
	SnippetSummary
	Comments []Comment `json:"comments"`
}
