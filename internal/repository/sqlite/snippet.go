package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
)

// SnippetStore implements repository.SnippetRepository over the shared
// connection pool. Obtain it from DB.Snippets.
type SnippetStore struct {
	conn *sql.DB
}

var _ repository.SnippetRepository = (*SnippetStore)(nil)

// Create inserts a snippet and its tags in one transaction, so a failure
// midway never leaves a snippet with half its tags.
func (st *SnippetStore) Create(ctx context.Context, snippet *model.Snippet) error {
	snippet.ID = xid.New().String()
	snippet.CreatedAt = time.Now()
	if snippet.Tags == nil {
		snippet.Tags = []string{}
	}

	tx, err := st.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback() // no-op after a successful Commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snippets (id, title, code, language, author_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snippet.ID,
		snippet.Title,
		snippet.Code,
		snippet.Language,
		snippet.AuthorID,
		snippet.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating snippet: %w", err)
	}

	for _, tag := range snippet.Tags {
		// OR IGNORE: duplicate tags in the input collapse to one row.
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO snippet_tags (snippet_id, tag) VALUES (?, ?)`,
			snippet.ID, tag,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating snippet tag %q: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing snippet: %w", err)
	}

	return nil
}

// List returns snippet summaries newest-first. Query matches title, code
// or language as a case-insensitive substring, or a tag exactly
// (case-insensitive); AuthorID restricts to one author.
//
// The like aggregate rides along in the main query; tags and author display
// fields are attached afterwards by batched child lookups rather than row
// by row.
func (st *SnippetStore) List(ctx context.Context, filter repository.SnippetFilter) ([]model.SnippetSummary, error) {
	query := `
		SELECT s.id, s.title, s.code, s.language, s.author_id, s.created_at,
		       (SELECT COUNT(*) FROM likes l WHERE l.snippet_id = s.id),
		       EXISTS(SELECT 1 FROM likes l WHERE l.snippet_id = s.id AND l.user_id = ?)
		FROM snippets s`
	args := []any{filter.ViewerID}

	var where []string
	if filter.AuthorID != "" {
		where = append(where, `s.author_id = ?`)
		args = append(args, filter.AuthorID)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		// Substring match on title/code/language, exact match on tags.
		// LIKE wildcards in the user's query are taken literally.
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		where = append(where, `(
			LOWER(s.title) LIKE ? ESCAPE '\'
			OR LOWER(s.code) LIKE ? ESCAPE '\'
			OR LOWER(s.language) LIKE ? ESCAPE '\'
			OR EXISTS(SELECT 1 FROM snippet_tags t WHERE t.snippet_id = s.id AND LOWER(t.tag) = LOWER(?))
		)`)
		args = append(args, pattern, pattern, pattern, q)
	}

	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY s.created_at DESC, s.id DESC"

	rows, err := st.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	defer rows.Close()

	var snippets []model.SnippetSummary
	for rows.Next() {
		var s model.SnippetSummary
		if err := rows.Scan(
			&s.ID, &s.Title, &s.Code, &s.Language, &s.AuthorID, &s.CreatedAt,
			&s.LikesCount, &s.LikedByMe,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		s.Tags = []string{}
		snippets = append(snippets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}

	if len(snippets) == 0 {
		return []model.SnippetSummary{}, nil
	}

	// Batched child lookups: one query for all tags, one for all authors,
	// instead of 2N queries scattered through the loop above.
	snippetIDs := make([]string, len(snippets))
	authorIDs := make([]string, len(snippets))
	for i, s := range snippets {
		snippetIDs[i] = s.ID
		authorIDs[i] = s.AuthorID
	}

	tags, err := st.fetchTags(ctx, snippetIDs)
	if err != nil {
		return nil, err
	}
	authors, err := st.fetchAuthors(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	for i := range snippets {
		if t, ok := tags[snippets[i].ID]; ok {
			snippets[i].Tags = t
		}
		snippets[i].Author = authors[snippets[i].AuthorID]
	}

	return snippets, nil
}

// Get returns the full snippet aggregate: the snippet itself, its comments
// newest-first, and the like aggregate scoped to viewerID (pass "" for an
// anonymous viewer — it matches no like row).
func (st *SnippetStore) Get(ctx context.Context, id, viewerID string) (*model.SnippetDetail, error) {
	var d model.SnippetDetail
	err := st.conn.QueryRowContext(ctx,
		`SELECT s.id, s.title, s.code, s.language, s.author_id, s.created_at,
		        (SELECT COUNT(*) FROM likes l WHERE l.snippet_id = s.id),
		        EXISTS(SELECT 1 FROM likes l WHERE l.snippet_id = s.id AND l.user_id = ?)
		 FROM snippets s WHERE s.id = ?`,
		viewerID, id,
	).Scan(
		&d.ID, &d.Title, &d.Code, &d.Language, &d.AuthorID, &d.CreatedAt,
		&d.LikesCount, &d.LikedByMe,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}

	d.Tags = []string{}
	tags, err := st.fetchTags(ctx, []string{d.ID})
	if err != nil {
		return nil, err
	}
	if t, ok := tags[d.ID]; ok {
		d.Tags = t
	}

	rows, err := st.conn.QueryContext(ctx,
		`SELECT id, snippet_id, author_id, content, created_at
		 FROM comments
		 WHERE snippet_id = ?
		 ORDER BY created_at DESC, id DESC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments for snippet %s: %w", id, err)
	}
	defer rows.Close()

	d.Comments = []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.SnippetID, &c.AuthorID, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		d.Comments = append(d.Comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}

	// One author lookup covers the snippet author and every commenter.
	authorIDs := []string{d.AuthorID}
	for _, c := range d.Comments {
		authorIDs = append(authorIDs, c.AuthorID)
	}
	authors, err := st.fetchAuthors(ctx, authorIDs)
	if err != nil {
		return nil, err
	}
	d.Author = authors[d.AuthorID]
	for i := range d.Comments {
		d.Comments[i].Author = authors[d.Comments[i].AuthorID]
	}

	return &d, nil
}

// AddComment persists a comment against an existing snippet. The snippet
// existence check is explicit so a missing snippet surfaces as NotFound
// rather than a foreign-key failure.
func (st *SnippetStore) AddComment(ctx context.Context, comment *model.Comment) error {
	if err := st.snippetExists(ctx, comment.SnippetID); err != nil {
		return err
	}

	comment.ID = xid.New().String()
	comment.CreatedAt = time.Now()

	_, err := st.conn.ExecContext(ctx,
		`INSERT INTO comments (id, snippet_id, author_id, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		comment.ID,
		comment.SnippetID,
		comment.AuthorID,
		comment.Content,
		comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating comment: %w", err)
	}

	return nil
}

// Like records a like. INSERT OR IGNORE absorbs the duplicate-key case, so
// a repeated like — including two racing requests from the same user — is a
// no-op success, never an error.
func (st *SnippetStore) Like(ctx context.Context, snippetID, userID string) error {
	if err := st.snippetExists(ctx, snippetID); err != nil {
		return err
	}

	_, err := st.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO likes (user_id, snippet_id, created_at) VALUES (?, ?, ?)`,
		userID, snippetID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: liking snippet %s: %w", snippetID, err)
	}

	return nil
}

// Unlike removes a like. Zero rows affected is fine — unliking something
// never liked is a no-op success.
func (st *SnippetStore) Unlike(ctx context.Context, snippetID, userID string) error {
	_, err := st.conn.ExecContext(ctx,
		`DELETE FROM likes WHERE user_id = ? AND snippet_id = ?`,
		userID, snippetID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: unliking snippet %s: %w", snippetID, err)
	}

	return nil
}

func (st *SnippetStore) snippetExists(ctx context.Context, id string) error {
	var exists bool
	err := st.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM snippets WHERE id = ?)`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlite: checking snippet %s: %w", id, err)
	}
	if !exists {
		return apperror.NotFound("snippet", id)
	}
	return nil
}

// fetchTags returns the tags of each listed snippet in one query.
func (st *SnippetStore) fetchTags(ctx context.Context, snippetIDs []string) (map[string][]string, error) {
	rows, err := st.conn.QueryContext(ctx,
		`SELECT snippet_id, tag FROM snippet_tags
		 WHERE snippet_id IN (`+placeholders(len(snippetIDs))+`)
		 ORDER BY tag`,
		toAny(snippetIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetching tags: %w", err)
	}
	defer rows.Close()

	tags := make(map[string][]string)
	for rows.Next() {
		var snippetID, tag string
		if err := rows.Scan(&snippetID, &tag); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		tags[snippetID] = append(tags[snippetID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tags: %w", err)
	}

	return tags, nil
}

// fetchAuthors resolves author ids to their public display fields in one
// query. Only id, name and email are selected — the password hash never
// enters the aggregate read path.
func (st *SnippetStore) fetchAuthors(ctx context.Context, userIDs []string) (map[string]*model.Author, error) {
	rows, err := st.conn.QueryContext(ctx,
		`SELECT id, name, email FROM users
		 WHERE id IN (`+placeholders(len(userIDs))+`)`,
		toAny(userIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetching authors: %w", err)
	}
	defer rows.Close()

	authors := make(map[string]*model.Author)
	for rows.Next() {
		var a model.Author
		if err := rows.Scan(&a.ID, &a.Name, &a.Email); err != nil {
			return nil, fmt.Errorf("sqlite: scanning author row: %w", err)
		}
		authors[a.ID] = &a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating authors: %w", err)
	}

	return authors, nil
}

// placeholders returns "?, ?, ..., ?" with n placeholders for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// escapeLike backslash-escapes LIKE wildcards so user input matches
// literally. Pair with ESCAPE '\' in the query.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
