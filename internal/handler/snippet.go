package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/auth"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/service"
)

// SnippetHandler manages the snippet endpoints: listing, creation, detail,
// comments and likes.
//
// VIEWER IDENTITY:
// Listing and detail are public but viewer-aware — an authenticated request
// additionally gets its own like status on each snippet. The handler reads
// the optional identity from the request context; an anonymous viewer just
// means an empty viewer ID flows down to the service.
type SnippetHandler struct {
	snippets *service.SnippetService
	logger   *slog.Logger
}

// NewSnippetHandler creates a new SnippetHandler.
func NewSnippetHandler(snippets *service.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{snippets: snippets, logger: logger}
}

// createSnippetRequest is the expected body for POST /snippets.
type createSnippetRequest struct {
	Title    string   `json:"title"`
	Code     string   `json:"code"`
	Language string   `json:"language"`
	Tags     []string `json:"tags"`
}

// commentRequest is the expected body for POST /snippets/{id}/comment.
type commentRequest struct {
	Content string `json:"content"`
}

// viewerID returns the authenticated user's ID, or "" for anonymous requests.
func viewerID(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.ID
	}
	return ""
}

// HandleList returns snippets matching the optional filters, newest first.
//
// HTTP: GET /snippets?q=python&authorId=user-123
//
// A storage failure here degrades to an empty list (with a 500) rather
// than an error payload — the listing is the app's landing content, and
// the frontend renders whatever array it gets. The failure still gets
// logged with full detail.
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	authorID := r.URL.Query().Get("authorId")

	snippets, err := h.snippets.List(r.Context(), query, authorID, viewerID(r))
	if err != nil {
		h.logger.Error("snippet list failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, []model.SnippetSummary{})
		return
	}
	if snippets == nil {
		snippets = []model.SnippetSummary{}
	}

	writeJSON(w, http.StatusOK, snippets)
}

// HandleCreate saves a new snippet owned by the authenticated user.
//
// HTTP: POST /snippets
// REQUEST BODY: {"title":"Quicksort","code":"func qs() {}","language":"go","tags":["sorting"]}
// Auth: Required
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSnippetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	snippet, err := h.snippets.Create(r.Context(), viewerID(r), req.Title, req.Code, req.Language, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("snippet created",
		slog.String("snippetID", snippet.ID),
		slog.String("authorID", snippet.AuthorID),
	)
	writeJSON(w, http.StatusCreated, snippet)
}

// HandleGet returns one snippet with its comments and like aggregate.
//
// HTTP: GET /snippets/{id}
//
// likedByMe is viewer-scoped: it reflects the requesting session, and is
// always false for anonymous viewers.
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, apperror.ValidationFailed("id", "snippet ID is required"))
		return
	}

	detail, err := h.snippets.Get(r.Context(), id, viewerID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// HandleComment adds a comment to a snippet.
//
// HTTP: POST /snippets/{id}/comment
// REQUEST BODY: {"content":"nice trick"}
// Auth: Required
func (h *SnippetHandler) HandleComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	comment, err := h.snippets.AddComment(r.Context(), r.PathValue("id"), viewerID(r), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Comment added",
		"comment": comment,
	})
}

// HandleLike records that the authenticated user likes a snippet.
//
// HTTP: POST /snippets/{id}/like
// Auth: Required
//
// Liking an already-liked snippet is a no-op success, so the frontend can
// fire-and-forget without tracking state.
func (h *SnippetHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	if err := h.snippets.Like(r.Context(), r.PathValue("id"), viewerID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleUnlike removes the authenticated user's like, if any.
//
// HTTP: DELETE /snippets/{id}/like
// Auth: Required
//
// Unliking a snippet that was never liked is equally a no-op success.
func (h *SnippetHandler) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	if err := h.snippets.Unlike(r.Context(), r.PathValue("id"), viewerID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
