package noteboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/noteboard/noteboard/pkg/models"
	"github.com/noteboard/noteboard/pkg/sanitize"
	"github.com/noteboard/noteboard/pkg/search"
	"github.com/noteboard/noteboard/pkg/store"
)

// userFromRequest resolves the authenticated caller from the Authorization
// header. Authentication is a stub: the bearer token is the user's UUID,
// standing in for the identity a real gateway would resolve from a session
// token.
func userFromRequest(r *http.Request) (models.UserID, error) {
	auth := r.Header.Get("Authorization")
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(auth, bearerPrefix) {
		auth = auth[len(bearerPrefix):]
	}
	if auth == "" {
		return models.UserID{}, errors.New("missing authorization")
	}
	return models.ParseUserID(auth)
}

// handleListNotes returns the full snapshot of notes visible to the caller:
// notes they own plus notes shared in to them, with the caller's effective
// permission mask on each shared note.
func (a *App) handleListNotes(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or missing authorization")
		return
	}

	notes, err := a.store.List(r.Context(), user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if notes == nil {
		notes = []models.Note{}
	}
	respondJSON(w, http.StatusOK, notes)
}

// handleBulkUpsert applies a batch of creates and updates and returns one
// result per entry. Per-entry failures (version conflicts, permission
// rejections) come back in the results with status 200; only transport or
// storage failures fail the whole request.
//
// Content is sanitized here as well as in the client engine: the server
// never trusts a caller to have done it.
func (a *App) handleBulkUpsert(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or missing authorization")
		return
	}

	var entries []store.UpsertEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	for i := range entries {
		entries[i].Data.Content = sanitize.Sanitize(entries[i].Data.Content)
	}

	results, err := a.store.BulkUpsert(r.Context(), user, entries)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (a *App) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or missing authorization")
		return
	}

	id, err := models.ParseRemoteID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid note ID")
		return
	}

	deleted, err := a.store.Delete(r.Context(), user, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Note not found")
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// handleClearNotes deletes every note the caller owns. Shared-in notes are
// untouched; clearing your board never destroys someone else's data.
func (a *App) handleClearNotes(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or missing authorization")
		return
	}

	count, err := a.store.ClearAll(r.Context(), user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": count})
}

// handleSearchNotes performs a diacritic- and case-insensitive search over
// the text of the caller's visible notes. Matching notes come back with
// their content rewritten to wrap every occurrence in a highlight span;
// markup is never matched, only text.
func (a *App) handleSearchNotes(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or missing authorization")
		return
	}

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		respondError(w, http.StatusBadRequest, "Missing query parameter q")
		return
	}

	notes, err := a.store.List(r.Context(), user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	matched := []models.Note{}
	for _, n := range notes {
		if len(search.FindRanges(search.Text(n.Content), query)) == 0 {
			continue
		}
		n.Content = search.Highlight(n.Content, query)
		matched = append(matched, n)
	}
	respondJSON(w, http.StatusOK, matched)
}

func (a *App) handleListShares(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or missing authorization")
		return
	}

	id, err := models.ParseRemoteID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid note ID")
		return
	}

	grants, err := a.store.ShareList(r.Context(), user, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if grants == nil {
		grants = []models.ShareGrant{}
	}
	respondJSON(w, http.StatusOK, grants)
}

// handleGrantShare replaces the note's sharing policy with the grant in the
// request body. The store revokes all existing grants first; sharing is a
// single active policy per note.
func (a *App) handleGrantShare(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or missing authorization")
		return
	}

	id, err := models.ParseRemoteID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid note ID")
		return
	}

	var grant models.ShareGrant
	if err := json.NewDecoder(r.Body).Decode(&grant); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	grant.NoteRemoteID = id

	created, err := a.store.ShareGrant(r.Context(), user, grant)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// handleRevokeShare removes the grant matching the (target_type, target_id)
// query parameters.
func (a *App) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or missing authorization")
		return
	}

	id, err := models.ParseRemoteID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid note ID")
		return
	}

	targetType := models.ShareTargetType(r.URL.Query().Get("target_type"))
	var targetID *uuid.UUID
	if raw := r.URL.Query().Get("target_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid target ID")
			return
		}
		targetID = &parsed
	}

	revoked, err := a.store.ShareRevoke(r.Context(), user, id, targetType, targetID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if !revoked {
		respondError(w, http.StatusNotFound, "Grant not found")
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (a *App) handleListShareTargets(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or missing authorization")
		return
	}

	targets, err := a.store.ListShareTargets(r.Context(), user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if targets == nil {
		targets = []models.ShareTarget{}
	}
	respondJSON(w, http.StatusOK, targets)
}

// handleHealth provides the health check endpoint used by load balancers
// and deployment pipelines.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// respondStoreError maps store sentinel errors to their HTTP status.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondJSON sends a JSON response with the specified status and payload.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

// respondError sends a standardized JSON error response:
//
//	{"error": "error message here"}
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
