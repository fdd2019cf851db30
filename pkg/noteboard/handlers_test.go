package noteboard

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noteboard/noteboard/pkg/models"
	"github.com/noteboard/noteboard/pkg/store"
	"github.com/noteboard/noteboard/pkg/store/memory"
)

func newTestApp(t *testing.T) (*App, *memory.Store) {
	t.Helper()
	mem := memory.New()
	app, err := NewWithStore(mem)
	require.NoError(t, err)
	return app, mem
}

func doJSON(t *testing.T, app *App, method, path string, user models.UserID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if !user.IsZero() {
		req.Header.Set("Authorization", "Bearer "+user.String())
	}
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	return rec
}

func TestMissingAuthorizationRejected(t *testing.T) {
	app, _ := newTestApp(t)
	rec := doJSON(t, app, http.MethodGet, "/api/notes", models.UserID{}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBulkUpsertSanitizesOnServer(t *testing.T) {
	app, mem := newTestApp(t)
	user := models.NewUserID()
	id := models.NewNoteID()

	entries := []store.UpsertEntry{{
		ClientKey: id.ClientKey(),
		Data:      models.Note{Content: `<script>alert(1)</script><b>safe</b>`},
	}}
	rec := doJSON(t, app, http.MethodPost, "/api/notes/bulk", user, entries)
	require.Equal(t, http.StatusOK, rec.Code)

	notes, err := mem.List(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "<b>safe</b>", notes[0].Content, "the server never trusts client sanitization")
}

func TestBulkUpsertReportsPerEntryOutcomes(t *testing.T) {
	app, _ := newTestApp(t)
	user := models.NewUserID()
	id := models.NewNoteID()

	rec := doJSON(t, app, http.MethodPost, "/api/notes/bulk", user, []store.UpsertEntry{{
		ClientKey: id.ClientKey(), Data: models.Note{Content: "v1"},
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	var results []store.UpsertResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&results))
	require.Len(t, results, 1)
	require.True(t, results[0].OK())

	// A stale-version update and a fresh create travel in one batch; the
	// batch succeeds with mixed outcomes.
	stale := int64(99)
	other := models.NewNoteID()
	rec = doJSON(t, app, http.MethodPost, "/api/notes/bulk", user, []store.UpsertEntry{
		{RemoteID: results[0].RemoteID, ClientKey: id.ClientKey(), Version: &stale, Data: models.Note{Content: "stale"}},
		{ClientKey: other.ClientKey(), Data: models.Note{Content: "new"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&results))
	require.Len(t, results, 2)
	require.Equal(t, store.StatusConflict, results[0].Status)
	require.True(t, results[1].OK())
}

func TestDeleteForeignNoteForbidden(t *testing.T) {
	app, mem := newTestApp(t)
	owner := models.NewUserID()
	intruder := models.NewUserID()

	id := models.NewNoteID()
	results, err := mem.BulkUpsert(context.Background(), owner, []store.UpsertEntry{{
		ClientKey: id.ClientKey(), Data: models.Note{Content: "mine"},
	}})
	require.NoError(t, err)

	rec := doJSON(t, app, http.MethodDelete, "/api/notes/"+results[0].RemoteID.String(), intruder, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSearchMatchesEntityBearingText(t *testing.T) {
	app, _ := newTestApp(t)
	user := models.NewUserID()
	id := models.NewNoteID()

	// The sanitizer stores "&" as "&amp;"; the match must still see the
	// decoded character data.
	rec := doJSON(t, app, http.MethodPost, "/api/notes/bulk", user, []store.UpsertEntry{{
		ClientKey: id.ClientKey(), Data: models.Note{Content: "<div>R & D plány</div>"},
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, app, http.MethodGet, "/api/notes/search?q=r+%26+d", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var matched []models.Note
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&matched))
	require.Len(t, matched, 1)
	require.Contains(t, matched[0].Content, "<span")
}

func TestSearchEndpointRequiresQuery(t *testing.T) {
	app, _ := newTestApp(t)
	rec := doJSON(t, app, http.MethodGet, "/api/notes/search", models.NewUserID(), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	rec := doJSON(t, app, http.MethodGet, "/health", models.UserID{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	require.Equal(t, "healthy", health["status"])
}
