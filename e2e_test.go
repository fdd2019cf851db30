package noteboard_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noteboard/noteboard/pkg/board"
	"github.com/noteboard/noteboard/pkg/client"
	"github.com/noteboard/noteboard/pkg/models"
	"github.com/noteboard/noteboard/pkg/noteboard"
	"github.com/noteboard/noteboard/pkg/store"
	"github.com/noteboard/noteboard/pkg/store/memory"
)

// startTestServer runs the HTTP service over the in-memory store and returns
// a REST client for it. The same Backend interface sits on both sides, so
// the whole sync protocol is exercised over the wire.
func startTestServer(t *testing.T) (*client.Client, *memory.Store) {
	t.Helper()
	mem := memory.New()
	app, err := noteboard.NewWithStore(mem)
	require.NoError(t, err)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return client.New(srv.URL), mem
}

func newSession(t *testing.T, backend store.Backend, user models.UserID) *board.Session {
	t.Helper()
	s, err := board.NewSession(board.Config{
		Backend:  backend,
		User:     user,
		Viewport: board.Viewport{Width: 1000, Height: 800},
		Debounce: time.Hour, // tests flush explicitly
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func mustUpsert(t *testing.T, s *board.Session, n models.Note) models.NoteID {
	t.Helper()
	id, err := s.UpsertLocal(n)
	require.NoError(t, err)
	return id
}

func TestSmokeCreateEditShareOverHTTP(t *testing.T) {
	api, _ := startTestServer(t)
	ctx := context.Background()

	owner := models.NewUserID()
	friend := models.NewUserID()

	// The owner creates and syncs two notes through the engine.
	session := newSession(t, api, owner)
	require.NoError(t, session.Start(ctx))
	first := mustUpsert(t, session, models.Note{Content: "<b>plán</b> schůzky", X: 100, Y: 100, Width: 200, Height: 150})
	mustUpsert(t, session, models.Note{Content: "nákupy", X: 400, Y: 100, Width: 200, Height: 150})
	require.NoError(t, session.Flush(ctx))

	notes, err := api.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, notes, 2)

	// Nothing is visible to the friend until the owner shares.
	notes, err = api.List(ctx, friend)
	require.NoError(t, err)
	require.Empty(t, notes)

	all := models.TargetAllUsers
	require.NoError(t, session.SetSharing(ctx, first, &all, nil, models.PermRead|models.PermWrite))

	notes, err = api.List(ctx, friend)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.True(t, notes[0].Permissions.Has(models.PermWrite))

	// The friend edits the shared note through their own session.
	friendSession := newSession(t, api, friend)
	require.NoError(t, friendSession.Start(ctx))
	mustUpsert(t, friendSession, models.Note{ID: first, Content: "upraveno kamarádem"})
	require.NoError(t, friendSession.Flush(ctx))

	require.NoError(t, session.Refresh(ctx))
	n, ok := session.Note(first)
	require.True(t, ok)
	require.Equal(t, "upraveno kamarádem", n.Content)
}

func TestConflictResolutionOverHTTP(t *testing.T) {
	api, _ := startTestServer(t)
	ctx := context.Background()
	user := models.NewUserID()

	a := newSession(t, api, user)
	require.NoError(t, a.Start(ctx))
	id := mustUpsert(t, a, models.Note{Content: "base"})
	require.NoError(t, a.Flush(ctx))

	b := newSession(t, api, user)
	require.NoError(t, b.Start(ctx))

	mustUpsert(t, a, models.Note{ID: id, Content: "committed first"})
	require.NoError(t, a.Flush(ctx))

	mustUpsert(t, b, models.Note{ID: id, Content: "committed second"})
	require.NoError(t, b.Flush(ctx))

	// B lost the race and was rehydrated from the server over HTTP.
	n, ok := b.Note(id)
	require.True(t, ok)
	require.Equal(t, "committed first", n.Content)
	require.False(t, b.Dirty(id))

	server, err := api.List(ctx, user)
	require.NoError(t, err)
	require.Len(t, server, 1)
	require.Equal(t, *server[0].Version, *n.Version)
}

func TestServerSideSearchOverHTTP(t *testing.T) {
	api, _ := startTestServer(t)
	ctx := context.Background()
	user := models.NewUserID()

	s := newSession(t, api, user)
	require.NoError(t, s.Start(ctx))
	mustUpsert(t, s, models.Note{Content: "<div>Úsek plánování</div>"})
	mustUpsert(t, s, models.Note{Content: "<div>nic</div>"})
	require.NoError(t, s.Flush(ctx))

	results, err := api.Search(ctx, user, "usek")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Contains(t, results[0].Content, "Úsek")
	require.Contains(t, results[0].Content, "<span", "matches carry highlight markup")
}

func TestShareTargetsDirectoryOverHTTP(t *testing.T) {
	api, mem := startTestServer(t)
	ctx := context.Background()
	user := models.NewUserID()

	mem.AddShareTarget(models.ShareTarget{ID: models.NewUserID().UUID(), Kind: models.ShareTargetUser, Name: "Alice"})
	mem.AddShareTarget(models.ShareTarget{ID: models.NewUserID().UUID(), Kind: models.ShareTargetDepartment, Name: "Engineering"})

	targets, err := api.ListShareTargets(ctx, user)
	require.NoError(t, err)
	require.Len(t, targets, 2)
}

func TestClearAllOverHTTP(t *testing.T) {
	api, _ := startTestServer(t)
	ctx := context.Background()

	alice := models.NewUserID()
	bob := models.NewUserID()

	sa := newSession(t, api, alice)
	require.NoError(t, sa.Start(ctx))
	mustUpsert(t, sa, models.Note{Content: "a1"})
	mustUpsert(t, sa, models.Note{Content: "a2"})
	require.NoError(t, sa.Flush(ctx))

	sb := newSession(t, api, bob)
	require.NoError(t, sb.Start(ctx))
	mustUpsert(t, sb, models.Note{Content: "b1"})
	require.NoError(t, sb.Flush(ctx))

	require.NoError(t, sa.ClearAll(ctx))

	notes, err := api.List(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, notes)
	notes, err = api.List(ctx, bob)
	require.NoError(t, err)
	require.Len(t, notes, 1, "one user's clear never touches another's notes")
}
