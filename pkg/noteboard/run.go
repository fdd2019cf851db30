package noteboard

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Run starts the HTTP server exposing the note store REST API.
//
// # API Endpoints
//
// Health check:
//
//	GET    /api/health                    - Service health status
//
// Notes (all authenticated via Authorization: Bearer <user-id>):
//
//	GET    /api/notes                     - List notes visible to the caller
//	POST   /api/notes/bulk                - Bulk upsert with per-entry outcomes
//	DELETE /api/notes/{id}                - Delete one note (owner only)
//	DELETE /api/notes                     - Delete all notes owned by the caller
//	GET    /api/notes/search?q=...        - Diacritic-insensitive search with highlighting
//
// Sharing:
//
//	GET    /api/notes/{id}/shares         - List the note's grants (owner only)
//	PUT    /api/notes/{id}/shares         - Replace the note's sharing policy (owner only)
//	DELETE /api/notes/{id}/shares         - Revoke a single grant (owner only)
//	GET    /api/share-targets             - Directory of sharable users and departments
//
// Authentication is a stub: the bearer token is the user's UUID. A real
// deployment would sit behind a gateway that validates a session token and
// forwards the resolved identity.
//
// The method blocks until the context is cancelled or a fatal server error
// occurs. On graceful shutdown it allows up to 5 seconds for active
// requests to complete.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	log.Printf("Starting noteboard server on %s", addr)

	server := &http.Server{
		Addr:    addr,
		Handler: a.Handler(),
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// Handler builds the full route table. Exposed so httptest-based
// integration tests can exercise the API without binding a port.
func (a *App) Handler() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", a.handleHealth).Methods("GET")

	api.HandleFunc("/notes", a.handleListNotes).Methods("GET")
	api.HandleFunc("/notes", a.handleClearNotes).Methods("DELETE")
	api.HandleFunc("/notes/bulk", a.handleBulkUpsert).Methods("POST")
	api.HandleFunc("/notes/search", a.handleSearchNotes).Methods("GET")
	api.HandleFunc("/notes/{id}", a.handleDeleteNote).Methods("DELETE")

	api.HandleFunc("/notes/{id}/shares", a.handleListShares).Methods("GET")
	api.HandleFunc("/notes/{id}/shares", a.handleGrantShare).Methods("PUT")
	api.HandleFunc("/notes/{id}/shares", a.handleRevokeShare).Methods("DELETE")
	api.HandleFunc("/share-targets", a.handleListShareTargets).Methods("GET")

	// Health check route (outside of /api prefix)
	router.HandleFunc("/health", a.handleHealth).Methods("GET")

	return router
}
