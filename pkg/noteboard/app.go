package noteboard

import (
	"fmt"
	"log"
	"os"

	"github.com/noteboard/noteboard/pkg/store"
	"github.com/noteboard/noteboard/pkg/store/memory"
	"github.com/noteboard/noteboard/pkg/store/postgres"
)

// Config holds application configuration.
// A production system would use structured config with validation,
// TLS settings, connection pool configs, and observability endpoints.
type Config struct {
	// PostgresDSN is the connection string for the PostgreSQL backend.
	// Ignored when MemoryOnly is set.
	PostgresDSN string

	// MemoryOnly selects the in-memory backend instead of PostgreSQL.
	// Intended for local development and tests; data does not survive a
	// restart.
	MemoryOnly bool

	// ServerPort is the TCP port the HTTP server binds to.
	ServerPort string
}

// App holds the application state: the configured backend and the handlers
// that expose it over HTTP.
type App struct {
	store  store.Backend
	config *Config
}

// New creates a new application instance, connecting to the configured
// backend.
func New(config *Config) (*App, error) {
	var backend store.Backend
	if config.MemoryOnly {
		backend = memory.New()
		log.Println("Using in-memory store")
	} else {
		pg, err := postgres.New(config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		backend = pg
		log.Println("Connected to PostgreSQL")
	}

	return &App{
		store:  backend,
		config: config,
	}, nil
}

// NewWithStore creates an application over an already-constructed backend.
// Used by tests to run the HTTP service against the in-memory store.
func NewWithStore(backend store.Backend) (*App, error) {
	return &App{
		store:  backend,
		config: &Config{MemoryOnly: true},
	}, nil
}

// Close closes the application and its resources.
func (a *App) Close() error {
	if closer, ok := a.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Store returns the underlying backend (useful for testing).
func (a *App) Store() store.Backend {
	return a.store
}

// getEnv retrieves an environment variable value with a fallback default.
// Empty values are treated the same as unset, which is what container
// environments usually want.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
