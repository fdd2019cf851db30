package noteboard

import (
	"context"
	"fmt"
	"log"

	"github.com/noteboard/noteboard/pkg/store/postgres"
)

// Migrate applies database schema migrations for the configured backend.
// The in-memory store has no schema and migrating it is a no-op.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	pg, ok := a.store.(*postgres.Store)
	if !ok {
		log.Println("In-memory store selected, nothing to migrate")
		return nil
	}
	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	log.Println("Schema migration complete")
	return nil
}
