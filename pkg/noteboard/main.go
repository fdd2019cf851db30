package noteboard

import (
	"context"
	"fmt"
)

// Main is the entry point for the noteboard service. It parses args,
// builds the [App], and executes the selected command. Taking a context and
// args (rather than reading globals) lets tests drive the full binary
// without building it.
//
// # Environment Variables
//
//	POSTGRES_DSN - PostgreSQL connection string (default: constructed from
//	               the -postgres-port flag)
func Main(ctx context.Context, args []string) error {
	cmd, config, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	app, err := New(config)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	switch c := cmd.(type) {
	case *MigrateCommand:
		if err := app.Migrate(ctx, c); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case *RunCommand:
		if err := app.Run(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}

	return nil
}
