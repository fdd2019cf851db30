package noteboard

// Command represents a discrete application operation with its specific
// configuration.
//
// Each command implementation encapsulates the parameters needed for its
// operation, while [Main] handles routing and execution through the [App]
// struct. Commands are created by [Parse] from command-line arguments.
//
// Current command implementations:
//   - [RunCommand]: HTTP server startup and operation
//   - [MigrateCommand]: database schema migration
type Command interface {
	// Name returns the command identifier used for routing. The returned
	// name matches the CLI sub-command name.
	Name() string
}

// RunCommand starts the HTTP server that exposes the note store REST API.
//
// The server runs until the context passed to [App.Run] is cancelled, then
// shuts down gracefully, letting in-flight requests complete.
type RunCommand struct {
	// Currently empty - all configuration comes from App.Config.
}

// Name returns "run", matching the CLI sub-command.
func (c *RunCommand) Name() string {
	return "run"
}

// MigrateCommand initializes or updates the database schema to match the
// current data model. This only handles structural changes (tables, columns,
// indexes); it never moves or deletes data, and it is safe to run multiple
// times.
//
// It applies only to the PostgreSQL backend; the in-memory store needs no
// schema.
type MigrateCommand struct {
	// Currently empty - all configuration comes from App.Config.
}

// Name returns "migrate", matching the CLI sub-command.
func (c *MigrateCommand) Name() string {
	return "migrate"
}
