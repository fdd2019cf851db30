// Package pkg contains all the sub-packages of the noteboard application.
//
// # Application Layer
//
// [github.com/noteboard/noteboard/pkg/noteboard] - command orchestration and
// the HTTP service. Use this package when adding commands or API endpoints.
//
// [github.com/noteboard/noteboard/pkg/board] - the client-side sync engine:
// note store, dirty tracking, debounced batch pushes, conflict resolution,
// and local-cache bootstrap. One Session per open board.
//
// # Domain Layer
//
// [github.com/noteboard/noteboard/pkg/models] - domain entities, permission
// bitmasks, and typed IDs shared by every layer.
//
// [github.com/noteboard/noteboard/pkg/sanitize] - allow-list HTML
// sanitization applied to all note content.
//
// [github.com/noteboard/noteboard/pkg/search] - diacritic-insensitive text
// matching and highlight injection.
//
// # Infrastructure Layer
//
// [github.com/noteboard/noteboard/pkg/store] - the backend boundary, with
// [github.com/noteboard/noteboard/pkg/store/memory] for development and
// tests and [github.com/noteboard/noteboard/pkg/store/postgres] for
// production.
//
// [github.com/noteboard/noteboard/pkg/client] - the REST client for the
// HTTP service; implements the same Backend interface as the stores.
//
// [github.com/noteboard/noteboard/pkg/localcache] - the SQLite-backed
// snapshot cache used for offline bootstrap.
package pkg
