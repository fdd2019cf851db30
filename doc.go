// Package noteboard is a collaborative sticky-note board: freely positioned,
// richly formatted notes kept consistent between concurrent user sessions, a
// local persistent cache, and a shared multi-user backend.
//
// # Features
//
//   - Debounced batch synchronization: local edits coalesce into a single
//     bulk upsert after a quiet period, with at most one request in flight
//   - Optimistic concurrency: every accepted write advances a server-side
//     version; concurrent writers resolve last-committed-wins per note
//   - Conflict rehydration: a losing writer is refreshed from the server
//     without clobbering in-progress gestures or live editors
//   - Offline bootstrap: the last known collection persists to a local
//     SQLite cache and migrates up once when the server starts empty
//   - Sharing: per-note grants to everyone, a department, or a single user,
//     carrying a read/write/comment permission bitmask
//   - Rich text safety: an allow-list HTML sanitizer normalizes all content
//     before it is stored or transmitted
//   - Search: diacritic- and case-insensitive matching with highlight
//     markup injected only into text, never into tags
//
// # Architecture Overview
//
// The engine, the boundary, and the service are separate packages:
//
//   - [github.com/noteboard/noteboard/pkg/board] holds the per-board sync
//     engine; one Session per open board
//   - [github.com/noteboard/noteboard/pkg/store] defines the backend
//     boundary, with in-memory and PostgreSQL implementations
//   - [github.com/noteboard/noteboard/pkg/noteboard] exposes the backend
//     over HTTP, and [github.com/noteboard/noteboard/pkg/client] is its
//     REST client, itself a store.Backend
//
// The same engine therefore runs against an in-process store in tests and a
// remote service in production, with identical semantics.
//
// # Getting Started
//
//	noteboard migrate          # create the PostgreSQL schema
//	noteboard run              # start the HTTP service
//	noteboard -memory-only run # development server without a database
package noteboard
