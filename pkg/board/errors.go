package board

import "errors"

// ErrValidation marks failures caught before any network call, such as a
// sharing mode selected without a target. They are surfaced inline and never
// sent to the server.
var ErrValidation = errors.New("validation failed")

// ErrPermissionDenied marks operations refused for lack of rights, for
// example replacing the sharing policy of a note the session user does not
// own. The client-side check is advisory; the server remains the ultimate
// authority.
var ErrPermissionDenied = errors.New("permission denied")

// ErrClosed is returned by operations on a session that has been closed.
var ErrClosed = errors.New("session closed")
