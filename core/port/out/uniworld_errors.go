package out

import "errors"

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("not found")

// ErrStateNotFound is returned by the state store when a state token
// is unknown, expired, or already consumed.
var ErrStateNotFound = errors.New("oauth state not found")
