// Package tokenstore persists the bearer token pair between runs. It is the
// only client state that survives a restart.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when nothing is stored.
var ErrNotFound = errors.New("tokenstore: no tokens stored")

// Tokens is the access/refresh pair issued by the backend.
type Tokens struct {
	Access  string    `json:"access"`
	Refresh string    `json:"refresh"`
	SavedAt time.Time `json:"saved_at"`
}

// Empty reports whether there is no access token.
func (t Tokens) Empty() bool { return t.Access == "" }

// Store loads, saves and clears the token pair.
type Store interface {
	Load(ctx context.Context) (Tokens, error)
	Save(ctx context.Context, t Tokens) error
	Clear(ctx context.Context) error
}

var (
	_ Store = (*File)(nil)
	_ Store = (*Redis)(nil)
)
