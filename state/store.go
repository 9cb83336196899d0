package state

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get for absent keys.
var ErrKeyNotFound = errors.New("state: key not found")

// Store is the opaque backend a stateful pipeline step addresses. Each
// store instance is scoped to one namespace, the deterministic changelog
// topic name derived for the operator, which makes its contents
// recoverable after a restart without any side table.
type Store interface {
	Get(ctx context.Context, key *Value) (*Value, error)
	Set(ctx context.Context, key, value *Value) error
	Delete(ctx context.Context, key *Value) error
	Flush(ctx context.Context) error
	Close() error
}
