// Package pebble provides a pebble-backed state.Store.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"github.com/rowflow/rowflow/state"
)

// Store persists boxed values in a pebble database. Keys are prefixed with
// the namespace (the operator's changelog topic name) so several stores can
// share one database directory.
type Store struct {
	db        *pebble.DB
	namespace []byte
}

// NewStore opens (or creates) the database under dir for the given
// namespace.
func NewStore(dir, namespace string) (*Store, error) {
	db, err := pebble.Open(filepath.Join(dir, namespace), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open state store %q: %w", namespace, err)
	}
	return &Store{db: db, namespace: append([]byte(namespace), 0)}, nil
}

func (s *Store) key(k *state.Value) []byte {
	return append(append([]byte(nil), s.namespace...), k.Encode()...)
}

func (s *Store) Get(_ context.Context, key *state.Value) (*state.Value, error) {
	raw, closer, err := s.db.Get(s.key(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, state.ErrKeyNotFound
		}
		return nil, err
	}
	defer closer.Close()

	buf := make([]byte, len(raw))
	copy(buf, raw)
	return state.Decode(buf)
}

func (s *Store) Set(_ context.Context, key, value *state.Value) error {
	// Treat nil (==tombstone) as delete.
	if value == nil {
		return s.db.Delete(s.key(key), &pebble.WriteOptions{})
	}
	return s.db.Set(s.key(key), value.Encode(), &pebble.WriteOptions{Sync: false})
}

func (s *Store) Delete(_ context.Context, key *state.Value) error {
	return s.db.Delete(s.key(key), &pebble.WriteOptions{})
}

func (s *Store) Flush(_ context.Context) error {
	return s.db.Flush()
}

func (s *Store) Close() error {
	if err := s.db.Flush(); err != nil {
		return err
	}
	return s.db.Close()
}

var _ state.Store = (*Store)(nil)
