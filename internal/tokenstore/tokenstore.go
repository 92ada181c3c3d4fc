// Package tokenstore implements spec.md §4.2's TokenStore: a typed
// accessor over a storage.Backend holding the token map, serialized as
// one JSON blob for blob backends or split across per-token subkeys for
// keyed backends (transparently, from the caller's perspective).
package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hatchtoken/tokenmanager/internal/storage"
	"github.com/hatchtoken/tokenmanager/internal/tmerrors"
	"github.com/hatchtoken/tokenmanager/internal/token"
)

// Store is a typed accessor over a storage.Backend.
type Store struct {
	backend    storage.Backend
	storageKey string
}

// New creates a Store over backend, keyed at storageKey for blob
// backends (the key is unused by keyed backends, which derive their own
// per-token record names from storageKey + tokenKey, see keyName).
func New(backend storage.Backend, storageKey string) *Store {
	return &Store{backend: backend, storageKey: storageKey}
}

func (s *Store) keyName(tokenKey string) string {
	return s.storageKey + "_" + tokenKey
}

// Load returns every stored token. For blob backends this parses the
// single JSON object at storageKey; for keyed backends this isn't
// supported directly (keyed backends don't expose key enumeration), so
// Load returns an empty map and callers must track keys separately, or
// use GetOne per key — this mirrors spec.md §6's per-cookie record
// layout, where the backend has no "list all cookies with this prefix"
// primitive to rely on.
func (s *Store) Load(ctx context.Context) (map[string]token.Token, error) {
	if s.backend.Keyed() {
		return map[string]token.Token{}, nil
	}

	raw, ok, err := s.backend.GetItem(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("tokenstore: loading %s: %w", s.storageKey, err)
	}
	if !ok || raw == "" {
		return map[string]token.Token{}, nil
	}

	var m map[string]token.Token
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, &tmerrors.UnparseableStorageError{StorageKey: s.storageKey, Cause: err}
	}
	if m == nil {
		m = map[string]token.Token{}
	}
	return m, nil
}

// Save persists the entire token map in one synchronous write (only
// meaningful, and only called, for blob backends).
func (s *Store) Save(ctx context.Context, m map[string]token.Token) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("tokenstore: marshaling %s: %w", s.storageKey, err)
	}
	if err := s.backend.SetItem(ctx, "", string(data)); err != nil {
		return fmt.Errorf("tokenstore: saving %s: %w", s.storageKey, err)
	}
	return nil
}

// GetOne returns a single token by key, from either backend family.
func (s *Store) GetOne(ctx context.Context, key string) (token.Token, bool, error) {
	if s.backend.Keyed() {
		raw, ok, err := s.backend.GetItem(ctx, s.keyName(key))
		if err != nil {
			return token.Token{}, false, fmt.Errorf("tokenstore: loading %s: %w", s.keyName(key), err)
		}
		if !ok || raw == "" {
			return token.Token{}, false, nil
		}
		var t token.Token
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return token.Token{}, false, &tmerrors.UnparseableStorageError{StorageKey: s.keyName(key), Cause: err}
		}
		return t, true, nil
	}

	m, err := s.Load(ctx)
	if err != nil {
		return token.Token{}, false, err
	}
	t, ok := m[key]
	return t, ok, nil
}

// SetOne writes a single token, as a load-mutate-store under the
// backend's own write atomicity (spec.md §4.2).
func (s *Store) SetOne(ctx context.Context, key string, t token.Token) error {
	if s.backend.Keyed() {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("tokenstore: marshaling %s: %w", key, err)
		}
		if err := s.backend.SetItem(ctx, s.keyName(key), string(data)); err != nil {
			return fmt.Errorf("tokenstore: saving %s: %w", s.keyName(key), err)
		}
		return nil
	}

	m, err := s.Load(ctx)
	if err != nil {
		return err
	}
	m[key] = t
	return s.Save(ctx, m)
}

// DeleteOne removes a single token.
func (s *Store) DeleteOne(ctx context.Context, key string) error {
	if s.backend.Keyed() {
		if err := s.backend.RemoveItem(ctx, s.keyName(key)); err != nil {
			return fmt.Errorf("tokenstore: removing %s: %w", s.keyName(key), err)
		}
		return nil
	}

	m, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return s.Save(ctx, m)
}

// ClearAll removes every stored token. Keyed backends have no "list all
// records with this prefix" primitive to drive per-key deletion (Load
// returns an empty map for them), so ClearAll delegates straight to the
// backend's own Clear — for Cookie that wipes the whole jar in one call,
// which is the only way a keyed backend can honor this operation.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("tokenstore: clearing %s: %w", s.storageKey, err)
	}
	return nil
}

// WriteBundle overwrites the stored map's verbatim content with m in a
// single backend write, for blob backends (spec.md §4.8's setTokens: "a
// single backend write"). Keyed backends instead get one record write per
// entry of m, since they have no single-blob write primitive; records not
// in m are left in place (see keyedKeys).
func (s *Store) WriteBundle(ctx context.Context, m map[string]token.Token) error {
	if s.backend.Keyed() {
		existing, err := s.keyedKeys(ctx, m)
		if err != nil {
			return err
		}
		for k := range existing {
			if _, keep := m[k]; !keep {
				if err := s.backend.RemoveItem(ctx, s.keyName(k)); err != nil {
					return fmt.Errorf("tokenstore: removing %s: %w", s.keyName(k), err)
				}
			}
		}
		for k, t := range m {
			if err := s.SetOne(ctx, k, t); err != nil {
				return err
			}
		}
		return nil
	}
	return s.Save(ctx, m)
}

// keyedKeys is a best-effort helper: keyed backends can't enumerate
// their own records, so it returns only m's own keys. WriteBundle's
// removal pass therefore finds nothing to remove on a keyed backend;
// Manager.SetTokens does its own removal from knownKeys instead of
// calling WriteBundle for keyed backends.
func (s *Store) keyedKeys(ctx context.Context, m map[string]token.Token) (map[string]struct{}, error) {
	existing := map[string]struct{}{}
	for k := range m {
		existing[k] = struct{}{}
	}
	return existing, nil
}
