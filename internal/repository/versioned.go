package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrIncompatible is returned by Codec.Load when a persisted value has a
	// schema version with no migration path. The key has been deleted.
	ErrIncompatible = errors.New("persisted value has incompatible schema version")

	// ErrCorrupt is returned by Codec.Load when a persisted value is not
	// valid JSON in any known shape. The key has been deleted.
	ErrCorrupt = errors.New("persisted value is corrupt")
)

// Migration upgrades the items payload of version v to version v+1.
type Migration func(items json.RawMessage) (json.RawMessage, error)

// Identity is a Migration for version bumps that did not change the item shape.
func Identity(items json.RawMessage) (json.RawMessage, error) { return items, nil }

type envelope struct {
	Version int             `json:"version"`
	Items   json.RawMessage `json:"items"`
}

// Codec reads and writes a collection under one key wrapped as
// {"version": N, "items": [...]}. A bare JSON array is the unversioned
// legacy format and is read as version 0.
type Codec[T any] struct {
	Key     string
	Version int
	// Migrations[v] upgrades version v to v+1.
	Migrations map[int]Migration
}

// Save writes items at the codec's current version.
func (c Codec[T]) Save(ctx context.Context, kv KVStore, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", c.Key, err)
	}
	data, err := json.Marshal(envelope{Version: c.Version, Items: raw})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", c.Key, err)
	}
	if err := kv.Set(ctx, c.Key, data); err != nil {
		return fmt.Errorf("persist %s: %w", c.Key, err)
	}
	return nil
}

// Load reads the collection. A missing key yields (nil, nil). A value that
// is corrupt or cannot be migrated is deleted and reported with ErrCorrupt or
// ErrIncompatible; callers treat both as "no prior session".
func (c Codec[T]) Load(ctx context.Context, kv KVStore) ([]T, error) {
	data, err := kv.Get(ctx, c.Key)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", c.Key, err)
	}

	items, err := c.decode(data)
	if err != nil {
		if errors.Is(err, ErrCorrupt) || errors.Is(err, ErrIncompatible) {
			if derr := kv.Delete(ctx, c.Key); derr != nil {
				return nil, errors.Join(err, fmt.Errorf("discard %s: %w", c.Key, derr))
			}
		}
		return nil, err
	}
	return items, nil
}

func (c Codec[T]) decode(data []byte) ([]T, error) {
	var env envelope
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		env = envelope{Version: 0, Items: trimmed}
	case len(trimmed) > 0 && trimmed[0] == '{':
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", c.Key, ErrCorrupt, err)
		}
		if len(env.Items) == 0 {
			return nil, fmt.Errorf("%s: %w: missing items", c.Key, ErrCorrupt)
		}
	default:
		return nil, fmt.Errorf("%s: %w", c.Key, ErrCorrupt)
	}

	if env.Version > c.Version || env.Version < 0 {
		return nil, fmt.Errorf("%s version %d (current %d): %w", c.Key, env.Version, c.Version, ErrIncompatible)
	}

	raw := env.Items
	for v := env.Version; v < c.Version; v++ {
		migrate, ok := c.Migrations[v]
		if !ok {
			return nil, fmt.Errorf("%s: no migration from version %d: %w", c.Key, v, ErrIncompatible)
		}
		var err error
		if raw, err = migrate(raw); err != nil {
			return nil, fmt.Errorf("%s: migrate from version %d: %w: %v", c.Key, v, ErrIncompatible, err)
		}
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", c.Key, ErrCorrupt, err)
	}
	return items, nil
}
