package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type line struct {
	ID  string `json:"id"`
	Qty int    `json:"quantity"`
}

func newCodec() Codec[line] {
	return Codec[line]{
		Key:     KeyCart,
		Version: 1,
		Migrations: map[int]Migration{
			0: Identity,
		},
	}
}

func TestCodec_SaveWritesEnvelope(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, newCodec().Save(ctx, m, []line{{ID: "1", Qty: 2}}))

	raw, err := m.Get(ctx, KeyCart)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"items":[{"id":"1","quantity":2}]}`, string(raw))
}

func TestCodec_SaveNilWritesEmptyArray(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, newCodec().Save(ctx, m, nil))

	raw, err := m.Get(ctx, KeyCart)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"items":[]}`, string(raw))
}

func TestCodec_LoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	c := newCodec()

	require.NoError(t, c.Save(ctx, m, []line{{ID: "1", Qty: 2}, {ID: "2", Qty: 1}}))
	got, err := c.Load(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, []line{{ID: "1", Qty: 2}, {ID: "2", Qty: 1}}, got)
}

func TestCodec_LoadMissing(t *testing.T) {
	got, err := newCodec().Load(context.Background(), NewMemoryStore())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCodec_LoadLegacyArray(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Set(ctx, KeyCart, []byte(` [{"id":"7","quantity":3}]`)))

	got, err := newCodec().Load(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, []line{{ID: "7", Qty: 3}}, got)
}

func TestCodec_LoadRunsMigrations(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Set(ctx, KeyCart, []byte(`[{"id":"7","qty":3}]`)))

	renameQty := func(items json.RawMessage) (json.RawMessage, error) {
		var old []struct {
			ID  string `json:"id"`
			Qty int    `json:"qty"`
		}
		if err := json.Unmarshal(items, &old); err != nil {
			return nil, err
		}
		next := make([]line, 0, len(old))
		for _, o := range old {
			next = append(next, line{ID: o.ID, Qty: o.Qty})
		}
		return json.Marshal(next)
	}
	c := Codec[line]{Key: KeyCart, Version: 2, Migrations: map[int]Migration{0: renameQty, 1: Identity}}

	got, err := c.Load(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, []line{{ID: "7", Qty: 3}}, got)
}

func TestCodec_LoadDiscards(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		wantErr error
	}{
		{name: "future version", stored: `{"version":9,"items":[]}`, wantErr: ErrIncompatible},
		{name: "negative version", stored: `{"version":-1,"items":[]}`, wantErr: ErrIncompatible},
		{name: "not json", stored: `cart!`, wantErr: ErrCorrupt},
		{name: "truncated envelope", stored: `{"version":1,"items":[`, wantErr: ErrCorrupt},
		{name: "missing items", stored: `{"version":1}`, wantErr: ErrCorrupt},
		{name: "wrong item shape", stored: `{"version":1,"items":{"id":"1"}}`, wantErr: ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m := NewMemoryStore()
			require.NoError(t, m.Set(ctx, KeyCart, []byte(tt.stored)))

			got, err := newCodec().Load(ctx, m)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Nil(t, got)

			_, err = m.Get(ctx, KeyCart)
			assert.True(t, IsNotFound(err), "discarded value should be removed")
		})
	}
}

func TestCodec_LoadMissingMigration(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Set(ctx, KeyCart, []byte(`[]`)))

	c := Codec[line]{Key: KeyCart, Version: 1}
	_, err := c.Load(ctx, m)
	assert.ErrorIs(t, err, ErrIncompatible)
}
