package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	var s ObjectStore = NewMemoryStore()
	mem := s.(*MemoryStore)

	require.NoError(t, s.Put(ctx, "companies/1/document/a.pdf", strings.NewReader("pdf"), 3, "application/pdf"))
	assert.True(t, mem.Has("companies/1/document/a.pdf"))

	require.NoError(t, s.Copy(ctx, "companies/1/document/a.pdf", "companies/1/document/Contratti/a.pdf"))
	require.NoError(t, s.Remove(ctx, "companies/1/document/a.pdf"))
	assert.False(t, mem.Has("companies/1/document/a.pdf"))
	assert.True(t, mem.Has("companies/1/document/Contratti/a.pdf"))

	assert.Error(t, s.Copy(ctx, "missing", "other"))

	url, err := s.PresignedURL(ctx, "companies/1/document/Contratti/a.pdf", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "memory://companies/1/document/Contratti/a.pdf", url)
}

func TestDisabledStore(t *testing.T) {
	ctx := context.Background()
	var s ObjectStore = disabledStore{}
	assert.ErrorIs(t, s.Put(ctx, "k", strings.NewReader(""), 0, ""), ErrNotConfigured)
	_, err := s.PresignedURL(ctx, "k", "k")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

// brokenCopyStore fails copies of one source key.
type brokenCopyStore struct {
	*MemoryStore
	broken string
}

func (s brokenCopyStore) Copy(ctx context.Context, src, dst string) error {
	if src == s.broken {
		return errors.New("bucket unavailable")
	}
	return s.MemoryStore.Copy(ctx, src, dst)
}

func TestCopyAll(t *testing.T) {
	ctx := context.Background()
	seed := func() *MemoryStore {
		mem := NewMemoryStore()
		for _, k := range []string{"projects/4/photo/Cantiere/a.jpg", "projects/4/photo/Cantiere/Scavi/b.jpg", "projects/4/photo/Cantiere/Scavi/c.jpg"} {
			require.NoError(t, mem.Put(ctx, k, strings.NewReader(k), int64(len(k)), "image/jpeg"))
		}
		return mem
	}
	moves := []Move{
		{From: "projects/4/photo/Cantiere/a.jpg", To: "projects/4/photo/Lavori/a.jpg"},
		{From: "projects/4/photo/Cantiere/Scavi/b.jpg", To: "projects/4/photo/Lavori/Scavi/b.jpg"},
		{From: "projects/4/photo/Cantiere/Scavi/c.jpg", To: "projects/4/photo/Lavori/Scavi/c.jpg"},
	}

	t.Run("copies every object", func(t *testing.T) {
		mem := seed()
		require.NoError(t, CopyAll(ctx, mem, moves))
		for _, m := range moves {
			assert.True(t, mem.Has(m.From), m.From)
			assert.True(t, mem.Has(m.To), m.To)
		}
		RemoveAll(ctx, mem, Sources(moves))
		for _, m := range moves {
			assert.False(t, mem.Has(m.From), m.From)
		}
	})

	t.Run("a failed copy removes the copies already made", func(t *testing.T) {
		mem := seed()
		s := brokenCopyStore{MemoryStore: mem, broken: moves[2].From}
		err := CopyAll(ctx, s, moves)
		require.Error(t, err)
		assert.Contains(t, err.Error(), moves[2].From)
		for _, m := range moves {
			assert.True(t, mem.Has(m.From), m.From)
			assert.False(t, mem.Has(m.To), m.To)
		}
	})
}
