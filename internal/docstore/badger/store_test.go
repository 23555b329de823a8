package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillsociety/auditions/internal/docstore"
	"github.com/quillsociety/auditions/internal/docstore/docstoretest"
)

func TestContract(t *testing.T) {
	docstoretest.Run(t, func(t *testing.T) docstore.Store {
		e, err := Open(InMemoryConfig())
		require.NoError(t, err)
		s := docstore.New(e)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0

	e, err := Open(cfg)
	require.NoError(t, err)
	s := docstore.New(e)
	require.NoError(t, s.Set(context.Background(), "c", "kept", map[string]any{"v": "x"}))
	require.NoError(t, s.Close())

	e, err = Open(cfg)
	require.NoError(t, err)
	s = docstore.New(e)
	defer s.Close()
	doc, err := s.Get(context.Background(), "c", "kept")
	require.NoError(t, err)
	assert.Equal(t, "x", doc.Data["v"])
}

func TestPrefixIsolation(t *testing.T) {
	e, err := Open(InMemoryConfig())
	require.NoError(t, err)
	s := docstore.New(e)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ab", "1", map[string]any{}))
	require.NoError(t, s.Set(ctx, "a", "b1", map[string]any{}))

	docs, err := s.Query(ctx, "a", docstore.Query{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b1", docs[0].ID)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
