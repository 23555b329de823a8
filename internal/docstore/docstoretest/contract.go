// Package docstoretest holds a behaviour suite every docstore engine must pass.
package docstoretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillsociety/auditions/internal/docstore"
)

// Factory returns a fresh, empty store. Cleanup is registered on t.
type Factory func(t *testing.T) docstore.Store

// Run exercises the engine behind newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s docstore.Store)
	}{
		{"SetGet", testSetGet},
		{"SetMerge", testSetMerge},
		{"UpdatePaths", testUpdatePaths},
		{"UpdateMissing", testUpdateMissing},
		{"Delete", testDelete},
		{"QueryOrder", testQueryOrder},
		{"BatchAtomic", testBatchAtomic},
		{"BatchReuse", testBatchReuse},
		{"ConcurrentFieldUpdates", testConcurrentFieldUpdates},
		{"MergeIfExists", testMergeIfExists},
		{"MergeIfAbsent", testMergeIfAbsent},
		{"Watch", testWatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func testSetGet(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "things", "a", map[string]any{
		"name":  "alpha",
		"count": 3,
		"tags":  []string{"x", "y"},
		"inner": map[string]any{"ok": true},
	}))
	doc, err := s.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", doc.ID)
	assert.Equal(t, "alpha", doc.Data["name"])
	assert.Equal(t, float64(3), doc.Data["count"])
	assert.Equal(t, []any{"x", "y"}, doc.Data["tags"])
	assert.Equal(t, map[string]any{"ok": true}, doc.Data["inner"])

	_, err = s.Get(ctx, "things", "missing")
	assert.True(t, errors.Is(err, docstore.ErrNotFound))

	require.NoError(t, s.Set(ctx, "things", "a", map[string]any{"name": "beta"}))
	doc, err = s.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "beta"}, doc.Data)
}

func testSetMerge(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "things", "m", map[string]any{
		"keep": "yes",
		"drop": "soon",
		"nested": map[string]any{
			"a": 1,
			"b": 2,
		},
	}))
	require.NoError(t, s.Set(ctx, "things", "m", map[string]any{
		"drop":   docstore.DeleteField,
		"nested": map[string]any{"b": 20, "c": 30},
	}, docstore.Merge()))

	doc, err := s.Get(ctx, "things", "m")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"keep":   "yes",
		"nested": map[string]any{"a": float64(1), "b": float64(20), "c": float64(30)},
	}, doc.Data)

	require.NoError(t, s.Set(ctx, "things", "fresh", map[string]any{"x": "1"}, docstore.Merge()))
	doc, err = s.Get(ctx, "things", "fresh")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": "1"}, doc.Data)

	err = s.Set(ctx, "things", "bad", map[string]any{"x": docstore.DeleteField})
	assert.True(t, errors.Is(err, docstore.ErrInvalidArgument))
}

func testUpdatePaths(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "things", "u", map[string]any{
		"questions": map[string]any{
			"q1": map[string]any{"text": "old", "response": nil},
			"q2": map[string]any{"text": "gone", "response": nil},
		},
	}))
	require.NoError(t, s.Update(ctx, "things", "u", map[string]any{
		"questions.q1.text":     "new",
		"questions.q2":          docstore.DeleteField,
		"questions.q3.text":     "added",
		"questions.q3.response": nil,
		"completedAt":           int64(1700000000000),
	}))

	doc, err := s.Get(ctx, "things", "u")
	require.NoError(t, err)
	qs, ok := doc.Data["questions"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, qs, 2)
	assert.Equal(t, map[string]any{"text": "new", "response": nil}, qs["q1"])
	assert.Equal(t, map[string]any{"text": "added", "response": nil}, qs["q3"])
	assert.Equal(t, float64(1700000000000), doc.Data["completedAt"])

	// Removing an absent path is a no-op.
	require.NoError(t, s.Update(ctx, "things", "u", map[string]any{"nope.deeper": docstore.DeleteField}))
}

func testUpdateMissing(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	err := s.Update(ctx, "things", "ghost", map[string]any{"a": 1})
	assert.True(t, errors.Is(err, docstore.ErrNotFound), "got %v", err)
	_, err = s.Get(ctx, "things", "ghost")
	assert.True(t, errors.Is(err, docstore.ErrNotFound))

	err = s.Update(ctx, "things", "ghost", map[string]any{"a..b": 1})
	assert.True(t, errors.Is(err, docstore.ErrInvalidArgument))
}

func testDelete(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "things", "d", map[string]any{"v": 1}))
	require.NoError(t, s.Delete(ctx, "things", "d"))
	_, err := s.Get(ctx, "things", "d")
	assert.True(t, errors.Is(err, docstore.ErrNotFound))
	require.NoError(t, s.Delete(ctx, "things", "d"))
}

func testQueryOrder(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed := map[string]map[string]any{
		"a": {"meta": map[string]any{"at": 10}},
		"b": {"meta": map[string]any{"at": 30}},
		"c": {"meta": map[string]any{"at": 20}},
		"d": {"other": true},
	}
	for id, data := range seed {
		require.NoError(t, s.Set(ctx, "ordered", id, data))
	}
	require.NoError(t, s.Set(ctx, "elsewhere", "z", map[string]any{"meta": map[string]any{"at": 99}}))

	docs, err := s.Query(ctx, "ordered", docstore.Query{OrderBy: "meta.at", Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids(docs))

	docs, err = s.Query(ctx, "ordered", docstore.Query{OrderBy: "meta.at"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "a", "c", "b"}, ids(docs))

	docs, err = s.Query(ctx, "ordered", docstore.Query{OrderBy: "meta.at", Desc: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(docs))

	docs, err = s.Query(ctx, "ordered", docstore.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(docs))

	docs, err = s.Query(ctx, "empty", docstore.Query{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func testBatchAtomic(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "things", "present", map[string]any{"v": 1}))

	b := s.Batch().
		Set("things", "new", map[string]any{"v": 2}).
		Update("things", "present", map[string]any{"v": 3}).
		Update("things", "absent", map[string]any{"v": 4})
	assert.Equal(t, 3, b.Len())
	err := b.Commit(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, docstore.ErrNotFound), "got %v", err)

	_, err = s.Get(ctx, "things", "new")
	assert.True(t, errors.Is(err, docstore.ErrNotFound), "partial batch was applied")
	doc, err := s.Get(ctx, "things", "present")
	require.NoError(t, err)
	assert.Equal(t, float64(1), doc.Data["v"])

	require.NoError(t, s.Batch().
		Set("things", "new", map[string]any{"v": 2}).
		Update("things", "present", map[string]any{"v": 3}).
		Delete("things", "never").
		Commit(ctx))
	doc, err = s.Get(ctx, "things", "present")
	require.NoError(t, err)
	assert.Equal(t, float64(3), doc.Data["v"])
	_, err = s.Get(ctx, "things", "new")
	require.NoError(t, err)
}

func testBatchReuse(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	b := s.Batch()
	require.NoError(t, b.Commit(ctx))
	assert.True(t, errors.Is(b.Commit(ctx), docstore.ErrBatchCommitted))

	b = s.Batch().Update("things", "x", map[string]any{"": 1})
	assert.True(t, errors.Is(b.Commit(ctx), docstore.ErrInvalidArgument))
}

func testConcurrentFieldUpdates(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "records", "r1", map[string]any{"fields": map[string]any{}}))

	const writers = 50
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Update(ctx, "records", "r1", map[string]any{
				fmt.Sprintf("fields.f%02d", i): i,
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	doc, err := s.Get(ctx, "records", "r1")
	require.NoError(t, err)
	fields, ok := doc.Data["fields"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, fields, writers)
	for i := 0; i < writers; i++ {
		assert.Equal(t, float64(i), fields[fmt.Sprintf("f%02d", i)])
	}
}

func testMergeIfExists(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "records", "kept", map[string]any{"a": "1"}))

	b := s.Batch()
	b.Set("records", "kept", map[string]any{"b": "2"}, docstore.Merge(), docstore.IfExists())
	b.Set("records", "gone", map[string]any{"b": "2"}, docstore.Merge(), docstore.IfExists())
	require.NoError(t, b.Commit(ctx))

	doc, err := s.Get(ctx, "records", "kept")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "2"}, doc.Data)
	_, err = s.Get(ctx, "records", "gone")
	assert.True(t, errors.Is(err, docstore.ErrNotFound))

	err = s.Set(ctx, "records", "kept", map[string]any{"c": "3"}, docstore.IfExists())
	assert.True(t, errors.Is(err, docstore.ErrInvalidArgument))
}

func testMergeIfAbsent(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "records", "r1", map[string]any{
		"questions": map[string]any{"q1": map[string]any{"text": "one", "response": "kept"}},
	}))
	require.NoError(t, s.Set(ctx, "records", "r1", map[string]any{
		"questions": map[string]any{
			"q1": map[string]any{"text": "one!", "response": docstore.IfAbsent(nil)},
			"q2": map[string]any{"text": "two", "response": docstore.IfAbsent(nil)},
		},
	}, docstore.Merge()))

	doc, err := s.Get(ctx, "records", "r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"q1": map[string]any{"text": "one!", "response": "kept"},
		"q2": map[string]any{"text": "two", "response": nil},
	}, doc.Data["questions"])
}

func testWatch(t *testing.T, s docstore.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		sizes []int
	)
	snap := make(chan struct{}, 16)
	err := s.Watch(ctx, "watched", docstore.Query{}, func(docs []*docstore.Document, err error) {
		if err != nil {
			return
		}
		mu.Lock()
		sizes = append(sizes, len(docs))
		mu.Unlock()
		snap <- struct{}{}
	})
	require.NoError(t, err)
	waitSnapshot(t, snap)

	require.NoError(t, s.Set(context.Background(), "watched", "one", map[string]any{"v": 1}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sizes) > 0 && sizes[len(sizes)-1] == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func waitSnapshot(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func ids(docs []*docstore.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}
