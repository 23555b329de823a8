package docstore

import (
	"errors"
	"reflect"
	"testing"
)

func TestApplyUpdatesCreatesIntermediates(t *testing.T) {
	data := map[string]any{"a": "scalar"}
	err := ApplyUpdates(data, map[string]any{
		"a.b":   "x",
		"c.d.e": 1.0,
	})
	if err != nil {
		t.Fatalf("ApplyUpdates: %v", err)
	}
	want := map[string]any{
		"a": map[string]any{"b": "x"},
		"c": map[string]any{"d": map[string]any{"e": 1.0}},
	}
	if !reflect.DeepEqual(data, want) {
		t.Fatalf("data = %#v, want %#v", data, want)
	}
}

func TestApplyUpdatesDelete(t *testing.T) {
	data := map[string]any{"q": map[string]any{"1": "a", "2": "b"}}
	if err := ApplyUpdates(data, map[string]any{"q.1": DeleteField, "missing.x": DeleteField}); err != nil {
		t.Fatalf("ApplyUpdates: %v", err)
	}
	if _, ok := data["missing"]; ok {
		t.Fatalf("deleting under a missing parent created it")
	}
	if got := data["q"]; !reflect.DeepEqual(got, map[string]any{"2": "b"}) {
		t.Fatalf("q = %#v", got)
	}
}

func TestSplitPathRejectsEmptySegments(t *testing.T) {
	for _, p := range []string{"", ".a", "a.", "a..b"} {
		if _, err := SplitPath(p); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("SplitPath(%q) err = %v", p, err)
		}
	}
	if parts, err := SplitPath("a.b"); err != nil || len(parts) != 2 {
		t.Errorf("SplitPath(a.b) = %v, %v", parts, err)
	}
}

func TestValidateID(t *testing.T) {
	for _, id := range []string{"", " ", "a.b", "a/b", "$x", "a\x00"} {
		if err := ValidateID(id); err == nil {
			t.Errorf("ValidateID(%q) accepted", id)
		}
	}
	if err := ValidateID("abc-123_X"); err != nil {
		t.Errorf("ValidateID rejected a plain id: %v", err)
	}
}

func TestSetOpRequiresMergeForDelete(t *testing.T) {
	if _, err := SetOp("c", "d", map[string]any{"x": DeleteField}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	if _, err := SetOp("c", "d", map[string]any{"x": DeleteField}, Merge()); err != nil {
		t.Fatalf("merge set: %v", err)
	}
}

func TestUpdateOpNormalizes(t *testing.T) {
	type entry struct {
		Text     string  `json:"text"`
		Response *string `json:"response"`
	}
	op, err := UpdateOp("c", "d", map[string]any{"q.1": entry{Text: "hi"}})
	if err != nil {
		t.Fatalf("UpdateOp: %v", err)
	}
	want := map[string]any{"text": "hi", "response": nil}
	if !reflect.DeepEqual(op.Data["q.1"], want) {
		t.Fatalf("normalized = %#v, want %#v", op.Data["q.1"], want)
	}
	if _, err := UpdateOp("c", "d", nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("empty update err = %v", err)
	}
}

func TestApplyUpdateMissing(t *testing.T) {
	op, _ := UpdateOp("c", "d", map[string]any{"x": 1})
	if _, _, err := Apply(nil, false, op); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyDoesNotMutateCurrent(t *testing.T) {
	current := map[string]any{"n": map[string]any{"a": 1.0}}
	op, _ := SetOp("c", "d", map[string]any{"n": map[string]any{"b": 2.0}}, Merge())
	next, _, err := Apply(current, true, op)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(current["n"].(map[string]any)) != 1 {
		t.Fatalf("current mutated: %#v", current)
	}
	if len(next["n"].(map[string]any)) != 2 {
		t.Fatalf("next = %#v", next)
	}
}

func TestSortDocuments(t *testing.T) {
	docs := []*Document{
		{ID: "a", Data: map[string]any{"t": 2.0}},
		{ID: "b", Data: map[string]any{}},
		{ID: "c", Data: map[string]any{"t": 2.0}},
		{ID: "d", Data: map[string]any{"t": 5.0}},
	}
	got := SortDocuments(docs, Query{OrderBy: "t", Desc: true, Limit: 3})
	var ids []string
	for _, d := range got {
		ids = append(ids, d.ID)
	}
	if want := []string{"d", "a", "c"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("order = %v, want %v", ids, want)
	}
}

func TestCollections(t *testing.T) {
	ops := []Op{{Collection: "b"}, {Collection: "a"}, {Collection: "b"}}
	if got := Collections(ops); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Collections = %v", got)
	}
}

func TestMergeIntoIfAbsent(t *testing.T) {
	answer := "kept"
	dst := map[string]any{
		"q1": map[string]any{"text": "old", "response": answer},
	}
	MergeInto(dst, map[string]any{
		"q1": map[string]any{"text": "new", "response": IfAbsent(nil)},
		"q2": map[string]any{"text": "two", "response": IfAbsent(nil)},
	})
	want := map[string]any{
		"q1": map[string]any{"text": "new", "response": "kept"},
		"q2": map[string]any{"text": "two", "response": nil},
	}
	if !reflect.DeepEqual(dst, want) {
		t.Fatalf("got %#v, want %#v", dst, want)
	}
}

func TestApplyUpdatesIfAbsent(t *testing.T) {
	data := map[string]any{"a": map[string]any{"set": nil}}
	err := ApplyUpdates(data, map[string]any{
		"a.set":  IfAbsent("x"),
		"a.miss": IfAbsent("y"),
	})
	if err != nil {
		t.Fatalf("ApplyUpdates: %v", err)
	}
	want := map[string]any{"a": map[string]any{"set": nil, "miss": "y"}}
	if !reflect.DeepEqual(data, want) {
		t.Fatalf("got %#v, want %#v", data, want)
	}
}
