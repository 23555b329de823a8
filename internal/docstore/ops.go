package docstore

import (
	"context"
	"fmt"
	"sort"
)

// OpKind identifies a write operation.
type OpKind int

const (
	OpSet OpKind = iota + 1
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Op is one validated, normalized write.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	// Data holds the document for OpSet and dotted-path updates for OpUpdate.
	Data  map[string]any
	Merge bool
	// IfExists skips an OpSet whose document is missing.
	IfExists bool
}

// SetOp builds a normalized Set operation.
func SetOp(collection, id string, data map[string]any, opts ...SetOption) (Op, error) {
	if err := checkTarget(collection, id); err != nil {
		return Op{}, err
	}
	var cfg setConfig
	for _, o := range opts {
		o(&cfg)
	}
	norm, err := NormalizeMap(data)
	if err != nil {
		return Op{}, err
	}
	if !cfg.merge && hasSentinel(norm) {
		return Op{}, fmt.Errorf("%w: DeleteField requires Merge or Update", ErrInvalidArgument)
	}
	if cfg.ifExists && !cfg.merge {
		return Op{}, fmt.Errorf("%w: IfExists requires Merge", ErrInvalidArgument)
	}
	return Op{Kind: OpSet, Collection: collection, ID: id, Data: norm, Merge: cfg.merge, IfExists: cfg.ifExists}, nil
}

// UpdateOp builds a normalized dotted-path Update operation.
func UpdateOp(collection, id string, updates map[string]any) (Op, error) {
	if err := checkTarget(collection, id); err != nil {
		return Op{}, err
	}
	if len(updates) == 0 {
		return Op{}, fmt.Errorf("%w: empty update", ErrInvalidArgument)
	}
	norm := make(map[string]any, len(updates))
	for k, v := range updates {
		if _, err := SplitPath(k); err != nil {
			return Op{}, err
		}
		n, err := Normalize(v)
		if err != nil {
			return Op{}, fmt.Errorf("field %q: %w", k, err)
		}
		norm[k] = n
	}
	return Op{Kind: OpUpdate, Collection: collection, ID: id, Data: norm}, nil
}

// DeleteOp builds a Delete operation.
func DeleteOp(collection, id string) (Op, error) {
	if err := checkTarget(collection, id); err != nil {
		return Op{}, err
	}
	return Op{Kind: OpDelete, Collection: collection, ID: id}, nil
}

func checkTarget(collection, id string) error {
	if err := ValidateID(collection); err != nil {
		return fmt.Errorf("collection: %w", err)
	}
	return ValidateID(id)
}

// Apply computes the effect of op on the current document data. exists
// reports whether the document is present. It returns the new data, or
// remove=true when the document must be deleted. A nil next with remove=false
// means the op leaves the document untouched.
func Apply(current map[string]any, exists bool, op Op) (next map[string]any, remove bool, err error) {
	switch op.Kind {
	case OpSet:
		if op.IfExists && !exists {
			return nil, false, nil
		}
		if op.Merge && exists {
			next = CloneMap(current)
			MergeInto(next, op.Data)
			return next, false, nil
		}
		next = map[string]any{}
		MergeInto(next, op.Data)
		return next, false, nil
	case OpUpdate:
		if !exists {
			return nil, false, fmt.Errorf("%w: %s/%s", ErrNotFound, op.Collection, op.ID)
		}
		next = CloneMap(current)
		if next == nil {
			next = map[string]any{}
		}
		if err := ApplyUpdates(next, op.Data); err != nil {
			return nil, false, err
		}
		return next, false, nil
	case OpDelete:
		return nil, true, nil
	default:
		return nil, false, fmt.Errorf("%w: unknown op kind %d", ErrInvalidArgument, op.Kind)
	}
}

// Collections lists the distinct collections touched by ops.
func Collections(ops []Op) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, op := range ops {
		if _, ok := seen[op.Collection]; ok {
			continue
		}
		seen[op.Collection] = struct{}{}
		out = append(out, op.Collection)
	}
	sort.Strings(out)
	return out
}

type batch struct {
	commit    func(ctx context.Context, ops []Op) error
	ops       []Op
	err       error
	committed bool
}

func (b *batch) add(op Op, err error) WriteBatch {
	if b.err != nil {
		return b
	}
	if err != nil {
		b.err = err
		return b
	}
	b.ops = append(b.ops, op)
	return b
}

func (b *batch) Set(collection, id string, data map[string]any, opts ...SetOption) WriteBatch {
	return b.add(SetOp(collection, id, data, opts...))
}

func (b *batch) Update(collection, id string, updates map[string]any) WriteBatch {
	return b.add(UpdateOp(collection, id, updates))
}

func (b *batch) Delete(collection, id string) WriteBatch {
	return b.add(DeleteOp(collection, id))
}

func (b *batch) Len() int { return len(b.ops) }

func (b *batch) Commit(ctx context.Context) error {
	if b.committed {
		return ErrBatchCommitted
	}
	b.committed = true
	if b.err != nil {
		return b.err
	}
	if len(b.ops) == 0 {
		return nil
	}
	return b.commit(ctx, b.ops)
}
