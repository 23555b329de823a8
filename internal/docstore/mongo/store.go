// Package mongo stores documents in MongoDB, one Mongo collection per
// docstore collection, with the document id as _id.
//
// Updates use native $set/$unset so concurrent writers touching different
// fields of the same document do not overwrite each other. Batches are
// atomic only when Config.Transactions is set, which needs a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/quillsociety/auditions/internal/docstore"
)

// Config selects the deployment and database.
type Config struct {
	URI      string
	Database string
	// Transactions wraps every commit in a multi-document transaction.
	Transactions bool
}

// Engine implements docstore.Engine on a MongoDB database.
type Engine struct {
	client *mongo.Client
	db     *mongo.Database
	tx     bool
}

var _ docstore.Engine = (*Engine)(nil)

// Open connects and pings the deployment.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongo database is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Engine{client: client, db: client.Database(cfg.Database), tx: cfg.Transactions}, nil
}

func (e *Engine) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	var raw bson.M
	err := e.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	return toDocument(collection, raw), nil
}

func (e *Engine) Query(ctx context.Context, collection string, q docstore.Query) ([]*docstore.Document, error) {
	dir := 1
	if q.Desc {
		dir = -1
	}
	opts := options.Find()
	if q.OrderBy != "" {
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: 1}})
	} else {
		opts.SetSort(bson.D{{Key: "_id", Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := e.db.Collection(collection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer func() { _ = cur.Close(ctx) }()
	var docs []*docstore.Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		docs = append(docs, toDocument(collection, raw))
	}
	return docs, cur.Err()
}

// Commit runs ops in order. Without transactions a failure leaves earlier
// ops applied.
func (e *Engine) Commit(ctx context.Context, ops []docstore.Op) error {
	if !e.tx {
		return e.run(ctx, ops)
	}
	sess, err := e.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, e.run(sc, ops)
	})
	return err
}

func (e *Engine) run(ctx context.Context, ops []docstore.Op) error {
	for _, op := range ops {
		if err := e.apply(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, op docstore.Op) error {
	coll := e.db.Collection(op.Collection)
	filter := bson.M{"_id": op.ID}
	switch op.Kind {
	case docstore.OpDelete:
		if _, err := coll.DeleteOne(ctx, filter); err != nil {
			return fmt.Errorf("delete %s/%s: %w", op.Collection, op.ID, err)
		}
		return nil
	case docstore.OpSet:
		if !op.Merge {
			doc := bson.M{}
			for k, v := range op.Data {
				doc[k] = stripDeletes(v)
			}
			doc["_id"] = op.ID
			if _, err := coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true)); err != nil {
				return fmt.Errorf("replace %s/%s: %w", op.Collection, op.ID, err)
			}
			return nil
		}
		set, unset, fill := bson.M{}, bson.M{}, bson.M{}
		flatten("", op.Data, set, unset, fill)
		if len(set) == 0 && len(unset) == 0 {
			if op.IfExists {
				return e.fillAbsent(ctx, coll, op.ID, fill)
			}
			if err := e.ensureExists(ctx, coll, op.ID); err != nil {
				return err
			}
			return e.fillAbsent(ctx, coll, op.ID, fill)
		}
		if _, err := coll.UpdateOne(ctx, filter, updateDoc(set, unset), options.Update().SetUpsert(!op.IfExists)); err != nil {
			return fmt.Errorf("merge %s/%s: %w", op.Collection, op.ID, err)
		}
		return e.fillAbsent(ctx, coll, op.ID, fill)
	case docstore.OpUpdate:
		set, unset, fill := bson.M{}, bson.M{}, bson.M{}
		for path, v := range op.Data {
			if docstore.IsDeleteField(v) {
				unset[path] = ""
				continue
			}
			if inner, ok := docstore.AbsentValue(v); ok {
				fill[path] = stripDeletes(inner)
				continue
			}
			set[path] = stripDeletes(v)
		}
		if len(set) == 0 && len(unset) == 0 {
			if err := coll.FindOne(ctx, filter).Err(); err != nil {
				if errors.Is(err, mongo.ErrNoDocuments) {
					return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, op.Collection, op.ID)
				}
				return fmt.Errorf("find %s/%s: %w", op.Collection, op.ID, err)
			}
			return e.fillAbsent(ctx, coll, op.ID, fill)
		}
		res, err := coll.UpdateOne(ctx, filter, updateDoc(set, unset))
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", op.Collection, op.ID, err)
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, op.Collection, op.ID)
		}
		return e.fillAbsent(ctx, coll, op.ID, fill)
	default:
		return fmt.Errorf("%w: unknown op kind %d", docstore.ErrInvalidArgument, op.Kind)
	}
}

// fillAbsent sets each path only while the field is missing, so a value
// written concurrently is never replaced.
func (e *Engine) fillAbsent(ctx context.Context, coll *mongo.Collection, id string, fill bson.M) error {
	paths := make([]string, 0, len(fill))
	for p := range fill {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		filter := bson.M{"_id": id, p: bson.M{"$exists": false}}
		if _, err := coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{p: fill[p]}}); err != nil {
			return fmt.Errorf("fill %s/%s %s: %w", coll.Name(), id, p, err)
		}
	}
	return nil
}

func (e *Engine) ensureExists(ctx context.Context, coll *mongo.Collection, id string) error {
	err := coll.FindOne(ctx, bson.M{"_id": id}).Err()
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("find %s/%s: %w", coll.Name(), id, err)
	}
	if _, err := coll.InsertOne(ctx, bson.M{"_id": id}); err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert %s/%s: %w", coll.Name(), id, err)
	}
	return nil
}

func (e *Engine) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.client.Disconnect(ctx)
}

func updateDoc(set, unset bson.M) bson.M {
	upd := bson.M{}
	if len(set) > 0 {
		upd["$set"] = set
	}
	if len(unset) > 0 {
		upd["$unset"] = unset
	}
	return upd
}

// flatten turns a merge payload into dotted $set and $unset paths, plus the
// IfAbsent paths in fill. Nested maps merge key by key, matching
// docstore.MergeInto.
func flatten(prefix string, data map[string]any, set, unset, fill bson.M) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch v := data[k].(type) {
		case map[string]any:
			if len(v) == 0 {
				continue
			}
			flatten(path, v, set, unset, fill)
		default:
			if docstore.IsDeleteField(v) {
				unset[path] = ""
				continue
			}
			if inner, ok := docstore.AbsentValue(v); ok {
				fill[path] = stripDeletes(inner)
				continue
			}
			set[path] = v
		}
	}
}

func stripDeletes(v any) any {
	if inner, ok := docstore.AbsentValue(v); ok {
		return stripDeletes(inner)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, inner := range m {
		if docstore.IsDeleteField(inner) {
			continue
		}
		out[k] = stripDeletes(inner)
	}
	return out
}

func toDocument(collection string, raw bson.M) *docstore.Document {
	id := fmt.Sprint(raw["_id"])
	delete(raw, "_id")
	data, _ := plain(raw).(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return &docstore.Document{Collection: collection, ID: id, Data: data}
}

// plain converts decoded BSON values to the JSON shapes the rest of the
// store works with.
func plain(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = plain(inner)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = plain(inner)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = plain(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = plain(inner)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case primitive.DateTime:
		return float64(t)
	case primitive.ObjectID:
		return t.Hex()
	case primitive.Decimal128:
		return t.String()
	case primitive.Null, primitive.Undefined:
		return nil
	default:
		return v
	}
}
