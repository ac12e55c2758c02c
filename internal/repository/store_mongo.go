package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"rps_arena/internal/store"
)

// MongoStore maps every collection onto a Mongo collection with _id = record
// id. Subscriptions use change streams and need a replica set.
type MongoStore struct {
	db  *mongo.Database
	log *zap.SugaredLogger
}

func NewMongoStore(db *mongo.Database, log *zap.SugaredLogger) *MongoStore {
	return &MongoStore{
		db:  db,
		log: log,
	}
}

func (m *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.db.Client().Ping(ctx, nil)
}

func (m *MongoStore) Get(ctx context.Context, key string) ([]byte, error) {
	collection, id, err := store.Split(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo get %s: %w", key, err)
	}
	return documentJSON(raw)
}

func (m *MongoStore) Update(ctx context.Context, key string, fields store.Fields) error {
	collection, id, err := store.Split(key)
	if err != nil {
		return err
	}
	update, err := updateDocument(fields)
	if err != nil || len(update) == 0 {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Update().SetUpsert(true)
	if _, err := m.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update, opts); err != nil {
		return fmt.Errorf("mongo update %s: %w", key, err)
	}
	return nil
}

func (m *MongoStore) UpdateIf(ctx context.Context, key string, cond store.Fields, fields store.Fields) (bool, error) {
	collection, id, err := store.Split(key)
	if err != nil {
		return false, err
	}
	filter, err := conditionFilter(id, cond)
	if err != nil {
		return false, err
	}
	update, err := updateDocument(fields)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if len(update) == 0 {
		n, err := m.db.Collection(collection).CountDocuments(ctx, filter)
		if err != nil {
			return false, fmt.Errorf("mongo conditional update %s: %w", key, err)
		}
		return n > 0, nil
	}

	res, err := m.db.Collection(collection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(false))
	if err != nil {
		return false, fmt.Errorf("mongo conditional update %s: %w", key, err)
	}
	return res.MatchedCount > 0, nil
}

func (m *MongoStore) Create(ctx context.Context, collection string, fields store.Fields) (string, error) {
	id, err := store.NewID()
	if err != nil {
		return "", err
	}
	doc, err := insertDocument(id, fields)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := m.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("mongo create in %s: %w", collection, err)
	}
	return id, nil
}

func (m *MongoStore) CreateIfAbsent(ctx context.Context, key string, fields store.Fields) (bool, error) {
	collection, id, err := store.Split(key)
	if err != nil {
		return false, err
	}
	doc, err := insertDocument(id, fields)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = m.db.Collection(collection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mongo create %s: %w", key, err)
	}
	return true, nil
}

func (m *MongoStore) Delete(ctx context.Context, key string) error {
	collection, id, err := store.Split(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := m.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("mongo delete %s: %w", key, err)
	}
	return nil
}

func (m *MongoStore) DeleteIf(ctx context.Context, key string, cond store.Fields) (bool, error) {
	collection, id, err := store.Split(key)
	if err != nil {
		return false, err
	}
	filter, err := conditionFilter(id, cond)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := m.db.Collection(collection).DeleteOne(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("mongo conditional delete %s: %w", key, err)
	}
	return res.DeletedCount > 0, nil
}

type changeEvent struct {
	DocumentKey struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

func (m *MongoStore) Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (func(), error) {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{}
	if id != "" {
		pipeline = mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: id}}}}}
	}
	stream, err := m.db.Collection(collection).Watch(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongo watch %s: %w", path, err)
	}

	feed := store.NewFeed(ctx, fn)

	if id != "" {
		feed.Push(m.snapshot(ctx, path))
	} else {
		snaps, err := m.List(ctx, collection)
		if err != nil {
			feed.Close()
			_ = stream.Close(context.Background())
			return nil, err
		}
		for _, snap := range snaps {
			feed.Push(snap)
		}
	}

	streamCtx, stop := context.WithCancel(ctx)
	go func() {
		<-feed.Done()
		stop()
	}()
	go func() {
		defer stream.Close(context.Background())
		for stream.Next(streamCtx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				m.log.Errorf("mongo change event on %s: %v", path, err)
				continue
			}
			feed.Push(m.snapshot(streamCtx, store.Key(collection, ev.DocumentKey.ID)))
		}
		if err := stream.Err(); err != nil && streamCtx.Err() == nil {
			m.log.Errorf("mongo change stream on %s stopped: %v", path, err)
		}
		feed.Close()
	}()

	return feed.Close, nil
}

func (m *MongoStore) snapshot(ctx context.Context, key string) store.Snapshot {
	_, id, _ := store.Split(key)
	snap := store.Snapshot{Key: key, ID: id}
	value, err := m.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.log.Errorf("mongo snapshot %s: %v", key, err)
		}
		return snap
	}
	snap.Value = value
	snap.Exists = true
	return snap
}

func (m *MongoStore) Query(ctx context.Context, collection, field string, equals any, limit int) ([]store.Snapshot, error) {
	value, err := bsonValue(equals)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return m.find(ctx, collection, bson.M{field: value}, opts)
}

func (m *MongoStore) List(ctx context.Context, collection string) ([]store.Snapshot, error) {
	return m.find(ctx, collection, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (m *MongoStore) find(ctx context.Context, collection string, filter bson.M, opts *options.FindOptions) ([]store.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := m.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find in %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var out []store.Snapshot
	for cursor.Next(ctx) {
		id, ok := cursor.Current.Lookup("_id").StringValueOK()
		if !ok {
			continue
		}
		value, err := documentJSON(cursor.Current)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Snapshot{
			Key:    store.Key(collection, id),
			ID:     id,
			Value:  value,
			Exists: true,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo find in %s: %w", collection, err)
	}
	return out, nil
}

func conditionFilter(id string, cond store.Fields) (bson.M, error) {
	filter := bson.M{"_id": id}
	for name, want := range cond {
		value, err := bsonValue(want)
		if err != nil {
			return nil, err
		}
		// {field: null} matches both null and missing fields.
		filter[name] = value
	}
	return filter, nil
}

func updateDocument(fields store.Fields) (bson.M, error) {
	set := bson.M{}
	unset := bson.M{}
	for name, value := range fields {
		v, err := bsonValue(value)
		if err != nil {
			return nil, err
		}
		if v == nil {
			unset[name] = ""
			continue
		}
		set[name] = v
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update, nil
}

func insertDocument(id string, fields store.Fields) (bson.M, error) {
	doc := bson.M{"_id": id}
	for name, value := range fields {
		v, err := bsonValue(value)
		if err != nil {
			return nil, err
		}
		if v != nil {
			doc[name] = v
		}
	}
	return doc, nil
}

// bsonValue passes a value through its JSON form so that domain types are
// stored exactly as the other backends store them.
func bsonValue(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return normalizeNumbers(out), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, x := range t {
			t[k] = normalizeNumbers(x)
		}
		return t
	case []any:
		for i, x := range t {
			t[i] = normalizeNumbers(x)
		}
		return t
	}
	return v
}

func documentJSON(raw bson.Raw) ([]byte, error) {
	ext, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(ext, &fields); err != nil {
		return nil, err
	}
	delete(fields, "_id")
	return json.Marshal(fields)
}
