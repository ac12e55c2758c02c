package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

type record map[string]json.RawMessage

// MemoryStore keeps every record in process. All mutations are serialized by
// one mutex, so UpdateIf is a true compare-and-swap.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]record
	subs        map[string]map[*Feed]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]record),
		subs:        make(map[string]map[*Feed]struct{}),
	}
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	collection, id, err := Split(key)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return json.Marshal(rec)
}

func (m *MemoryStore) Update(_ context.Context, key string, fields Fields) error {
	collection, id, err := Split(key)
	if err != nil {
		return err
	}
	set, unset, err := EncodeFields(fields)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.apply(collection, id, set, unset)
	return nil
}

func (m *MemoryStore) UpdateIf(_ context.Context, key string, cond Fields, fields Fields) (bool, error) {
	collection, id, err := Split(key)
	if err != nil {
		return false, err
	}
	set, unset, err := EncodeFields(fields)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := m.holds(collection, id, cond)
	if err != nil || !ok {
		return false, err
	}
	m.apply(collection, id, set, unset)
	return true, nil
}

func (m *MemoryStore) Create(_ context.Context, collection string, fields Fields) (string, error) {
	id, err := NewID()
	if err != nil {
		return "", err
	}
	set, _, err := EncodeFields(fields)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.apply(collection, id, set, nil)
	return id, nil
}

func (m *MemoryStore) CreateIfAbsent(_ context.Context, key string, fields Fields) (bool, error) {
	collection, id, err := Split(key)
	if err != nil {
		return false, err
	}
	set, _, err := EncodeFields(fields)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][id]; ok {
		return false, nil
	}
	m.apply(collection, id, set, nil)
	return true, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	collection, id, err := Split(key)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.remove(collection, id)
	return nil
}

func (m *MemoryStore) DeleteIf(_ context.Context, key string, cond Fields) (bool, error) {
	collection, id, err := Split(key)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := m.holds(collection, id, cond)
	if err != nil || !ok {
		return false, err
	}
	m.remove(collection, id)
	return true, nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error) {
	collection, id, err := SplitPath(path)
	if err != nil {
		return nil, err
	}

	feed := NewFeed(ctx, fn)

	m.mu.Lock()
	if id != "" {
		feed.Push(m.snapshot(collection, id))
	} else {
		for _, childID := range m.sortedIDs(collection) {
			feed.Push(m.snapshot(collection, childID))
		}
	}
	if m.subs[path] == nil {
		m.subs[path] = make(map[*Feed]struct{})
	}
	m.subs[path][feed] = struct{}{}
	m.mu.Unlock()

	unsubscribe := func() {
		feed.Close()
		m.mu.Lock()
		delete(m.subs[path], feed)
		if len(m.subs[path]) == 0 {
			delete(m.subs, path)
		}
		m.mu.Unlock()
	}

	go func() {
		<-feed.Done()
		unsubscribe()
	}()

	return unsubscribe, nil
}

func (m *MemoryStore) Query(_ context.Context, collection, field string, equals any, limit int) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Snapshot
	for _, id := range m.sortedIDs(collection) {
		ok, err := Matches(m.collections[collection][id][field], equals)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, m.snapshot(collection, id))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) List(_ context.Context, collection string) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.sortedIDs(collection)
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.snapshot(collection, id))
	}
	return out, nil
}

// holds must be called with m.mu held.
func (m *MemoryStore) holds(collection, id string, cond Fields) (bool, error) {
	rec, ok := m.collections[collection][id]
	if !ok {
		return false, nil
	}
	for name, want := range cond {
		match, err := Matches(rec[name], want)
		if err != nil || !match {
			return false, err
		}
	}
	return true, nil
}

func (m *MemoryStore) apply(collection, id string, set map[string]json.RawMessage, unset []string) {
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]record)
	}
	rec, ok := m.collections[collection][id]
	if !ok {
		rec = make(record, len(set))
		m.collections[collection][id] = rec
	}
	for name, raw := range set {
		rec[name] = raw
	}
	for _, name := range unset {
		delete(rec, name)
	}
	m.notify(collection, id)
}

func (m *MemoryStore) remove(collection, id string) {
	if _, ok := m.collections[collection][id]; !ok {
		return
	}
	delete(m.collections[collection], id)
	m.notify(collection, id)
}

func (m *MemoryStore) notify(collection, id string) {
	snap := m.snapshot(collection, id)
	for feed := range m.subs[Key(collection, id)] {
		feed.Push(snap)
	}
	for feed := range m.subs[collection] {
		feed.Push(snap)
	}
}

func (m *MemoryStore) snapshot(collection, id string) Snapshot {
	snap := Snapshot{Key: Key(collection, id), ID: id}
	rec, ok := m.collections[collection][id]
	if !ok {
		return snap
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return snap
	}
	snap.Value = value
	snap.Exists = true
	return snap
}

func (m *MemoryStore) sortedIDs(collection string) []string {
	ids := make([]string, 0, len(m.collections[collection]))
	for id := range m.collections[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
