package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healtheasy/booking-engine/internal/store"
	apperrors "github.com/healtheasy/booking-engine/pkg/errors"
)

// Memory is the local in-memory store. It is single-process: atomicity is
// provided by a store-wide mutex, which trivially satisfies the RunAtomic
// contract while preserving the same external call shape as the remote store.
type Memory struct {
	mu      sync.Mutex
	data    map[string]map[string]store.Document
	subs    map[string]map[int]store.Listener
	nextSub int
}

func New() *Memory {
	data := make(map[string]map[string]store.Document, len(store.Collections))
	subs := make(map[string]map[int]store.Listener, len(store.Collections))
	for _, c := range store.Collections {
		data[c] = make(map[string]store.Document)
		subs[c] = make(map[int]store.Listener)
	}
	return &Memory{data: data, subs: subs}
}

func (m *Memory) Subscribe(ctx context.Context, collection string, fn store.Listener) (store.Unsubscribe, error) {
	if !store.Known(collection) {
		return nil, apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[collection][id] = fn
	snapshot := m.snapshotLocked(collection)
	m.mu.Unlock()

	// Initial snapshot, delivered before Subscribe returns.
	fn(snapshot)

	return func() {
		m.mu.Lock()
		delete(m.subs[collection], id)
		m.mu.Unlock()
	}, nil
}

func (m *Memory) Create(ctx context.Context, collection string, doc store.Document) (string, error) {
	if !store.Known(collection) {
		return "", apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}

	m.mu.Lock()
	id := m.createLocked(collection, doc)
	m.mu.Unlock()

	m.notify(collection)
	return id, nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, patch store.Document) error {
	if !store.Known(collection) {
		return apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}

	m.mu.Lock()
	existing, ok := m.data[collection][id]
	if !ok {
		m.mu.Unlock()
		return apperrors.NotFound("document "+collection+"/"+id, nil)
	}
	merged := store.Clone(existing)
	for k, v := range patch {
		merged[k] = v
	}
	merged["id"] = id
	m.data[collection][id] = merged
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

func (m *Memory) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if !store.Known(collection) {
		return nil, apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.data[collection][id]
	if !ok {
		return nil, apperrors.NotFound("document "+collection+"/"+id, nil)
	}
	return store.Clone(doc), nil
}

func (m *Memory) List(ctx context.Context, collection string) ([]store.Document, error) {
	if !store.Known(collection) {
		return nil, apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(collection), nil
}

// RunAtomic holds the store lock for the duration of fn: reads observe a
// consistent snapshot and buffered writes apply all-or-nothing.
func (m *Memory) RunAtomic(ctx context.Context, fn func(tx store.Txn) error) error {
	m.mu.Lock()
	tx := &memTxn{store: m, writes: make(map[string]map[string]store.Document)}
	err := fn(tx)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	touched := make([]string, 0, len(tx.writes))
	for collection, docs := range tx.writes {
		for id, doc := range docs {
			m.data[collection][id] = doc
		}
		touched = append(touched, collection)
	}
	m.mu.Unlock()

	for _, collection := range touched {
		m.notify(collection)
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// Seed replaces a collection wholesale. Intended for tests and demos.
func (m *Memory) Seed(collection string, docs []store.Document) {
	m.mu.Lock()
	m.data[collection] = make(map[string]store.Document, len(docs))
	for _, doc := range docs {
		d := store.Clone(doc)
		id, _ := d["id"].(string)
		if id == "" {
			id = uuid.NewString()
			d["id"] = id
		}
		m.data[collection][id] = d
	}
	m.mu.Unlock()
	m.notify(collection)
}

func (m *Memory) createLocked(collection string, doc store.Document) string {
	d := store.Clone(doc)
	id := uuid.NewString()
	d["id"] = id
	stampCreatedAt(d)
	m.data[collection][id] = d
	return id
}

func (m *Memory) snapshotLocked(collection string) []store.Document {
	docs := make([]store.Document, 0, len(m.data[collection]))
	for _, doc := range m.data[collection] {
		docs = append(docs, store.Clone(doc))
	}
	store.SortDocs(collection, docs)
	return docs
}

// notify fans the current snapshot out to subscribers. Listeners run outside
// the store lock so they may call back into the store.
func (m *Memory) notify(collection string) {
	m.mu.Lock()
	listeners := make([]store.Listener, 0, len(m.subs[collection]))
	for _, fn := range m.subs[collection] {
		listeners = append(listeners, fn)
	}
	snapshot := m.snapshotLocked(collection)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(store.CloneAll(snapshot))
	}
}

type memTxn struct {
	store  *Memory
	writes map[string]map[string]store.Document
}

func (t *memTxn) Get(collection, id string) (store.Document, bool, error) {
	if !store.Known(collection) {
		return nil, false, apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}
	if docs, ok := t.writes[collection]; ok {
		if doc, ok := docs[id]; ok {
			return store.Clone(doc), true, nil
		}
	}
	doc, ok := t.store.data[collection][id]
	if !ok {
		return nil, false, nil
	}
	return store.Clone(doc), true, nil
}

func (t *memTxn) Set(collection, id string, doc store.Document) error {
	if !store.Known(collection) {
		return apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}
	d := store.Clone(doc)
	d["id"] = id
	stampCreatedAt(d)
	t.buffer(collection)[id] = d
	return nil
}

func (t *memTxn) Create(collection string, doc store.Document) (string, error) {
	if !store.Known(collection) {
		return "", apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}
	d := store.Clone(doc)
	id := uuid.NewString()
	d["id"] = id
	stampCreatedAt(d)
	t.buffer(collection)[id] = d
	return id, nil
}

func (t *memTxn) buffer(collection string) map[string]store.Document {
	if t.writes[collection] == nil {
		t.writes[collection] = make(map[string]store.Document)
	}
	return t.writes[collection]
}

func stampCreatedAt(doc store.Document) {
	if _, ok := doc["createdAt"]; !ok {
		doc["createdAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
}
