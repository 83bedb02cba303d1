package store

import (
	"context"
	"sort"
)

// Collection names. These are part of the persisted contract and must not
// change while any stored data exists.
const (
	Patients     = "patients"
	Doctors      = "doctors"
	Appointments = "appointments"
	Invoices     = "invoices"
	Outbox       = "outbox"
)

// Collections lists every known collection.
var Collections = []string{Patients, Doctors, Appointments, Invoices, Outbox}

// Known reports whether name refers to a known collection.
func Known(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

// Document is a stored record. Documents always carry their identifier
// under the "id" key when read back from the store.
type Document = map[string]interface{}

// Listener receives the full ordered snapshot of a collection: once
// immediately on subscribe and again after every mutation.
type Listener func(docs []Document)

// Unsubscribe stops further deliveries to the listener it was returned for.
// A notification already in flight may still arrive.
type Unsubscribe func()

// Store is the entity store contract. Both implementations (the remote
// transactional store and the local in-memory store) expose identical
// observable semantics, so callers are store-agnostic.
type Store interface {
	// Subscribe registers a listener for a collection. The listener is
	// invoked with the current snapshot before Subscribe returns.
	Subscribe(ctx context.Context, collection string, fn Listener) (Unsubscribe, error)

	// Create assigns an identifier, stamps createdAt if absent, persists
	// the document and notifies subscribers. Returns the identifier.
	Create(ctx context.Context, collection string, doc Document) (string, error)

	// Update merges patch into the existing document. Fails with NotFound
	// if the id does not exist.
	Update(ctx context.Context, collection, id string, patch Document) error

	// Get returns a single document or NotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// List returns the full ordered collection snapshot.
	List(ctx context.Context, collection string) ([]Document, error)

	// RunAtomic executes fn such that either all of its writes commit or
	// none do. fn may be invoked more than once under contention and must
	// be retry-safe: no side effects beyond the transaction itself.
	RunAtomic(ctx context.Context, fn func(tx Txn) error) error

	Close() error
}

// Txn is the handle passed to RunAtomic. Reads observe a consistent
// snapshot relative to the transaction's own writes committing.
type Txn interface {
	// Get returns the document and whether it exists.
	Get(collection, id string) (Document, bool, error)

	// Set writes a document under an explicit identifier, creating or
	// replacing it. createdAt is stamped if absent.
	Set(collection, id string, doc Document) error

	// Create writes a document under a fresh identifier and returns it.
	Create(collection string, doc Document) (string, error)
}

// SortDocs orders a snapshot per the collection's delivery contract:
// doctors name-ascending, everything else newest-creation-first.
func SortDocs(collection string, docs []Document) {
	if collection == Doctors {
		sort.SliceStable(docs, func(i, j int) bool {
			return stringField(docs[i], "name") < stringField(docs[j], "name")
		})
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return stringField(docs[i], "createdAt") > stringField(docs[j], "createdAt")
	})
}

func stringField(doc Document, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

// Clone returns a shallow copy of doc so callers cannot mutate stored state.
func Clone(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// CloneAll shallow-copies a snapshot.
func CloneAll(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = Clone(d)
	}
	return out
}
