package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/healtheasy/booking-engine/internal/store"
	apperrors "github.com/healtheasy/booking-engine/pkg/errors"
	"github.com/healtheasy/booking-engine/pkg/logger"
)

const (
	notifyChannel = "healtheasy_documents"
	maxTxRetries  = 5
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
)`

// Store is the remote transactional store on PostgreSQL. Documents live in a
// single jsonb table; RunAtomic uses SERIALIZABLE transactions with
// retry-on-conflict, and subscriptions ride LISTEN/NOTIFY so every client
// process observes every mutation.
type Store struct {
	db       *sqlx.DB
	listener *pq.Listener
	log      *logger.Logger

	mu      sync.Mutex
	subs    map[string]map[int]store.Listener
	nextSub int

	cancel context.CancelFunc
	done   chan struct{}
}

func New(dsn string, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.StoreUnavailable(fmt.Errorf("ensure schema: %w", err))
	}

	listener := pq.NewListener(dsn, 2*time.Second, time.Minute, nil)
	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		db.Close()
		return nil, apperrors.StoreUnavailable(fmt.Errorf("listen: %w", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:       db,
		listener: listener,
		log:      log,
		subs:     make(map[string]map[int]store.Listener),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.dispatch(ctx)
	return s, nil
}

func (s *Store) Subscribe(ctx context.Context, collection string, fn store.Listener) (store.Unsubscribe, error) {
	if !store.Known(collection) {
		return nil, apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}

	snapshot, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[int]store.Listener)
	}
	id := s.nextSub
	s.nextSub++
	s.subs[collection][id] = fn
	s.mu.Unlock()

	fn(snapshot)

	return func() {
		s.mu.Lock()
		delete(s.subs[collection], id)
		s.mu.Unlock()
	}, nil
}

func (s *Store) Create(ctx context.Context, collection string, doc store.Document) (string, error) {
	if !store.Known(collection) {
		return "", apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}

	d := store.Clone(doc)
	id := uuid.NewString()
	d["id"] = id
	stampCreatedAt(d)

	payload, err := json.Marshal(d)
	if err != nil {
		return "", apperrors.Internal(err)
	}

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)`,
			collection, id, payload,
		); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		return notifyTx(ctx, tx, collection)
	})
	if err != nil {
		return "", wrapStoreErr(err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch store.Document) error {
	if !store.Known(collection) {
		return apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}

	p := store.Clone(patch)
	delete(p, "id")
	payload, err := json.Marshal(p)
	if err != nil {
		return apperrors.Internal(err)
	}

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET doc = doc || $3 WHERE collection = $1 AND id = $2`,
			collection, id, payload,
		)
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if rows == 0 {
			return apperrors.NotFound("document "+collection+"/"+id, nil)
		}
		return notifyTx(ctx, tx, collection)
	})
	return wrapStoreErr(err)
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if !store.Known(collection) {
		return nil, apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}

	var raw []byte
	err := s.db.GetContext(ctx, &raw,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("document "+collection+"/"+id, nil)
	}
	if err != nil {
		return nil, wrapStoreErr(fmt.Errorf("get document: %w", err))
	}
	return decodeDoc(raw)
}

func (s *Store) List(ctx context.Context, collection string) ([]store.Document, error) {
	if !store.Known(collection) {
		return nil, apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}

	// Ordering is part of the delivery contract: doctors name-ascending,
	// everything else newest-creation-first.
	query := `SELECT doc FROM documents WHERE collection = $1 ORDER BY doc->>'createdAt' DESC`
	if collection == store.Doctors {
		query = `SELECT doc FROM documents WHERE collection = $1 ORDER BY doc->>'name' ASC`
	}

	var raws [][]byte
	if err := s.db.SelectContext(ctx, &raws, query, collection); err != nil {
		return nil, wrapStoreErr(fmt.Errorf("list documents: %w", err))
	}

	docs := make([]store.Document, 0, len(raws))
	for _, raw := range raws {
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// RunAtomic runs fn inside a SERIALIZABLE transaction and retries on
// serialization conflicts, so the duplicate-booking guard observes a
// consistent snapshot relative to concurrent writers.
func (s *Store) RunAtomic(ctx context.Context, fn func(tx store.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = s.runAtomicOnce(ctx, fn)
		if err == nil || !retryable(err) {
			return wrapStoreErr(err)
		}
		s.log.Debug("retrying atomic unit after conflict", "attempt", attempt+1)
	}
	return wrapStoreErr(err)
}

func (s *Store) runAtomicOnce(ctx context.Context, fn func(tx store.Txn) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	txn := &pgTxn{ctx: ctx, tx: tx, touched: make(map[string]struct{})}
	if err := fn(txn); err != nil {
		tx.Rollback()
		return err
	}

	for collection := range txn.touched {
		if err := notifyTx(ctx, tx, collection); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	s.cancel()
	<-s.done
	s.listener.Close()
	return s.db.Close()
}

// dispatch fans NOTIFY payloads (the mutated collection name) out to
// subscribers as fresh snapshots.
func (s *Store) dispatch(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-s.listener.Notify:
			if n == nil {
				// Connection re-established; deliveries may have been
				// missed, so refresh every subscribed collection.
				for _, collection := range s.subscribedCollections() {
					s.deliver(ctx, collection)
				}
				continue
			}
			s.deliver(ctx, n.Extra)
		case <-time.After(time.Minute):
			if err := s.listener.Ping(); err != nil {
				s.log.Error(err, "listener ping failed")
			}
		}
	}
}

func (s *Store) subscribedCollections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for collection, subs := range s.subs {
		if len(subs) > 0 {
			out = append(out, collection)
		}
	}
	return out
}

func (s *Store) deliver(ctx context.Context, collection string) {
	s.mu.Lock()
	listeners := make([]store.Listener, 0, len(s.subs[collection]))
	for _, fn := range s.subs[collection] {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	if len(listeners) == 0 {
		return
	}

	snapshot, err := s.List(ctx, collection)
	if err != nil {
		s.log.Error(err, "failed to load snapshot for delivery", "collection", collection)
		return
	}
	for _, fn := range listeners {
		fn(store.CloneAll(snapshot))
	}
}

type pgTxn struct {
	ctx     context.Context
	tx      *sqlx.Tx
	touched map[string]struct{}
}

func (t *pgTxn) Get(collection, id string) (store.Document, bool, error) {
	if !store.Known(collection) {
		return nil, false, apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}
	var raw []byte
	err := t.tx.GetContext(t.ctx, &raw,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get document: %w", err)
	}
	doc, err := decodeDoc(raw)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (t *pgTxn) Set(collection, id string, doc store.Document) error {
	if !store.Known(collection) {
		return apperrors.InvalidRequest("unknown collection: "+collection, nil)
	}
	d := store.Clone(doc)
	d["id"] = id
	stampCreatedAt(d)
	payload, err := json.Marshal(d)
	if err != nil {
		return apperrors.Internal(err)
	}
	if _, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO UPDATE SET doc = EXCLUDED.doc`,
		collection, id, payload,
	); err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	t.touched[collection] = struct{}{}
	return nil
}

func (t *pgTxn) Create(collection string, doc store.Document) (string, error) {
	id := uuid.NewString()
	if err := t.Set(collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func notifyTx(ctx context.Context, tx *sqlx.Tx, collection string) error {
	// pg_notify inside the transaction: the notification fires on commit.
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func decodeDoc(raw []byte) (store.Document, error) {
	var doc store.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("decode document: %w", err))
	}
	return doc, nil
}

func stampCreatedAt(doc store.Document) {
	if _, ok := doc["createdAt"]; !ok {
		doc["createdAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
}

// retryable reports whether a transaction failed for a reason that a fresh
// attempt can resolve: serialization failure, deadlock, or a unique-key race
// that the re-read inside the next attempt will surface as a domain error.
func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}

// wrapStoreErr maps connection-level failures to StoreUnavailable so callers
// can apply their fallback policy; domain errors pass through untouched.
func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.StoreUnavailable(err)
	}
	return err
}
