package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healtheasy/booking-engine/internal/store"
	"github.com/healtheasy/booking-engine/internal/store/memory"
	apperrors "github.com/healtheasy/booking-engine/pkg/errors"
)

func TestCreateStampsIDAndCreatedAt(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	id, err := m.Create(ctx, store.Patients, store.Document{"name": "Jane"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := m.Get(ctx, store.Patients, id)
	require.NoError(t, err)
	assert.Equal(t, id, doc["id"])
	assert.Equal(t, "Jane", doc["name"])
	assert.NotEmpty(t, doc["createdAt"])
}

func TestCreatePreservesExplicitCreatedAt(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	id, err := m.Create(ctx, store.Patients, store.Document{
		"name": "Jane", "createdAt": "2024-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	doc, err := m.Get(ctx, store.Patients, id)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", doc["createdAt"])
}

func TestUpdateMergesPatch(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	id, err := m.Create(ctx, store.Patients, store.Document{"name": "Jane", "status": "Active"})
	require.NoError(t, err)

	require.NoError(t, m.Update(ctx, store.Patients, id, store.Document{"status": "Inactive"}))

	doc, err := m.Get(ctx, store.Patients, id)
	require.NoError(t, err)
	assert.Equal(t, "Jane", doc["name"], "untouched fields survive the merge")
	assert.Equal(t, "Inactive", doc["status"])
}

func TestUpdateUnknownDocument(t *testing.T) {
	m := memory.New()
	err := m.Update(context.Background(), store.Patients, "missing", store.Document{"status": "Inactive"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestUnknownCollectionRejected(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	_, err := m.Create(ctx, "prescriptions", store.Document{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidRequest))
	_, err = m.List(ctx, "prescriptions")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidRequest))
	_, err = m.Subscribe(ctx, "prescriptions", func([]store.Document) {})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidRequest))
}

func TestListOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	_, err := m.Create(ctx, store.Invoices, store.Document{"amount": "10", "createdAt": "2024-01-01T00:00:00Z"})
	require.NoError(t, err)
	_, err = m.Create(ctx, store.Invoices, store.Document{"amount": "30", "createdAt": "2024-03-01T00:00:00Z"})
	require.NoError(t, err)
	_, err = m.Create(ctx, store.Invoices, store.Document{"amount": "20", "createdAt": "2024-02-01T00:00:00Z"})
	require.NoError(t, err)

	docs, err := m.List(ctx, store.Invoices)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "30", docs[0]["amount"])
	assert.Equal(t, "20", docs[1]["amount"])
	assert.Equal(t, "10", docs[2]["amount"])
}

func TestListOrdersDoctorsByName(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	for _, name := range []string{"Dr. Young", "Dr. Abbott", "Dr. Mills"} {
		_, err := m.Create(ctx, store.Doctors, store.Document{"name": name})
		require.NoError(t, err)
	}

	docs, err := m.List(ctx, store.Doctors)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "Dr. Abbott", docs[0]["name"])
	assert.Equal(t, "Dr. Mills", docs[1]["name"])
	assert.Equal(t, "Dr. Young", docs[2]["name"])
}

func TestSubscribeDeliversImmediateSnapshotAndUpdates(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	_, err := m.Create(ctx, store.Patients, store.Document{"name": "Jane"})
	require.NoError(t, err)

	var snapshots [][]store.Document
	unsub, err := m.Subscribe(ctx, store.Patients, func(docs []store.Document) {
		snapshots = append(snapshots, docs)
	})
	require.NoError(t, err)
	defer unsub()

	// Snapshot delivered before Subscribe returned.
	require.Len(t, snapshots, 1)
	assert.Len(t, snapshots[0], 1)

	_, err = m.Create(ctx, store.Patients, store.Document{"name": "John"})
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Len(t, snapshots[1], 2)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	calls := 0
	unsub, err := m.Subscribe(ctx, store.Patients, func([]store.Document) { calls++ })
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	unsub()

	_, err = m.Create(ctx, store.Patients, store.Document{"name": "Jane"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestMutationsDoNotAliasStoredState(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	id, err := m.Create(ctx, store.Patients, store.Document{"name": "Jane"})
	require.NoError(t, err)

	doc, err := m.Get(ctx, store.Patients, id)
	require.NoError(t, err)
	doc["name"] = "mutated"

	again, err := m.Get(ctx, store.Patients, id)
	require.NoError(t, err)
	assert.Equal(t, "Jane", again["name"])
}

func TestRunAtomicAppliesAllWrites(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	var invoiceID string
	err := m.RunAtomic(ctx, func(tx store.Txn) error {
		if err := tx.Set(store.Appointments, "apt-1", store.Document{"status": "Pending Payment"}); err != nil {
			return err
		}
		var err error
		invoiceID, err = tx.Create(store.Invoices, store.Document{"amount": "50"})
		return err
	})
	require.NoError(t, err)

	_, err = m.Get(ctx, store.Appointments, "apt-1")
	assert.NoError(t, err)
	_, err = m.Get(ctx, store.Invoices, invoiceID)
	assert.NoError(t, err)
}

func TestRunAtomicDiscardsWritesOnError(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	boom := errors.New("boom")
	err := m.RunAtomic(ctx, func(tx store.Txn) error {
		if err := tx.Set(store.Appointments, "apt-1", store.Document{"status": "Pending Payment"}); err != nil {
			return err
		}
		if _, err := tx.Create(store.Invoices, store.Document{"amount": "50"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = m.Get(ctx, store.Appointments, "apt-1")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
	docs, err := m.List(ctx, store.Invoices)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestTxnGetSeesOwnWrites(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	err := m.RunAtomic(ctx, func(tx store.Txn) error {
		if err := tx.Set(store.Appointments, "apt-1", store.Document{"status": "Pending Payment"}); err != nil {
			return err
		}
		doc, exists, err := tx.Get(store.Appointments, "apt-1")
		if err != nil {
			return err
		}
		assert.True(t, exists)
		assert.Equal(t, "Pending Payment", doc["status"])
		return nil
	})
	require.NoError(t, err)
}

func TestRunAtomicNotifiesTouchedCollections(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	aptCalls, invCalls := 0, 0
	unsubApt, err := m.Subscribe(ctx, store.Appointments, func([]store.Document) { aptCalls++ })
	require.NoError(t, err)
	defer unsubApt()
	unsubInv, err := m.Subscribe(ctx, store.Invoices, func([]store.Document) { invCalls++ })
	require.NoError(t, err)
	defer unsubInv()

	err = m.RunAtomic(ctx, func(tx store.Txn) error {
		if err := tx.Set(store.Appointments, "apt-1", store.Document{"status": "Pending Payment"}); err != nil {
			return err
		}
		_, err := tx.Create(store.Invoices, store.Document{"amount": "50"})
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 2, aptCalls, "initial snapshot plus one mutation")
	assert.Equal(t, 2, invCalls)
}
