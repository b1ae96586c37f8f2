package draft

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalautobrokers/dealerdocs/internal/db"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	gdb, err := db.OpenMemory()
	require.NoError(t, err)

	store, err := NewStore(gdb, log)
	require.NoError(t, err)
	return store
}

func TestStore_CreateAndVersionBump(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	doc, err := store.SaveFields(ctx, "doc-1", map[string]string{"VIN": "AAA"}, []byte("content-v1"), "sum-1")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, StatusDraft, doc.Status)
	assert.Equal(t, int64(len("content-v1")), doc.Size)

	doc, err = store.SaveFields(ctx, "doc-1", map[string]string{"VIN": "BBB"}, []byte("content-v2"), "sum-2")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)

	versions, err := store.Versions("doc-1")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, "sum-1", versions[0].Checksum)
	assert.Equal(t, []byte("content-v1"), versions[0].Content)
}

func TestStore_IdempotentSave(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	values := map[string]string{"VIN": "AAA", "Buyer_Name": "JOHN SMITH"}
	_, err := store.SaveFields(ctx, "doc-1", values, []byte("content"), "sum-1")
	require.NoError(t, err)

	logBefore, err := store.ChangeLog("doc-1")
	require.NoError(t, err)

	doc, err := store.SaveFields(ctx, "doc-1", values, []byte("content"), "sum-1")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version, "identical checksum must not bump the version")

	versions, err := store.Versions("doc-1")
	require.NoError(t, err)
	assert.Empty(t, versions)

	logAfter, err := store.ChangeLog("doc-1")
	require.NoError(t, err)
	assert.Len(t, logAfter, len(logBefore), "identical save must not append change-log entries")
}

func TestStore_MonotonicGaplessVersions(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		content := []byte{byte(i)}
		doc, err := store.SaveFields(ctx, "doc-1", map[string]string{"n": string(content)}, content, string(content))
		require.NoError(t, err)
		assert.Equal(t, i, doc.Version)
	}

	versions, err := store.Versions("doc-1")
	require.NoError(t, err)
	require.Len(t, versions, 4)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Version)
	}
}

func TestStore_ChangeLogPerChangedField(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, err := store.SaveFields(ctx, "doc-1", map[string]string{"VIN": "AAA", "Price": "100.00"}, []byte("v1"), "sum-1")
	require.NoError(t, err)

	_, err = store.SaveFields(ctx, "doc-1", map[string]string{"VIN": "AAA", "Price": "200.00"}, []byte("v2"), "sum-2")
	require.NoError(t, err)

	entries, err := store.ChangeLog("doc-1")
	require.NoError(t, err)

	var priceChanges []FieldChangeLogEntry
	for _, e := range entries {
		if e.FieldName == "Price" && e.OldValue == "100.00" {
			priceChanges = append(priceChanges, e)
		}
	}
	require.Len(t, priceChanges, 1)
	assert.Equal(t, "200.00", priceChanges[0].NewValue)

	// VIN never changed after creation: exactly the creation entry.
	var vinEntries int
	for _, e := range entries {
		if e.FieldName == "VIN" {
			vinEntries++
		}
	}
	assert.Equal(t, 1, vinEntries)
}

func TestStore_StatusLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, err := store.SaveFields(ctx, "doc-1", map[string]string{"VIN": "AAA"}, []byte("v1"), "sum-1")
	require.NoError(t, err)

	_, err = store.SetStatus(ctx, "doc-1", StatusFinalized)
	assert.ErrorIs(t, err, ErrInvalidTransition, "cannot skip finalizing")

	_, err = store.SetStatus(ctx, "doc-1", StatusFinalizing)
	require.NoError(t, err)
	doc, err := store.SetStatus(ctx, "doc-1", StatusFinalized)
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, doc.Status)

	// Finalized is terminal: edits are rejected, forks are not.
	_, err = store.SaveFields(ctx, "doc-1", map[string]string{"VIN": "BBB"}, []byte("v2"), "sum-2")
	assert.ErrorIs(t, err, ErrFinalized)

	fork, err := store.Fork(ctx, "doc-1", "doc-2")
	require.NoError(t, err)
	assert.Equal(t, 1, fork.Version)
	assert.Equal(t, StatusDraft, fork.Status)
	assert.Equal(t, "sum-1", fork.Checksum)
}

func TestStore_AdvisoryLockContention(t *testing.T) {
	store := testStore(t)

	mu := store.lockFor("doc-1")
	mu.Lock()
	defer mu.Unlock()

	_, err := store.SaveFields(context.Background(), "doc-1", map[string]string{"VIN": "AAA"}, []byte("v1"), "sum-1")
	var cwErr *ConcurrentWriteError
	require.ErrorAs(t, err, &cwErr)
	assert.Equal(t, "doc-1", cwErr.DocumentID)
}

func TestStore_GetNotFound(t *testing.T) {
	store := testStore(t)
	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
