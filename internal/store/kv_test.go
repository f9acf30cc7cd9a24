package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.Put(ctx, "config", "current", []byte(`{"a":1}`)))

	got, ok, err := s.Get(ctx, "config", "current")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(got))
}

func TestPut_Replaces(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.Put(ctx, "config", "current", []byte(`1`)))
	require.NoError(t, s.Put(ctx, "config", "current", []byte(`2`)))

	got, _, err := s.Get(ctx, "config", "current")
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))

	keys, err := s.ListKeys(ctx, "config")
	require.NoError(t, err)
	assert.Equal(t, []string{"current"}, keys)
}

func TestGet_Absent(t *testing.T) {
	s := createTestStore(t)

	got, ok, err := s.Get(context.Background(), "config", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.Put(ctx, "pending-notifications", "n1", []byte(`{}`)))
	require.NoError(t, s.Delete(ctx, "pending-notifications", "n1"))

	_, ok, err := s.Get(ctx, "pending-notifications", "n1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Absent keys delete cleanly.
	assert.NoError(t, s.Delete(ctx, "pending-notifications", "n1"))
}

func TestListKeys_Sorted(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	for _, k := range []string{"zebra", "alpha", "mid"} {
		require.NoError(t, s.Put(ctx, "due-items", k, []byte(`{}`)))
	}

	keys, err := s.ListKeys(ctx, "due-items")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zebra"}, keys)
}

func TestListKeys_Empty(t *testing.T) {
	s := createTestStore(t)

	keys, err := s.ListKeys(context.Background(), "due-items")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestPut_AdHocCollectionCreatedOnDemand(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.False(t, tableExists(t, s, "lifecycle"))
	require.NoError(t, s.Put(ctx, "lifecycle", "active", []byte(`{"instancia":"a"}`)))
	assert.True(t, tableExists(t, s, "lifecycle"))

	got, ok, err := s.Get(ctx, "lifecycle", "active")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"instancia":"a"}`, string(got))

	version, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestGet_AdHocCollectionReadsAsAbsent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, ok, err := s.Get(ctx, "never-written", "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, tableExists(t, s, "never-written"))
}

func TestPut_SelfHealsDroppedCollection(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.Put(ctx, "config", "current", []byte(`{}`)))

	_, err := s.db.Exec(`DROP TABLE "kv_due-items"`)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "due-items", "all", []byte(`[]`)))

	keys, err := s.ListKeys(ctx, "due-items")
	require.NoError(t, err)
	assert.Equal(t, []string{"all"}, keys)

	// Sibling collection untouched.
	_, ok, err := s.Get(ctx, "config", "current")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInvalidNames(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, _, err := s.Get(ctx, "bad name", "k")
	assert.ErrorIs(t, err, ErrInvalidName)

	err = s.Put(ctx, "config", "", []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = s.ListKeys(ctx, `x";DROP TABLE collections;--`)
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.False(t, IsUnavailable(err))
}

func TestClosedStore_IsUnavailable(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.Close())

	_, _, err := s.Get(ctx, "config", "current")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))

	err = s.Put(ctx, "config", "current", []byte(`{}`))
	assert.True(t, IsUnavailable(err))
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	type rec struct {
		ID   string `json:"id"`
		Days int    `json:"days"`
	}

	require.NoError(t, s.PutJSON(ctx, "config", "current", rec{ID: "x", Days: 2}))

	var got rec
	ok, err := s.GetJSON(ctx, "config", "current", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec{ID: "x", Days: 2}, got)

	ok, err = s.GetJSON(ctx, "config", "other", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "config", "broken", []byte(`{not json`)))
	ok, err = s.GetJSON(ctx, "config", "broken", &got)
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestError_Format(t *testing.T) {
	err := &Error{Op: "get", Collection: "config", Key: "current", Err: assert.AnError}
	assert.Equal(t, "store get config/current: "+assert.AnError.Error(), err.Error())
	assert.ErrorIs(t, err, assert.AnError)
}
