// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func boardState(t *testing.T, n int) []datatypes.Assignment {
	t.Helper()
	out := make([]datatypes.Assignment, 0, n)
	for i := 0; i < n; i++ {
		a, err := datatypes.NewAssignment(
			string(rune('a'+i))+"-1", "dem-1", "emp-1", 90)
		require.NoError(t, err)
		out = append(out, a)
	}
	return out
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	store := openTestStore(t)

	saved, err := store.Save(boardState(t, 3), "before night shift rework", "planner-1")
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	loaded, err := store.Load(saved.ID)
	require.NoError(t, err)

	assert.Equal(t, saved.ID, loaded.ID)
	assert.Equal(t, "before night shift rework", loaded.Label)
	assert.Equal(t, "planner-1", loaded.CreatedBy)
	assert.Len(t, loaded.Assignments, 3)
}

func TestLoad_UnknownID(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Load("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_NewestFirstWithoutPayload(t *testing.T) {
	store := openTestStore(t)

	first, err := store.Save(boardState(t, 1), "first", "planner-1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := store.Save(boardState(t, 2), "second", "planner-2")
	require.NoError(t, err)

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)

	assert.Equal(t, second.ID, metas[0].ID)
	assert.Equal(t, first.ID, metas[1].ID)
	assert.Equal(t, 2, metas[0].Assignments)
	assert.Equal(t, 1, metas[1].Assignments)
}

func TestList_Empty(t *testing.T) {
	store := openTestStore(t)

	metas, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestDelete(t *testing.T) {
	store := openTestStore(t)

	saved, err := store.Save(boardState(t, 1), "", "planner-1")
	require.NoError(t, err)

	require.NoError(t, store.Delete(saved.ID))
	_, err = store.Load(saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(saved.ID), ErrNotFound)
}

func TestPersistentStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(DefaultConfig(dir))
	require.NoError(t, err)

	saved, err := store.Save(boardState(t, 2), "durable", "planner-1")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable", loaded.Label)
	assert.Len(t, loaded.Assignments, 2)
}
