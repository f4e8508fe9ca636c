package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/orchestrator/internal/types"
)

func TestWriteThenGetReturnsLatestSnapshot(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "tasks.jsonl"))
	require.NoError(t, err)

	require.NoError(t, s.Write(&types.Task{ID: "t1", Status: types.StatusQueued, SubTaskIDs: map[string]struct{}{}}))
	require.NoError(t, s.Write(&types.Task{ID: "t1", Status: types.StatusDone, SubTaskIDs: map[string]struct{}{}}))

	got, err := s.Get("t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.StatusDone, got.Status)
}

func TestGetUnknownTaskReturnsNilNoError(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "tasks.jsonl"))
	require.NoError(t, err)

	got, err := s.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListRespectsLimitAndFirstWriteOrder(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "tasks.jsonl"))
	require.NoError(t, err)

	require.NoError(t, s.Write(&types.Task{ID: "a", SubTaskIDs: map[string]struct{}{}}))
	require.NoError(t, s.Write(&types.Task{ID: "b", SubTaskIDs: map[string]struct{}{}}))
	require.NoError(t, s.Write(&types.Task{ID: "a", Status: types.StatusDone, SubTaskIDs: map[string]struct{}{}}))

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, types.StatusDone, all[0].Status, "List must return the latest write per id, not the first")

	limited, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "a", limited[0].ID)
}

func TestBootstrapFeedsEverySnapshotToSink(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "tasks.jsonl"))
	require.NoError(t, err)
	require.NoError(t, s.Write(&types.Task{ID: "a", SubTaskIDs: map[string]struct{}{}}))
	require.NoError(t, s.Write(&types.Task{ID: "b", SubTaskIDs: map[string]struct{}{}}))

	seen := make(map[string]bool)
	require.NoError(t, s.Bootstrap(func(t *types.Task) { seen[t.ID] = true }))

	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}

func TestListOnMissingFileReturnsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nested", "tasks.jsonl"))
	require.NoError(t, err)

	all, err := s.List(0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
