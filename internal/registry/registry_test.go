package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/orchestrator/internal/types"
)

func TestUpdateThenGetRoundTrips(t *testing.T) {
	r := New()
	task := &types.Task{ID: "t1", Title: "x", Status: types.StatusQueued, SubTaskIDs: map[string]struct{}{}}
	r.Update(task)

	got := r.Get("t1")
	require.NotNil(t, got)
	assert.Equal(t, "x", got.Title)

	task.Title = "mutated after Update"
	assert.Equal(t, "x", r.Get("t1").Title, "Update must clone, not alias, the stored snapshot")
}

func TestGetUnknownReturnsNil(t *testing.T) {
	r := New()
	assert.Nil(t, r.Get("missing"))
}

func TestListOrdersByCreatedAt(t *testing.T) {
	r := New()
	now := time.Now()
	r.Update(&types.Task{ID: "b", CreatedAt: now.Add(time.Minute), SubTaskIDs: map[string]struct{}{}})
	r.Update(&types.Task{ID: "a", CreatedAt: now, SubTaskIDs: map[string]struct{}{}})

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestChildrenFiltersByParent(t *testing.T) {
	r := New()
	r.Update(&types.Task{ID: "root", SubTaskIDs: map[string]struct{}{}})
	r.Update(&types.Task{ID: "child-1", ParentTaskID: "root", SubTaskIDs: map[string]struct{}{}})
	r.Update(&types.Task{ID: "child-2", ParentTaskID: "root", SubTaskIDs: map[string]struct{}{}})
	r.Update(&types.Task{ID: "unrelated", SubTaskIDs: map[string]struct{}{}})

	children := r.Children("root")
	require.Len(t, children, 2)
	assert.ElementsMatch(t, []string{"child-1", "child-2"}, []string{children[0].ID, children[1].ID})
}

func TestRecentReturnsOnlyTerminalTasksNewestFirst(t *testing.T) {
	r := New()
	now := time.Now()
	r.Update(&types.Task{ID: "done-old", Status: types.StatusDone, UpdatedAt: now.Add(-time.Hour), SubTaskIDs: map[string]struct{}{}})
	r.Update(&types.Task{ID: "done-new", Status: types.StatusDone, UpdatedAt: now, SubTaskIDs: map[string]struct{}{}})
	r.Update(&types.Task{ID: "blocked", Status: types.StatusBlocked, UpdatedAt: now.Add(-time.Minute), SubTaskIDs: map[string]struct{}{}})
	r.Update(&types.Task{ID: "still-running", Status: types.StatusBuilding, UpdatedAt: now, SubTaskIDs: map[string]struct{}{}})

	recent := r.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "done-new", recent[0].ID)
	assert.Equal(t, "blocked", recent[1].ID)
}

func TestCountTracksDistinctTasks(t *testing.T) {
	r := New()
	r.Update(&types.Task{ID: "t1", SubTaskIDs: map[string]struct{}{}})
	r.Update(&types.Task{ID: "t2", SubTaskIDs: map[string]struct{}{}})
	r.Update(&types.Task{ID: "t1", Title: "updated", SubTaskIDs: map[string]struct{}{}})

	assert.Equal(t, 2, r.Count())
}
