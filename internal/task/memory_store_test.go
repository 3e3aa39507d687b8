package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().Add(-2 * time.Minute)

	for _, task := range []*Task{
		{ID: "t1", Action: "echo", Status: StatusPending, MaxRetries: 3},
		{ID: "t2", Action: "echo", Status: StatusPending, MaxRetries: 3},
		{ID: "t3", Action: "status", Status: StatusPending, MaxRetries: 3},
	} {
		require.NoError(t, store.Create(ctx, task))
	}
	require.NoError(t, store.MarkFailed(ctx, "t2", CodeTaskProcessing, "boom"))
	require.NoError(t, store.MarkSucceeded(ctx, "t3", map[string]any{"ok": true}))

	store.mu.Lock()
	store.tasks["t1"].UpdatedAt = base.Unix()
	store.tasks["t2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["t3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"t3", "t2", "t1"}, ids(all))

	asc, err := store.List(ctx, buildListOptions([]ListOption{WithSortOrder(SortByUpdatedAsc)}))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids(asc))

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed, "bogus")}))
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, ids(failed))

	echo, err := store.List(ctx, buildListOptions([]ListOption{WithAction("echo"), WithLimit(1), WithOffset(1)}))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, ids(echo))
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &Task{ID: "t", Action: "echo", Status: StatusPending, MaxRetries: 1}))
	assert.ErrorIs(t, store.Create(ctx, &Task{ID: "t"}), ErrTaskConflict)

	claimed, err := store.Claim(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)

	_, err = store.Claim(ctx, "t")
	assert.ErrorIs(t, err, ErrTaskConflict)

	require.NoError(t, store.MarkFailed(ctx, "t", CodeTaskProcessing, "boom"))
	_, err = store.Claim(ctx, "t")
	assert.ErrorIs(t, err, ErrTaskExhausted)

	_, err = store.Claim(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, store.MarkSucceeded(ctx, "missing", nil), ErrTaskNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	params := map[string]any{"msg": "hi"}
	require.NoError(t, store.Create(ctx, &Task{ID: "t", Action: "echo", Params: params, MaxRetries: 1}))
	params["msg"] = "changed"

	task, err := store.Get(ctx, "t")
	require.NoError(t, err)
	task.Params["msg"] = "mutated"

	again, err := store.Get(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Params["msg"])
}

func ids(tasks []*Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.ID)
	}
	return out
}
