package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBeginFinishAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	id, err := store.Begin(ctx, "123", "someone", "hello", "/tmp/out.ts")
	require.NoError(t, err)
	require.NoError(t, store.Finish(ctx, id, OutcomeCompleted, "/tmp/out.mp4"))

	records, err := store.Recent(ctx, "123", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, OutcomeCompleted, records[0].Outcome)
	require.Equal(t, "/tmp/out.mp4", records[0].MuxedPath)
	require.True(t, records[0].EndedAt.Valid)
}
