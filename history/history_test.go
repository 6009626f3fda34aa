package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndRecent(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Insert(ctx, &Record{
			ID:               id,
			CreatedAt:        base.Add(time.Duration(i) * time.Second),
			Source:           "http",
			Total:            i,
			Counts:           map[string]int{"Bolt": i},
			ProcessingTimeMs: 12.5,
			Width:            640,
			Height:           480,
		}))
	}

	recs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c", recs[0].ID)
	assert.Equal(t, "b", recs[1].ID)
	assert.Equal(t, map[string]int{"Bolt": 2}, recs[0].Counts)
	assert.Equal(t, 640, recs[0].Width)
	assert.True(t, recs[0].CreatedAt.Equal(base.Add(2*time.Second)))
}

func TestRecentEmpty(t *testing.T) {
	s := openTemp(t)
	recs, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestInsertDefaults(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, &Record{ID: "x", Source: "grpc"}))

	recs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, map[string]int{}, recs[0].Counts)
	assert.False(t, recs[0].CreatedAt.IsZero())

	assert.Error(t, s.Insert(ctx, nil))
	assert.Error(t, s.Insert(ctx, &Record{ID: "x", Source: "grpc"}), "duplicate id")
}
