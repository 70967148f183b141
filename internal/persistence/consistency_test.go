package persistence

import (
	"context"
	"testing"

	"github.com/hession/taskmem/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConsistency_Clean(t *testing.T) {
	ctx := context.Background()
	medium := kv.NewMemoryMedium(0)
	s := newTestStore(t, medium, 0)

	require.NoError(t, s.SaveEntry(ctx, sampleEntry("mem_1", 1)))
	require.NoError(t, s.SaveEntry(ctx, sampleEntry("mem_2", 2)))
	// Foreign keys outside the entry namespace are ignored
	require.NoError(t, medium.Set(ctx, "other_app_key", "x"))

	report, err := s.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsConsistent)
	assert.Equal(t, 2, report.StoredEntries)
	assert.Equal(t, 2, report.IndexedEntries)

	result, err := s.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, &RepairResult{}, result)
}

func TestCheckConsistencyAndRepair(t *testing.T) {
	ctx := context.Background()
	medium := kv.NewMemoryMedium(0)
	s := newTestStore(t, medium, 64)

	require.NoError(t, s.SaveEntry(ctx, sampleEntry("mem_ok", 1)))
	require.NoError(t, s.SaveEntry(ctx, sampleEntry("mem_gone", 2)))
	require.NoError(t, s.SaveEntry(ctx, sampleEntry("mem_bad", 3)))

	// Dangling id, invalid record and an orphan written outside the index
	require.NoError(t, medium.Remove(ctx, s.entryKey("mem_gone")))
	require.NoError(t, medium.Set(ctx, s.entryKey("mem_bad"), `{"id":""}`))
	require.NoError(t, medium.Set(ctx, s.entryKey("mem_orphan"), `{}`))

	report, err := s.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.False(t, report.IsConsistent)
	assert.Equal(t, 3, report.StoredEntries)
	assert.Equal(t, 3, report.IndexedEntries)
	assert.Equal(t, []string{"mem_orphan"}, report.OrphanedEntries)
	assert.Equal(t, []string{"mem_gone"}, report.DanglingIDs)
	assert.Equal(t, []string{"mem_bad"}, report.InvalidEntries)

	// Checking changes nothing
	idx, err := s.Index(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mem_ok", "mem_gone", "mem_bad"}, idx.EntryIDs)

	result, err := s.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedOrphans)
	assert.Equal(t, 2, result.DroppedIDs)

	idx, err = s.Index(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mem_ok"}, idx.EntryIDs)
	assert.Equal(t, 1, idx.TotalEntries)

	_, ok, err := medium.Get(ctx, s.entryKey("mem_orphan"))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = medium.Get(ctx, s.entryKey("mem_bad"))
	require.NoError(t, err)
	assert.False(t, ok)

	report, err = s.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsConsistent)
}

func TestConsistencyReport_RemovableIDsDoesNotAlias(t *testing.T) {
	orphans := make([]string, 1, 4)
	orphans[0] = "mem_orphan"
	report := &ConsistencyReport{
		OrphanedEntries: orphans,
		InvalidEntries:  []string{"mem_bad", "mem_worse"},
	}

	assert.Equal(t, []string{"mem_orphan", "mem_bad", "mem_worse"}, report.removableIDs())
	assert.Equal(t, []string{"mem_orphan"}, report.OrphanedEntries)
	assert.Equal(t, []string{"", "", ""}, orphans[1:4], "spare capacity must stay untouched")
}
