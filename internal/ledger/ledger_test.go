package ledger

import (
	"math/rand"
	"testing"

	"github.com/KvFxKaido/Push-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRead_FullNotTruncated_AllowsWrite(t *testing.T) {
	l := New()
	l.RecordRead("/workspace/a.ts", nil, false)

	v := l.CheckWriteAllowed("/workspace/a.ts")
	assert.True(t, v.Allowed)
}

func TestRecordRead_PartialTruncated_BlocksWrite(t *testing.T) {
	l := New()
	l.RecordRead("/workspace/a.ts", &models.LineRange{Start: 10, End: 20}, true)

	v := l.CheckWriteAllowed("/workspace/a.ts")
	require.False(t, v.Allowed)
	assert.Equal(t, "partial coverage", v.Reason)
}

func TestCheckWriteAllowed_NeverRead_Blocked(t *testing.T) {
	l := New()
	l.RegisterFile("/workspace/a.ts")

	v := l.CheckWriteAllowed("/workspace/a.ts")
	require.False(t, v.Allowed)
	assert.Equal(t, "not yet read", v.Reason)
}

func TestCheckWriteAllowed_NoEntry_Allowed(t *testing.T) {
	l := New()
	v := l.CheckWriteAllowed("/workspace/new-file.ts")
	assert.True(t, v.Allowed)
}

func TestModelAuthored_SurvivesSubsequentPartialRead(t *testing.T) {
	l := New()
	l.RecordCreation("/workspace/a.ts")
	l.RecordRead("/workspace/a.ts", &models.LineRange{Start: 1, End: 2}, true)

	v := l.CheckWriteAllowed("/workspace/a.ts")
	assert.True(t, v.Allowed)
}

func TestMarkStale_WrapsExistingState_AndAllowsWrite(t *testing.T) {
	l := New()
	l.RecordRead("/workspace/a.ts", nil, false)
	l.MarkStale("/workspace/a.ts")

	state, ok := l.State("/workspace/a.ts")
	require.True(t, ok)
	assert.Equal(t, KindStale, state.Kind)

	v := l.CheckWriteAllowed("/workspace/a.ts")
	assert.True(t, v.Allowed, "stale wraps a fully_read state, which remains allowed")

	warning, hasWarning := l.StaleWarning("/workspace/a.ts")
	assert.True(t, hasWarning)
	assert.NotEmpty(t, warning)
}

func TestRecordRead_ClearsStale(t *testing.T) {
	l := New()
	l.RecordRead("/workspace/a.ts", nil, false)
	l.MarkStale("/workspace/a.ts")
	l.RecordRead("/workspace/a.ts", nil, false)

	state, ok := l.State("/workspace/a.ts")
	require.True(t, ok)
	assert.Equal(t, KindFullyRead, state.Kind)
}

func TestMergeRanges_OrderIndependent(t *testing.T) {
	ranges := []models.LineRange{
		{Start: 1, End: 5}, {Start: 10, End: 12}, {Start: 6, End: 9}, {Start: 20, End: 25},
	}
	want := models.MergeRanges(ranges)

	shuffled := append([]models.LineRange{}, ranges...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	got := models.MergeRanges(shuffled)

	assert.Equal(t, want, got)

	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Start, got[i-1].End+1, "merged output must have no overlap or adjacency")
	}
}

func TestMergeRanges_AdjacentGapMerges(t *testing.T) {
	got := models.MergeRanges([]models.LineRange{{Start: 1, End: 5}, {Start: 6, End: 10}})
	require.Len(t, got, 1)
	assert.Equal(t, models.LineRange{Start: 1, End: 10}, got[0])
}

func TestPath_AutoExpand_WhenNeverReadThenWriteAllowed(t *testing.T) {
	l := New()
	// simulates the edit guard: blocked -> auto-expand read -> re-check
	l.RegisterFile("/workspace/src/foo.ts")
	v := l.CheckWriteAllowed("/workspace/src/foo.ts")
	require.False(t, v.Allowed)

	l.RecordAutoExpandAttempt()
	l.RecordRead("/workspace/src/foo.ts", nil, false)
	l.RecordAutoExpandSuccess()

	v = l.CheckWriteAllowed("/workspace/src/foo.ts")
	assert.True(t, v.Allowed)

	m := l.Snapshot()
	assert.Equal(t, 1, m.AutoExpandAttempts)
	assert.Equal(t, 1, m.AutoExpandSuccess)
}

func TestNormalizePath_StripsWorkspacePrefix(t *testing.T) {
	assert.Equal(t, "src/foo.ts", NormalizePath("/workspace/src/foo.ts"))
	assert.Equal(t, "src/foo.ts", NormalizePath("src/foo.ts"))
}
