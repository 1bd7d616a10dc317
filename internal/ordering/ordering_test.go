package ordering

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bbsfolio/api/internal/content"
)

func intPtr(v int) *int { return &v }

func entries(ids ...string) []content.PortfolioEntry {
	out := make([]content.PortfolioEntry, len(ids))
	for i, id := range ids {
		out[i] = content.PortfolioEntry{ID: id, Title: id, Order: intPtr(i)}
	}
	return out
}

func idsOf(t *testing.T, items []content.PortfolioEntry) []string {
	t.Helper()
	ids, err := IDs(items)
	require.NoError(t, err)
	return ids
}

func TestSortTreatsMissingOrderAsZeroAndKeepsTies(t *testing.T) {
	sections := []content.Section{
		{ID: "c", Order: intPtr(2)},
		{ID: "a"},
		{ID: "b", Order: intPtr(0)},
		{ID: "d", Order: intPtr(1)},
	}

	sorted := Sort(sections)

	got := make([]string, len(sorted))
	for i, s := range sorted {
		got[i] = s.ID
	}
	assert.Equal(t, []string{"a", "b", "d", "c"}, got)
	assert.Equal(t, "c", sections[0].ID, "Sort must not reorder its input")
}

func TestSortHandlesExtremeOrders(t *testing.T) {
	sections := []content.Section{
		{ID: "max", Order: intPtr(math.MaxInt)},
		{ID: "min", Order: intPtr(math.MinInt)},
		{ID: "zero"},
		{ID: "neg", Order: intPtr(-1)},
	}

	sorted := Sort(sections)

	got := make([]string, len(sorted))
	for i, s := range sorted {
		got[i] = s.ID
	}
	assert.Equal(t, []string{"min", "neg", "zero", "max"}, got)
}

func TestMoveShiftsIntermediateItems(t *testing.T) {
	items := entries("e0", "e1", "e2", "e3", "e4")

	moved, err := Move(items, 2, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"e2", "e0", "e1", "e3", "e4"}, idsOf(t, moved))
	assert.Equal(t, []string{"e0", "e1", "e2", "e3", "e4"}, idsOf(t, items))
}

func TestMoveRejectsOutOfRange(t *testing.T) {
	items := entries("a", "b")
	for _, tc := range [][2]int{{-1, 0}, {0, 2}, {2, 0}, {0, -1}} {
		_, err := Move(items, tc[0], tc[1])
		assert.ErrorIs(t, err, ErrBadIndex, "move %v", tc)
	}
}

func TestChanged(t *testing.T) {
	items := entries("a", "b", "c")
	assert.False(t, Changed(items))

	moved, err := Move(items, 1, 1)
	require.NoError(t, err)
	assert.False(t, Changed(moved), "dropping back on the same slot is a no-op")

	moved, err = Move(items, 0, 2)
	require.NoError(t, err)
	assert.True(t, Changed(moved))

	unordered := []content.Section{{ID: "x"}}
	assert.True(t, Changed(unordered), "a missing order differs from index 0")
}

func TestAssignProducesPermutationMatchingSequence(t *testing.T) {
	for n := 1; n <= 6; n++ {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = string(rune('a' + i))
		}
		for from := 0; from < n; from++ {
			for to := 0; to < n; to++ {
				if from == to {
					continue
				}
				moved, err := Move(entries(ids...), from, to)
				require.NoError(t, err)
				assigned := Assign(moved)
				seen := make(map[int]bool, n)
				for idx, item := range assigned {
					require.NotNil(t, item.Order)
					assert.Equal(t, idx, *item.Order)
					assert.Equal(t, moved[idx].ID, item.ID)
					seen[*item.Order] = true
				}
				assert.Len(t, seen, n)
			}
		}
	}
}

func TestAssignIsIdempotent(t *testing.T) {
	moved, err := Move(entries("a", "b", "c"), 2, 0)
	require.NoError(t, err)
	once := Assign(moved)
	twice := Assign(once)
	assert.Equal(t, once, twice)
	assert.False(t, Changed(twice))
}

func TestArrange(t *testing.T) {
	items := entries("a", "b", "c")

	arranged, err := Arrange(items, []string{"c", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, idsOf(t, arranged))

	_, err = Arrange(items, []string{"a", "b"})
	assert.ErrorIs(t, err, ErrNotPermutation)
	_, err = Arrange(items, []string{"a", "a", "b"})
	assert.ErrorIs(t, err, ErrNotPermutation)
	_, err = Arrange(items, []string{"a", "b", "z"})
	assert.ErrorIs(t, err, ErrNotPermutation)
}

func TestIDsRequiresEveryID(t *testing.T) {
	_, err := IDs([]content.Section{{ID: "a"}, {}})
	assert.ErrorIs(t, err, ErrMissingID)
}
