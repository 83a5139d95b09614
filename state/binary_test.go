package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binshift/binshift/bin"
)

// joinFold is a small left_join-shaped fold: side A (readings, int) backlogs
// into its own aggregate until a side-B label (string) arrives, at which
// point the label flush emits the backlog and clears it from side A.
var joinFold = BinaryFold[string, int, string, int, string, string]{
	FoldA: func(key string, reading int, backlog *int, label *string) (removeMine, removeOther bool, outputs []string) {
		if *label != "" {
			return false, false, []string{*label}
		}
		*backlog += reading
		return false, false, nil
	},
	FoldB: func(key string, label string, mine *string, backlog *int) (removeMine, removeOther bool, outputs []string) {
		*mine = label
		if *backlog == 0 {
			return false, false, nil
		}
		return false, true, []string{label}
	},
}

func TestBinaryStageReadingBeforeLabelBacklogsThenFlushes(t *testing.T) {
	st := NewBinaryStage[intTime, string, int, string, int, string, string](1, joinFold)

	out := st.RecordA(intTime(0), bin.Id(0), "k", 7, open())
	assert.Nil(t, out)
	out = st.Advance(closed(0))
	assert.Nil(t, out, "no label yet, reading backlogs silently")

	out = st.RecordB(intTime(1), bin.Id(0), "k", "room-A", open())
	assert.Nil(t, out)
	out = st.Advance(closed(1))
	require.Equal(t, []string{"room-A"}, out, "label flush emits the backlogged reading")
}

func TestBinaryStageReadingAfterLabelJoinsImmediately(t *testing.T) {
	st := NewBinaryStage[intTime, string, int, string, int, string, string](1, joinFold)

	st.RecordB(intTime(0), bin.Id(0), "k", "room-A", open())
	st.Advance(closed(0))

	out := st.RecordA(intTime(1), bin.Id(0), "k", 3, open())
	assert.Nil(t, out)
	out = st.Advance(closed(1))
	require.Equal(t, []string{"room-A"}, out)
}

func TestBinaryStageTransferAppliesBothSidesBeforeRecords(t *testing.T) {
	st := NewBinaryStage[intTime, string, int, string, int, string, string](1, joinFold)

	st.Transfer(intTime(5), bin.Id(0), nil, []Entry[string, string]{{Key: "k", Agg: "room-A"}})
	out := st.RecordA(intTime(5), bin.Id(0), "k", 9, open())
	assert.Nil(t, out)

	out = st.Advance(closed(5))
	require.Equal(t, []string{"room-A"}, out, "transferred label is visible to a same-time reading")
}

func TestBinaryStageSameTimeOrderingIsAThenB(t *testing.T) {
	var order []string
	orderedFold := BinaryFold[string, int, string, int, string, string]{
		FoldA: func(_ string, _ int, _ *int, _ *string) (bool, bool, []string) {
			order = append(order, "A")
			return false, false, nil
		},
		FoldB: func(_ string, _ string, _ *string, _ *int) (bool, bool, []string) {
			order = append(order, "B")
			return false, false, nil
		},
	}
	st := NewBinaryStage[intTime, string, int, string, int, string, string](1, orderedFold)
	st.RecordB(intTime(0), bin.Id(0), "k", "room-A", open())
	st.RecordA(intTime(0), bin.Id(0), "k", 1, open())

	st.Advance(closed(0))
	assert.Equal(t, []string{"A", "B"}, order, "side-A records apply before side-B at the same time")
}

// storeFold keeps each side's own state untouched by the other, so a
// Drain test can check both sides independently without one side's fold
// evicting the other's entry.
var storeFold = BinaryFold[string, int, string, int, string, string]{
	FoldA: func(_ string, v int, mine *int, _ *string) (bool, bool, []string) {
		*mine = v
		return false, false, nil
	},
	FoldB: func(_ string, v string, mine *string, _ *int) (bool, bool, []string) {
		*mine = v
		return false, false, nil
	},
}

func TestBinaryStageDrainResetsBothSides(t *testing.T) {
	st := NewBinaryStage[intTime, string, int, string, int, string, string](1, storeFold)
	st.RecordA(intTime(0), bin.Id(0), "k", 7, open())
	st.RecordB(intTime(0), bin.Id(0), "k", "room-A", open())
	st.Advance(closed(0))

	entriesA, entriesB := st.Drain(bin.Id(0))
	require.Len(t, entriesA, 1)
	assert.Equal(t, "k", entriesA[0].Key)
	assert.Equal(t, 7, entriesA[0].Agg)
	require.Len(t, entriesB, 1)
	assert.Equal(t, "room-A", entriesB[0].Agg)

	againA, againB := st.Drain(bin.Id(0))
	assert.Empty(t, againA)
	assert.Empty(t, againB)
}
