package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/frontier"
)

type intTime int

func (t intTime) Less(o intTime) bool { return t < o }

func sumFold(_ string, v int, agg *int) (bool, []int) {
	*agg += v
	return false, []int{*agg}
}

func closed(t intTime) []*frontier.Antichain[intTime] {
	return []*frontier.Antichain[intTime]{frontier.NewAntichain[intTime](t + 1)}
}

func open() []*frontier.Antichain[intTime] {
	return []*frontier.Antichain[intTime]{frontier.NewAntichain[intTime](0)}
}

func TestRecordImmediateWhenFrontierClosed(t *testing.T) {
	st := New[intTime, string, int, int, int](2, sumFold)
	out := st.Record(intTime(5), bin.Id(0), "a", 3, closed(5))
	require.Equal(t, []int{3}, out)
}

func TestRecordStashedThenAdvanced(t *testing.T) {
	st := New[intTime, string, int, int, int](2, sumFold)
	out := st.Record(intTime(5), bin.Id(0), "a", 3, open())
	assert.Nil(t, out)

	out = st.Advance(open())
	assert.Nil(t, out, "frontier still open")

	out = st.Advance(closed(5))
	require.Equal(t, []int{3}, out)
}

func TestTransferAppliedBeforeRecordAtSameTime(t *testing.T) {
	st := New[intTime, string, int, int, int](2, sumFold)

	// A transfer seeds bin 0's "a" aggregate to 100 before a record at the
	// same time adds 3: the record must observe the post-migration state.
	st.Transfer(intTime(5), bin.Id(0), []Entry[string, int]{{Key: "a", Agg: 100}})
	out := st.Record(intTime(5), bin.Id(0), "a", 3, open())
	assert.Nil(t, out)

	out = st.Advance(closed(5))
	require.Equal(t, []int{103}, out)
}

func TestDrainReplacesBinWithDefault(t *testing.T) {
	st := New[intTime, string, int, int, int](2, sumFold)
	st.Record(intTime(0), bin.Id(1), "k", 7, closed(0))

	entries := st.Drain(bin.Id(1))
	require.Len(t, entries, 1)
	assert.Equal(t, "k", entries[0].Key)
	assert.Equal(t, 7, entries[0].Agg)

	again := st.Drain(bin.Id(1))
	assert.Empty(t, again, "bin replaced by default after drain")
}

func TestRemoveEvictsEntry(t *testing.T) {
	removeOnNegative := func(_ string, v int, agg *int) (bool, []int) {
		*agg += v
		return *agg < 0, []int{*agg}
	}
	st := New[intTime, string, int, int, int](2, removeOnNegative)
	st.Record(intTime(0), bin.Id(0), "k", -5, closed(0))

	entries := st.Drain(bin.Id(0))
	assert.Empty(t, entries, "entry evicted by remove=true")
}
