package state

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/frontier"
)

// sumPreNotify is a PreNotifyHandler that mimics what Stage does with a
// Fold: walk the batch one record at a time, folding into bins.
func sumPreNotify(_ frontier.Capability[intTime], records []PreNotifyRecord[string, int], bins []map[string]int, _ func(frontier.Capability[intTime], bin.Id, string, int)) []int {
	var out []int
	for _, r := range records {
		bins[r.Bin][r.Key] += r.Value
		out = append(out, bins[r.Bin][r.Key])
	}
	return out
}

func TestUnaryStageAlwaysStashesUntilAdvance(t *testing.T) {
	st := NewUnaryStage[intTime, string, int, int, int](2, sumPreNotify)
	st.Record(intTime(5), bin.Id(0), "a", 3)

	out := st.Advance(open())
	assert.Nil(t, out, "frontier still open")

	out = st.Advance(closed(5))
	require.Equal(t, []int{3}, out)
}

func TestUnaryStageBatchesSameTimeRecordsByBin(t *testing.T) {
	var seenBatchSize int
	handler := func(_ frontier.Capability[intTime], records []PreNotifyRecord[string, int], bins []map[string]int, _ func(frontier.Capability[intTime], bin.Id, string, int)) []int {
		seenBatchSize = len(records)
		sort.SliceStable(records, func(i, j int) bool { return records[i].Bin < records[j].Bin })
		var out []int
		for _, r := range records {
			bins[r.Bin][r.Key] += r.Value
			out = append(out, bins[r.Bin][r.Key])
		}
		return out
	}
	st := NewUnaryStage[intTime, string, int, int, int](2, handler)
	st.Record(intTime(5), bin.Id(1), "b", 2)
	st.Record(intTime(5), bin.Id(0), "a", 3)

	out := st.Advance(closed(5))
	require.Equal(t, 2, seenBatchSize, "both records notified at the same time arrive in one handler call")
	require.Equal(t, []int{3, 2}, out)
}

func TestUnaryStageTransferReplacesBin(t *testing.T) {
	st := NewUnaryStage[intTime, string, int, int, int](2, sumPreNotify)
	st.Transfer(bin.Id(0), []Entry[string, int]{{Key: "a", Agg: 100}})
	st.Record(intTime(5), bin.Id(0), "a", 3)

	out := st.Advance(closed(5))
	require.Equal(t, []int{103}, out)
}

func TestUnaryStageDrainResetsBin(t *testing.T) {
	st := NewUnaryStage[intTime, string, int, int, int](2, sumPreNotify)
	st.Record(intTime(0), bin.Id(1), "k", 7)
	st.Advance(closed(0))

	entries := st.Drain(bin.Id(1))
	require.Len(t, entries, 1)
	assert.Equal(t, "k", entries[0].Key)
	assert.Equal(t, 7, entries[0].Agg)

	again := st.Drain(bin.Id(1))
	assert.Empty(t, again)
}

// windowDelete is a PreNotifyHandler that mints a delayed capability at
// t+window and schedules a zero-value record at that time to evict the
// key, the shape spec.md's windowed-query example uses to stash a
// delete-event at t+W rather than tracking expiry out of band.
const window = intTime(3)

func windowDelete(cap frontier.Capability[intTime], records []PreNotifyRecord[string, int], bins []map[string]int, schedule func(frontier.Capability[intTime], bin.Id, string, int)) []int {
	var out []int
	for _, r := range records {
		if r.Value == 0 {
			delete(bins[r.Bin], r.Key)
			continue
		}
		bins[r.Bin][r.Key] += r.Value
		out = append(out, bins[r.Bin][r.Key])
		schedule(cap.Delayed(cap.Time()+window), r.Bin, r.Key, 0)
	}
	return out
}

func TestUnaryStageDelayedCapabilitySchedulesWindowedEviction(t *testing.T) {
	st := NewUnaryStage[intTime, string, int, int, int](1, windowDelete)
	st.Record(intTime(0), bin.Id(0), "k", 5)

	out := st.Advance(closed(0))
	require.Equal(t, []int{5}, out)
	assert.Equal(t, 1, st.PendingNotifications(), "schedule queued a delete at t+window")

	// The key survives until the window elapses.
	out = st.Advance(closed(2))
	assert.Nil(t, out)

	out = st.Advance(closed(window))
	assert.Nil(t, out)
	assert.Empty(t, st.Drain(bin.Id(0)), "key evicted once the delayed capability's time closes")
}
