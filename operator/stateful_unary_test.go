package operator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/control"
	"github.com/binshift/binshift/frontier"
	"github.com/binshift/binshift/state"
)

// sumPreNotify mirrors sumFold's semantics (running per-key sum) but through
// the pre-notify contract: it walks the notified batch itself and writes
// straight into the bin array handed to it.
func sumPreNotify(_ frontier.Capability[intTime], records []state.PreNotifyRecord[int, int], bins []map[int]int, _ func(frontier.Capability[intTime], bin.Id, int, int)) []int {
	var out []int
	for _, r := range records {
		bins[r.Bin][r.Key] += r.Value
		out = append(out, bins[r.Bin][r.Key])
	}
	return out
}

func closeUnaryInputs(m *StatefulUnary[intTime, int, int, int, int], t intTime) *frontier.Antichain[intTime] {
	c := closed(t)
	m.AdvanceControlInput(c)
	return c
}

func TestStatefulUnaryRecordAlwaysStashesUntilAdvance(t *testing.T) {
	m := NewStatefulUnary[intTime, int, int, int, int](bin.Worker(0), 1, hashOf, sumPreNotify, bottom())
	defer m.Close()

	c := closeUnaryInputs(m, 5)
	remote := m.Submit(intTime(5), []int{0}, []int{3})
	assert.Nil(t, remote)

	out, _ := m.Advance(c)
	require.Equal(t, []int{3}, out)
}

func TestStatefulUnaryDrainRouterDispatchesStashedRecord(t *testing.T) {
	m := NewStatefulUnary[intTime, int, int, int, int](bin.Worker(0), 1, hashOf, sumPreNotify, bottom())
	defer m.Close()

	m.IngestControl(intTime(5), control.Command{Sequence: 0, Count: 1, Inst: control.NoOpInst{}})
	remote := m.Submit(intTime(3), []int{0}, []int{3})
	assert.Nil(t, remote)

	remote = m.DrainRouter()
	assert.Nil(t, remote, "control input frontier has not advanced past 3 yet")

	m.CloseControl(intTime(5))
	require.Eventually(t, func() bool {
		m.AdvanceControlInput(closed(6))
		remote = m.DrainRouter()
		return remote == nil
	}, timeoutShort, pollShort)

	out, _ := m.Advance(closed(6))
	require.Equal(t, []int{3}, out)
}

func TestStatefulUnaryPromotionTransfersDrainedBin(t *testing.T) {
	w0 := NewStatefulUnary[intTime, int, int, int, int](bin.Worker(0), 1, hashOf, sumPreNotify, bottom())
	defer w0.Close()
	w1 := NewStatefulUnary[intTime, int, int, int, int](bin.Worker(1), 1, hashOf, sumPreNotify, bottom())
	defer w1.Close()

	c1 := closeUnaryInputs(w0, 1)
	closeUnaryInputs(w1, 1)
	w0.Submit(intTime(1), []int{0}, []int{10})
	out, _ := w0.Advance(c1)
	require.Equal(t, []int{10}, out)

	newMap := bin.NewMap(2, 0)
	newMap.Move(0, 1)
	cmd := control.Command{Sequence: 0, Count: 1, Inst: control.MapInst{Map: newMap}}
	w0.IngestControl(intTime(5), cmd)
	w0.CloseControl(intTime(5))
	w1.IngestControl(intTime(5), cmd)
	w1.CloseControl(intTime(5))

	var transfers []Transfer[intTime, int, int]
	require.Eventually(t, func() bool {
		c := closeUnaryInputs(w0, 6)
		_, tr := w0.Advance(c)
		transfers = tr
		return len(tr) == 1
	}, timeoutShort, pollShort)
	require.Len(t, transfers[0].Entries, 1)
	assert.Equal(t, state.Entry[int, int]{Key: 0, Agg: 10}, transfers[0].Entries[0])

	w1.DeliverTransfer(transfers[0])
	c6 := closeUnaryInputs(w1, 6)
	w1.Advance(c6)

	w1.Submit(intTime(6), []int{0}, []int{5})
	out, _ = w1.Advance(c6)
	require.Equal(t, []int{15}, out, "migrated bin's aggregate carried over")
}
