package operator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/control"
	"github.com/binshift/binshift/state"
)

// backlogJoin accumulates side-A readings until a side-B label arrives, then
// flushes the backlog and clears it -- a left join in the shape of
// BinaryFold's removeMine/removeOther contract.
var backlogJoin = state.BinaryFold[int, int, string, int, string, string]{
	FoldA: func(_ int, reading int, backlog *int, label *string) (removeMine, removeOther bool, outputs []string) {
		if *label != "" {
			return false, false, []string{*label}
		}
		*backlog += reading
		return false, false, nil
	},
	FoldB: func(_ int, label string, mine *string, backlog *int) (removeMine, removeOther bool, outputs []string) {
		*mine = label
		if *backlog == 0 {
			return false, false, nil
		}
		return false, true, []string{label}
	},
}

func closeBinaryInputs(m *StatefulBinary[intTime, int, int, string, int, string, string], t intTime) {
	c := closed(t)
	m.AdvanceControlInput(c)
	m.AdvanceRecordInput(c)
	m.AdvanceTransferInput(c)
}

func TestStatefulBinaryReadingBacklogsUntilLabelArrives(t *testing.T) {
	m := NewStatefulBinary[intTime, int, int, string, int, string, string](bin.Worker(0), 1, hashOf, backlogJoin, bottom())
	defer m.Close()

	closeBinaryInputs(m, 1)
	require.Eventually(t, func() bool {
		_, out := m.SubmitA(intTime(1), []int{0}, []int{7})
		return out == nil
	}, timeoutShort, pollShort)

	require.Eventually(t, func() bool {
		_, out := m.SubmitB(intTime(1), []int{0}, []string{"room-A"})
		return len(out) == 1 && out[0] == "room-A"
	}, timeoutShort, pollShort)
}

func TestStatefulBinaryReadingAfterLabelJoinsImmediately(t *testing.T) {
	m := NewStatefulBinary[intTime, int, int, string, int, string, string](bin.Worker(0), 1, hashOf, backlogJoin, bottom())
	defer m.Close()

	closeBinaryInputs(m, 1)
	require.Eventually(t, func() bool {
		_, out := m.SubmitB(intTime(1), []int{0}, []string{"room-A"})
		return out == nil
	}, timeoutShort, pollShort)

	require.Eventually(t, func() bool {
		_, out := m.SubmitA(intTime(1), []int{0}, []int{3})
		return len(out) == 1 && out[0] == "room-A"
	}, timeoutShort, pollShort)
}

func TestStatefulBinaryPromotionTransfersBothSides(t *testing.T) {
	w0 := NewStatefulBinary[intTime, int, int, string, int, string, string](bin.Worker(0), 1, hashOf, backlogJoin, bottom())
	defer w0.Close()
	w1 := NewStatefulBinary[intTime, int, int, string, int, string, string](bin.Worker(1), 1, hashOf, backlogJoin, bottom())
	defer w1.Close()

	closeBinaryInputs(w0, 1)
	closeBinaryInputs(w1, 1)
	require.Eventually(t, func() bool {
		_, out := w0.SubmitA(intTime(1), []int{0}, []int{9})
		return out == nil
	}, timeoutShort, pollShort)

	newMap := bin.NewMap(2, 0)
	newMap.Move(0, 1)
	cmd := control.Command{Sequence: 0, Count: 1, Inst: control.MapInst{Map: newMap}}
	w0.IngestControl(intTime(5), cmd)
	w0.CloseControl(intTime(5))
	w1.IngestControl(intTime(5), cmd)
	w1.CloseControl(intTime(5))

	var transfers []BinaryTransfer[intTime, int, int, string]
	require.Eventually(t, func() bool {
		closeBinaryInputs(w0, 6)
		_, tr := w0.Advance()
		transfers = tr
		return len(tr) == 1
	}, timeoutShort, pollShort)
	require.Len(t, transfers[0].EntriesA, 1)
	assert.Equal(t, state.Entry[int, int]{Key: 0, Agg: 9}, transfers[0].EntriesA[0])
	assert.Empty(t, transfers[0].EntriesB, "no label ever arrived on this worker")

	w1.DeliverTransfer(transfers[0])
	closeBinaryInputs(w1, 6)
	w1.Advance()

	require.Eventually(t, func() bool {
		_, out := w1.SubmitB(intTime(6), []int{0}, []string{"room-A"})
		return len(out) == 1 && out[0] == "room-A"
	}, timeoutShort, pollShort)
}
