package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binshift/binshift/frontier"
)

func TestTotalOrderDeliversInTimeOrder(t *testing.T) {
	tr := frontier.NewTracker[it]()
	n := NewTotalOrder[it, string]()

	n.NotifyAt(frontier.NewCapability(tr, it(9)), "nine")
	n.NotifyAt(frontier.NewCapability(tr, it(2)), "two")
	n.NotifyAt(frontier.NewCapability(tr, it(5)), "five")

	closed := frontier.NewAntichain[it](100)

	var order []string
	for {
		c, payloads, ok := n.Next([]*frontier.Antichain[it]{closed})
		if !ok {
			break
		}
		order = append(order, payloads...)
		c.Drop()
	}
	assert.Equal(t, []string{"two", "five", "nine"}, order)
}

func TestTotalOrderWithholdsUntilClosed(t *testing.T) {
	tr := frontier.NewTracker[it]()
	n := NewTotalOrder[it, string]()
	n.NotifyAt(frontier.NewCapability(tr, it(5)), "five")

	stillOpen := frontier.NewAntichain[it](3)
	_, _, ok := n.Next([]*frontier.Antichain[it]{stillOpen})
	assert.False(t, ok)
	require.Equal(t, 1, n.Len())

	closed := frontier.NewAntichain[it](6)
	_, _, ok = n.Next([]*frontier.Antichain[it]{closed})
	assert.True(t, ok)
}

func TestTotalOrderCoalescesEqualTimes(t *testing.T) {
	tr := frontier.NewTracker[it]()
	n := NewTotalOrder[it, string]()
	n.NotifyAt(frontier.NewCapability(tr, it(1)), "a")
	n.NotifyAt(frontier.NewCapability(tr, it(1)), "b")

	closed := frontier.NewAntichain[it](2)
	c, payloads, ok := n.Next([]*frontier.Antichain[it]{closed})
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a", "b"}, payloads)
	c.Drop()

	_, _, ok = n.Next([]*frontier.Antichain[it]{closed})
	assert.False(t, ok)
}

func TestTotalOrderMonotonicityWithinForEach(t *testing.T) {
	tr := frontier.NewTracker[it]()
	n := NewTotalOrder[it, int]()
	for _, x := range []it{7, 2, 9, 4, 2} {
		n.NotifyAt(frontier.NewCapability(tr, x), int(x))
	}
	closed := frontier.NewAntichain[it](100)

	var seen []it
	ForEach[it, int](n, []*frontier.Antichain[it]{closed}, func(c frontier.Capability[it], _ []int) {
		seen = append(seen, c.Time())
		c.Drop()
	})

	for i := 1; i < len(seen); i++ {
		assert.False(t, seen[i].Less(seen[i-1]), "delivery order must be non-decreasing")
	}
	assert.Equal(t, []it{2, 4, 7, 9}, seen)
}
