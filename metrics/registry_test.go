package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetRegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewSet(reg, 3)

	s.Promotions.Inc()
	s.BinsTransferred.Add(2)
	s.MalformedSkipped.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	got := s.Get("binshift_promotions_total")
	require.NotNil(t, got)
}

func TestEachVisitsEveryFamily(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewSet(reg, 0)

	seen := map[string]bool{}
	s.Each(func(name string, _ any) { seen[name] = true })
	assert.True(t, seen["binshift_promotions_total"])
	assert.True(t, seen["binshift_notificator_pending"])
}

func TestWorkerLabelDistinguishesRegistrations(t *testing.T) {
	// Two Sets for different workers register distinct ConstLabels, so both
	// must coexist on the same registry without a duplicate-registration
	// panic from prometheus.
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() {
		NewSet(reg, 0)
		NewSet(reg, 1)
	})
}
