package main

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/log"
)

func TestRunReplayCompletesAgainstSamplePlan(t *testing.T) {
	cfg := Config{
		BinShift: 4,
		Workers:  2,
		Plan:     "testdata/plan.txt",
	}
	reg := prometheus.NewRegistry()

	err := runReplay(cfg, reg, log.Root())
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families, "each worker's metrics.Set should have registered")
}

func TestLoadPlanParsesGroupsInOrder(t *testing.T) {
	groups, err := loadPlan("testdata/plan.txt")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, uint64(0), groups[0].Sequence)
	assert.Equal(t, uint64(1), groups[1].Sequence)
	assert.Len(t, groups[1].Commands, 8)
}
