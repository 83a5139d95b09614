package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/control"
)

func TestCommandRoundTripMap(t *testing.T) {
	c := control.Command{Sequence: 7, Count: 3, Inst: control.MapInst{Map: bin.NewMap(4, 2)}}
	data, err := EncodeCommand(c)
	require.NoError(t, err)

	got, err := DecodeCommand(data)
	require.NoError(t, err)
	assert.Equal(t, c.Sequence, got.Sequence)
	assert.Equal(t, c.Count, got.Count)
	gotMap, ok := got.Inst.(control.MapInst)
	require.True(t, ok)
	assert.True(t, gotMap.Map.Equal(bin.NewMap(4, 2)))
}

func TestCommandRoundTripMove(t *testing.T) {
	c := control.Command{Sequence: 1, Count: 1, Inst: control.MoveInst{Bin: 5, Worker: 9}}
	data, err := EncodeCommand(c)
	require.NoError(t, err)

	got, err := DecodeCommand(data)
	require.NoError(t, err)
	assert.Equal(t, control.MoveInst{Bin: 5, Worker: 9}, got.Inst)
}

func TestCommandRoundTripNoOp(t *testing.T) {
	c := control.Command{Sequence: 0, Count: 1, Inst: control.NoOpInst{}}
	data, err := EncodeCommand(c)
	require.NoError(t, err)

	got, err := DecodeCommand(data)
	require.NoError(t, err)
	assert.Equal(t, control.NoOpInst{}, got.Inst)
}

func TestRecordRoundTrip(t *testing.T) {
	header := RecordHeader{TargetWorker: 3, BinHash: 0xDEADBEEFCAFEBABE}
	data, err := EncodeRecord[uint64](header, 42)
	require.NoError(t, err)

	got, err := DecodeRecord[uint64](data)
	require.NoError(t, err)
	assert.Equal(t, header, got.Header)
	assert.Equal(t, uint64(42), got.Payload)
}

func TestTransferRoundTrip(t *testing.T) {
	msg := TransferMessage[uint64]{TargetWorker: 1, BinId: 9, Elements: []uint64{1, 2, 3}}
	data, err := EncodeTransfer(msg)
	require.NoError(t, err)

	got, err := DecodeTransfer[uint64](data)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}
