package wire

import "github.com/ethereum/go-ethereum/rlp"

// RecordHeader is the spec.md §6 routed-record envelope: the full,
// untruncated bin hash travels alongside the target worker so a receiver
// can re-derive bin = top B bits without re-hashing the key.
type RecordHeader struct {
	TargetWorker uint32
	BinHash      uint64
}

// Record pairs a RecordHeader with its payload for RLP encoding. V must be
// RLP-encodable by reflection (exported fields, no maps with non-string
// keys) or implement rlp.Encoder/rlp.Decoder itself, the same contract
// go-ethereum's own tagged protocol structs rely on.
type Record[V any] struct {
	Header  RecordHeader
	Payload V
}

// EncodeRecord serializes a routed record.
func EncodeRecord[V any](header RecordHeader, payload V) ([]byte, error) {
	return rlp.EncodeToBytes(&Record[V]{Header: header, Payload: payload})
}

// DecodeRecord is the inverse of EncodeRecord.
func DecodeRecord[V any](data []byte) (Record[V], error) {
	var r Record[V]
	err := rlp.DecodeBytes(data, &r)
	return r, err
}

// TransferMessage is the spec.md §6 state-transfer envelope: every element
// of a migrating bin's state, addressed to its new owner.
type TransferMessage[W any] struct {
	TargetWorker uint32
	BinId        uint32
	Elements     []W
}

// EncodeTransfer serializes a state-transfer message.
func EncodeTransfer[W any](msg TransferMessage[W]) ([]byte, error) {
	return rlp.EncodeToBytes(&msg)
}

// DecodeTransfer is the inverse of EncodeTransfer.
func DecodeTransfer[W any](data []byte) (TransferMessage[W], error) {
	var msg TransferMessage[W]
	err := rlp.DecodeBytes(data, &msg)
	return msg, err
}
