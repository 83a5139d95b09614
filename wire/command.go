// Package wire implements the on-wire encodings named in spec.md §6: the
// control command, the routed-record header, and the state-transfer
// message, all carried over github.com/ethereum/go-ethereum/rlp exactly as
// go-ethereum's own protocol messages are (p2p/protocol-message structs
// encoded by reflective RLP; the tagged union is flattened into one struct
// with an explicit discriminant field rather than a custom
// EncodeRLP/DecodeRLP pair).
package wire

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/control"
)

// Inst discriminants, matching spec.md §6's tagged union.
const (
	instTagMap  = 0
	instTagMove = 1
	instTagNoOp = 2
)

// rlpCommand is the on-wire shape of control.Command: a flat tuple with a
// leading discriminant byte selecting which of the three payload fields is
// meaningful, since RLP has no native sum type.
type rlpCommand struct {
	Sequence uint64
	Count    uint16
	Tag      uint8
	Map      []uint32 // instTagMap: one worker id per bin, length 2^B
	Bin      uint32   // instTagMove
	Worker   uint32   // instTagMove
}

// EncodeCommand serializes c as described in spec.md §6.
func EncodeCommand(c control.Command) ([]byte, error) {
	r := rlpCommand{Sequence: c.Sequence, Count: c.Count}
	switch inst := c.Inst.(type) {
	case control.MapInst:
		r.Tag = instTagMap
		r.Map = make([]uint32, len(inst.Map))
		for i, w := range inst.Map {
			r.Map[i] = uint32(w)
		}
	case control.MoveInst:
		r.Tag = instTagMove
		r.Bin = uint32(inst.Bin)
		r.Worker = uint32(inst.Worker)
	case control.NoOpInst:
		r.Tag = instTagNoOp
	default:
		return nil, fmt.Errorf("wire: unknown Inst type %T", c.Inst)
	}
	return rlp.EncodeToBytes(&r)
}

// DecodeCommand is the inverse of EncodeCommand.
func DecodeCommand(data []byte) (control.Command, error) {
	var r rlpCommand
	if err := rlp.DecodeBytes(data, &r); err != nil {
		return control.Command{}, err
	}
	return commandFromRLP(r)
}

func commandFromRLP(r rlpCommand) (control.Command, error) {
	c := control.Command{Sequence: r.Sequence, Count: r.Count}
	switch r.Tag {
	case instTagMap:
		m := make(bin.Map, len(r.Map))
		for i, w := range r.Map {
			m[i] = bin.Worker(w)
		}
		c.Inst = control.MapInst{Map: m}
	case instTagMove:
		c.Inst = control.MoveInst{Bin: bin.Id(r.Bin), Worker: bin.Worker(r.Worker)}
	case instTagNoOp:
		c.Inst = control.NoOpInst{}
	default:
		return control.Command{}, fmt.Errorf("wire: unknown Inst tag %d", r.Tag)
	}
	return c, nil
}

// WriteCommand streams the encoding of c to w, for callers serializing a
// whole control-command log without materializing every command's bytes at
// once.
func WriteCommand(w io.Writer, c control.Command) error {
	data, err := EncodeCommand(c)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadCommand decodes exactly one command from s, for callers streaming a
// whole control-command log rather than decoding one buffer at a time.
func ReadCommand(s *rlp.Stream) (control.Command, error) {
	var r rlpCommand
	if err := s.Decode(&r); err != nil {
		return control.Command{}, err
	}
	return commandFromRLP(r)
}
