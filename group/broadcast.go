package group

import (
	"encoding/binary"
)

// BroadcastType selects how a broadcast frame's payload is interpreted
// (spec.md §4.8).
type BroadcastType byte

const (
	BroadcastStatus BroadcastType = iota + 1
	BroadcastNick
	BroadcastPlainMessage
	BroadcastActionMessage
	BroadcastPrivateMessage
	BroadcastPeerExit
	BroadcastRemovePeer
	BroadcastRemoveBan
	BroadcastSetMod
	BroadcastSetObserver
)

// broadcastHeaderSize is type(1) + sender-hash(4) + timestamp(8).
const broadcastHeaderSize = 1 + 4 + 8

// broadcastFrame is the payload of an InnerBroadcast packet (spec.md
// §4.8). It is always carried as a Lossless frame; a PrivateMessage is
// sent down a single connection instead of to every peer, but uses the
// same encoding.
type broadcastFrame struct {
	Type       BroadcastType
	SenderHash uint32
	Timestamp  uint64
	Payload    []byte
}

func (b broadcastFrame) pack() []byte {
	out := make([]byte, broadcastHeaderSize+len(b.Payload))
	out[0] = byte(b.Type)
	binary.BigEndian.PutUint32(out[1:5], b.SenderHash)
	binary.BigEndian.PutUint64(out[5:13], b.Timestamp)
	copy(out[13:], b.Payload)
	return out
}

func unpackBroadcastFrame(data []byte) (broadcastFrame, error) {
	if len(data) < broadcastHeaderSize {
		return broadcastFrame{}, errFrameTooShort
	}
	return broadcastFrame{
		Type:       BroadcastType(data[0]),
		SenderHash: binary.BigEndian.Uint32(data[1:5]),
		Timestamp:  binary.BigEndian.Uint64(data[5:13]),
		Payload:    append([]byte{}, data[broadcastHeaderSize:]...),
	}, nil
}

// removePeerPayload is BroadcastRemovePeer's payload: the target's
// encryption key and whether the removal is a ban (spec.md testable
// property 8).
type removePeerPayload struct {
	TargetEncKey [32]byte
	SetBan       bool
}

func (p removePeerPayload) pack() []byte {
	out := make([]byte, 33)
	copy(out[:32], p.TargetEncKey[:])
	if p.SetBan {
		out[32] = 1
	}
	return out
}

func unpackRemovePeerPayload(data []byte) (removePeerPayload, error) {
	if len(data) < 33 {
		return removePeerPayload{}, errFrameTooShort
	}
	var p removePeerPayload
	copy(p.TargetEncKey[:], data[:32])
	p.SetBan = data[32] != 0
	return p, nil
}

// setModPayload is BroadcastSetMod's payload.
type setModPayload struct {
	TargetSignKey [32]byte
	IsModerator   bool
}

func (p setModPayload) pack() []byte {
	out := make([]byte, 33)
	copy(out[:32], p.TargetSignKey[:])
	if p.IsModerator {
		out[32] = 1
	}
	return out
}

func unpackSetModPayload(data []byte) (setModPayload, error) {
	if len(data) < 33 {
		return setModPayload{}, errFrameTooShort
	}
	var p setModPayload
	copy(p.TargetSignKey[:], data[:32])
	p.IsModerator = data[32] != 0
	return p, nil
}

// setObserverPayload is BroadcastSetObserver's payload.
type setObserverPayload struct {
	TargetEncKey [32]byte
	IsObserver   bool
}

func (p setObserverPayload) pack() []byte {
	out := make([]byte, 33)
	copy(out[:32], p.TargetEncKey[:])
	if p.IsObserver {
		out[32] = 1
	}
	return out
}

func unpackSetObserverPayload(data []byte) (setObserverPayload, error) {
	if len(data) < 33 {
		return setObserverPayload{}, errFrameTooShort
	}
	var p setObserverPayload
	copy(p.TargetEncKey[:], data[:32])
	p.IsObserver = data[32] != 0
	return p, nil
}

// customPacket is an opaque application payload sent lossless or lossy
// (spec.md §4.8).
type customPacket struct {
	Lossless bool
	Payload  []byte
}
