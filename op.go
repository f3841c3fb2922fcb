package plog

import (
	"github.com/karasz/plog/mcodec"
	"github.com/karasz/plog/multicid"
	"github.com/karasz/plog/multikey"
)

// Value is the discriminated union `{Data(bytes), Str(string)}` an Op
// writes into state.
type Value struct {
	isStr bool
	data  []byte
	str   string
}

// DataValue wraps a raw byte value.
func DataValue(d []byte) Value { return Value{data: d} }

// StrValue wraps a string value.
func StrValue(s string) Value { return Value{isStr: true, str: s} }

// Bytes returns the value's canonical byte representation, used uniformly
// by key-path lookups (both state and display care only about bytes).
func (v Value) Bytes() []byte {
	if v.isStr {
		return []byte(v.str)
	}
	return v.data
}

// IsStr reports whether the value was stored as a Str.
func (v Value) IsStr() bool { return v.isStr }

// OpKind discriminates the concrete Op union.
type OpKind int

const (
	OpNoop OpKind = iota
	OpDelete
	OpUpdate
)

// Op is a concrete state mutation, serialized into entries.
type Op struct {
	Kind  OpKind
	Key   Key
	Value Value // meaningful only when Kind == OpUpdate
}

// Noop builds a no-op over key (extends the entry without changing state).
func Noop(key Key) Op { return Op{Kind: OpNoop, Key: key} }

// DeleteOp removes key from state.
func DeleteOp(key Key) Op { return Op{Kind: OpDelete, Key: key} }

// UpdateOp sets key to value.
func UpdateOp(key Key, value Value) Op { return Op{Kind: OpUpdate, Key: key, Value: value} }

// ParamsKind discriminates the declarative OpParams union.
type ParamsKind int

const (
	ParamsKeyGen ParamsKind = iota
	ParamsCidGen
	ParamsUseKey
	ParamsUseCid
	ParamsUseStr
	ParamsUseBin
	ParamsNoop
	ParamsDelete
)

// OpParams is the declarative, pre-expansion template expanded into Ops.
type OpParams struct {
	Kind ParamsKind
	Key  Key

	// KeyGen
	Codec     mcodec.Codec
	Threshold uint8
	Limit     uint8
	Revoke    bool

	// CidGen
	Version mcodec.Codec
	Target  mcodec.Codec
	Hash    mcodec.Codec
	Inline  bool
	Data    []byte

	// UseKey
	MK multikey.Multikey

	// UseCid
	CID multicid.CID

	// UseStr
	Str string
}

// KeyGen materializes a secret key at key, optionally revoking (deleting)
// any prior value first.
func KeyGen(key Key, codec mcodec.Codec, threshold, limit uint8, revoke bool) OpParams {
	return OpParams{Kind: ParamsKeyGen, Key: key, Codec: codec, Threshold: threshold, Limit: limit, Revoke: revoke}
}

// CidGen computes a CID over data and publishes it (and optionally the raw
// data, if inline) at key.
func CidGen(key Key, version, target, hash mcodec.Codec, inline bool, data []byte) OpParams {
	return OpParams{Kind: ParamsCidGen, Key: key, Version: version, Target: target, Hash: hash, Inline: inline, Data: data}
}

// UseKey publishes an already-materialized Multikey at key, unchanged.
func UseKey(key Key, mk multikey.Multikey) OpParams {
	return OpParams{Kind: ParamsUseKey, Key: key, MK: mk}
}

// UseCid publishes an already-computed CID at key, unchanged.
func UseCid(key Key, cid multicid.CID) OpParams {
	return OpParams{Kind: ParamsUseCid, Key: key, CID: cid}
}

// UseStr publishes a string value at key, unchanged.
func UseStr(key Key, s string) OpParams {
	return OpParams{Kind: ParamsUseStr, Key: key, Str: s}
}

// UseBin publishes raw bytes at key, unchanged.
func UseBin(key Key, data []byte) OpParams {
	return OpParams{Kind: ParamsUseBin, Key: key, Data: data}
}

// NoopParams passes a Noop through unchanged.
func NoopParams(key Key) OpParams { return OpParams{Kind: ParamsNoop, Key: key} }

// DeleteParams passes a Delete through unchanged.
func DeleteParams(key Key) OpParams { return OpParams{Kind: ParamsDelete, Key: key} }

// Pairs is the per-log key-value state map produced by replaying a log's
// ops. It is always handled as an immutable snapshot: Apply returns a
// new map, never mutating the receiver, so the verification iterator can
// hand each step's Pairs to callers without aliasing hazards.
type Pairs map[Key]Value

// Clone returns a shallow copy of p.
func (p Pairs) Clone() Pairs {
	out := make(Pairs, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Apply replays ops onto a clone of p and returns the result: the final
// state map after every op in ops has been applied in order.
func (p Pairs) Apply(ops []Op) Pairs {
	out := p.Clone()
	for _, op := range ops {
		switch op.Kind {
		case OpNoop:
			// no state change
		case OpDelete:
			delete(out, op.Key)
		case OpUpdate:
			out[op.Key] = op.Value
		}
	}
	return out
}
