package plog

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/karasz/plog/mcodec"
	"github.com/karasz/plog/multicid"
	"github.com/karasz/plog/multikey"
	"github.com/karasz/plog/script"
)

// Lock pairs a key-path with the lock script published at it. Remove marks
// a tombstone: the entry revokes whatever lock a prior entry published at
// Key instead of publishing a new one.
type Lock struct {
	Key    Key
	Script script.Script
	Remove bool
}

// Entry is one appended record in a plog.
type Entry struct {
	Vlad   multicid.VLAD
	Prev   multicid.CID // Null for the foot
	Lipmaa multicid.CID // Null if no lipmaa-distance ancestor exists
	Seq    uint64
	Ops    []Op
	Locks  []Lock
	Unlock script.Script
	Proof  multikey.Multisig
}

// wire mirrors, with exported fields, used only for CBOR (en/de)coding —
// Op/Value keep their fields unexported so callers can't construct an
// inconsistent Value{isStr, data, str} directly.

type wireValue struct {
	IsStr bool
	Bytes []byte
}

type wireOp struct {
	Kind  uint8
	Key   string
	Value wireValue
}

type wireLock struct {
	Key         string
	KeyPathHint string
	Code        string
	Remove      bool
}

type wireEntry struct {
	VladNonce  []byte
	VladCid    []byte
	Prev       []byte
	Lipmaa     []byte
	Seq        uint64
	Ops        []wireOp
	Locks      []wireLock
	UnlockHint string
	UnlockCode string
	Proof      []byte
}

func opToWire(o Op) wireOp {
	wv := wireValue{}
	if o.Kind == OpUpdate {
		wv = wireValue{IsStr: o.Value.IsStr(), Bytes: o.Value.Bytes()}
	}
	return wireOp{Kind: uint8(o.Kind), Key: string(o.Key), Value: wv}
}

func opFromWire(w wireOp) Op {
	op := Op{Kind: OpKind(w.Kind), Key: Key(w.Key)}
	if op.Kind == OpUpdate {
		if w.Value.IsStr {
			op.Value = StrValue(string(w.Value.Bytes))
		} else {
			op.Value = DataValue(w.Value.Bytes)
		}
	}
	return op
}

func (e Entry) toWire() (wireEntry, error) {
	w := wireEntry{
		VladNonce:  e.Vlad.Nonce.CanonicalBytes(),
		VladCid:    e.Vlad.CID.CanonicalBytes(),
		Prev:       e.Prev.CanonicalBytes(),
		Lipmaa:     e.Lipmaa.CanonicalBytes(),
		Seq:        e.Seq,
		UnlockHint: e.Unlock.KeyPathHint,
		UnlockCode: e.Unlock.Code,
		Proof:      e.Proof.CanonicalBytes(),
	}
	for _, op := range e.Ops {
		w.Ops = append(w.Ops, opToWire(op))
	}
	for _, l := range e.Locks {
		w.Locks = append(w.Locks, wireLock{Key: string(l.Key), KeyPathHint: l.Script.KeyPathHint, Code: l.Script.Code, Remove: l.Remove})
	}
	return w, nil
}

// SignableBytes returns the canonical encoding with the proof field
// cleared — the bytes a CryptoManager.Prove call signs.
func (e Entry) SignableBytes() ([]byte, error) {
	clear := e
	clear.Proof = multikey.Multisig{}
	w, err := clear.toWire()
	if err != nil {
		return nil, err
	}
	w.Proof = nil
	return cbor.Marshal(w)
}

// CanonicalBytes returns the canonical encoding with the proof populated —
// this is what gets content-addressed as the entry's CID: CID(bytes(e))
// must round-trip back to the entry's own content address.
func (e Entry) CanonicalBytes() ([]byte, error) {
	w, err := e.toWire()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(w)
}

// CID computes the content address of e's canonical bytes under hashCodec.
func (e Entry) CID(hashCodec mcodec.Codec) (multicid.CID, error) {
	b, err := e.CanonicalBytes()
	if err != nil {
		return multicid.CID{}, err
	}
	return multicid.NewCID(mcodec.Raw, hashCodec, b)
}

// ParseEntry rebuilds an Entry from its canonical bytes.
func ParseEntry(b []byte) (Entry, error) {
	var w wireEntry
	if err := cbor.Unmarshal(b, &w); err != nil {
		return Entry{}, fmt.Errorf("plog: parse entry: %w", err)
	}
	prev, err := multicid.Parse(w.Prev)
	if err != nil {
		return Entry{}, fmt.Errorf("plog: parse entry prev: %w", err)
	}
	lipmaa, err := multicid.Parse(w.Lipmaa)
	if err != nil {
		return Entry{}, fmt.Errorf("plog: parse entry lipmaa: %w", err)
	}
	vladCid, err := multicid.Parse(w.VladCid)
	if err != nil {
		return Entry{}, fmt.Errorf("plog: parse entry vlad cid: %w", err)
	}
	nonce, err := multikey.ParseMultisig(w.VladNonce)
	if err != nil {
		return Entry{}, fmt.Errorf("plog: parse entry vlad nonce: %w", err)
	}
	proof, err := multikey.ParseMultisig(w.Proof)
	if err != nil {
		return Entry{}, fmt.Errorf("plog: parse entry proof: %w", err)
	}
	e := Entry{
		Vlad:   multicid.VLAD{Nonce: nonce, CID: vladCid},
		Prev:   prev,
		Lipmaa: lipmaa,
		Seq:    w.Seq,
		Unlock: script.Script{KeyPathHint: w.UnlockHint, Code: w.UnlockCode},
		Proof:  proof,
	}
	for _, wo := range w.Ops {
		e.Ops = append(e.Ops, opFromWire(wo))
	}
	for _, wl := range w.Locks {
		e.Locks = append(e.Locks, Lock{Key: Key(wl.Key), Script: script.Script{KeyPathHint: wl.KeyPathHint, Code: wl.Code}, Remove: wl.Remove})
	}
	return e, nil
}
