package plog

import (
	"fmt"

	"github.com/karasz/plog/multicid"
	"github.com/karasz/plog/multikey"
)

// ExpandKeyGen runs a single KeyGen OpParams through the crypto manager,
// returning the ops it emits (an optional Delete, then an Update publishing
// the public key bytes) and the materialized Multikey itself, which the
// caller may need for signing.
func ExpandKeyGen(p OpParams, cm CryptoManager) ([]Op, multikey.Multikey, error) {
	if p.Kind != ParamsKeyGen {
		return nil, multikey.Multikey{}, &OpenError{Kind: InvalidKeyParams}
	}
	mk, err := cm.GetMK(p.Key, p.Codec, p.Threshold, p.Limit)
	if err != nil {
		return nil, multikey.Multikey{}, fmt.Errorf("expand keygen: %w", err)
	}
	pub := mk
	if mk.IsSecret() {
		pub, err = mk.PublicKey()
		if err != nil {
			return nil, multikey.Multikey{}, fmt.Errorf("expand keygen: derive public key: %w", err)
		}
	}
	var ops []Op
	if p.Revoke {
		ops = append(ops, DeleteOp(p.Key))
	}
	ops = append(ops, UpdateOp(p.Key, DataValue(pub.CanonicalBytes())))
	return ops, mk, nil
}

// ExpandCidGen runs a single CidGen OpParams, returning the ops it emits
// (an Update of key+"/cid", and if inline, an Update of key+"/data") and the
// computed CID.
func ExpandCidGen(p OpParams) ([]Op, multicid.CID, error) {
	if p.Kind != ParamsCidGen {
		return nil, multicid.CID{}, &OpenError{Kind: InvalidOpParams}
	}
	cid, err := multicid.NewCID(p.Target, p.Hash, p.Data)
	if err != nil {
		return nil, multicid.CID{}, fmt.Errorf("expand cidgen: %w", err)
	}
	ops := []Op{UpdateOp(p.Key.Join("cid"), DataValue(cid.CanonicalBytes()))}
	if p.Inline {
		ops = append(ops, UpdateOp(p.Key.Join("data"), DataValue(p.Data)))
	}
	return ops, cid, nil
}

// expandPassthrough converts a pass-through OpParams into its Op, unchanged.
func expandPassthrough(p OpParams) (Op, error) {
	switch p.Kind {
	case ParamsUseKey:
		return UpdateOp(p.Key, DataValue(p.MK.CanonicalBytes())), nil
	case ParamsUseCid:
		return UpdateOp(p.Key, DataValue(p.CID.CanonicalBytes())), nil
	case ParamsUseStr:
		return UpdateOp(p.Key, StrValue(p.Str)), nil
	case ParamsUseBin:
		return UpdateOp(p.Key, DataValue(p.Data)), nil
	case ParamsNoop:
		return Noop(p.Key), nil
	case ParamsDelete:
		return DeleteOp(p.Key), nil
	default:
		return Op{}, &OpenError{Kind: InvalidOpParams, Err: fmt.Errorf("unhandled kind %d", p.Kind)}
	}
}

// ExpandAll streams an ordered OpParams slice into concrete Ops.
// Materialized keys/CIDs for generic "additional ops" are discarded
// once expanded — callers needing the materialized value back (the VLAD
// key, the entry signing key) call ExpandKeyGen/ExpandCidGen directly
// instead, as the open/update engines do for those named slots.
//
// Expansion is deterministic given deterministic CryptoManager
// materializations, and preserves input order: lock-script predicates may
// be sensitive to the key-path state at each op's index.
func ExpandAll(params []OpParams, cm CryptoManager) ([]Op, error) {
	var ops []Op
	for _, p := range params {
		switch p.Kind {
		case ParamsKeyGen:
			sub, mk, err := ExpandKeyGen(p, cm)
			if err != nil {
				return nil, err
			}
			mk.Destroy()
			ops = append(ops, sub...)
		case ParamsCidGen:
			sub, _, err := ExpandCidGen(p)
			if err != nil {
				return nil, err
			}
			ops = append(ops, sub...)
		default:
			op, err := expandPassthrough(p)
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		}
	}
	return ops, nil
}
