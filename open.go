package plog

import (
	"fmt"

	"github.com/karasz/plog/mcodec"
	"github.com/karasz/plog/multicid"
	"github.com/karasz/plog/multikey"
	"github.com/karasz/plog/script"
)

// DefaultEntryKey is the key-path the default configuration publishes the
// entry signing key's public half at.
const DefaultEntryKey Key = "/entrykey"

// DefaultVladKey is the key-path the default configuration publishes the
// VLAD signing key's public half at.
const DefaultVladKey Key = "/vlad/key"

// DefaultVladCidKey is the key-path prefix under which the VLAD CidGen
// publishes "/vlad/cid" (and, since the default is inline, "/vlad/data").
const DefaultVladCidKey Key = "/vlad"

// DefaultFirstLockScript is the bootstrap lock the foot entry's unlock must
// satisfy by default: a signature by the published entry key over the
// synthetic "/entry/" prefix. DefaultConfig also publishes it as the foot's
// entry lock, so later entries are checked against the same script.
func DefaultFirstLockScript() script.Script {
	return script.Script{KeyPathHint: string(DefaultEntryKey), Code: `check_signature("/entrykey", "/entry/")`}
}

// DefaultVladKeyParams materializes the one-shot VLAD signing key, published
// at DefaultVladKey and destroyed immediately after signing the VLAD nonce.
// threshold=0, limit=0: this key signs exactly once and is discarded, never
// rotated.
func DefaultVladKeyParams() OpParams {
	return KeyGen(DefaultVladKey, mcodec.Ed25519Priv, 0, 0, false)
}

// DefaultVladCidParams computes the VLAD's CID over the (caller-supplied at
// Open time) first lock script's canonical bytes, publishing it — and,
// being inline, the raw script bytes too — under DefaultVladCidKey. data is
// left empty here; Open fills it in with the first lock script's canonical
// bytes before expanding.
func DefaultVladCidParams() OpParams {
	return CidGen(DefaultVladCidKey, mcodec.Cidv1, mcodec.Identity, mcodec.Blake3, true, nil)
}

// DefaultEntryKeyParams materializes the entry signing key, published at
// DefaultEntryKey.
func DefaultEntryKeyParams() OpParams {
	return KeyGen(DefaultEntryKey, mcodec.Ed25519Priv, 1, 1, false)
}

// DefaultPubkeyKey is the key-path the default configuration publishes its
// secondary (non-signing) public key at.
const DefaultPubkeyKey Key = "/pubkey"

// DefaultPubkeyParams materializes the default /pubkey entry.
func DefaultPubkeyParams() OpParams {
	return KeyGen(DefaultPubkeyKey, mcodec.Ed25519Priv, 1, 1, false)
}

// Config drives the open/create engine.
type Config struct {
	VladKeyParams     OpParams // must be ParamsKeyGen
	VladCidParams     OpParams // must be ParamsCidGen; Data is overwritten with FirstLockScript's canonical bytes
	EntryKeyParams    OpParams // must be ParamsKeyGen
	PubkeyParams      OpParams // must be ParamsKeyGen; zero value (Key == "") skips it
	FirstLockScript   script.Script
	EntryLockKey      Key // key-path the first entry's lock is published under
	EntryLockScript   script.Script
	EntryUnlockScript script.Script
	AdditionalOps     []OpParams
	HashCodec         mcodec.Codec // defaults to mcodec.Blake3 if zero value is used verbatim
}

// DefaultConfig returns the stock configuration: an Ed25519 VLAD key and
// inline Blake3 VLAD CID, an Ed25519 entry key published at
// DefaultEntryKey, a secondary Ed25519 /pubkey, and a self-signing first
// entry.
func DefaultConfig() Config {
	return Config{
		VladKeyParams:     DefaultVladKeyParams(),
		VladCidParams:     DefaultVladCidParams(),
		EntryKeyParams:    DefaultEntryKeyParams(),
		PubkeyParams:      DefaultPubkeyParams(),
		FirstLockScript:   DefaultFirstLockScript(),
		EntryLockKey:      DefaultEntryKey,
		EntryLockScript:   DefaultFirstLockScript(),
		EntryUnlockScript: script.Script{KeyPathHint: string(DefaultEntryKey), Code: `push("/entrykey")`},
		HashCodec:         mcodec.Blake3,
	}
}

// Open runs the create engine:
//  1. expand AdditionalOps;
//  2. expand VladKeyParams and VladCidParams (the latter's Data forced to
//     FirstLockScript's canonical bytes), publishing /vlad/key, /vlad/cid,
//     and (if inline) /vlad/data;
//  3. sign the VLAD cid with the materialized VLAD key, then destroy it;
//  4. expand EntryKeyParams and PubkeyParams, publishing /entrykey and
//     /pubkey;
//  5. assemble and sign the foot entry from every op gathered above.
//
// Failures surface as the top-level Error with Kind "Open", wrapping the
// underlying OpenError.
func Open(cfg Config, cm CryptoManager) (*Log, error) {
	log, err := open(cfg, cm)
	if err != nil {
		return nil, wrapErr("Open", err)
	}
	return log, nil
}

func open(cfg Config, cm CryptoManager) (*Log, error) {
	if cfg.VladKeyParams.Kind != ParamsKeyGen {
		return nil, &OpenError{Kind: InvalidKeyParams, Err: fmt.Errorf("vlad key params")}
	}
	if cfg.VladCidParams.Kind != ParamsCidGen {
		return nil, &OpenError{Kind: InvalidOpParams, Err: fmt.Errorf("vlad cid params")}
	}
	if cfg.EntryKeyParams.Kind != ParamsKeyGen {
		return nil, &OpenError{Kind: InvalidKeyParams, Err: fmt.Errorf("entry key params")}
	}
	hashCodec := cfg.HashCodec
	if hashCodec == 0 {
		hashCodec = mcodec.Blake3
	}

	// Step 1: additional ops.
	var ops []Op
	extraOps, err := ExpandAll(cfg.AdditionalOps, cm)
	if err != nil {
		return nil, &OpenError{Kind: InvalidOpParams, Err: err}
	}
	ops = append(ops, extraOps...)

	// Step 2: VLAD key and CID, over the first lock script's canonical bytes.
	vladKeyOps, vladKey, err := ExpandKeyGen(cfg.VladKeyParams, cm)
	if err != nil {
		return nil, &OpenError{Kind: InvalidKeyParams, Err: err}
	}
	ops = append(ops, vladKeyOps...)

	vladCidParams := cfg.VladCidParams
	vladCidParams.Data = cfg.FirstLockScript.CanonicalBytes()
	vladCidOps, vladCID, err := ExpandCidGen(vladCidParams)
	if err != nil {
		vladKey.Destroy()
		return nil, &OpenError{Kind: InvalidOpParams, Err: err}
	}
	ops = append(ops, vladCidOps...)

	// Step 3: construct and sign the VLAD, then destroy the one-shot key.
	vlad, err := multicid.Build(vladKey, vladCID, cm.Prove)
	vladKey.Destroy()
	if err != nil {
		return nil, &OpenError{Kind: InvalidKeyParams, Err: err}
	}

	// Step 4: entry signing key and secondary pubkey.
	entryKeyOps, entryKey, err := ExpandKeyGen(cfg.EntryKeyParams, cm)
	if err != nil {
		return nil, &OpenError{Kind: InvalidKeyParams, Err: err}
	}
	ops = append(ops, entryKeyOps...)

	if cfg.PubkeyParams.Kind == ParamsKeyGen && cfg.PubkeyParams.Key != "" {
		var pubkeyMK multikey.Multikey
		var pubkeyOps []Op
		pubkeyOps, pubkeyMK, err = ExpandKeyGen(cfg.PubkeyParams, cm)
		if err != nil {
			entryKey.Destroy()
			return nil, &OpenError{Kind: InvalidKeyParams, Err: err}
		}
		pubkeyMK.Destroy()
		ops = append(ops, pubkeyOps...)
	}

	// Step 5: assemble and sign the foot entry.
	lockKey := cfg.EntryLockKey
	if lockKey == "" {
		lockKey = DefaultEntryKey
	}

	entry := Entry{
		Vlad:   vlad,
		Prev:   multicid.Null,
		Lipmaa: multicid.Null,
		Seq:    0,
		Ops:    ops,
		Locks:  []Lock{{Key: lockKey, Script: cfg.EntryLockScript}},
		Unlock: cfg.EntryUnlockScript,
	}

	signable, err := entry.SignableBytes()
	if err != nil {
		entryKey.Destroy()
		return nil, &OpenError{Kind: InvalidOpParams, Err: err}
	}
	sig, err := cm.Prove(entryKey, signable)
	entryKey.Destroy()
	if err != nil {
		return nil, &OpenError{Kind: InvalidKeyParams, Err: err}
	}
	entry.Proof = sig

	log := NewLog(vlad, cfg.FirstLockScript, hashCodec)
	if _, err := log.TryAppend(entry); err != nil {
		return nil, &OpenError{Kind: InvalidOpParams, Err: err}
	}
	return log, nil
}
