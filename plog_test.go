package plog

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/karasz/plog/examples/memresolver"
	"github.com/karasz/plog/mcodec"
	"github.com/karasz/plog/multicid"
	"github.com/karasz/plog/multikey"
	"github.com/karasz/plog/script"
)

func entryUnlockScript() script.Script {
	return script.Script{KeyPathHint: string(DefaultEntryKey), Code: `push("/entrykey")`}
}

func openDefault(t *testing.T) (*Log, CryptoManager) {
	t.Helper()
	cm, err := NewMemoryCryptoManager(64)
	if err != nil {
		t.Fatalf("new crypto manager: %v", err)
	}
	log, err := Open(DefaultConfig(), cm)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return log, cm
}

func TestOpenDefaultsCreatesVerifiableFoot(t *testing.T) {
	log, _ := openDefault(t)
	if log.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", log.Len())
	}
	steps, err := Verify(log)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected 1 verify step, got %d", len(steps))
	}
	raw, ok := steps[0].State[DefaultEntryKey]
	if !ok {
		t.Fatalf("expected %s published in state", DefaultEntryKey)
	}
	entryPub, err := multikey.ParseMultikey(raw.Bytes())
	if err != nil {
		t.Fatalf("parse published entry key: %v", err)
	}
	if entryPub.Codec != mcodec.Ed25519Pub {
		t.Fatalf("expected published entry key to be public, got codec %s", entryPub.Codec)
	}
}

func TestOpenDefaultsPublishesVladAndPubkeyOps(t *testing.T) {
	log, _ := openDefault(t)
	steps, err := Verify(log)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	final := steps[len(steps)-1].State

	for _, key := range []Key{"/vlad/cid", "/vlad/data", "/vlad/key", DefaultEntryKey, DefaultPubkeyKey} {
		if _, ok := final[key]; !ok {
			t.Fatalf("expected %s published in default foot state", key)
		}
	}

	vladKeyRaw, ok := final[DefaultVladKey]
	if !ok {
		t.Fatalf("expected %s published in state", DefaultVladKey)
	}
	vladPub, err := multikey.ParseMultikey(vladKeyRaw.Bytes())
	if err != nil {
		t.Fatalf("parse published vlad key: %v", err)
	}
	if !log.Vlad.Verify(vladPub) {
		t.Fatalf("expected vlad to verify against published /vlad/key")
	}

	pubkeyRaw, ok := final[DefaultPubkeyKey]
	if !ok {
		t.Fatalf("expected %s published in state", DefaultPubkeyKey)
	}
	if _, err := multikey.ParseMultikey(pubkeyRaw.Bytes()); err != nil {
		t.Fatalf("parse published pubkey: %v", err)
	}
}

func TestUpdateAppendsSignedEntry(t *testing.T) {
	log, cm := openDefault(t)

	cid, err := Update(log, UpdateConfig{
		EntrySigningKey:   DefaultEntryKey,
		EntryUnlockScript: entryUnlockScript(),
		EntryOps:          []OpParams{UseStr("/greeting", "hello")},
	}, cm)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if log.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", log.Len())
	}
	if log.Head().String() != cid.String() {
		t.Fatalf("head mismatch")
	}

	steps, err := Verify(log)
	if err != nil {
		t.Fatalf("verify after update: %v", err)
	}
	last := steps[len(steps)-1]
	v, ok := last.State["/greeting"]
	if !ok || !v.IsStr() || string(v.Bytes()) != "hello" {
		t.Fatalf("expected /greeting=hello in state, got %+v", last.State["/greeting"])
	}
}

func TestUpdateRejectsEmptyLog(t *testing.T) {
	cm, _ := NewMemoryCryptoManager(8)
	log := NewLog(multicid.VLAD{}, DefaultFirstLockScript(), mcodec.Blake3)
	_, err := Update(log, UpdateConfig{EntrySigningKey: DefaultEntryKey}, cm)
	if err == nil {
		t.Fatalf("expected error updating an empty log")
	}
}

func TestKeyRevocationDeletesThenRepublishes(t *testing.T) {
	log, cm := openDefault(t)

	_, err := Update(log, UpdateConfig{
		EntrySigningKey:   DefaultEntryKey,
		EntryUnlockScript: entryUnlockScript(),
		EntryOps:          []OpParams{KeyGen(DefaultEntryKey, mcodec.Ed25519Priv, 1, 1, true)},
	}, cm)
	if err != nil {
		t.Fatalf("update with revocation: %v", err)
	}

	steps, err := Verify(log)
	if err != nil {
		t.Fatalf("verify after revocation: %v", err)
	}
	if _, ok := steps[len(steps)-1].State[DefaultEntryKey]; !ok {
		t.Fatalf("expected entrykey republished after revocation")
	}
}

func TestResolvePlogRoundTrip(t *testing.T) {
	log, cm := openDefault(t)
	if _, err := Update(log, UpdateConfig{
		EntrySigningKey:   DefaultEntryKey,
		EntryUnlockScript: entryUnlockScript(),
		EntryOps:          []OpParams{UseStr("/a", "1")},
	}, cm); err != nil {
		t.Fatalf("update: %v", err)
	}

	store := memresolver.New()
	for _, e := range log.Entries() {
		b, err := e.CanonicalBytes()
		if err != nil {
			t.Fatalf("canonical bytes: %v", err)
		}
		cid, err := e.CID(log.HashCodec)
		if err != nil {
			t.Fatalf("cid: %v", err)
		}
		store.Put(cid, b)
	}
	// The default VLAD cid is Blake3-hashed, so the first-lock block is
	// fetched through the resolver like any other block.
	store.Put(log.Vlad.CID, log.FirstLock.CanonicalBytes())

	resolved, err := ResolvePlog(context.Background(), store, log.Vlad, log.Head(), log.HashCodec)
	if err != nil {
		t.Fatalf("resolve plog: %v", err)
	}
	if resolved.Log.Len() != log.Len() {
		t.Fatalf("expected %d entries resolved, got %d", log.Len(), resolved.Log.Len())
	}
	if len(resolved.Steps) != log.Len() {
		t.Fatalf("expected %d verify steps, got %d", log.Len(), len(resolved.Steps))
	}
	if len(resolved.VerificationCounts) != log.Len() {
		t.Fatalf("expected %d verification counts, got %d", log.Len(), len(resolved.VerificationCounts))
	}
	if TotalCount(resolved.VerificationCounts) <= 0 {
		t.Fatalf("expected positive total verification count")
	}
	if resolved.Log.FirstLock != log.FirstLock {
		t.Fatalf("expected first lock recovered from vlad cid to equal the original, got %+v", resolved.Log.FirstLock)
	}
	if resolved.Log.Head().String() != log.Head().String() {
		t.Fatalf("head mismatch after resolve")
	}
}

// TestResolvePlogFetchesNonInlineFirstLock opens a log whose VLAD cid hashes
// the first lock script instead of inlining it, so resolving must fetch the
// script's block from the store.
func TestResolvePlogFetchesNonInlineFirstLock(t *testing.T) {
	cm, err := NewMemoryCryptoManager(64)
	if err != nil {
		t.Fatalf("new crypto manager: %v", err)
	}
	cfg := DefaultConfig()
	cfg.VladCidParams = CidGen(DefaultVladCidKey, mcodec.Cidv1, mcodec.Raw, mcodec.Blake3, false, nil)
	log, err := Open(cfg, cm)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	store := memresolver.New()
	for _, e := range log.Entries() {
		b, err := e.CanonicalBytes()
		if err != nil {
			t.Fatalf("canonical bytes: %v", err)
		}
		cid, err := e.CID(log.HashCodec)
		if err != nil {
			t.Fatalf("cid: %v", err)
		}
		store.Put(cid, b)
	}

	// Without the first-lock block present the resolve must fail.
	if _, err := ResolvePlog(context.Background(), store, log.Vlad, log.Head(), log.HashCodec); err == nil {
		t.Fatal("expected resolve to fail when the first-lock block is absent")
	}

	store.Put(log.Vlad.CID, log.FirstLock.CanonicalBytes())
	resolved, err := ResolvePlog(context.Background(), store, log.Vlad, log.Head(), log.HashCodec)
	if err != nil {
		t.Fatalf("resolve plog: %v", err)
	}
	if resolved.Log.FirstLock != log.FirstLock {
		t.Fatalf("expected fetched first lock to equal the original")
	}
}

func TestForkChoiceComparator(t *testing.T) {
	shorter := []int{2, 5}
	longerSamePrefix := []int{2, 5, 1}
	if Compare(shorter, longerSamePrefix) <= 0 {
		t.Fatalf("expected the longer, prefix-equal chain to win")
	}
	if !Less(longerSamePrefix, shorter) {
		t.Fatalf("Less should order the longer chain ahead")
	}

	smallerAtHead := []int{1, 9}
	biggerAtHead := []int{2, 0}
	if Compare(smallerAtHead, biggerAtHead) >= 0 {
		t.Fatalf("expected smaller head count to win")
	}
}

func TestGetEntryChainDetectsCidMismatch(t *testing.T) {
	log, cm := openDefault(t)
	if _, err := Update(log, UpdateConfig{
		EntrySigningKey:   DefaultEntryKey,
		EntryUnlockScript: entryUnlockScript(),
		EntryOps:          []OpParams{UseStr("/a", "1")},
	}, cm); err != nil {
		t.Fatalf("update: %v", err)
	}

	store := memresolver.New()
	entries := log.Entries()
	for i, e := range entries {
		b, err := e.CanonicalBytes()
		if err != nil {
			t.Fatalf("canonical bytes: %v", err)
		}
		cid, err := e.CID(log.HashCodec)
		if err != nil {
			t.Fatalf("cid: %v", err)
		}
		if i == 0 && len(b) > 0 {
			b = append([]byte(nil), b...)
			b[0] ^= 0xff
		}
		store.Put(cid, b)
	}

	_, err := GetEntryChain(context.Background(), store, log.Head(), log.HashCodec)
	if err == nil {
		t.Fatal("expected cid mismatch error when a stored block is tampered with")
	}
	resolveErr, ok := err.(*ResolveError)
	if !ok || resolveErr.Kind != CidMismatch {
		t.Fatalf("expected CidMismatch ResolveError, got %v", err)
	}
}

// TestForkChoiceScenarios exercises the worked fork-choice example: a
// cheaper-but-shorter-shared-prefix chain loses to the longer one, and a
// strictly cheaper chain at the first point of difference wins outright.
func TestForkChoiceScenarios(t *testing.T) {
	cheaper := []int{3, 3, 3}
	pricier := []int{3, 5, 3}
	if Compare(cheaper, pricier) >= 0 {
		t.Fatalf("expected the cheaper-to-verify chain to win")
	}
	if TotalCount(cheaper) != 9 || TotalCount(pricier) != 11 {
		t.Fatalf("unexpected TotalCount results")
	}

	shorter := []int{3, 3}
	longer := []int{3, 3, 3}
	if Compare(shorter, longer) <= 0 {
		t.Fatalf("expected the longer chain to win when equal on the shared prefix")
	}
}

func TestUpdateRejectsUnlockNotSatisfyingHeadLock(t *testing.T) {
	log, cm := openDefault(t)

	_, err := Update(log, UpdateConfig{
		EntrySigningKey:   DefaultEntryKey,
		EntryUnlockScript: script.Script{Code: `push("/nonexistent")`},
		EntryOps:          []OpParams{UseStr("/greeting", "hello")},
	}, cm)
	if err == nil {
		t.Fatalf("expected an entry whose unlock names no published lock to be rejected")
	}
	if log.Len() != 1 {
		t.Fatalf("expected log unchanged after a rejected append, got %d entries", log.Len())
	}
}

// TestVerifyCatchesTamperedProofUnderWeakLock builds a log whose active lock
// is satisfied by a preimage, never examining the entry's signature, then
// appends a forged entry (an invalid proof, but the correct preimage) to the
// raw Log directly. Verify must still reject it: proof verification cannot
// depend on the lock script happening to cover /entry/proof (invariant 7).
func TestVerifyCatchesTamperedProofUnderWeakLock(t *testing.T) {
	log, cm := openDefault(t)

	preimage := []byte("open sesame")
	hash := sha256.Sum256(preimage)
	preimageLockKey := Key("/preimage-value")

	if _, err := Update(log, UpdateConfig{
		EntrySigningKey:   DefaultEntryKey,
		EntryUnlockScript: entryUnlockScript(),
		AddLocks: []Lock{{
			Key:    preimageLockKey,
			Script: script.Script{Code: `check_preimage("/secret-hash")`},
		}},
		EntryOps: []OpParams{UseBin("/secret-hash", hash[:])},
	}, cm); err != nil {
		t.Fatalf("update publishing preimage lock: %v", err)
	}

	steps, err := Verify(log)
	if err != nil {
		t.Fatalf("verify before forgery: %v", err)
	}
	last := steps[len(steps)-1]

	forged := Entry{
		Vlad:   log.Vlad,
		Prev:   last.CID,
		Lipmaa: multicid.Null,
		Seq:    last.Entry.Seq + 1,
		Ops:    []Op{UpdateOp(preimageLockKey, DataValue(preimage))},
		Unlock: script.Script{Code: `push("/preimage-value")`},
		Proof:  multikey.Multisig{Codec: mcodec.Ed25519Msig, Bytes: []byte("not a real signature")},
	}
	if _, err := log.TryAppend(forged); err != nil {
		t.Fatalf("append forged entry: %v", err)
	}

	if _, err := Verify(log); err == nil {
		t.Fatalf("expected verify to reject a forged proof even though the active lock never checks it")
	}
}

// TestUpdateDeleteEntrykeyUnderDelegatedLock publishes a lock at /delegated/
// while deleting /entrykey in the same entry: the chain stays verifiable
// (the deleted key still signed this entry) and the terminal state no longer
// carries /entrykey.
func TestUpdateDeleteEntrykeyUnderDelegatedLock(t *testing.T) {
	log, cm := openDefault(t)

	_, err := Update(log, UpdateConfig{
		EntrySigningKey:   DefaultEntryKey,
		EntryUnlockScript: entryUnlockScript(),
		AddLocks: []Lock{{
			Key:    "/delegated/",
			Script: DefaultFirstLockScript(),
		}},
		EntryOps: []OpParams{DeleteParams(DefaultEntryKey)},
	}, cm)
	if err != nil {
		t.Fatalf("update deleting entrykey: %v", err)
	}
	if log.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", log.Len())
	}

	steps, err := Verify(log)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 verify steps, got %d", len(steps))
	}
	if _, ok := steps[len(steps)-1].State[DefaultEntryKey]; ok {
		t.Fatalf("expected %s absent from terminal state", DefaultEntryKey)
	}
}

func TestPairsApplySemantics(t *testing.T) {
	state := Pairs{}

	state = state.Apply([]Op{DeleteOp("/k"), UpdateOp("/k", StrValue("x"))})
	v, ok := state["/k"]
	if !ok || !v.IsStr() || string(v.Bytes()) != "x" {
		t.Fatalf("expected delete-then-set to end with /k=x, got %+v", v)
	}

	before := state.Clone()
	state = state.Apply([]Op{Noop("/k"), Noop("/k")})
	if len(state) != len(before) || string(state["/k"].Bytes()) != "x" {
		t.Fatalf("expected consecutive noops to leave state unchanged")
	}
}
