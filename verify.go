package plog

import (
	"fmt"

	"github.com/karasz/plog/mcodec"
	"github.com/karasz/plog/multicid"
	"github.com/karasz/plog/multikey"
	"github.com/karasz/plog/script"
)

// VerifyStep is one (count, entry, state) triple the verification iterator
// yields, foot-to-head.
type VerifyStep struct {
	CID   multicid.CID
	Count int // this entry's own script-execution instruction count
	Entry Entry
	State Pairs
}

// entryEnv bridges the persistent key-value state plus the synthetic
// "/entry/..." namespace to script.Env, so lock/unlock scripts can reference
// the entry currently under verification: /entry/seq, /entry/prev, /entry/,
// and /entry/proof.
type entryEnv struct {
	state        Pairs
	entry        Entry
	signable     []byte
	verifyPubkey func(pubkeyPath string, msg, sig []byte) (bool, error)
}

func (e *entryEnv) Get(path string) ([]byte, bool) {
	switch path {
	case "/entry/":
		return e.signable, true
	case "/entry/proof":
		return e.entry.Proof.Bytes, true
	case "/entry/seq":
		return []byte(fmt.Sprintf("%d", e.entry.Seq)), true
	case "/entry/prev":
		return e.entry.Prev.CanonicalBytes(), true
	}
	v, ok := e.state[Key(path)]
	if !ok {
		return nil, false
	}
	return v.Bytes(), true
}

func (e *entryEnv) VerifySignature(pubkeyPath string, msg, sig []byte) (bool, error) {
	return e.verifyPubkey(pubkeyPath, msg, sig)
}

// Verifier replays a Log foot-to-head, one entry per Next call. It is a
// lazy, finite iterator: nothing runs until Next is called.
type Verifier struct {
	log   *Log
	order []multicid.CID
	idx   int

	state Pairs
	locks map[Key]script.Script
	prev  multicid.CID
}

// NewVerifier creates a Verifier over log, starting at the foot.
func NewVerifier(log *Log) *Verifier {
	return &Verifier{
		log:   log,
		order: append([]multicid.CID(nil), log.order...),
		state: Pairs{},
		locks: map[Key]script.Script{},
		prev:  multicid.Null,
	}
}

// Done reports whether all entries have been consumed.
func (v *Verifier) Done() bool { return v.idx >= len(v.order) }

// Next verifies and replays the next entry in the chain.
func (v *Verifier) Next() (VerifyStep, error) {
	if v.Done() {
		return VerifyStep{}, fmt.Errorf("plog: verify: no more entries")
	}
	cid := v.order[v.idx]
	entry, ok := v.log.Get(cid)
	if !ok {
		return VerifyStep{}, &VerificationError{CID: cid.String(), Err: fmt.Errorf("entry missing from log")}
	}
	step, err := v.stepEntry(cid, entry)
	if err != nil {
		return VerifyStep{}, err
	}
	v.idx++
	return step, nil
}

// stepEntry verifies entry (content-addressed under cid) against the
// verifier's current state and, on success, advances that state. It is
// shared by Next, which walks a Log in order, and VerifyCandidate, which
// checks a prospective new head before it is ever written to a Log, so
// both paths enforce the identical chain of invariants.
func (v *Verifier) stepEntry(cid multicid.CID, entry Entry) (VerifyStep, error) {
	if !entry.Prev.Equal(v.prev) {
		return VerifyStep{}, &VerificationError{CID: cid.String(), Err: fmt.Errorf("prev mismatch")}
	}

	gotCID, err := entry.CID(v.log.HashCodec)
	if err != nil {
		return VerifyStep{}, &VerificationError{CID: cid.String(), Err: err}
	}
	if !gotCID.Equal(cid) {
		return VerifyStep{}, &VerificationError{CID: cid.String(), Err: fmt.Errorf("entry content address mismatch: recomputed %s", gotCID)}
	}

	signable, err := entry.SignableBytes()
	if err != nil {
		return VerifyStep{}, &VerificationError{CID: cid.String(), Err: err}
	}

	// Reconstruct the state this entry's own lock/unlock evaluation runs
	// against by applying its ops first — the foot's lock commonly checks a
	// key (/entrykey) the foot's own ops are what publish.
	state := v.state.Apply(entry.Ops)

	env := &entryEnv{
		state:    state,
		entry:    entry,
		signable: signable,
		verifyPubkey: func(pubkeyPath string, msg, sig []byte) (bool, error) {
			// A key a lock references may be this same entry's target for
			// revocation (its own ops rotate it): prefer the value carried
			// in from the previous iteration, falling back to the
			// just-applied state for a key (like the foot's /entrykey)
			// that only this entry ever publishes.
			raw, ok := lookupPubkeyIn(v.state, pubkeyPath)
			if !ok {
				raw, ok = lookupPubkeyIn(state, pubkeyPath)
			}
			if !ok {
				return false, nil
			}
			mk, err := multikey.ParseMultikey(raw)
			if err != nil {
				return false, err
			}
			return mk.Verify(msg, multikey.Multisig{Codec: mcodec.Ed25519Msig, Bytes: sig}), nil
		},
	}

	vm := script.NewVM(env)
	if err := vm.RunUnlock(entry.Unlock); err != nil {
		return VerifyStep{}, &VerificationError{CID: cid.String(), Err: err}
	}

	lockScript, err := v.selectLock(vm.PushedPaths())
	if err != nil {
		return VerifyStep{}, &VerificationError{CID: cid.String(), Err: err}
	}
	ok, err := vm.RunLock(lockScript)
	if err != nil {
		return VerifyStep{}, &VerificationError{CID: cid.String(), Err: err}
	}
	if !ok {
		return VerifyStep{}, &VerificationError{CID: cid.String(), Err: fmt.Errorf("lock script rejected entry")}
	}

	// Independently verify proof against the key the unlock references (or
	// /entrykey by default), regardless of whether lockScript's predicate
	// happens to cover /entry/proof itself (invariant 7).
	if err := verifyEntryProof(v.state, state, entry, signable); err != nil {
		return VerifyStep{}, &VerificationError{CID: cid.String(), Err: err}
	}

	for _, l := range entry.Locks {
		if l.Remove {
			delete(v.locks, l.Key)
			continue
		}
		v.locks[l.Key] = l.Script
	}
	v.state = state
	v.prev = cid

	return VerifyStep{CID: cid, Count: vm.InstructionCount(), Entry: entry, State: state}, nil
}

// VerifyCandidate replays log to its current head, then verifies candidate
// (content-addressed under candidateCID, not yet part of log) as the
// prospective new head, without mutating log. Update calls this before
// Log.TryAppend to enforce the append step's atomic "fail without mutation"
// guarantee: an entry whose unlock does not satisfy one of the
// head's active locks is rejected before it is ever stored.
func VerifyCandidate(log *Log, candidateCID multicid.CID, candidate Entry) (VerifyStep, error) {
	v := NewVerifier(log)
	for !v.Done() {
		if _, err := v.Next(); err != nil {
			return VerifyStep{}, err
		}
	}
	return v.stepEntry(candidateCID, candidate)
}

func lookupPubkeyIn(state Pairs, path string) ([]byte, bool) {
	val, ok := state[Key(path)]
	if !ok {
		return nil, false
	}
	return val.Bytes(), true
}

// verifyEntryProof checks entry.Proof against the Multikey published at the
// path the unlock references (entry.Unlock.KeyPathHint, defaulting to
// /entrykey), looking it up in preState (the state carried into this
// iteration) first and falling back to postState (this entry's own
// just-applied ops) — the foot publishes and signs with its key in the same
// entry, so only postState has it; a later key-revocation entry signs with
// a key its own ops then delete, so only preState still has it.
func verifyEntryProof(preState, postState Pairs, entry Entry, signable []byte) error {
	path := entry.Unlock.KeyPathHint
	if path == "" {
		path = string(DefaultEntryKey)
	}
	raw, ok := lookupPubkeyIn(preState, path)
	if !ok {
		raw, ok = lookupPubkeyIn(postState, path)
	}
	if !ok {
		return fmt.Errorf("proof: no key published at %q", path)
	}
	mk, err := multikey.ParseMultikey(raw)
	if err != nil {
		return fmt.Errorf("proof: parse key at %q: %w", path, err)
	}
	if !mk.Verify(signable, entry.Proof) {
		return fmt.Errorf("proof: signature verification failed under %q", path)
	}
	return nil
}

// selectLock applies the lock-selection rule: among the currently active
// published locks (or the log's bootstrap first-lock when none has been
// published yet), pick the one whose key-path is the longest prefix of any
// path the unlock script pushed, breaking ties lexicographically by key.
func (v *Verifier) selectLock(pushed []string) (script.Script, error) {
	if len(v.locks) == 0 {
		return v.log.FirstLock, nil
	}

	type candidate struct {
		key Key
		sc  script.Script
	}
	var best *candidate
	for key, sc := range v.locks {
		for _, p := range pushed {
			if !Key(p).HasPrefix(key) {
				continue
			}
			if best == nil || len(key) > len(best.key) || (len(key) == len(best.key) && key < best.key) {
				best = &candidate{key: key, sc: sc}
			}
		}
	}
	if best == nil {
		return script.Script{}, fmt.Errorf("no matching lock for pushed paths %v", pushed)
	}
	return best.sc, nil
}

// Verify runs the verifier to completion, returning every step in order, or
// the first verification failure. The final step's State is
// the log's fully-replayed state map, and the per-step Count participates in
// fork-choice comparisons via VerificationCounts.
func Verify(log *Log) ([]VerifyStep, error) {
	v := NewVerifier(log)
	var steps []VerifyStep
	for !v.Done() {
		step, err := v.Next()
		if err != nil {
			return steps, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// VerificationCounts returns the per-entry instruction counts from steps, in
// head-to-foot order (index 0 = latest), matching the ordering the
// fork-choice comparator expects.
func VerificationCounts(steps []VerifyStep) []int {
	counts := make([]int, len(steps))
	for i, s := range steps {
		counts[len(steps)-1-i] = s.Count
	}
	return counts
}
