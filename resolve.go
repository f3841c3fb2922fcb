package plog

import (
	"context"
	"fmt"

	"github.com/karasz/plog/mcodec"
	"github.com/karasz/plog/multicid"
	"github.com/karasz/plog/script"
)

// Resolver fetches the canonical bytes a CID addresses. Implementations may
// wrap an in-memory map, a local content store, or a network fetch; the
// blocking method taking a context is the only point the resolve path
// suspends at.
type Resolver interface {
	Resolve(ctx context.Context, cid multicid.CID) ([]byte, error)
}

// ResolveErrorKind enumerates resolve-path failures.
type ResolveErrorKind int

const (
	BlockNotFound ResolveErrorKind = iota
	VerificationFailed
	CidMismatch
	NoLastEntryResolve
	ResolveOther
)

func (k ResolveErrorKind) String() string {
	switch k {
	case BlockNotFound:
		return "block not found"
	case VerificationFailed:
		return "verification error"
	case CidMismatch:
		return "cid mismatch"
	case NoLastEntryResolve:
		return "no last entry"
	default:
		return "other"
	}
}

// ResolveError wraps a resolve-path failure. Expected holds the CID a block
// was fetched for and Actual the CID its bytes actually hash to, populated
// only for Kind == CidMismatch.
type ResolveError struct {
	Kind     ResolveErrorKind
	Expected multicid.CID
	Actual   multicid.CID
	Err      error
}

func (e *ResolveError) Error() string {
	switch e.Kind {
	case CidMismatch:
		return fmt.Sprintf("resolve: cid mismatch: expected %s, got %s", e.Expected, e.Actual)
	default:
		if e.Err != nil {
			return fmt.Sprintf("resolve: %s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("resolve: %s", e.Kind)
	}
}

func (e *ResolveError) Unwrap() error { return e.Err }

// GetEntryChain walks the prev-chain from headCID back to the foot (Prev ==
// Null), re-verifying at each hop that resolver's bytes for a CID actually
// hash to that CID. Entries are returned foot-to-head.
func GetEntryChain(ctx context.Context, resolver Resolver, headCID multicid.CID, hashCodec mcodec.Codec) ([]Entry, error) {
	var reversed []Entry
	cur := headCID
	for !cur.IsNull() {
		b, err := resolver.Resolve(ctx, cur)
		if err != nil {
			return nil, &ResolveError{Kind: BlockNotFound, Err: err}
		}
		gotCID, err := multicid.NewCID(mcodec.Raw, hashCodec, b)
		if err != nil {
			return nil, &ResolveError{Kind: ResolveOther, Err: err}
		}
		if !gotCID.Equal(cur) {
			return nil, &ResolveError{Kind: CidMismatch, Expected: cur, Actual: gotCID}
		}
		entry, err := ParseEntry(b)
		if err != nil {
			return nil, &ResolveError{Kind: ResolveOther, Err: err}
		}
		reversed = append(reversed, entry)
		cur = entry.Prev
	}
	entries := make([]Entry, len(reversed))
	for i, e := range reversed {
		entries[len(reversed)-1-i] = e
	}
	return entries, nil
}

// ResolvedPlog is a fetched-and-reverified plog, carrying the per-entry
// verification counts the fork-choice comparator compares over.
type ResolvedPlog struct {
	Log                *Log
	Steps              []VerifyStep
	VerificationCounts []int // head-to-foot, index 0 = latest
}

// resolveFirstLock recovers the bootstrap lock script the VLAD's cid
// addresses. An Identity-hashed VLAD cid carries the script bytes inline in
// its own digest; anything else (including the default Blake3-hashed cid)
// is fetched through the resolver and re-hashed against the cid before
// parsing.
func resolveFirstLock(ctx context.Context, resolver Resolver, vlad multicid.VLAD) (script.Script, error) {
	var b []byte
	if vlad.CID.HashCodec == mcodec.Identity {
		digest, err := vlad.CID.Digest()
		if err != nil {
			return script.Script{}, &ResolveError{Kind: ResolveOther, Err: err}
		}
		b = digest
	} else {
		raw, err := resolver.Resolve(ctx, vlad.CID)
		if err != nil {
			return script.Script{}, &ResolveError{Kind: BlockNotFound, Err: err}
		}
		gotCID, err := multicid.NewCID(vlad.CID.TargetCodec, vlad.CID.HashCodec, raw)
		if err != nil {
			return script.Script{}, &ResolveError{Kind: ResolveOther, Err: err}
		}
		if !gotCID.Equal(vlad.CID) {
			return script.Script{}, &ResolveError{Kind: CidMismatch, Expected: vlad.CID, Actual: gotCID}
		}
		b = raw
	}
	firstLock, err := script.Parse(b)
	if err != nil {
		return script.Script{}, &ResolveError{Kind: ResolveOther, Err: err}
	}
	return firstLock, nil
}

// ResolvePlog rebuilds and verifies a Log from a VLAD and its current head
// CID: walks the entry chain via GetEntryChain, recovers the first lock
// script from vlad.cid, reassembles the Log, and runs Verify over it.
func ResolvePlog(ctx context.Context, resolver Resolver, vlad multicid.VLAD, headCID multicid.CID, hashCodec mcodec.Codec) (*ResolvedPlog, error) {
	entries, err := GetEntryChain(ctx, resolver, headCID, hashCodec)
	if err != nil {
		return nil, err
	}
	firstLock, err := resolveFirstLock(ctx, resolver, vlad)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &ResolveError{Kind: NoLastEntryResolve}
	}
	log, err := FromEntries(vlad, firstLock, hashCodec, entries)
	if err != nil {
		return nil, &ResolveError{Kind: ResolveOther, Err: err}
	}
	steps, err := Verify(log)
	if err != nil {
		return nil, &ResolveError{Kind: VerificationFailed, Err: err}
	}
	return &ResolvedPlog{Log: log, Steps: steps, VerificationCounts: VerificationCounts(steps)}, nil
}
