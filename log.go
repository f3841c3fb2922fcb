package plog

import (
	"fmt"

	"github.com/karasz/plog/mcodec"
	"github.com/karasz/plog/multicid"
	"github.com/karasz/plog/script"
)

// Log is the full provenance log: a VLAD, the bootstrap lock script, and the
// set of entries reachable from vlad.cid.
type Log struct {
	Vlad      multicid.VLAD
	FirstLock script.Script
	HashCodec mcodec.Codec // hash codec used to compute entry CIDs

	entries map[string]Entry // keyed by CID.String()
	order   []multicid.CID   // insertion order, foot-first
}

// NewLog creates an empty Log addressed by vlad, bootstrapped with
// firstLock.
func NewLog(vlad multicid.VLAD, firstLock script.Script, hashCodec mcodec.Codec) *Log {
	return &Log{
		Vlad:      vlad,
		FirstLock: firstLock,
		HashCodec: hashCodec,
		entries:   make(map[string]Entry),
	}
}

// Head returns the most recently appended entry's CID, or Null if the log is
// empty.
func (l *Log) Head() multicid.CID {
	if len(l.order) == 0 {
		return multicid.Null
	}
	return l.order[len(l.order)-1]
}

// Foot returns the first entry's CID, or Null if the log is empty.
func (l *Log) Foot() multicid.CID {
	if len(l.order) == 0 {
		return multicid.Null
	}
	return l.order[0]
}

// Len reports how many entries the log holds.
func (l *Log) Len() int { return len(l.order) }

// Get looks up an entry by CID.
func (l *Log) Get(cid multicid.CID) (Entry, bool) {
	e, ok := l.entries[cid.String()]
	return e, ok
}

// Entries returns the log's entries in foot-to-head order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, 0, len(l.order))
	for _, cid := range l.order {
		out = append(out, l.entries[cid.String()])
	}
	return out
}

// TryAppend computes e's CID, verifies it isn't already present, and adds it
// as the new head. Callers that need the append itself gated on e's
// unlock satisfying the current head's lock should
// call VerifyCandidate first, as Update does, and only call TryAppend once
// that succeeds — TryAppend itself only enforces the structural invariant
// that the log's map stays injective on CID.
func (l *Log) TryAppend(e Entry) (multicid.CID, error) {
	cid, err := e.CID(l.HashCodec)
	if err != nil {
		return multicid.CID{}, fmt.Errorf("plog: append: %w", err)
	}
	key := cid.String()
	if _, exists := l.entries[key]; exists {
		return multicid.CID{}, fmt.Errorf("plog: append: entry %s already present", key)
	}
	l.entries[key] = e
	l.order = append(l.order, cid)
	return cid, nil
}

// FromEntries rebuilds a Log from a slice of entries already in foot-to-head
// order, as returned by GetEntryChain. It does not re-verify; callers that
// need verification should run Verify over the result.
func FromEntries(vlad multicid.VLAD, firstLock script.Script, hashCodec mcodec.Codec, entries []Entry) (*Log, error) {
	l := NewLog(vlad, firstLock, hashCodec)
	for _, e := range entries {
		if _, err := l.TryAppend(e); err != nil {
			return nil, err
		}
	}
	return l, nil
}
