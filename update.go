package plog

import (
	"fmt"

	"github.com/karasz/plog/multicid"
	"github.com/karasz/plog/multikey"
	"github.com/karasz/plog/script"
)

// UpdateConfig drives the update engine.
type UpdateConfig struct {
	AddLocks          []Lock // new locks this entry publishes
	RemoveLocks       []Key  // keys whose currently-active lock this entry revokes
	EntryUnlockScript script.Script
	EntrySigningKey   Key // key-path of the (already-published) key signing this entry
	EntryOps          []OpParams
}

// Update verifies log, then appends a new entry built from cfg, signed by
// the key currently published at cfg.EntrySigningKey. Verifying first
// obtains the last entry and state map the new entry builds on.
//
// Failures surface as the top-level Error with Kind "Update", wrapping the
// underlying UpdateError; a failed update leaves log unchanged.
func Update(log *Log, cfg UpdateConfig, cm CryptoManager) (multicid.CID, error) {
	cid, err := update(log, cfg, cm)
	if err != nil {
		return multicid.CID{}, wrapErr("Update", err)
	}
	return cid, nil
}

func update(log *Log, cfg UpdateConfig, cm CryptoManager) (multicid.CID, error) {
	steps, err := Verify(log)
	if err != nil {
		return multicid.CID{}, &UpdateError{Kind: NoLastEntry, Err: err}
	}
	if len(steps) == 0 {
		return multicid.CID{}, &UpdateError{Kind: NoLastEntry}
	}
	last := steps[len(steps)-1]

	raw, ok := last.State[cfg.EntrySigningKey]
	if !ok {
		return multicid.CID{}, &UpdateError{Kind: NoOpKeyPath, Err: fmt.Errorf("no key published at %q", cfg.EntrySigningKey)}
	}
	pub, err := multikey.ParseMultikey(raw.Bytes())
	if err != nil {
		return multicid.CID{}, &UpdateError{Kind: NoOpKeyPath, Err: err}
	}

	ops, err := ExpandAll(cfg.EntryOps, cm)
	if err != nil {
		return multicid.CID{}, &UpdateError{Kind: UpdateInvalidOpParams, Err: err}
	}

	locks := append([]Lock{}, cfg.AddLocks...)
	for _, k := range cfg.RemoveLocks {
		locks = append(locks, Lock{Key: k, Remove: true})
	}

	seq := last.Entry.Seq + 1
	lipmaaCID := multicid.Null
	if ancSeq := lipmaaAncestorSeq(seq); ancSeq < uint64(log.Len()) {
		if ancEntry, ok := log.Get(log.order[ancSeq]); ok {
			c, err := ancEntry.CID(log.HashCodec)
			if err == nil {
				lipmaaCID = c
			}
		}
	}

	entry := Entry{
		Vlad:   log.Vlad,
		Prev:   last.CID,
		Lipmaa: lipmaaCID,
		Seq:    seq,
		Ops:    ops,
		Locks:  locks,
		Unlock: cfg.EntryUnlockScript,
	}

	signable, err := entry.SignableBytes()
	if err != nil {
		return multicid.CID{}, &UpdateError{Kind: UpdateInvalidOpParams, Err: err}
	}
	sig, err := cm.Prove(pub, signable)
	if err != nil {
		return multicid.CID{}, &UpdateError{Kind: NoUpdateOpValue, Err: err}
	}
	entry.Proof = sig

	cid, err := entry.CID(log.HashCodec)
	if err != nil {
		return multicid.CID{}, &UpdateError{Kind: UpdateInvalidOpParams, Err: err}
	}

	// Gate the append on entry.Unlock actually satisfying one of the
	// current head's active locks before touching log at all, so a
	// rejected entry leaves log unmodified.
	if _, err := VerifyCandidate(log, cid, entry); err != nil {
		return multicid.CID{}, &UpdateError{Kind: UpdateInvalidOpParams, Err: err}
	}

	if _, err := log.TryAppend(entry); err != nil {
		return multicid.CID{}, &UpdateError{Kind: UpdateInvalidOpParams, Err: err}
	}
	return cid, nil
}
