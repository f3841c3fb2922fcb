package plog

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/karasz/plog/mcodec"
	"github.com/karasz/plog/multikey"
)

// CryptoManager is the callback contract that key material and signing
// flow through. Implementations are not required to be thread-safe; the
// core calls them serially.
type CryptoManager interface {
	// GetMK materializes a key appropriate to codec at key_path. threshold
	// and limit are plumbed through for future threshold-signature codecs
	// and are unused by the single-share codecs implemented here.
	GetMK(keyPath Key, codec mcodec.Codec, threshold, limit uint8) (multikey.Multikey, error)
	// Prove signs data under mk.
	Prove(mk multikey.Multikey, data []byte) (multikey.Multisig, error)
}

// MemoryCryptoManager is a reference CryptoManager that generates fresh
// in-memory keys and stashes a copy of each secret by its public
// fingerprint for later proofs. Prove does not remove a stashed secret, so
// one key can sign any number of entries until it is evicted. The stash is
// a bounded LRU so long-lived processes generating many ephemeral VLAD/entry
// keys don't leak memory.
type MemoryCryptoManager struct {
	stash *lru.Cache[string, multikey.Multikey]
}

// NewMemoryCryptoManager creates a MemoryCryptoManager whose secret stash
// holds at most capacity keys at a time.
func NewMemoryCryptoManager(capacity int) (*MemoryCryptoManager, error) {
	c, err := lru.New[string, multikey.Multikey](capacity)
	if err != nil {
		return nil, err
	}
	return &MemoryCryptoManager{stash: c}, nil
}

// GetMK generates a fresh key of the requested codec and stashes it by its
// public fingerprint.
func (m *MemoryCryptoManager) GetMK(_ Key, codec mcodec.Codec, threshold, limit uint8) (multikey.Multikey, error) {
	mk, err := multikey.Generate(codec, threshold, limit)
	if err != nil {
		return multikey.Multikey{}, err
	}
	pub, err := mk.PublicKey()
	if err != nil {
		return multikey.Multikey{}, err
	}
	fp, err := pub.Fingerprint()
	if err != nil {
		return multikey.Multikey{}, err
	}
	// Stash an independent copy: the caller owns the returned handle and
	// will overwrite it once done, which must not reach into the stash.
	stashed := multikey.Multikey{Codec: mk.Codec, Bytes: append([]byte(nil), mk.Bytes...)}
	m.stash.Add(fp, stashed)
	return mk, nil
}

// Prove signs data under mk. If mk is public-only, the matching secret is
// looked up in the stash by fingerprint.
func (m *MemoryCryptoManager) Prove(mk multikey.Multikey, data []byte) (multikey.Multisig, error) {
	if mk.IsSecret() {
		return mk.Sign(data)
	}
	fp, err := mk.Fingerprint()
	if err != nil {
		return multikey.Multisig{}, err
	}
	secret, ok := m.stash.Get(fp)
	if !ok {
		return multikey.Multisig{}, &PlogError{Kind: NoVladKey}
	}
	return secret.Sign(data)
}
