// Package multikey implements self-describing cryptographic key and
// signature types for the plog core: codec tag + raw key bytes, fingerprint
// via multihash.
package multikey

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/multiformats/go-multihash"
	"github.com/multiformats/go-varint"

	"github.com/karasz/plog/mcodec"
)

// ErrNotSecret is returned when a public-only Multikey is asked to sign or
// derive a secret-only value.
var ErrNotSecret = errors.New("multikey: not a secret key")

// ErrUnsupportedCodec is returned for codecs this package cannot materialize.
var ErrUnsupportedCodec = errors.New("multikey: unsupported codec")

// Multikey is a self-describing typed cryptographic key.
type Multikey struct {
	Codec mcodec.Codec
	Bytes []byte // raw key material (public or secret, per Codec)
}

// IsSecret reports whether this Multikey carries secret material.
func (mk Multikey) IsSecret() bool {
	return mk.Codec == mcodec.Ed25519Priv
}

// Generate materializes a fresh key for the given codec. threshold/limit are
// plumbed through unused by the single-share codecs implemented here; they
// exist so future threshold-signature codecs have a slot.
func Generate(codec mcodec.Codec, _threshold, _limit uint8) (Multikey, error) {
	switch codec {
	case mcodec.Ed25519Priv:
		_, sk, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return Multikey{}, fmt.Errorf("multikey: generate ed25519: %w", err)
		}
		return Multikey{Codec: mcodec.Ed25519Priv, Bytes: []byte(sk)}, nil
	default:
		return Multikey{}, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}
}

// PublicKey derives the public Multikey from a secret one. If mk is already
// public, it is returned unchanged.
func (mk Multikey) PublicKey() (Multikey, error) {
	switch mk.Codec {
	case mcodec.Ed25519Priv:
		sk := ed25519.PrivateKey(mk.Bytes)
		pub := sk.Public().(ed25519.PublicKey)
		return Multikey{Codec: mcodec.Ed25519Pub, Bytes: []byte(pub)}, nil
	case mcodec.Ed25519Pub:
		return mk, nil
	default:
		return Multikey{}, fmt.Errorf("%w: %s", ErrUnsupportedCodec, mk.Codec)
	}
}

// Sign produces a Multisig over data. mk must carry secret material.
func (mk Multikey) Sign(data []byte) (Multisig, error) {
	switch mk.Codec {
	case mcodec.Ed25519Priv:
		sk := ed25519.PrivateKey(mk.Bytes)
		sig := ed25519.Sign(sk, data)
		return Multisig{Codec: mcodec.Ed25519Msig, Bytes: sig}, nil
	default:
		return Multisig{}, fmt.Errorf("%w: %s", ErrNotSecret, mk.Codec)
	}
}

// Verify checks a Multisig over data under this (public) Multikey.
func (mk Multikey) Verify(data []byte, sig Multisig) bool {
	switch mk.Codec {
	case mcodec.Ed25519Pub:
		if sig.Codec != mcodec.Ed25519Msig {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(mk.Bytes), data, sig.Bytes)
	default:
		return false
	}
}

// Fingerprint returns a multihash digest of the key's canonical bytes,
// suitable as a stable map key for a CryptoManager's secret stash.
func (mk Multikey) Fingerprint() (string, error) {
	sum, err := multihash.Sum(mk.CanonicalBytes(), multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("multikey: fingerprint: %w", err)
	}
	return sum.B58String(), nil
}

// CanonicalBytes returns the canonical encoded form: <codec><keybytes>.
func (mk Multikey) CanonicalBytes() []byte {
	out := make([]byte, 0, 9+len(mk.Bytes))
	out = appendUvarint(out, uint64(mk.Codec))
	out = append(out, mk.Bytes...)
	return out
}

// ParseMultikey rebuilds a Multikey from its canonical bytes.
func ParseMultikey(b []byte) (Multikey, error) {
	if len(b) == 0 {
		return Multikey{}, nil
	}
	codec, n, err := varint.FromUvarint(b)
	if err != nil {
		return Multikey{}, fmt.Errorf("multikey: parse codec: %w", err)
	}
	return Multikey{Codec: mcodec.Codec(codec), Bytes: append([]byte(nil), b[n:]...)}, nil
}

// Destroy overwrites secret key material in place. Callers MUST call this
// once a materialized secret key is no longer needed; a secret never
// outlives the function that produced it.
func (mk *Multikey) Destroy() {
	for i := range mk.Bytes {
		mk.Bytes[i] = 0
	}
	mk.Bytes = nil
}

// Multisig is a self-describing typed signature.
type Multisig struct {
	Codec mcodec.Codec
	Bytes []byte
}

// CanonicalBytes returns the canonical encoded form: <codec><sigbytes>.
func (ms Multisig) CanonicalBytes() []byte {
	out := make([]byte, 0, 9+len(ms.Bytes))
	out = appendUvarint(out, uint64(ms.Codec))
	out = append(out, ms.Bytes...)
	return out
}

// ParseMultisig rebuilds a Multisig from its canonical bytes.
func ParseMultisig(b []byte) (Multisig, error) {
	if len(b) == 0 {
		return Multisig{}, nil
	}
	codec, n, err := varint.FromUvarint(b)
	if err != nil {
		return Multisig{}, fmt.Errorf("multikey: parse codec: %w", err)
	}
	return Multisig{Codec: mcodec.Codec(codec), Bytes: append([]byte(nil), b[n:]...)}, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [10]byte
	n := 0
	for v >= 0x80 {
		tmp[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	tmp[n] = byte(v)
	n++
	return append(buf, tmp[:n]...)
}
