// Package multicid implements the CID and VLAD self-describing types, built
// on the real multiformats Go libraries for the multihash/multibase/varint
// layers.
package multicid

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
	"github.com/multiformats/go-varint"
	"github.com/zeebo/blake3"

	"github.com/karasz/plog/mcodec"
	"github.com/karasz/plog/multikey"
)

// ErrUnsupportedHash is returned for hash codecs this package cannot compute.
var ErrUnsupportedHash = errors.New("multicid: unsupported hash codec")

// Null is the sentinel empty CID used for Entry.prev/lipmaa on the foot
// entry, where no ancestor exists. Its canonical bytes are empty.
var Null = CID{}

// CID is `{version, target_codec, multihash}`.
type CID struct {
	Version      mcodec.Codec
	TargetCodec  mcodec.Codec
	HashCodec    mcodec.Codec
	MultihashSum []byte // go-multihash encoded digest (code+length+digest)
}

// IsNull reports whether c is the Null/empty CID.
func (c CID) IsNull() bool {
	return len(c.MultihashSum) == 0
}

// Sum computes the codec-tagged digest of data under hashCodec.
func Sum(hashCodec mcodec.Codec, data []byte) ([]byte, error) {
	switch hashCodec {
	case mcodec.Sha2_256:
		sum := sha256.Sum256(data)
		return multihash.Encode(sum[:], multihash.SHA2_256)
	case mcodec.Blake3:
		h := blake3.New()
		_, _ = h.Write(data)
		sum := h.Sum(nil)[:32]
		return multihash.Encode(sum, uint64(mcodec.Blake3))
	case mcodec.Identity:
		return multihash.Encode(data, multihash.IDENTITY)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHash, hashCodec)
	}
}

// NewCID builds a CIDv1 over data's digest under hashCodec, tagged with
// targetCodec (the codec of the thing being addressed — e.g. Raw for a
// script, Identity for inline small values).
func NewCID(targetCodec, hashCodec mcodec.Codec, data []byte) (CID, error) {
	sum, err := Sum(hashCodec, data)
	if err != nil {
		return CID{}, err
	}
	return CID{
		Version:      mcodec.Cidv1,
		TargetCodec:  targetCodec,
		HashCodec:    hashCodec,
		MultihashSum: sum,
	}, nil
}

// CanonicalBytes returns the canonical wire encoding:
// <uvarint version><uvarint target_codec><multihash bytes>.
func (c CID) CanonicalBytes() []byte {
	if c.IsNull() {
		return nil
	}
	var buf bytes.Buffer
	buf.Write(varint.ToUvarint(uint64(c.Version)))
	buf.Write(varint.ToUvarint(uint64(c.TargetCodec)))
	buf.Write(c.MultihashSum)
	return buf.Bytes()
}

// Parse rebuilds a CID from its canonical bytes.
func Parse(b []byte) (CID, error) {
	if len(b) == 0 {
		return CID{}, nil
	}
	version, n, err := varint.FromUvarint(b)
	if err != nil {
		return CID{}, fmt.Errorf("multicid: parse version: %w", err)
	}
	b = b[n:]
	target, n, err := varint.FromUvarint(b)
	if err != nil {
		return CID{}, fmt.Errorf("multicid: parse target codec: %w", err)
	}
	b = b[n:]
	dmh, err := multihash.Decode(b)
	if err != nil {
		return CID{}, fmt.Errorf("multicid: parse multihash: %w", err)
	}
	return CID{
		Version:      mcodec.Codec(version),
		TargetCodec:  mcodec.Codec(target),
		HashCodec:    hashCodecFromMultihashCode(dmh.Code),
		MultihashSum: append([]byte(nil), b...),
	}, nil
}

func hashCodecFromMultihashCode(code uint64) mcodec.Codec {
	switch code {
	case multihash.SHA2_256:
		return mcodec.Sha2_256
	case uint64(mcodec.Blake3):
		return mcodec.Blake3
	case multihash.IDENTITY:
		return mcodec.Identity
	default:
		return mcodec.Codec(code)
	}
}

// Digest returns the raw digest carried inside the CID's multihash. For an
// Identity-hashed CID the digest is the addressed data itself, inlined.
func (c CID) Digest() ([]byte, error) {
	dmh, err := multihash.Decode(c.MultihashSum)
	if err != nil {
		return nil, fmt.Errorf("multicid: decode multihash: %w", err)
	}
	return dmh.Digest, nil
}

// Equal reports structural equality between two CIDs.
func (c CID) Equal(o CID) bool {
	return c.Version == o.Version &&
		c.TargetCodec == o.TargetCodec &&
		bytes.Equal(c.MultihashSum, o.MultihashSum)
}

// String renders the CID as base36-lower multibase text, matching the
// default VLAD textual encoding.
func (c CID) String() string {
	if c.IsNull() {
		return ""
	}
	s, err := multibase.Encode(multibase.Base36, c.CanonicalBytes())
	if err != nil {
		return ""
	}
	return s
}

// VLAD is `{nonce, cid}`: nonce is a signature by the vlad signing key over
// cid's canonical bytes.
type VLAD struct {
	Nonce multikey.Multisig
	CID   CID
}

// Build signs cid's canonical bytes with vladKey via prove, producing a VLAD.
func Build(vladKey multikey.Multikey, cid CID, prove func(multikey.Multikey, []byte) (multikey.Multisig, error)) (VLAD, error) {
	sig, err := prove(vladKey, cid.CanonicalBytes())
	if err != nil {
		return VLAD{}, fmt.Errorf("multicid: sign vlad cid: %w", err)
	}
	return VLAD{Nonce: sig, CID: cid}, nil
}

// Verify checks the VLAD's nonce against vladKey (a public Multikey).
func (v VLAD) Verify(vladKey multikey.Multikey) bool {
	return vladKey.Verify(v.CID.CanonicalBytes(), v.Nonce)
}

// CanonicalBytes returns <nonce><cid> canonical bytes.
func (v VLAD) CanonicalBytes() []byte {
	var buf bytes.Buffer
	buf.Write(v.Nonce.CanonicalBytes())
	buf.Write(v.CID.CanonicalBytes())
	return buf.Bytes()
}

// String renders the VLAD as base36-lower multibase text.
func (v VLAD) String() string {
	s, err := multibase.Encode(multibase.Base36, v.CanonicalBytes())
	if err != nil {
		return ""
	}
	return s
}
