// Package mcodec holds the self-describing codec-tag constants shared by
// multikey, multicid, and the core plog package. The numeric values follow
// the multicodec table so digests and keys built here stay wire-compatible
// with other multiformats-speaking implementations.
package mcodec

// Codec is a self-describing algorithm tag.
type Codec uint64

const (
	// Identity is the no-op hash/content codec: the "digest" is the data itself.
	Identity Codec = 0x00
	// Sha2_256 tags a SHA2-256 digest.
	Sha2_256 Codec = 0x12
	// Blake3 tags a BLAKE3-256 digest.
	Blake3 Codec = 0x1e
	// Cidv1 tags a CIDv1 structure.
	Cidv1 Codec = 0x01
	// Raw tags raw, uninterpreted bytes as a CID target.
	Raw Codec = 0x55
	// Ed25519Pub tags an Ed25519 public key.
	Ed25519Pub Codec = 0xed
	// Ed25519Priv tags an Ed25519 secret key.
	Ed25519Priv Codec = 0x1300
	// Ed25519Msig tags an Ed25519 signature.
	Ed25519Msig Codec = 0xed01
)

func (c Codec) String() string {
	switch c {
	case Identity:
		return "identity"
	case Sha2_256:
		return "sha2-256"
	case Blake3:
		return "blake3"
	case Cidv1:
		return "cidv1"
	case Raw:
		return "raw"
	case Ed25519Pub:
		return "ed25519-pub"
	case Ed25519Priv:
		return "ed25519-priv"
	case Ed25519Msig:
		return "ed25519-msig"
	default:
		return "unknown"
	}
}
