package multicid

import (
	"testing"

	"github.com/karasz/plog/mcodec"
	"github.com/karasz/plog/multikey"
)

func TestNewCIDCanonicalBytesRoundTrip(t *testing.T) {
	cid, err := NewCID(mcodec.Raw, mcodec.Blake3, []byte("script bytes"))
	if err != nil {
		t.Fatalf("new cid: %v", err)
	}
	b := cid.CanonicalBytes()
	got, err := Parse(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(cid) {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, cid)
	}
}

func TestNullCIDIsNull(t *testing.T) {
	if !Null.IsNull() {
		t.Fatal("expected Null to report IsNull")
	}
	cid, err := NewCID(mcodec.Raw, mcodec.Blake3, []byte("x"))
	if err != nil {
		t.Fatalf("new cid: %v", err)
	}
	if cid.IsNull() {
		t.Fatal("expected a real CID to report not-null")
	}
}

func TestDifferentDataYieldsDifferentCID(t *testing.T) {
	a, err := NewCID(mcodec.Raw, mcodec.Blake3, []byte("a"))
	if err != nil {
		t.Fatalf("new cid: %v", err)
	}
	b, err := NewCID(mcodec.Raw, mcodec.Blake3, []byte("b"))
	if err != nil {
		t.Fatalf("new cid: %v", err)
	}
	if a.Equal(b) {
		t.Fatal("expected different data to produce different CIDs")
	}
}

func TestVladBuildAndVerify(t *testing.T) {
	vladKey, err := multikey.Generate(mcodec.Ed25519Priv, 1, 1)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	firstLockCID, err := NewCID(mcodec.Raw, mcodec.Blake3, []byte("check_signature(\"/entrykey\", \"/entry/\")"))
	if err != nil {
		t.Fatalf("new cid: %v", err)
	}

	vlad, err := Build(vladKey, firstLockCID, func(mk multikey.Multikey, data []byte) (multikey.Multisig, error) {
		return mk.Sign(data)
	})
	if err != nil {
		t.Fatalf("build vlad: %v", err)
	}

	pub, err := vladKey.PublicKey()
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if !vlad.Verify(pub) {
		t.Fatal("expected vlad to verify against its own key")
	}

	other, err := multikey.Generate(mcodec.Ed25519Priv, 1, 1)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	otherPub, err := other.PublicKey()
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if vlad.Verify(otherPub) {
		t.Fatal("expected vlad to fail verification against an unrelated key")
	}
}

func TestCIDStringIsBase36(t *testing.T) {
	cid, err := NewCID(mcodec.Raw, mcodec.Blake3, []byte("x"))
	if err != nil {
		t.Fatalf("new cid: %v", err)
	}
	s := cid.String()
	if len(s) == 0 {
		t.Fatal("expected non-empty textual encoding")
	}
	if s[0] != 'k' {
		t.Fatalf("expected base36lower multibase prefix 'k', got %q", s[:1])
	}
}

func TestIdentityCIDInlinesData(t *testing.T) {
	data := []byte("inline payload")
	cid, err := NewCID(mcodec.Identity, mcodec.Identity, data)
	if err != nil {
		t.Fatalf("new cid: %v", err)
	}
	digest, err := cid.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if string(digest) != string(data) {
		t.Fatalf("expected identity digest to be the data itself, got %q", digest)
	}
}
