package plog

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/multiformats/go-varint"

	"github.com/karasz/plog/mcodec"
	"github.com/karasz/plog/multicid"
	"github.com/karasz/plog/multikey"
	"github.com/karasz/plog/script"
)

// ValueKind tags which typed shape a displayed key-path's bytes decoded as.
type ValueKind string

const (
	KindMultikey ValueKind = "multikey"
	KindVlad     ValueKind = "vlad"
	KindScript   ValueKind = "script"
	KindCID      ValueKind = "cid"
	KindData     ValueKind = "data"
	KindStr      ValueKind = "str"
)

// Record is one decoded (key, kind, value) tuple for display/inspection.
type Record struct {
	Key      Key
	Kind     ValueKind
	Multikey multikey.Multikey
	Vlad     multicid.VLAD
	Script   script.Script
	CID      multicid.CID
	Data     []byte
	Str      string
}

// DecodeValue attempts recognition in a fixed layered order before falling
// back to raw bytes: Multikey, then VLAD, then Script, then CID, then raw
// Data/Str.
func DecodeValue(key Key, v Value) Record {
	b := v.Bytes()

	if mk, ok := tryMultikey(b); ok {
		return Record{Key: key, Kind: KindMultikey, Multikey: mk}
	}
	if vlad, ok := tryVlad(b); ok {
		return Record{Key: key, Kind: KindVlad, Vlad: vlad}
	}
	if s, ok := tryScript(b); ok {
		return Record{Key: key, Kind: KindScript, Script: s}
	}
	if cid, ok := tryCID(b); ok {
		return Record{Key: key, Kind: KindCID, CID: cid}
	}
	if v.IsStr() {
		return Record{Key: key, Kind: KindStr, Str: v.str}
	}
	return Record{Key: key, Kind: KindData, Data: b}
}

func tryMultikey(b []byte) (multikey.Multikey, bool) {
	mk, err := multikey.ParseMultikey(b)
	if err != nil {
		return multikey.Multikey{}, false
	}
	switch mk.Codec {
	case mcodec.Ed25519Pub, mcodec.Ed25519Priv:
		return mk, true
	default:
		return multikey.Multikey{}, false
	}
}

// tryVlad splits b at the fixed Ed25519 signature width after the codec
// header — a multisig's canonical encoding carries no length field, so the
// nonce/cid boundary is recovered from the signature codec itself.
func tryVlad(b []byte) (multicid.VLAD, bool) {
	codec, n, err := varint.FromUvarint(b)
	if err != nil || mcodec.Codec(codec) != mcodec.Ed25519Msig || len(b) <= n+ed25519SigSize {
		return multicid.VLAD{}, false
	}
	sig := multikey.Multisig{Codec: mcodec.Ed25519Msig, Bytes: append([]byte(nil), b[n:n+ed25519SigSize]...)}
	cid, err := multicid.Parse(b[n+ed25519SigSize:])
	if err != nil || cid.IsNull() {
		return multicid.VLAD{}, false
	}
	return multicid.VLAD{Nonce: sig, CID: cid}, true
}

const ed25519SigSize = 64

func tryScript(b []byte) (script.Script, bool) {
	s, err := script.Parse(b)
	if err != nil || !strings.HasPrefix(s.KeyPathHint, "/") {
		return script.Script{}, false
	}
	return s, true
}

func tryCID(b []byte) (multicid.CID, bool) {
	cid, err := multicid.Parse(b)
	if err != nil || cid.IsNull() {
		return multicid.CID{}, false
	}
	return cid, true
}

// Display decodes every key in state into a sorted slice of Records, and
// additionally reports whether the log's own VLAD nonce verifies against
// the key published at vladKeyPath.
func Display(log *Log, state Pairs, vladKeyPath Key) ([]Record, bool) {
	keys := make([]Key, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	records := make([]Record, 0, len(keys))
	for _, k := range keys {
		records = append(records, DecodeValue(k, state[k]))
	}

	verified := false
	if raw, ok := state[vladKeyPath]; ok {
		if mk, err := multikey.ParseMultikey(raw.Bytes()); err == nil {
			verified = log.Vlad.Verify(mk)
		}
	}
	return records, verified
}

// Render writes a human-readable rendering of records to w, using
// terminal-aware plain-vs-decorated output.
func Render(w io.Writer, records []Record, verified bool) {
	color := isatty.IsTerminal(os.Stdout.Fd())
	bullet := "-"
	if color {
		bullet = "*"
	}
	for _, r := range records {
		switch r.Kind {
		case KindMultikey:
			fmt.Fprintf(w, "%s %s: multikey %s (%s)\n", bullet, r.Key, r.Multikey.Codec, humanize.Bytes(uint64(len(r.Multikey.Bytes))))
		case KindVlad:
			fmt.Fprintf(w, "%s %s: vlad %s\n", bullet, r.Key, r.Vlad.String())
		case KindScript:
			fmt.Fprintf(w, "%s %s: script hint=%s (%s)\n", bullet, r.Key, r.Script.KeyPathHint, humanize.Bytes(uint64(len(r.Script.Code))))
		case KindCID:
			fmt.Fprintf(w, "%s %s: cid %s\n", bullet, r.Key, r.CID.String())
		case KindStr:
			fmt.Fprintf(w, "%s %s: %q\n", bullet, r.Key, r.Str)
		default:
			fmt.Fprintf(w, "%s %s: %s\n", bullet, r.Key, humanize.Bytes(uint64(len(r.Data))))
		}
	}
	fmt.Fprintf(w, "vlad verified: %v\n", verified)
}
