package plog

import "fmt"

// OpenErrorKind enumerates create/open engine failures.
type OpenErrorKind int

const (
	// InvalidKeyParams is returned when an OpParams slot expecting a KeyGen
	// discriminant receives something else.
	InvalidKeyParams OpenErrorKind = iota
	// InvalidOpParams is returned when an OpParams slot expecting a CidGen
	// (or other specific) discriminant receives something else.
	InvalidOpParams
)

func (k OpenErrorKind) String() string {
	switch k {
	case InvalidKeyParams:
		return "invalid key params"
	case InvalidOpParams:
		return "invalid op params"
	default:
		return "unknown open error"
	}
}

// OpenError wraps an open/create engine failure.
type OpenError struct {
	Kind OpenErrorKind
	Err  error
}

func (e *OpenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("open: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("open: %s", e.Kind)
}

func (e *OpenError) Unwrap() error { return e.Err }

// UpdateErrorKind enumerates update engine failures.
type UpdateErrorKind int

const (
	// NoLastEntry is returned when updating an empty log.
	NoLastEntry UpdateErrorKind = iota
	// InvalidCidParams is returned for a malformed CidGen.
	InvalidCidParams
	// NoOpKeyPath is returned when no parseable key is published at the
	// update's signing key path.
	NoOpKeyPath
	// NoUpdateOpValue is returned when the crypto manager cannot produce the
	// new entry's signature.
	NoUpdateOpValue
	// UpdateInvalidOpParams mirrors OpenError's InvalidOpParams for the update path.
	UpdateInvalidOpParams
)

func (k UpdateErrorKind) String() string {
	switch k {
	case NoLastEntry:
		return "no last entry"
	case InvalidCidParams:
		return "invalid cid params"
	case NoOpKeyPath:
		return "no op key path"
	case NoUpdateOpValue:
		return "no update op value"
	case UpdateInvalidOpParams:
		return "invalid op params"
	default:
		return "unknown update error"
	}
}

// UpdateError wraps an update engine failure.
type UpdateError struct {
	Kind UpdateErrorKind
	Err  error
}

func (e *UpdateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("update: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("update: %s", e.Kind)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// PlogErrorKind enumerates core data-model failures.
type PlogErrorKind int

const (
	InvalidKeyPath PlogErrorKind = iota
	InvalidFileParams
	InvalidVMValue
	NoCommand
	NoFirstEntry
	NoVladKey
	NoKeyPath
	NoCodec
	NoStringValue
)

func (k PlogErrorKind) String() string {
	names := [...]string{
		"invalid key path", "invalid file params", "invalid VM value",
		"no command", "no first entry", "no vlad key", "no key path",
		"no codec", "no string value",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown plog error"
}

// PlogError wraps a core data-model failure.
type PlogError struct {
	Kind PlogErrorKind
	Err  error
}

func (e *PlogError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plog: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("plog: %s", e.Kind)
}

func (e *PlogError) Unwrap() error { return e.Err }

// VerificationError is returned by the verification iterator when an entry
// fails to replay, fails its lock check, or fails its proof check.
type VerificationError struct {
	CID string
	Err error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed at %s: %v", e.CID, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Error is the single top-level error the public API returns. Kind values
// are non-exhaustive by design (new Kinds are non-breaking).
type Error struct {
	Kind string // "Open" | "Update" | "Plog" | "Multikey" | "Multihash" | "Multicid" | "ProvenanceLog" | "Generic"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(kind string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}
