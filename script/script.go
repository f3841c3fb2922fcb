// Package script implements the fixed, deterministic lock/unlock script
// evaluator the provenance-log core embeds: a minimal stack VM over a
// handful of builtin predicates — check_signature, check_preimage, and
// push. Lock scripts are predicates a successor entry must satisfy; unlock
// scripts prepare the stack proving the current entry satisfied its
// predecessor's lock.
package script

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Script is a `{key_path_hint, code}` pair.
type Script struct {
	KeyPathHint string
	Code        string
}

// CanonicalBytes is the canonical byte encoding of a script, used both as a
// content-addressed block and as the VLAD CID's target data.
func (s Script) CanonicalBytes() []byte {
	return []byte(s.KeyPathHint + "\x00" + s.Code)
}

// Parse rebuilds a Script from its canonical bytes.
func Parse(b []byte) (Script, error) {
	i := strings.IndexByte(string(b), 0)
	if i < 0 {
		return Script{}, fmt.Errorf("script: parse: missing hint separator")
	}
	return Script{KeyPathHint: string(b[:i]), Code: string(b[i+1:])}, nil
}

// Env resolves key-path lookups against the per-entry verification
// environment: the persistent key-value state map plus
// the synthetic "/entry/..." namespace exposed for the entry under test.
type Env interface {
	Get(path string) ([]byte, bool)
	// VerifySignature checks sig (raw bytes) over msg under the Multikey
	// published at pubkeyPath. Kept on Env rather than decoded generically
	// in the VM so the VM never needs to import multikey/multicid.
	VerifySignature(pubkeyPath string, msg, sig []byte) (bool, error)
}

// VM executes one script against an Env, accumulating a data stack and the
// list of key-paths any push() call named (used by the verification
// iterator's lock-selection rule).
type VM struct {
	env    Env
	stack  [][]byte
	pushed []string
	nInstr int
}

// NewVM creates a VM bound to env.
func NewVM(env Env) *VM {
	return &VM{env: env}
}

// PushedPaths returns the key-paths named by push() calls so far, in order.
func (vm *VM) PushedPaths() []string {
	return append([]string(nil), vm.pushed...)
}

// InstructionCount returns the number of function calls executed so far —
// this is the count surfaced by the verification iterator and compared by
// the fork-choice comparator.
func (vm *VM) InstructionCount() int {
	return vm.nInstr
}

// RunUnlock executes an unlock script: a `;`-separated sequence of
// statements, each of which must be a push(...) call that prepares the
// stack for the lock check that follows.
func (vm *VM) RunUnlock(s Script) error {
	stmts := splitStatements(s.Code)
	for _, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		name, args, err := parseCall(stmt)
		if err != nil {
			return fmt.Errorf("script: unlock: %w", err)
		}
		if err := vm.execPush(name, args); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) execPush(name string, args []string) error {
	switch name {
	case "push":
		if len(args) != 1 {
			return fmt.Errorf("script: push takes exactly one argument")
		}
		path := args[0]
		val, _ := vm.env.Get(path)
		vm.stack = append(vm.stack, val)
		vm.pushed = append(vm.pushed, path)
		vm.nInstr++
		return nil
	default:
		return fmt.Errorf("script: unsupported unlock instruction %q", name)
	}
}

// RunLock evaluates a lock script: a boolean expression over function calls
// joined by "||" and "&&", evaluated left-to-right with "&&" binding tighter
// than "||". The entry passes only if the expression evaluates truthy.
func (vm *VM) RunLock(s Script) (bool, error) {
	orTerms := splitTopLevel(s.Code, "||")
	for _, orTerm := range orTerms {
		andTerms := splitTopLevel(orTerm, "&&")
		allTrue := true
		for _, andTerm := range andTerms {
			ok, err := vm.evalPredicate(strings.TrimSpace(andTerm))
			if err != nil {
				return false, err
			}
			if !ok {
				allTrue = false
				break
			}
		}
		if allTrue {
			return true, nil
		}
	}
	return false, nil
}

func (vm *VM) evalPredicate(expr string) (bool, error) {
	name, args, err := parseCall(expr)
	if err != nil {
		return false, fmt.Errorf("script: lock: %w", err)
	}
	vm.nInstr++
	switch name {
	case "check_signature":
		if len(args) != 2 {
			return false, fmt.Errorf("script: check_signature takes two arguments")
		}
		pubkeyPath, prefix := args[0], args[1]
		msg, ok := vm.env.Get(prefix)
		if !ok {
			return false, nil
		}
		sig, ok := vm.env.Get(prefix + "proof")
		if !ok {
			return false, nil
		}
		return vm.env.VerifySignature(pubkeyPath, msg, sig)
	case "check_preimage":
		if len(args) != 1 {
			return false, fmt.Errorf("script: check_preimage takes one argument")
		}
		hashPath := args[0]
		want, ok := vm.env.Get(hashPath)
		if !ok || len(vm.stack) == 0 {
			return false, nil
		}
		preimage := vm.stack[len(vm.stack)-1]
		sum := sha256.Sum256(preimage)
		return bytesEqual(sum[:], want), nil
	default:
		return false, fmt.Errorf("script: unsupported lock predicate %q", name)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// splitStatements splits on top-level ';' characters (ignoring ';' inside
// quoted strings).
func splitStatements(code string) []string {
	return splitOn(code, ';')
}

// splitTopLevel splits on a top-level operator string (ignoring occurrences
// inside quoted strings or nested parens).
func splitTopLevel(code string, op string) []string {
	var parts []string
	depth := 0
	inQuote := false
	start := 0
	i := 0
	for i < len(code) {
		c := code[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
			// skip
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && strings.HasPrefix(code[i:], op):
			parts = append(parts, code[start:i])
			i += len(op)
			start = i
			continue
		}
		i++
	}
	parts = append(parts, code[start:])
	return parts
}

func splitOn(code string, sep byte) []string {
	var parts []string
	inQuote := false
	start := 0
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c == '"' {
			inQuote = !inQuote
		} else if c == sep && !inQuote {
			parts = append(parts, code[start:i])
			start = i + 1
		}
	}
	parts = append(parts, code[start:])
	return parts
}

// parseCall parses `name("arg1", "arg2")` into its name and unquoted args.
func parseCall(expr string) (string, []string, error) {
	expr = strings.TrimSpace(expr)
	open := strings.IndexByte(expr, '(')
	if open < 0 || !strings.HasSuffix(expr, ")") {
		return "", nil, fmt.Errorf("malformed call %q", expr)
	}
	name := strings.TrimSpace(expr[:open])
	inner := expr[open+1 : len(expr)-1]
	var args []string
	for _, raw := range splitOn(inner, ',') {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		unquoted, err := unquote(raw)
		if err != nil {
			return "", nil, err
		}
		args = append(args, unquoted)
	}
	return name, args, nil
}

func unquote(s string) (string, error) {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1], nil
	}
	return "", fmt.Errorf("expected quoted string argument, got %q", s)
}
