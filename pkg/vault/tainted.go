// Package vault provides the tainted-string marker used to propagate
// "this value is sensitive" through string operations so that the
// expression evaluator (internal/expr) and the manifest serializer know
// when to redact or vault-encode a value rather than writing it in the
// clear.
package vault

import "fmt"

// Tainted wraps a string value that originated from (or was derived from) a
// secret source: a vaulted attribute, a credential input, or an output
// explicitly marked sensitive by a configurator. Tainting propagates
// through string concatenation done with Combine; internal/expr returns a
// tainted attribute value as stored and does not build new strings from it.
type Tainted struct {
	Value string
}

// String satisfies fmt.Stringer; it intentionally returns the real value so
// that code holding a Tainted deliberately (e.g. a configurator about to
// pass it to the system it configures) can still use it. Redaction happens
// at serialization boundaries, not at read time.
func (t Tainted) String() string { return t.Value }

// Redacted returns the placeholder used wherever a tainted value is about
// to be written to a log, a job summary, or a non-vaulted section of the
// persisted document.
func (t Tainted) Redacted() string { return "<<REDACTED>>" }

// Combine concatenates string-like operands, returning a Tainted result if
// any operand was tainted, so that, e.g., `"https://" + secretHost` stays
// tainted end to end.
func Combine(operands ...any) any {
	tainted := false
	out := ""
	for _, op := range operands {
		switch v := op.(type) {
		case Tainted:
			tainted = true
			out += v.Value
		case string:
			out += v
		default:
			out += fmt.Sprint(v)
		}
	}
	if tainted {
		return Tainted{Value: out}
	}
	return out
}

// IsTainted reports whether a value is (or wraps) a tainted string.
func IsTainted(v any) bool {
	_, ok := v.(Tainted)
	return ok
}
