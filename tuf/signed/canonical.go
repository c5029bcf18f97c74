package signed

import (
	"bytes"
	"fmt"

	canonicaljson "github.com/docker/go/canonical/json"
)

// ErrCanonicalization wraps a failure to produce the deterministic byte
// encoding used as signing/verification input — non-UTF-8 text or a
// disallowed value (NaN, Inf) somewhere in the document.
type ErrCanonicalization struct {
	Err error
}

func (e ErrCanonicalization) Error() string {
	return fmt.Sprintf("signed: canonicalization failed: %v", e.Err)
}

func (e ErrCanonicalization) Unwrap() error { return e.Err }

// MarshalCanonical produces the exact byte sequence that is signed and
// verified: sorted object keys, no insignificant whitespace, minimal
// string escaping, shortest-form integers, no trailing newline.
func MarshalCanonical(v interface{}) ([]byte, error) {
	b, err := canonicaljson.MarshalCanonical(v)
	if err != nil {
		return nil, ErrCanonicalization{Err: err}
	}
	return b, nil
}

// VerifyCanonicalRoundTrip checks invariant 1 from the spec's testable
// properties: parsing signedBytes and re-canonicalizing it must reproduce
// signedBytes exactly.
func VerifyCanonicalRoundTrip(signedBytes []byte) error {
	var v interface{}
	if err := canonicaljson.Unmarshal(signedBytes, &v); err != nil {
		return ErrCanonicalization{Err: err}
	}
	reencoded, err := MarshalCanonical(v)
	if err != nil {
		return err
	}
	if !bytes.Equal(reencoded, signedBytes) {
		return ErrCanonicalization{Err: fmt.Errorf("round trip mismatch")}
	}
	return nil
}
