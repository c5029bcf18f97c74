package signed

import (
	"fmt"

	"github.com/tufctl/tuf/tuf/data"
)

// Sign signs s.Signed with every key in keys that cs can produce a private
// signature for, and merges the resulting signatures into s.Signatures:
// a new signature for a key-id overwrites any existing one for that same
// key-id, but signatures for key-ids not passed in this call are left
// untouched (re-signing with a subset of keys never drops unrelated valid
// signatures).
func Sign(cs CryptoService, s *data.Signed, keys ...*data.Key) error {
	keyIDs := make([]string, 0, len(keys))
	for _, k := range keys {
		keyIDs = append(keyIDs, k.ID())
	}
	newSigs, err := cs.Sign(keyIDs, s.Signed)
	if err != nil {
		return fmt.Errorf("signed: sign: %w", err)
	}
	if len(newSigs) == 0 {
		return fmt.Errorf("signed: no signatures produced for requested keys")
	}
	byID := make(map[string]data.Signature, len(s.Signatures))
	for _, sig := range s.Signatures {
		byID[sig.KeyID] = sig
	}
	for _, sig := range newSigs {
		byID[sig.KeyID] = sig
	}
	merged := make([]data.Signature, 0, len(byID))
	for _, sig := range byID {
		merged = append(merged, sig)
	}
	s.Signatures = merged
	return nil
}

// ClearSignatures removes from s every signature made by one of the given
// key-ids, keeping the others in their existing order.
func ClearSignatures(s *data.Signed, keyIDs ...string) {
	drop := make(map[string]struct{}, len(keyIDs))
	for _, id := range keyIDs {
		drop[id] = struct{}{}
	}
	kept := make([]data.Signature, 0, len(s.Signatures))
	for _, sig := range s.Signatures {
		if _, ok := drop[sig.KeyID]; !ok {
			kept = append(kept, sig)
		}
	}
	s.Signatures = kept
}
