package data

import "fmt"

// ErrDelegationStructureError reports a malformed delegation entry, most
// notably one declaring both path patterns and path-hash-prefixes, which
// TUF forbids but many implementations tolerate. This toolkit rejects it.
type ErrDelegationStructureError struct {
	Role   string
	Reason string
}

func (e ErrDelegationStructureError) Error() string {
	return fmt.Sprintf("data: delegation %q is malformed: %s", e.Role, e.Reason)
}
