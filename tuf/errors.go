package tuf

import "fmt"

// Error taxonomy per spec §7. Each is a distinct struct type (not just a
// sentinel) so callers can type-switch for the offending role/path/values,
// following the teacher's ErrNotLoaded/ErrInvalidRole convention.

// ErrTransport wraps a failure from the Transport abstraction.
type ErrTransport struct {
	URL string
	Err error
}

func (e ErrTransport) Error() string { return fmt.Sprintf("tuf: fetching %s: %v", e.URL, e.Err) }
func (e ErrTransport) Unwrap() error { return e.Err }

// ErrParse indicates a role document's bytes did not parse as valid JSON
// or did not match its expected role shape.
type ErrParse struct {
	Role string
	Err  error
}

func (e ErrParse) Error() string { return fmt.Sprintf("tuf: parsing %s: %v", e.Role, e.Err) }
func (e ErrParse) Unwrap() error { return e.Err }

// ErrVersionRollback indicates a freshly fetched role document has a
// version lower than one already observed/trusted.
type ErrVersionRollback struct {
	Role         string
	Observed, Got int64
}

func (e ErrVersionRollback) Error() string {
	return fmt.Sprintf("tuf: %s version rollback: observed %d, got %d", e.Role, e.Observed, e.Got)
}

// ErrVersionMismatch indicates a role document's self-reported version
// does not match the version its parent declared for it.
type ErrVersionMismatch struct {
	Role              string
	Declared, Observed int64
}

func (e ErrVersionMismatch) Error() string {
	return fmt.Sprintf("tuf: %s version mismatch: declared %d, got %d", e.Role, e.Declared, e.Observed)
}

// ErrLengthExceeded indicates a fetched body's size does not fit its
// limit: more bytes than the configured cap, or a length (longer or
// shorter) different from the length its parent declared.
type ErrLengthExceeded struct {
	URL      string
	MaxLength int64
}

func (e ErrLengthExceeded) Error() string {
	return fmt.Sprintf("tuf: %s exceeded length limit of %d bytes", e.URL, e.MaxLength)
}

// ErrHashMismatch indicates a fetched document or target's digest does
// not match its declared hash.
type ErrHashMismatch struct {
	Role, Algorithm string
	Expected, Got   string
}

func (e ErrHashMismatch) Error() string {
	return fmt.Sprintf("tuf: %s hash mismatch (%s): expected %s, got %s", e.Role, e.Algorithm, e.Expected, e.Got)
}

// ErrExpired indicates a role document's expiration has passed under
// ExpirationEnforcement=Safe.
type ErrExpired struct {
	Role    string
	Expires string
}

func (e ErrExpired) Error() string { return fmt.Sprintf("tuf: %s expired at %s", e.Role, e.Expires) }

// ErrTargetNotFound indicates no targets role in the delegation tree
// claims the requested target path.
type ErrTargetNotFound struct {
	Path string
}

func (e ErrTargetNotFound) Error() string { return fmt.Sprintf("tuf: target %q not found", e.Path) }

// ErrDuplicateRole indicates add_role was called with a name that already
// exists in the selected delegations block.
type ErrDuplicateRole struct {
	Role string
}

func (e ErrDuplicateRole) Error() string { return fmt.Sprintf("tuf: role %q already delegated", e.Role) }

// ErrUnknownRole indicates change_delegated_targets referenced a role
// outside the editor's working set.
type ErrUnknownRole struct {
	Role string
}

func (e ErrUnknownRole) Error() string { return fmt.Sprintf("tuf: unknown role %q", e.Role) }

// ErrNotDirectDelegatee indicates remove_role(name, recursive=false) was
// called for a role that is not an immediate child of the selected role.
type ErrNotDirectDelegatee struct {
	Role string
}

func (e ErrNotDirectDelegatee) Error() string {
	return fmt.Sprintf("tuf: %q is not a direct delegatee", e.Role)
}

// ErrThresholdNotMet indicates a key-removal operation would leave a role
// with fewer authorized keys than its threshold. Signing and verification
// report a threshold shortfall as signed.ErrRoleThreshold instead.
type ErrThresholdNotMet struct {
	Role      string
	Have, Want int
}

func (e ErrThresholdNotMet) Error() string {
	return fmt.Sprintf("tuf: role %q threshold not met: have %d, want %d", e.Role, e.Have, e.Want)
}

// ErrFilesystem wraps a failure writing the metadata/target tree.
type ErrFilesystem struct {
	Path string
	Err  error
}

func (e ErrFilesystem) Error() string { return fmt.Sprintf("tuf: %s: %v", e.Path, e.Err) }
func (e ErrFilesystem) Unwrap() error { return e.Err }

// ErrNotLoaded indicates an operation was attempted on a role that has
// not yet been loaded or initialized (mirrors endophage/gotuf's
// ErrNotLoaded).
type ErrNotLoaded struct {
	Role string
}

func (e ErrNotLoaded) Error() string { return fmt.Sprintf("tuf: %s role has not been loaded", e.Role) }
