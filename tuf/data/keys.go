package data

import (
	"crypto/sha256"
	"fmt"

	canonicaljson "github.com/docker/go/canonical/json"
)

// Key type tags recognized by the schema. The scheme further narrows the
// signing algorithm within a key type (e.g. rsassa-pss-sha256 vs.
// rsassa-pkcs1v15-sha256).
const (
	KeyTypeRSA     = "rsa"
	KeyTypeEd25519 = "ed25519"
	KeyTypeECDSA   = "ecdsa"
)

const (
	SchemeRSASSAPSSSHA256    = "rsassa-pss-sha256"
	SchemeRSASSAPKCS1v15SHA256 = "rsassa-pkcs1v15-sha256"
	SchemeEd25519            = "ed25519"
	SchemeECDSASHA2NISTP256  = "ecdsa-sha2-nistp256"
)

// KeyVal carries the public (and, only in memory for local signer use,
// private) key material. Public is always the canonical encoded form used
// for key-id derivation; Private is never serialized.
type KeyVal struct {
	Public  HexBytes `json:"public"`
	private HexBytes
}

// MarshalJSON implements json.Marshaler, emitting only the public half.
func (k KeyVal) MarshalJSON() ([]byte, error) {
	return []byte(`{"public":"` + k.Public.String() + `"}`), nil
}

// Key is a public key object as it appears in a root.json "keys" map or a
// delegations block's scoped "keys" map.
type Key struct {
	Type   string `json:"keytype"`
	Scheme string `json:"scheme"`
	Value  KeyVal `json:"keyval"`

	idOnce string
}

// keyForID is the subset of fields canonicalized for key-id derivation,
// matching the spec's {keytype, scheme, keyval:{public}} shape exactly.
type keyForID struct {
	Type   string `json:"keytype"`
	Scheme string `json:"scheme"`
	Value  struct {
		Public string `json:"public"`
	} `json:"keyval"`
}

// ID returns the key-id: lowercase hex SHA-256 over the canonical encoding
// of {keytype, scheme, keyval:{public}}. The result is cached on the Key
// value since keys are immutable once constructed.
func (k *Key) ID() string {
	if k.idOnce != "" {
		return k.idOnce
	}
	canon := keyForID{Type: k.Type, Scheme: k.Scheme}
	canon.Value.Public = k.Value.Public.String()
	b, err := canonicaljson.MarshalCanonical(canon)
	if err != nil {
		// Key construction paths all guarantee valid UTF-8 hex content;
		// a failure here means a caller built a Key by hand incorrectly.
		panic(fmt.Sprintf("data: key canonicalization failed: %v", err))
	}
	sum := sha256.Sum256(b)
	k.idOnce = fmt.Sprintf("%x", sum)
	return k.idOnce
}

// NewPublicKey constructs a Key from a raw public key encoding.
func NewPublicKey(keyType, scheme string, public []byte) *Key {
	return &Key{
		Type:   keyType,
		Scheme: scheme,
		Value:  KeyVal{Public: public},
	}
}

// PrivateKey extends Key with access to its private half for local
// signing. It is never marshaled directly; only Key's public projection is.
type PrivateKey struct {
	Key
	private HexBytes
}

// Private returns the raw private key bytes held in memory.
func (p *PrivateKey) Private() []byte {
	return p.private
}

// NewPrivateKey wraps a public Key with its private key material.
func NewPrivateKey(pub *Key, private []byte) *PrivateKey {
	return &PrivateKey{Key: *pub, private: private}
}

// PublicKeyFromPrivate projects a PrivateKey down to its public Key.
func PublicKeyFromPrivate(p *PrivateKey) *Key {
	k := p.Key
	return &k
}
