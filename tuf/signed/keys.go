package signed

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tufctl/tuf/tuf/data"
)

// ErrUnsupportedKeyType indicates a key type/scheme this toolkit has no
// verifier or signer for.
type ErrUnsupportedKeyType struct {
	KeyType, Scheme string
}

func (e ErrUnsupportedKeyType) Error() string {
	return fmt.Sprintf("signed: unsupported key type %q scheme %q", e.KeyType, e.Scheme)
}

// ErrInvalidKey indicates an operation referenced a key-id this
// CryptoService has no record of.
type ErrInvalidKey struct {
	KeyID string
}

func (e ErrInvalidKey) Error() string {
	return fmt.Sprintf("signed: no such key %q", e.KeyID)
}

// CryptoService is the local key-store facade used by the editor to sign
// drafts. It plays the role of both Signer and KeySource from the spec's
// Key/Sign Abstraction: keys generated or imported here can always produce
// a Signer synchronously, since the store is in-process.
type CryptoService interface {
	// Create generates a new key of the given algorithm ("rsa",
	// "ed25519", "ecdsa") for role and returns its public projection.
	Create(role, algorithm string) (*data.Key, error)
	// GetKey returns the public Key for keyID, or nil if unknown.
	GetKey(keyID string) *data.Key
	// GetPrivateKey returns the PrivateKey and the role it was created
	// for, or ErrInvalidKey if keyID is unknown.
	GetPrivateKey(keyID string) (*data.PrivateKey, string, error)
	// Sign produces a Signature for msg for every keyID in keyIDs that
	// this service holds the private key for. keyIDs it cannot sign for
	// are silently omitted — callers are expected to check the returned
	// count against a threshold.
	Sign(keyIDs []string, msg []byte) ([]data.Signature, error)
	// ListKeys returns the key-ids this service has generated for role.
	ListKeys(role string) []string
	// ListAllKeys returns every known key-id mapped to the role it was
	// created for.
	ListAllKeys() map[string]string
	// RemoveKey deletes a key from the store. Idempotent.
	RemoveKey(keyID string) error
	// Import registers an externally generated private key for role
	// (the CLI's key-ceremony restore/import path), keyed by its own ID.
	Import(role string, priv *data.PrivateKey) error
}

// MemoryCryptoService is an in-memory CryptoService suitable for tests,
// bootstrap ceremonies, and any caller that does not need a remote KMS.
// Production backends (cloud KMS, PKCS#11 tokens) implement the same
// CryptoService contract as external collaborators (see spec §1 scope).
type MemoryCryptoService struct {
	mu   sync.Mutex
	keys map[string]*data.PrivateKey
	role map[string]string
}

// NewMemoryCryptoService returns an empty in-memory key store.
func NewMemoryCryptoService() *MemoryCryptoService {
	return &MemoryCryptoService{
		keys: make(map[string]*data.PrivateKey),
		role: make(map[string]string),
	}
}

// NewEd25519 is sugar over NewMemoryCryptoService for callers (chiefly
// tests) that only ever create Ed25519 keys.
func NewEd25519() *MemoryCryptoService {
	return NewMemoryCryptoService()
}

func (m *MemoryCryptoService) Create(role, algorithm string) (*data.Key, error) {
	priv, err := GenerateKey(algorithm)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := priv.ID()
	m.keys[id] = priv
	m.role[id] = role
	log.Debugf("signed: generated %s key %s for role %s", algorithm, id, role)
	return data.PublicKeyFromPrivate(priv), nil
}

func (m *MemoryCryptoService) GetKey(keyID string) *data.Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	priv, ok := m.keys[keyID]
	if !ok {
		return nil
	}
	return data.PublicKeyFromPrivate(priv)
}

func (m *MemoryCryptoService) GetPrivateKey(keyID string) (*data.PrivateKey, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	priv, ok := m.keys[keyID]
	if !ok {
		return nil, "", ErrInvalidKey{KeyID: keyID}
	}
	return priv, m.role[keyID], nil
}

func (m *MemoryCryptoService) Sign(keyIDs []string, msg []byte) ([]data.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sigs := make([]data.Signature, 0, len(keyIDs))
	for _, id := range keyIDs {
		priv, ok := m.keys[id]
		if !ok {
			continue
		}
		sigBytes, err := signWithPrivateKey(priv, msg)
		if err != nil {
			return sigs, errors.Wrapf(err, "signing with key %s", id)
		}
		sigs = append(sigs, data.Signature{KeyID: id, Signature: sigBytes})
	}
	return sigs, nil
}

func (m *MemoryCryptoService) ListKeys(role string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, r := range m.role {
		if r == role {
			out = append(out, id)
		}
	}
	return out
}

func (m *MemoryCryptoService) ListAllKeys() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.role))
	for id, r := range m.role {
		out[id] = r
	}
	return out
}

func (m *MemoryCryptoService) Import(role string, priv *data.PrivateKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := priv.ID()
	m.keys[id] = priv
	m.role[id] = role
	return nil
}

func (m *MemoryCryptoService) RemoveKey(keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, keyID)
	delete(m.role, keyID)
	return nil
}

// GenerateKey creates a fresh PrivateKey for the named algorithm
// ("rsa", "ed25519", "ecdsa"), using this toolkit's default scheme for
// that family (RSA defaults to PSS, per the spec's preference order).
func GenerateKey(algorithm string) (*data.PrivateKey, error) {
	switch algorithm {
	case data.KeyTypeEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		k := data.NewPublicKey(data.KeyTypeEd25519, data.SchemeEd25519, []byte(pub))
		return data.NewPrivateKey(k, []byte(priv)), nil
	case data.KeyTypeECDSA:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		pubBytes := elliptic.Marshal(elliptic.P256(), priv.PublicKey.X, priv.PublicKey.Y)
		privBytes, err := x509.MarshalECPrivateKey(priv)
		if err != nil {
			return nil, err
		}
		k := data.NewPublicKey(data.KeyTypeECDSA, data.SchemeECDSASHA2NISTP256, pubBytes)
		return data.NewPrivateKey(k, privBytes), nil
	case data.KeyTypeRSA:
		priv, err := rsa.GenerateKey(rand.Reader, 3072)
		if err != nil {
			return nil, err
		}
		pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
		if err != nil {
			return nil, err
		}
		privBytes := x509.MarshalPKCS1PrivateKey(priv)
		k := data.NewPublicKey(data.KeyTypeRSA, data.SchemeRSASSAPSSSHA256, pubBytes)
		return data.NewPrivateKey(k, privBytes), nil
	default:
		return nil, ErrUnsupportedKeyType{KeyType: algorithm}
	}
}

func signWithPrivateKey(priv *data.PrivateKey, msg []byte) (data.HexBytes, error) {
	switch priv.Type {
	case data.KeyTypeEd25519:
		return ed25519.Sign(ed25519.PrivateKey(priv.Private()), msg), nil
	case data.KeyTypeECDSA:
		ecKey, err := x509.ParseECPrivateKey(priv.Private())
		if err != nil {
			return nil, err
		}
		digest := sha256Sum(msg)
		return ecdsa.SignASN1(rand.Reader, ecKey, digest[:])
	case data.KeyTypeRSA:
		rsaKey, err := x509.ParsePKCS1PrivateKey(priv.Private())
		if err != nil {
			return nil, err
		}
		digest := sha256Sum(msg)
		switch priv.Scheme {
		case data.SchemeRSASSAPKCS1v15SHA256:
			return rsaSignPKCS1v15(rsaKey, digest[:])
		default:
			return rsaSignPSS(rsaKey, digest[:])
		}
	default:
		return nil, ErrUnsupportedKeyType{KeyType: priv.Type, Scheme: priv.Scheme}
	}
}
