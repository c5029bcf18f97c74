package signed

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/tufctl/tuf/tuf/data"
)

func sha256Sum(msg []byte) [32]byte {
	return sha256.Sum256(msg)
}

func rsaSignPSS(priv *rsa.PrivateKey, digest []byte) ([]byte, error) {
	return rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
}

func rsaSignPKCS1v15(priv *rsa.PrivateKey, digest []byte) ([]byte, error) {
	return rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest)
}

// ErrSignatureInvalid reports a signature that failed cryptographic
// verification against the claimed key.
type ErrSignatureInvalid struct {
	KeyID string
}

func (e ErrSignatureInvalid) Error() string {
	return fmt.Sprintf("signed: signature invalid for key %s", e.KeyID)
}

// verifyOne checks a single signature against a single public key.
func verifyOne(key *data.Key, sig, msg []byte) error {
	digest := sha256Sum(msg)
	switch key.Type {
	case data.KeyTypeEd25519:
		if !ed25519.Verify(ed25519.PublicKey(key.Value.Public), msg, sig) {
			return ErrSignatureInvalid{KeyID: key.ID()}
		}
		return nil
	case data.KeyTypeECDSA:
		x, y := elliptic.Unmarshal(elliptic.P256(), key.Value.Public)
		if x == nil {
			return ErrUnsupportedKeyType{KeyType: key.Type, Scheme: key.Scheme}
		}
		pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		if !ecdsa.VerifyASN1(pub, digest[:], sig) {
			return ErrSignatureInvalid{KeyID: key.ID()}
		}
		return nil
	case data.KeyTypeRSA:
		pubAny, err := x509.ParsePKIXPublicKey(key.Value.Public)
		if err != nil {
			return fmt.Errorf("signed: parsing rsa public key: %w", err)
		}
		pub, ok := pubAny.(*rsa.PublicKey)
		if !ok {
			return ErrUnsupportedKeyType{KeyType: key.Type, Scheme: key.Scheme}
		}
		switch key.Scheme {
		case data.SchemeRSASSAPKCS1v15SHA256:
			if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
				return ErrSignatureInvalid{KeyID: key.ID()}
			}
			return nil
		default:
			if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto}); err != nil {
				return ErrSignatureInvalid{KeyID: key.ID()}
			}
			return nil
		}
	default:
		return ErrUnsupportedKeyType{KeyType: key.Type, Scheme: key.Scheme}
	}
}

// ErrRoleThreshold reports that fewer valid signatures were found than the
// role's signing threshold requires.
type ErrRoleThreshold struct {
	Role               string
	Got, Want          int
}

func (e ErrRoleThreshold) Error() string {
	return fmt.Sprintf("signed: role %s has %d valid signatures, threshold is %d", e.Role, e.Got, e.Want)
}

// VerifyThreshold checks that signedBytes carries at least threshold
// distinct valid signatures from keys in authorizedKeyIDs, resolved
// against keys. It returns the set of key-ids whose signatures verified,
// so callers (e.g. TargetsEditor.Sign, which keeps only those signatures)
// can confirm which survived.
func VerifyThreshold(role string, signedBytes []byte, sigs []data.Signature, keys map[string]*data.Key, authorizedKeyIDs []string, threshold int) ([]string, error) {
	authorized := make(map[string]struct{}, len(authorizedKeyIDs))
	for _, id := range authorizedKeyIDs {
		authorized[id] = struct{}{}
	}
	seen := make(map[string]struct{})
	var valid []string
	for _, sig := range sigs {
		if _, ok := authorized[sig.KeyID]; !ok {
			continue
		}
		if _, dup := seen[sig.KeyID]; dup {
			continue
		}
		key, ok := keys[sig.KeyID]
		if !ok {
			continue
		}
		if err := verifyOne(key, sig.Signature, signedBytes); err != nil {
			log.Debugf("signed: signature by %s for role %s failed verification: %v", sig.KeyID, role, err)
			continue
		}
		seen[sig.KeyID] = struct{}{}
		valid = append(valid, sig.KeyID)
	}
	if len(valid) < threshold {
		return valid, ErrRoleThreshold{Role: role, Got: len(valid), Want: threshold}
	}
	return valid, nil
}
