package signed

import (
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/tufctl/tuf/tuf/data"
)

// pemBlockType is the PEM header used for every private key this toolkit
// writes to disk, regardless of underlying algorithm — the algorithm is
// carried in the block's own headers instead of in the type string.
const pemBlockType = "TUF PRIVATE KEY"

// EncodePrivateKey renders priv as a single PEM block carrying its
// keytype, scheme and owning role as headers, so DecodePrivateKey can
// reconstruct it without consulting any other source.
func EncodePrivateKey(role string, priv *data.PrivateKey) []byte {
	block := &pem.Block{
		Type: pemBlockType,
		Headers: map[string]string{
			"role":    role,
			"keytype": priv.Type,
			"scheme":  priv.Scheme,
		},
		Bytes: priv.Private(),
	}
	return pem.EncodeToMemory(block)
}

// DecodePrivateKey parses a PEM block written by EncodePrivateKey back
// into a PrivateKey and the role it was stored under.
func DecodePrivateKey(pemBytes []byte) (priv *data.PrivateKey, role string, err error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != pemBlockType {
		return nil, "", fmt.Errorf("signed: not a %s PEM block", pemBlockType)
	}
	keyType := block.Headers["keytype"]
	scheme := block.Headers["scheme"]
	role = block.Headers["role"]

	stub, err := publicFromPrivateBytes(keyType, scheme, block.Bytes)
	if err != nil {
		return nil, "", err
	}
	return data.NewPrivateKey(stub, block.Bytes), role, nil
}

// publicFromPrivateBytes re-derives the public projection of a raw
// private key encoding so the reconstructed Key's ID() matches the one it
// had before being written to disk.
func publicFromPrivateBytes(keyType, scheme string, private []byte) (*data.Key, error) {
	switch keyType {
	case data.KeyTypeEd25519:
		if len(private) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("signed: malformed ed25519 private key")
		}
		pub := ed25519.PrivateKey(private).Public().(ed25519.PublicKey)
		return data.NewPublicKey(data.KeyTypeEd25519, scheme, []byte(pub)), nil
	case data.KeyTypeECDSA:
		ecKey, err := x509.ParseECPrivateKey(private)
		if err != nil {
			return nil, err
		}
		pub := elliptic.Marshal(elliptic.P256(), ecKey.PublicKey.X, ecKey.PublicKey.Y)
		return data.NewPublicKey(data.KeyTypeECDSA, scheme, pub), nil
	case data.KeyTypeRSA:
		rsaKey, err := x509.ParsePKCS1PrivateKey(private)
		if err != nil {
			return nil, err
		}
		pub, err := x509.MarshalPKIXPublicKey(&rsaKey.PublicKey)
		if err != nil {
			return nil, err
		}
		return data.NewPublicKey(data.KeyTypeRSA, scheme, pub), nil
	default:
		return nil, ErrUnsupportedKeyType{KeyType: keyType, Scheme: scheme}
	}
}
