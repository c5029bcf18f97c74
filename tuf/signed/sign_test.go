package signed

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tufctl/tuf/tuf/data"
)

// Test signing and ensure the expected signature is added
func TestBasicSign(t *testing.T) {
	cs := NewEd25519()
	key, err := cs.Create("root", data.KeyTypeEd25519)
	assert.NoError(t, err)
	testData := &data.Signed{Signed: []byte(`{"hello":"world"}`)}

	err = Sign(cs, testData, key)
	assert.NoError(t, err)
	assert.Len(t, testData.Signatures, 1)
	assert.Equal(t, key.ID(), testData.Signatures[0].KeyID)
}

// Signing with the same key multiple times should not produce multiple
// sigs with the same key ID.
func TestReSign(t *testing.T) {
	cs := NewEd25519()
	key, err := cs.Create("root", data.KeyTypeEd25519)
	assert.NoError(t, err)
	testData := &data.Signed{Signed: []byte(`{"hello":"world"}`)}

	assert.NoError(t, Sign(cs, testData, key))
	assert.NoError(t, Sign(cs, testData, key))

	assert.Len(t, testData.Signatures, 1)
	assert.Equal(t, key.ID(), testData.Signatures[0].KeyID)
}

// Re-signing with a different key should not remove the signature
// produced by a key that was not part of this signing call.
func TestMultiSign(t *testing.T) {
	cs := NewEd25519()
	testData := &data.Signed{Signed: []byte(`{"hello":"world"}`)}

	key1, err := cs.Create("root", data.KeyTypeEd25519)
	assert.NoError(t, err)
	assert.NoError(t, Sign(cs, testData, key1))

	key2, err := cs.Create("root", data.KeyTypeEd25519)
	assert.NoError(t, err)
	assert.NoError(t, Sign(cs, testData, key2))

	assert.Len(t, testData.Signatures, 2)
	ids := map[string]bool{key1.ID(): true, key2.ID(): true}
	for _, sig := range testData.Signatures {
		assert.True(t, ids[sig.KeyID])
	}
}

func TestSignFailsWithUnknownKey(t *testing.T) {
	cs := NewEd25519()
	unknown, err := GenerateKey(data.KeyTypeEd25519)
	assert.NoError(t, err)
	testData := &data.Signed{Signed: []byte(`{}`)}

	err = Sign(cs, testData, data.PublicKeyFromPrivate(unknown))
	assert.Error(t, err)
	assert.Len(t, testData.Signatures, 0)
}

func TestClearSignatures(t *testing.T) {
	cs := NewEd25519()
	key1, _ := cs.Create("root", data.KeyTypeEd25519)
	key2, _ := cs.Create("root", data.KeyTypeEd25519)
	testData := &data.Signed{Signed: []byte(`{}`)}
	assert.NoError(t, Sign(cs, testData, key1, key2))

	ClearSignatures(testData, key1.ID())
	assert.Len(t, testData.Signatures, 1)
	assert.Equal(t, key2.ID(), testData.Signatures[0].KeyID)
}
