package signed

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tufctl/tuf/tuf/data"
)

func TestVerifyThresholdNoKeys(t *testing.T) {
	cs := NewEd25519()
	k, err := cs.Create("root", data.KeyTypeEd25519)
	assert.NoError(t, err)
	testData := &data.Signed{Signed: []byte(`{"v":1}`)}
	assert.NoError(t, Sign(cs, testData, k))

	_, err = VerifyThreshold("root", testData.Signed, testData.Signatures, map[string]*data.Key{}, []string{}, 1)
	assert.IsType(t, ErrRoleThreshold{}, err)
}

func TestVerifyThresholdNotEnoughSigs(t *testing.T) {
	cs := NewEd25519()
	k, err := cs.Create("root", data.KeyTypeEd25519)
	assert.NoError(t, err)
	testData := &data.Signed{Signed: []byte(`{"v":1}`)}
	assert.NoError(t, Sign(cs, testData, k))

	keys := map[string]*data.Key{k.ID(): k}
	_, err = VerifyThreshold("root", testData.Signed, testData.Signatures, keys, []string{k.ID()}, 2)
	assert.IsType(t, ErrRoleThreshold{}, err)
}

func TestVerifyThresholdMoreThanEnough(t *testing.T) {
	cs := NewEd25519()
	k1, err := cs.Create("root", data.KeyTypeEd25519)
	assert.NoError(t, err)
	k2, err := cs.Create("root", data.KeyTypeEd25519)
	assert.NoError(t, err)
	testData := &data.Signed{Signed: []byte(`{"v":1}`)}
	assert.NoError(t, Sign(cs, testData, k1, k2))

	keys := map[string]*data.Key{k1.ID(): k1, k2.ID(): k2}
	valid, err := VerifyThreshold("root", testData.Signed, testData.Signatures, keys, []string{k1.ID(), k2.ID()}, 1)
	assert.NoError(t, err)
	assert.Len(t, valid, 2)
}

func TestVerifyThresholdIgnoresUnauthorizedSignature(t *testing.T) {
	cs := NewEd25519()
	authorized, err := cs.Create("root", data.KeyTypeEd25519)
	assert.NoError(t, err)
	intruder, err := cs.Create("root", data.KeyTypeEd25519)
	assert.NoError(t, err)
	testData := &data.Signed{Signed: []byte(`{"v":1}`)}
	assert.NoError(t, Sign(cs, testData, authorized, intruder))

	keys := map[string]*data.Key{authorized.ID(): authorized, intruder.ID(): intruder}
	valid, err := VerifyThreshold("root", testData.Signed, testData.Signatures, keys, []string{authorized.ID()}, 1)
	assert.NoError(t, err)
	assert.Equal(t, []string{authorized.ID()}, valid)
}

func TestVerifyThresholdRejectsTamperedBody(t *testing.T) {
	cs := NewEd25519()
	k, err := cs.Create("root", data.KeyTypeEd25519)
	assert.NoError(t, err)
	testData := &data.Signed{Signed: []byte(`{"v":1}`)}
	assert.NoError(t, Sign(cs, testData, k))

	keys := map[string]*data.Key{k.ID(): k}
	tampered := []byte(`{"v":2}`)
	_, err = VerifyThreshold("root", tampered, testData.Signatures, keys, []string{k.ID()}, 1)
	assert.Error(t, err)
}

func TestRSAAndECDSARoundTrip(t *testing.T) {
	for _, alg := range []string{data.KeyTypeRSA, data.KeyTypeECDSA} {
		priv, err := GenerateKey(alg)
		assert.NoError(t, err)
		msg := []byte(`{"hello":"world"}`)
		sig, err := signWithPrivateKey(priv, msg)
		assert.NoError(t, err)
		pub := data.PublicKeyFromPrivate(priv)
		assert.NoError(t, verifyOne(pub, sig, msg))
		assert.Error(t, verifyOne(pub, sig, []byte(`{"hello":"mars"}`)))
	}
}
