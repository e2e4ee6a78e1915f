package integrity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelpark/asset-registry/pkg/registry"
)

func TestComputeChecksum(t *testing.T) {
	content := "model weights v1"
	want := sha256.Sum256([]byte(content))

	cs, err := ComputeChecksum(registry.SHA256, strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, registry.SHA256, cs.Algorithm)
	assert.Equal(t, hex.EncodeToString(want[:]), cs.Value)
}

func TestComputeChecksum_UnsupportedAlgorithm(t *testing.T) {
	_, err := ComputeChecksum("md5", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, registry.CodeValidation, registry.CodeOf(err))
}

func TestVerifyChecksum(t *testing.T) {
	content := "pipeline definition"
	cs, err := ComputeChecksum(registry.SHA3256, strings.NewReader(content))
	require.NoError(t, err)

	require.NoError(t, VerifyChecksum(cs, strings.NewReader(content)))

	err = VerifyChecksum(cs, strings.NewReader(content+" tampered"))
	require.Error(t, err)
	assert.Equal(t, registry.CodeIntegrityFailure, registry.CodeOf(err))
}

func TestVerifyChecksum_AllAlgorithms(t *testing.T) {
	for _, alg := range []registry.HashAlgorithm{registry.SHA256, registry.SHA512, registry.SHA3256} {
		t.Run(string(alg), func(t *testing.T) {
			cs, err := ComputeChecksum(alg, strings.NewReader("payload"))
			require.NoError(t, err)
			assert.Len(t, cs.Value, alg.HexLength())
			assert.NoError(t, VerifyChecksum(cs, strings.NewReader("payload")))
		})
	}
}

func testKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func TestVerifySignature(t *testing.T) {
	pub, priv := testKeyPair(t)
	v := NewVerifier(NewStaticKeyRegistry(map[string]ed25519.PublicKey{"release-key": pub}))

	cs := registry.Checksum{Algorithm: registry.SHA256, Value: strings.Repeat("a", 64)}
	payload := CanonicalPayload(cs, "fraud-detector", "2.1.0", "s3://models/fraud-detector/2.1.0")
	sig := registry.Signature{
		Algorithm: SignatureAlgorithmEd25519,
		Value:     ed25519.Sign(priv, payload),
		KeyID:     "release-key",
	}

	require.NoError(t, v.VerifySignature(context.Background(), sig, payload))

	// Any payload drift must fail verification.
	other := CanonicalPayload(cs, "fraud-detector", "2.1.1", "s3://models/fraud-detector/2.1.0")
	err := v.VerifySignature(context.Background(), sig, other)
	require.Error(t, err)
	assert.Equal(t, registry.CodeIntegrityFailure, registry.CodeOf(err))
}

func TestVerifySignature_UnknownKey(t *testing.T) {
	_, priv := testKeyPair(t)
	v := NewVerifier(NewStaticKeyRegistry(nil))

	payload := []byte("payload")
	sig := registry.Signature{
		Algorithm: SignatureAlgorithmEd25519,
		Value:     ed25519.Sign(priv, payload),
		KeyID:     "missing",
	}
	err := v.VerifySignature(context.Background(), sig, payload)
	require.Error(t, err)
	assert.Equal(t, registry.CodeNotFound, registry.CodeOf(err))
}

func TestVerifySignature_MissingKeyID(t *testing.T) {
	v := NewVerifier(NewStaticKeyRegistry(nil))
	sig := registry.Signature{Algorithm: SignatureAlgorithmEd25519, Value: []byte{1, 2, 3}}
	err := v.VerifySignature(context.Background(), sig, []byte("payload"))
	require.Error(t, err)
	assert.Equal(t, registry.CodeValidation, registry.CodeOf(err))
}

func TestVerifySignature_UnsetPasses(t *testing.T) {
	v := NewVerifier(NewStaticKeyRegistry(nil))
	assert.NoError(t, v.VerifySignature(context.Background(), registry.Signature{}, []byte("payload")))
}
