package integrity

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/modelpark/asset-registry/pkg/registry"
)

// SignatureAlgorithmEd25519 is the only signature scheme currently accepted.
const SignatureAlgorithmEd25519 = "ed25519"

// KeyRegistry resolves signing key ids to public keys. Implementations may
// back onto a database table, a config file, or an external KMS.
type KeyRegistry interface {
	PublicKey(ctx context.Context, keyID string) (ed25519.PublicKey, error)
}

// StaticKeyRegistry is a KeyRegistry over a fixed in-memory key set.
type StaticKeyRegistry struct {
	keys map[string]ed25519.PublicKey
}

func NewStaticKeyRegistry(keys map[string]ed25519.PublicKey) *StaticKeyRegistry {
	cp := make(map[string]ed25519.PublicKey, len(keys))
	for id, k := range keys {
		cp[id] = k
	}
	return &StaticKeyRegistry{keys: cp}
}

func (r *StaticKeyRegistry) PublicKey(_ context.Context, keyID string) (ed25519.PublicKey, error) {
	key, ok := r.keys[keyID]
	if !ok {
		return nil, registry.NewNotFoundError(fmt.Sprintf("signing key %q not found", keyID))
	}
	return key, nil
}

// CanonicalPayload builds the byte string a signature covers. The fields are
// joined with '|' in a fixed order so signer and verifier agree without
// exchanging a schema.
func CanonicalPayload(checksum registry.Checksum, name, version, storageURI string) []byte {
	return []byte(strings.Join([]string{checksum.String(), name, version, storageURI}, "|"))
}

// Verifier checks signatures against keys resolved from a KeyRegistry.
type Verifier struct {
	keys KeyRegistry
}

func NewVerifier(keys KeyRegistry) *Verifier {
	return &Verifier{keys: keys}
}

// VerifySignature validates sig over payload. An unset signature passes:
// signing is optional and enforcement of a signing policy belongs to the
// caller.
func (v *Verifier) VerifySignature(ctx context.Context, sig registry.Signature, payload []byte) error {
	if sig.IsZero() {
		return nil
	}
	if sig.KeyID == "" {
		return registry.NewValidationError("signature present but key id is empty")
	}
	if sig.Algorithm != SignatureAlgorithmEd25519 {
		return registry.NewValidationError(fmt.Sprintf("unsupported signature algorithm %q", sig.Algorithm))
	}
	key, err := v.keys.PublicKey(ctx, sig.KeyID)
	if err != nil {
		return fmt.Errorf("resolve signing key %q: %w", sig.KeyID, err)
	}
	if len(key) != ed25519.PublicKeySize {
		return registry.NewIntegrityError(fmt.Sprintf("signing key %q has invalid length %d", sig.KeyID, len(key)))
	}
	if !ed25519.Verify(key, payload, sig.Value) {
		return registry.NewIntegrityError(fmt.Sprintf("signature verification failed for key %q", sig.KeyID))
	}
	return nil
}

// VerifyAsset checks the asset's signature over its canonical payload.
func (v *Verifier) VerifyAsset(ctx context.Context, a *registry.Asset) error {
	payload := CanonicalPayload(a.Checksum, a.Name, a.Version, a.Storage.URI)
	return v.VerifySignature(ctx, a.Signature, payload)
}
