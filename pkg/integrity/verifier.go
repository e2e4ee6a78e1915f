// Package integrity verifies asset checksums and signatures. Digests are
// always recomputed from content when content is available; a
// caller-supplied checksum is only trusted as the anchor for future reads
// when the content itself is out of reach.
package integrity

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/sha3"

	"github.com/modelpark/asset-registry/pkg/registry"
)

func newHasher(algorithm registry.HashAlgorithm) (hash.Hash, error) {
	switch algorithm {
	case registry.SHA256:
		return sha256.New(), nil
	case registry.SHA512:
		return sha512.New(), nil
	case registry.SHA3256:
		return sha3.New256(), nil
	default:
		return nil, registry.NewValidationError(fmt.Sprintf("unsupported hash algorithm %q", algorithm))
	}
}

// ComputeChecksum streams content through the given algorithm and returns
// the resulting checksum.
func ComputeChecksum(algorithm registry.HashAlgorithm, content io.Reader) (registry.Checksum, error) {
	h, err := newHasher(algorithm)
	if err != nil {
		return registry.Checksum{}, err
	}
	if _, err := io.Copy(h, content); err != nil {
		return registry.Checksum{}, fmt.Errorf("hash content: %w", err)
	}
	return registry.Checksum{
		Algorithm: algorithm,
		Value:     hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// VerifyChecksum recomputes the digest of content and compares it
// byte-for-byte against expected. A mismatch is an IntegrityFailure.
func VerifyChecksum(expected registry.Checksum, content io.Reader) error {
	if err := expected.Validate(); err != nil {
		return err
	}
	actual, err := ComputeChecksum(expected.Algorithm, content)
	if err != nil {
		return err
	}
	if !expected.Matches(actual) {
		return registry.NewIntegrityError(fmt.Sprintf(
			"checksum mismatch: expected %s, got %s", expected, actual))
	}
	return nil
}
