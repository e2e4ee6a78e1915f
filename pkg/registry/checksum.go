package registry

import (
	"fmt"
	"strings"
)

// HashAlgorithm identifies a supported digest algorithm.
type HashAlgorithm string

const (
	SHA256  HashAlgorithm = "sha256"
	SHA512  HashAlgorithm = "sha512"
	SHA3256 HashAlgorithm = "sha3-256"
)

// HexLength returns the expected length of the hex-encoded digest.
func (a HashAlgorithm) HexLength() int {
	switch a {
	case SHA512:
		return 128
	default:
		return 64
	}
}

// ParseHashAlgorithm normalizes and validates an algorithm name.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch strings.ToLower(s) {
	case "sha256", "sha-256":
		return SHA256, nil
	case "sha512", "sha-512":
		return SHA512, nil
	case "sha3-256", "sha3_256":
		return SHA3256, nil
	default:
		return "", NewValidationError(fmt.Sprintf("unsupported hash algorithm %q", s))
	}
}

// Checksum anchors the integrity of an asset's content. Values are
// normalized to lowercase hex.
type Checksum struct {
	Algorithm HashAlgorithm `json:"algorithm"`
	Value     string        `json:"value"`
}

// NewChecksum validates the hash format for the algorithm and returns a
// normalized checksum.
func NewChecksum(algorithm HashAlgorithm, value string) (Checksum, error) {
	v := strings.ToLower(value)
	if len(v) != algorithm.HexLength() {
		return Checksum{}, NewValidationError(fmt.Sprintf(
			"invalid %s digest length: expected %d hex characters, got %d",
			algorithm, algorithm.HexLength(), len(v)))
	}
	for _, c := range v {
		if !isHexDigit(c) {
			return Checksum{}, NewValidationError(fmt.Sprintf(
				"invalid %s digest: value must be hexadecimal", algorithm))
		}
	}
	return Checksum{Algorithm: algorithm, Value: v}, nil
}

// Matches reports whether other is the same algorithm and digest.
func (c Checksum) Matches(other Checksum) bool {
	return c.Algorithm == other.Algorithm && c.Value == strings.ToLower(other.Value)
}

// IsZero reports whether the checksum is unset.
func (c Checksum) IsZero() bool { return c.Algorithm == "" && c.Value == "" }

func (c Checksum) String() string {
	return fmt.Sprintf("%s:%s", c.Algorithm, c.Value)
}

// Validate re-checks an already-constructed checksum, for specs built by
// direct struct literal.
func (c Checksum) Validate() error {
	_, err := NewChecksum(c.Algorithm, c.Value)
	return err
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}

// Signature is an optional detached signature over the canonical asset
// payload. KeyID references a public key in the key registry.
type Signature struct {
	Algorithm string `json:"algorithm"`
	Value     []byte `json:"value"`
	KeyID     string `json:"key_id"`
}

// IsZero reports whether the signature is unset.
func (s Signature) IsZero() bool {
	return s.Algorithm == "" && len(s.Value) == 0 && s.KeyID == ""
}
