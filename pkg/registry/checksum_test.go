package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestNewChecksum_NormalizesCase(t *testing.T) {
	c, err := NewChecksum(SHA256, strings.ToUpper(emptySHA256))
	require.NoError(t, err)
	assert.Equal(t, emptySHA256, c.Value)
	assert.Equal(t, "sha256:"+emptySHA256, c.String())
}

func TestNewChecksum_RejectsBadFormat(t *testing.T) {
	_, err := NewChecksum(SHA256, "abc")
	assert.Equal(t, CodeValidation, CodeOf(err))

	_, err = NewChecksum(SHA256, strings.Repeat("g", 64))
	assert.Equal(t, CodeValidation, CodeOf(err))

	// sha512 wants 128 hex chars.
	_, err = NewChecksum(SHA512, emptySHA256)
	assert.Equal(t, CodeValidation, CodeOf(err))
}

func TestChecksum_Matches(t *testing.T) {
	a, err := NewChecksum(SHA256, emptySHA256)
	require.NoError(t, err)

	assert.True(t, a.Matches(Checksum{Algorithm: SHA256, Value: strings.ToUpper(emptySHA256)}))
	assert.False(t, a.Matches(Checksum{Algorithm: SHA3256, Value: emptySHA256}))
	assert.False(t, a.Matches(Checksum{Algorithm: SHA256, Value: strings.Repeat("a", 64)}))
}

func TestParseHashAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want HashAlgorithm
	}{
		{"sha256", SHA256},
		{"SHA-256", SHA256},
		{"sha512", SHA512},
		{"SHA3-256", SHA3256},
		{"sha3_256", SHA3256},
	}
	for _, tt := range tests {
		got, err := ParseHashAlgorithm(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseHashAlgorithm("md5")
	assert.Error(t, err)
}

func TestProvenance_Validate(t *testing.T) {
	good := Provenance{
		SourceRepo: "https://github.com/acme/models",
		CommitHash: strings.Repeat("a", 40),
		BuildID:    "build-42",
		Author:     "ci@acme.io",
	}
	require.NoError(t, good.Validate())

	bad := good
	bad.CommitHash = "short"
	assert.Error(t, bad.Validate())

	bad = good
	bad.SourceRepo = "file:///tmp/repo"
	assert.Error(t, bad.Validate())

	assert.True(t, Provenance{}.IsZero())
	assert.NoError(t, Provenance{}.Validate())
}
