package registry

import (
	"fmt"
	"strings"
)

// Provenance records where an asset came from. All fields are optional, but
// once a provenance record is attached to an asset it is write-once:
// SourceRepo, CommitHash, and BuildID can never be altered afterwards.
type Provenance struct {
	SourceRepo    string            `json:"source_repo,omitempty"`
	CommitHash    string            `json:"commit_hash,omitempty"`
	BuildID       string            `json:"build_id,omitempty"`
	Author        string            `json:"author,omitempty"`
	BuildMetadata map[string]string `json:"build_metadata,omitempty"`
}

// IsZero reports whether no provenance information is present.
func (p Provenance) IsZero() bool {
	return p.SourceRepo == "" && p.CommitHash == "" && p.BuildID == "" &&
		p.Author == "" && len(p.BuildMetadata) == 0
}

// Validate checks field formats. A commit hash must be a 40 (SHA-1) or
// 64 (SHA-256) character hex string; a source repo must be an HTTP(S), SSH,
// or git URL.
func (p Provenance) Validate() error {
	if p.SourceRepo != "" {
		ok := strings.HasPrefix(p.SourceRepo, "http://") ||
			strings.HasPrefix(p.SourceRepo, "https://") ||
			strings.HasPrefix(p.SourceRepo, "git@") ||
			strings.HasPrefix(p.SourceRepo, "ssh://")
		if !ok {
			return NewValidationError("source repo must be an http(s), ssh, or git URL")
		}
	}
	if p.CommitHash != "" {
		if n := len(p.CommitHash); n != 40 && n != 64 {
			return NewValidationError(fmt.Sprintf(
				"commit hash must be 40 or 64 hex characters, got %d", n))
		}
		for _, c := range strings.ToLower(p.CommitHash) {
			if !isHexDigit(c) {
				return NewValidationError("commit hash must be hexadecimal")
			}
		}
	}
	return nil
}
