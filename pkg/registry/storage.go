package registry

import "fmt"

// StorageBackend identifies where an asset's content lives.
type StorageBackend string

const (
	BackendS3         StorageBackend = "s3"
	BackendGCS        StorageBackend = "gcs"
	BackendAzure      StorageBackend = "azure"
	BackendMinIO      StorageBackend = "minio"
	BackendFilesystem StorageBackend = "filesystem"
)

// StorageLocation is a pointer to asset content in an external backend. The
// registry stores metadata only; it never reads or writes the content
// itself except to verify checksums when content is supplied.
type StorageLocation struct {
	Backend StorageBackend `json:"backend"`
	// URI is the backend-specific location, e.g. s3://bucket/key or an
	// absolute filesystem path.
	URI string `json:"uri"`
	// SizeBytes is the content size if known; nil means unknown.
	SizeBytes *int64 `json:"size_bytes,omitempty"`
}

// Validate checks the location fields.
func (l StorageLocation) Validate() error {
	switch l.Backend {
	case BackendS3, BackendGCS, BackendAzure, BackendMinIO, BackendFilesystem:
	case "":
		return NewValidationError("storage backend cannot be empty")
	default:
		return NewValidationError(fmt.Sprintf("unsupported storage backend %q", l.Backend))
	}
	if l.URI == "" {
		return NewValidationError("storage URI cannot be empty")
	}
	if l.SizeBytes != nil && *l.SizeBytes < 0 {
		return NewValidationError("size_bytes cannot be negative")
	}
	return nil
}
