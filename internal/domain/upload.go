package domain

import "context"

// UploadOptions is the policy applied to one uploaded payload.
type UploadOptions struct {
	MaxSizeBytes      int64
	AllowedExtensions []string
	// MaxWidth and MaxHeight are ignored when zero.
	MaxWidth  int
	MaxHeight int
}

// ValidationResult is the transient verdict on an uploaded payload.
type ValidationResult struct {
	Valid        bool   `json:"valid"`
	Error        string `json:"error,omitempty"`
	DocumentType string `json:"documentType,omitempty"`
	MIME         string `json:"mime,omitempty"`
	Extension    string `json:"extension,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

// BlobStore is the port for persisting validated uploads.
type BlobStore interface {
	// Put stores data under folder and returns a URL for it.
	Put(ctx context.Context, folder, extension string, data []byte) (string, error)
}
