// Package cloudinary persists validated uploads to Cloudinary.
package cloudinary

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// ErrNotConfigured indicates missing Cloudinary credentials.
var ErrNotConfigured = errors.New("cloudinary credentials are not configured")

// Config holds Cloudinary account credentials.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
}

// Enabled reports whether all credentials are set.
func (c Config) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// uploadAPI is the part of the Cloudinary SDK the store depends on.
type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// BlobStore uploads payloads under a random public id so that client
// filenames never reach the CDN.
type BlobStore struct {
	upload uploadAPI
}

// New creates a BlobStore from credentials.
func New(cfg Config) (*BlobStore, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: init: %w", err)
	}
	return &BlobStore{upload: &cld.Upload}, nil
}

// Put uploads data into folder and returns its secure URL.
func (s *BlobStore) Put(ctx context.Context, folder, extension string, data []byte) (string, error) {
	publicID := uuid.NewString()
	res, err := s.upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: resourceType(extension),
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary: upload: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary: upload: %s", res.Error.Message)
	}
	return res.SecureURL, nil
}

// resourceType keeps documents out of the image pipeline.
func resourceType(extension string) string {
	switch extension {
	case "pdf", "doc", "docx", "ppt", "pptx":
		return "raw"
	default:
		return "image"
	}
}
