package app

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"trustcore/internal/domain"
)

// documentTypes maps recognized document formats to their type tag.
var documentTypes = map[string]string{
	typePDF.Ext:  "pdf",
	typeDOC.Ext:  "doc",
	typeDOCX.Ext: "docx",
	typePPT.Ext:  "ppt",
	typePPTX.Ext: "pptx",
}

// UploadValidator decides whether an uploaded payload is what it claims to
// be. It trusts only the payload bytes; client filenames and content types
// are never consulted. It holds no state and is safe for concurrent use.
type UploadValidator struct{}

// NewUploadValidator creates an upload validator.
func NewUploadValidator() *UploadValidator {
	return &UploadValidator{}
}

// ValidateImage checks that data is an image within the limits in opts.
func (v *UploadValidator) ValidateImage(data []byte, opts domain.UploadOptions) domain.ValidationResult {
	typ, res, ok := v.sniff(data, opts)
	if !ok {
		return res
	}
	if !typ.isImage() {
		return invalid(res, "file is not a supported image")
	}
	if res, ok = checkExtension(res, typ, opts.AllowedExtensions); !ok {
		return res
	}

	var dims Dimensions
	if parse, ok := dimensionParsers[typ.Ext]; ok {
		var err error
		if dims, err = parse(data); err != nil {
			if errors.Is(err, errMalformedHeader) {
				return invalid(res, errMalformedHeader.Error())
			}
			return invalid(res, err.Error())
		}
	}
	if dims.Width == 0 || dims.Height == 0 {
		log.Printf("upload: could not determine %s dimensions from %d bytes", typ.Ext, len(data))
	}
	res.Width, res.Height = dims.Width, dims.Height

	if (opts.MaxWidth > 0 && dims.Width > opts.MaxWidth) || (opts.MaxHeight > 0 && dims.Height > opts.MaxHeight) {
		return invalid(res, fmt.Sprintf("image dimensions %dx%d exceed maximum %dx%d",
			dims.Width, dims.Height, opts.MaxWidth, opts.MaxHeight))
	}

	res.Valid = true
	return res
}

// ValidateDocument checks that data is a PDF or Office document within the
// limits in opts.
func (v *UploadValidator) ValidateDocument(data []byte, opts domain.UploadOptions) domain.ValidationResult {
	typ, res, ok := v.sniff(data, opts)
	if !ok {
		return res
	}
	tag, ok := documentTypes[typ.Ext]
	if !ok {
		return invalid(res, "file is not a supported document")
	}
	res.DocumentType = tag
	if res, ok = checkExtension(res, typ, opts.AllowedExtensions); !ok {
		return res
	}

	res.Valid = true
	return res
}

// sniff applies the size limit and identifies the payload.
func (v *UploadValidator) sniff(data []byte, opts domain.UploadOptions) (fileType, domain.ValidationResult, bool) {
	var res domain.ValidationResult
	if len(data) == 0 {
		return fileType{}, invalid(res, "file is empty"), false
	}
	if opts.MaxSizeBytes > 0 && int64(len(data)) > opts.MaxSizeBytes {
		return fileType{}, invalid(res, fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", len(data), opts.MaxSizeBytes)), false
	}

	typ, ok := detectType(data)
	if !ok {
		return fileType{}, invalid(res, "unsupported file type"), false
	}
	res.MIME = typ.MIME
	res.Extension = typ.Ext
	return typ, res, true
}

func checkExtension(res domain.ValidationResult, typ fileType, allowed []string) (domain.ValidationResult, bool) {
	if len(allowed) == 0 {
		return res, true
	}
	normalized := make([]string, 0, len(allowed))
	for _, ext := range allowed {
		normalized = append(normalized, normalizeExtension(ext))
	}
	if slices.Contains(normalized, typ.Ext) {
		return res, true
	}
	return invalid(res, fmt.Sprintf("file type %s is not allowed", typ.Ext)), false
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	switch ext {
	case "jpeg":
		return "jpg"
	case "tiff":
		return "tif"
	}
	return ext
}

func invalid(res domain.ValidationResult, msg string) domain.ValidationResult {
	res.Valid = false
	res.Error = msg
	return res
}
