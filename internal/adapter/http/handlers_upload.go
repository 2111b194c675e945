package adapthttp

import (
	"errors"
	"io"
	"log"
	"net/http"

	"trustcore/internal/domain"
)

type uploadKind int

const (
	uploadImage uploadKind = iota
	uploadDocument
)

func (k uploadKind) folder() string {
	if k == uploadImage {
		return "images"
	}
	return "documents"
}

// multipartOverhead is the allowance for multipart framing on top of the
// payload size limit.
const multipartOverhead = 1 << 20

// defaultUploadLimit applies when no payload size limit is configured.
const defaultUploadLimit = 32 << 20

type uploadResponse struct {
	domain.ValidationResult
	URL string `json:"url,omitempty"`
}

func (s *Server) handleUpload(kind uploadKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := s.opts.Image
		if kind == uploadDocument {
			opts = s.opts.Document
		}
		limit := opts.MaxSizeBytes
		if limit <= 0 {
			limit = defaultUploadLimit
		}

		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		if err := r.ParseMultipartForm(limit + multipartOverhead); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer func() { _ = file.Close() }()

		// One byte past the limit is enough for the validator to reject it.
		data, err := io.ReadAll(io.LimitReader(file, limit+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read upload")
			return
		}

		var res domain.ValidationResult
		if kind == uploadImage {
			res = s.uploads.ValidateImage(data, opts)
		} else {
			res = s.uploads.ValidateDocument(data, opts)
		}

		// The declared name and type are recorded for audit only.
		log.Printf("upload: %s %q declared %q, detected %q, valid=%t", kind.folder(), header.Filename, header.Header.Get("Content-Type"), res.MIME, res.Valid)

		if !res.Valid {
			writeJSON(w, http.StatusBadRequest, uploadResponse{ValidationResult: res})
			return
		}

		url, err := s.blobs.Put(r.Context(), kind.folder(), res.Extension, data)
		if err != nil {
			log.Printf("upload: store: %v", err)
			writeError(w, http.StatusBadGateway, "could not store upload")
			return
		}
		writeJSON(w, http.StatusCreated, uploadResponse{ValidationResult: res, URL: url})
	}
}
