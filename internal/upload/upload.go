// Package upload stores profile images in blob storage and serves the
// multipart upload endpoint.
package upload

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// FormField is the multipart field carrying the image.
const FormField = "profile_image"

// Errors
var (
	ErrNoFile   = errors.New("no file found")
	ErrTooLarge = errors.New("file too large")
)

// BlobStore writes objects and returns their public URL.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// Handler serves POST /upload_profile_image.
type Handler struct {
	blobs    BlobStore
	maxBytes int64
	logger   *slog.Logger
}

// NewHandler creates an upload Handler. maxBytes bounds a single image.
func NewHandler(blobs BlobStore, maxBytes int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{blobs: blobs, maxBytes: maxBytes, logger: logger}
}

// Upload stores the image in the profile_image field and answers with its URL.
func (h *Handler) Upload(c *gin.Context) {
	// Leave room for the multipart envelope around the file.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+64*1024)

	fh, err := c.FormFile(FormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.String(http.StatusRequestEntityTooLarge, ErrTooLarge.Error())
			return
		}
		c.String(http.StatusBadRequest, ErrNoFile.Error())
		return
	}
	if fh.Size > h.maxBytes {
		c.String(http.StatusRequestEntityTooLarge, ErrTooLarge.Error())
		return
	}

	data, err := readPart(fh)
	if err != nil {
		h.logger.Error("failed to read uploaded file", "filename", fh.Filename, "error", err)
		c.String(http.StatusBadRequest, ErrNoFile.Error())
		return
	}

	key, err := NewKey(fh.Filename)
	if err != nil {
		h.logger.Error("failed to generate object key", "error", err)
		c.String(http.StatusInternalServerError, "error uploading image")
		return
	}
	contentType := ContentType(fh.Header.Get("Content-Type"), data)

	url, err := h.blobs.Put(c.Request.Context(), key, contentType, data)
	if err != nil {
		h.logger.Error("failed to store profile image",
			"key", key,
			"content_type", contentType,
			"size", len(data),
			"error", err,
		)
		c.String(http.StatusInternalServerError, "error uploading image")
		return
	}

	h.logger.Info("profile image stored", "key", key, "content_type", contentType, "size", len(data))
	c.JSON(http.StatusOK, gin.H{"imageUrl": url})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

// NewKey returns a random object key that keeps filename's extension.
func NewKey(filename string) (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b[:]) + filepath.Ext(filename), nil
}

// ContentType returns declared unless it is missing or generic, in which
// case the type is sniffed from data.
func ContentType(declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(data).String()
}
