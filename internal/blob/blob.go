// Package blob stores uploaded checkup images and hands back opaque keys the
// checkup record keeps as references.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrNotFound    = errors.New("blob not found")
	ErrTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrContentType = errors.New("content type is not allowed")
	ErrEmpty       = errors.New("file is empty")
)

// MaxObjectSize is the largest accepted image (10 MB).
const MaxObjectSize = 10 * 1024 * 1024

var AllowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

type Object struct {
	Name        string
	ContentType string
	Body        io.Reader
}

type Ref struct {
	Key         string
	ContentType string
	Size        int64
}

type Store interface {
	Put(ctx context.Context, obj Object) (Ref, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// readObject drains the body within MaxObjectSize and settles the content
// type, sniffing it when the client sent none or a generic one.
func readObject(obj Object) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(obj.Body, MaxObjectSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading content: %w", err)
	}
	if len(data) > MaxObjectSize {
		return nil, "", ErrTooLarge
	}
	if len(data) == 0 {
		return nil, "", ErrEmpty
	}

	contentType := strings.ToLower(strings.TrimSpace(strings.Split(obj.ContentType, ";")[0]))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !AllowedContentTypes[contentType] {
		return nil, "", fmt.Errorf("%w: %s", ErrContentType, contentType)
	}

	return data, contentType, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}

func nopCloser(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}
