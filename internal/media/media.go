// Package media turns picked files into durable public URLs and keeps the unsaved media
// lists of a portfolio draft.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var (
	ErrUpload    = errors.New("upload failed")
	ErrPublicURL = errors.New("public url unavailable")
	ErrExists    = errors.New("object already exists")
)

type Kind string

const (
	KindImage Kind = "images"
	KindVideo Kind = "videos"
)

// ParseKind accepts the plural collection names and their singular forms.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "images", "image":
		return KindImage, nil
	case "videos", "video":
		return KindVideo, nil
	default:
		return "", fmt.Errorf("unknown media kind %q", raw)
	}
}

// Prefix is the object path namespace for the kind.
func (k Kind) Prefix() string {
	if k == KindVideo {
		return "portfolio-videos"
	}
	return "portfolio-images"
}

// ObjectStore is upload-by-path plus public URL resolution.
type ObjectStore interface {
	Put(ctx context.Context, objectPath string, body io.Reader, size int64, contentType string, overwrite bool) error
	PublicURL(objectPath string) (string, error)
}

// File is one picked file.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

type Uploader struct {
	store     ObjectStore
	overwrite bool
	now       func() time.Time
}

func NewUploader(store ObjectStore) *Uploader {
	return &Uploader{store: store, overwrite: true, now: time.Now}
}

// ObjectPath namespaces a file name by kind and upload time.
func ObjectPath(kind Kind, name string, at time.Time) (string, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "" || base == "." || base == "/" {
		return "", fmt.Errorf("%w: empty file name", ErrUpload)
	}
	return fmt.Sprintf("%s/%d-%s", kind.Prefix(), at.UnixMilli(), base), nil
}

// UploadBatch uploads files one after another and returns their public URLs in input
// order. Any failure aborts the batch and no URL is returned. Objects stored before the
// failure stay in the bucket.
func (u *Uploader) UploadBatch(ctx context.Context, kind Kind, files []File) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpload, err)
		}
		objectPath, err := ObjectPath(kind, file.Name, u.now())
		if err != nil {
			return nil, err
		}
		if err := u.store.Put(ctx, objectPath, file.Body, file.Size, file.ContentType, u.overwrite); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUpload, file.Name, err)
		}
		publicURL, err := u.store.PublicURL(objectPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUpload, file.Name, err)
		}
		if publicURL == "" {
			return nil, fmt.Errorf("%w: %s: %v", ErrUpload, file.Name, ErrPublicURL)
		}
		urls = append(urls, publicURL)
	}
	return urls, nil
}
