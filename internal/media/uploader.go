// Package media is the boundary to the external media-hosting collaborator.
// The session flows only ever see an Uploader returning a public URL or a
// failure; the object-store plumbing stays behind it.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyObjectName indicates an upload without a usable object name.
var ErrEmptyObjectName = errors.New("media.empty_object_name")

// Uploader stores a media asset and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, objectKey string, contentType string, body io.Reader) (string, error)
}

// StorageKey derives a collision-free object key for an uploaded file,
// keeping the original extension and partitioning by date.
func StorageKey(kind string, fileName string) string {
	extension := strings.ToLower(path.Ext(fileName))
	now := time.Now().UTC()
	return fmt.Sprintf("%s/%d/%02d/%s%s", kind, now.Year(), int(now.Month()), uuid.New(), extension)
}

// MemoryUploader keeps uploads in memory and serves deterministic URLs.
// It stands in for the real collaborator in tests and local runs.
type MemoryUploader struct {
	mutex   sync.Mutex
	BaseURL string
	objects map[string][]byte
	failAll bool
}

// NewMemoryUploader creates an uploader rooted at the given base URL.
func NewMemoryUploader(baseURL string) *MemoryUploader {
	return &MemoryUploader{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		objects: make(map[string][]byte),
	}
}

// FailUploads makes every subsequent upload fail, for exercising the
// abort-before-create registration path.
func (uploader *MemoryUploader) FailUploads(fail bool) {
	uploader.mutex.Lock()
	defer uploader.mutex.Unlock()
	uploader.failAll = fail
}

// Upload stores the object bytes and returns its URL.
func (uploader *MemoryUploader) Upload(ctx context.Context, objectKey string, contentType string, body io.Reader) (string, error) {
	if strings.TrimSpace(objectKey) == "" {
		return "", fmt.Errorf("media.upload: %w", ErrEmptyObjectName)
	}
	data, readErr := io.ReadAll(body)
	if readErr != nil {
		return "", fmt.Errorf("media.upload: %w", readErr)
	}
	uploader.mutex.Lock()
	defer uploader.mutex.Unlock()
	if uploader.failAll {
		return "", fmt.Errorf("media.upload: %w", errors.New("upload rejected"))
	}
	uploader.objects[objectKey] = data
	return uploader.BaseURL + "/" + objectKey, nil
}

// ObjectCount reports how many objects have been stored.
func (uploader *MemoryUploader) ObjectCount() int {
	uploader.mutex.Lock()
	defer uploader.mutex.Unlock()
	return len(uploader.objects)
}
