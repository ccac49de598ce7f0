package app

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"journal/internal/domain"

	"github.com/google/uuid"
)

// DefaultMaxUploadBytes caps a single upload at 50 MiB.
const DefaultMaxUploadBytes int64 = 50 << 20

var (
	// ErrNoFile indicates a request without file content.
	ErrNoFile = errors.New("no file uploaded")
	// ErrInvalidFileType indicates a MIME type outside the allow-list.
	ErrInvalidFileType = errors.New("invalid file type")
	// ErrFileTooLarge indicates an upload above the size cap.
	ErrFileTooLarge = errors.New("file too large")
)

var allowedUploadTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"video/mp4":  true,
	"video/webm": true,
	"audio/mpeg": true,
	"audio/wav":  true,
	"audio/ogg":  true,
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// UploadService validates media uploads and hands them to a MediaStore.
type UploadService struct {
	store    domain.MediaStore
	maxBytes int64
}

// NewUploadService creates an UploadService. A non-positive maxBytes selects
// DefaultMaxUploadBytes.
func NewUploadService(store domain.MediaStore, maxBytes int64) *UploadService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &UploadService{store: store, maxBytes: maxBytes}
}

// MaxBytes returns the size cap for a single file.
func (s *UploadService) MaxBytes() int64 {
	return s.maxBytes
}

// Store validates and persists one uploaded file.
func (s *UploadService) Store(ctx context.Context, name, contentType string, data []byte) (*domain.Media, error) {
	if len(data) == 0 {
		return nil, ErrNoFile
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !allowedUploadTypes[contentType] {
		return nil, ErrInvalidFileType
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	filename := SanitizeFilename(name)
	url, err := s.store.Save(ctx, uuid.NewString()+"-"+filename, data)
	if err != nil {
		return nil, err
	}
	return &domain.Media{URL: url, Filename: filename, Type: MediaKind(contentType)}, nil
}

// SanitizeFilename replaces every character outside [a-zA-Z0-9.-] with '_'.
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if strings.Trim(name, ".") == "" {
		return "file"
	}
	return name
}

// MediaKind maps a MIME type to image, video or audio.
func MediaKind(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "video/"):
		return domain.MediaVideo
	case strings.HasPrefix(contentType, "audio/"):
		return domain.MediaAudio
	default:
		return domain.MediaImage
	}
}
