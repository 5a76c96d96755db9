package services

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"helpcy/internal/config"
	"helpcy/internal/models"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"github.com/google/uuid"
)

// MediaObject is a stored photo or voice note
type MediaObject struct {
	Ref         string
	Kind        models.MediaKind
	ContentType string
	Data        []byte
}

// MediaStore stores uploaded media and hands out opaque references to it
type MediaStore interface {
	Put(ctx context.Context, userID int64, kind models.MediaKind, data []byte, contentType string) (string, error)
	// PutNamed stores data under a caller-chosen name, so storing the same
	// upload twice overwrites one object.
	PutNamed(ctx context.Context, userID int64, kind models.MediaKind, name string, data []byte, contentType string) (string, error)
	// Find returns the reference of an object stored by PutNamed, or "" when
	// there is none.
	Find(ctx context.Context, userID int64, kind models.MediaKind, name string) (string, error)
	Get(ctx context.Context, ref string) (*MediaObject, error)
	// URL returns a URL a browser or an AI provider can fetch the object from
	URL(ctx context.Context, ref string) (string, error)
}

// NewMediaStoreFromConfig builds the configured media backend
func NewMediaStoreFromConfig(cfg config.MediaConfig, logger *observability.Logger) (MediaStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryMediaStore(), nil
	case "s3":
		return NewS3MediaStore(cfg, logger)
	}
	return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityError, "unsupported media driver", cfg.Driver)
}

var mediaExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"audio/ogg":  ".ogg",
	"audio/mpeg": ".mp3",
	"audio/mp4":  ".m4a",
	"audio/wav":  ".wav",
	"audio/webm": ".webm",
}

// mediaPrefix is <kind>/<userId>/<name>; the key adds the extension
func mediaPrefix(userID int64, kind models.MediaKind, name string) string {
	return string(kind) + "/" + strconv.FormatInt(userID, 10) + "/" + name
}

// mediaKey builds <kind>/<userId>/<name><ext>
func mediaKey(userID int64, kind models.MediaKind, name, contentType string) string {
	return mediaPrefix(userID, kind, name) + mediaExtensions[baseContentType(contentType)]
}

// validMediaName accepts the characters of uuids and Telegram file ids
func validMediaName(name string) error {
	if name == "" || len(name) > 128 || strings.IndexFunc(name, func(r rune) bool {
		return !(r == '-' || r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
	}) >= 0 {
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "invalid media name", name)
	}
	return nil
}

// kindFromKey recovers the media kind from a key built by mediaKey
func kindFromKey(ref string) models.MediaKind {
	kind, _, _ := strings.Cut(ref, "/")
	return models.MediaKind(kind)
}

func baseContentType(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// NormalizeContentType returns the declared type, or a sniffed one when the
// declaration is empty or generic.
func NormalizeContentType(data []byte, declared string) string {
	ct := baseContentType(declared)
	if ct == "" || ct == "application/octet-stream" {
		ct = baseContentType(http.DetectContentType(data))
	}
	return ct
}

func validateMedia(kind models.MediaKind, data []byte) error {
	if !kind.IsValid() {
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "unknown media kind", string(kind))
	}
	if len(data) == 0 {
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "media is empty", "")
	}
	if len(data) > config.MaxMediaBytes {
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "media is too large", strconv.Itoa(len(data)))
	}
	return nil
}

// DecodeDataURL accepts either a data URL or bare base64 and returns the bytes
// and content type.
func DecodeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	declared := ""
	if strings.HasPrefix(s, "data:") {
		header, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, "", contextutils.NewAppError(contextutils.ErrorCodeInvalidFormat, contextutils.SeverityWarn, "malformed data URL", "")
		}
		header = strings.TrimPrefix(header, "data:")
		if !strings.HasSuffix(header, ";base64") {
			return nil, "", contextutils.NewAppError(contextutils.ErrorCodeInvalidFormat, contextutils.SeverityWarn, "data URL must be base64 encoded", "")
		}
		declared = strings.TrimSuffix(header, ";base64")
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, "", contextutils.NewAppErrorWithCause(contextutils.ErrorCodeInvalidFormat, contextutils.SeverityWarn, "invalid base64 payload", "", err)
	}
	return data, NormalizeContentType(data, declared), nil
}

// MemoryMediaStore keeps media in process memory; URLs are data URLs
type MemoryMediaStore struct {
	mu      sync.RWMutex
	objects map[string]*MediaObject
}

// NewMemoryMediaStore creates an empty in-memory media store
func NewMemoryMediaStore() *MemoryMediaStore {
	return &MemoryMediaStore{objects: make(map[string]*MediaObject)}
}

// Put stores data under a fresh name and returns its reference
func (s *MemoryMediaStore) Put(ctx context.Context, userID int64, kind models.MediaKind, data []byte, contentType string) (string, error) {
	return s.PutNamed(ctx, userID, kind, uuid.NewString(), data, contentType)
}

// PutNamed stores data under name and returns its reference
func (s *MemoryMediaStore) PutNamed(ctx context.Context, userID int64, kind models.MediaKind, name string, data []byte, contentType string) (string, error) {
	if err := validateMedia(kind, data); err != nil {
		return "", err
	}
	if err := validMediaName(name); err != nil {
		return "", err
	}
	ct := NormalizeContentType(data, contentType)
	ref := mediaKey(userID, kind, name, ct)
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.objects[ref] = &MediaObject{Ref: ref, Kind: kind, ContentType: ct, Data: buf}
	s.mu.Unlock()
	return ref, nil
}

// Find looks up an object stored by PutNamed
func (s *MemoryMediaStore) Find(ctx context.Context, userID int64, kind models.MediaKind, name string) (string, error) {
	if err := validMediaName(name); err != nil {
		return "", err
	}
	prefix := mediaPrefix(userID, kind, name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ref := range s.objects {
		if ref == prefix || (strings.HasPrefix(ref, prefix) && strings.HasPrefix(ref[len(prefix):], ".")) {
			return ref, nil
		}
	}
	return "", nil
}

// Get returns the stored object
func (s *MemoryMediaStore) Get(ctx context.Context, ref string) (*MediaObject, error) {
	s.mu.RLock()
	obj, ok := s.objects[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "media %s not found", ref)
	}
	cp := *obj
	return &cp, nil
}

// URL returns the object as a data URL
func (s *MemoryMediaStore) URL(ctx context.Context, ref string) (string, error) {
	obj, err := s.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	return "data:" + obj.ContentType + ";base64," + base64.StdEncoding.EncodeToString(obj.Data), nil
}
