package item

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/scan-insight/internal/fault"
	"github.com/zombor/scan-insight/internal/subject"
)

// IDGenerator generates unique IDs for saved items
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates time-ordered UUIDv7 ids
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// DefaultIDGenerator returns the generator used outside tests
func DefaultIDGenerator() IDGenerator { return &uuidGenerator{} }

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// DefaultTimeSource returns the wall clock in UTC
func DefaultTimeSource() TimeSource { return &defaultTimeSource{} }

// Draft is an item that has not been persisted yet. Data holds the image
// bytes that will be copied into durable storage.
type Draft struct {
	ID            string
	Kind          Kind
	Filename      string
	Data          []byte
	ExtractedText string
	AIResponse    string
	DomainTag     subject.Tag
}

// Library combines the item collection with the durable image storage
type Library struct {
	store       *Store
	images      ImageStore
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewLibrary creates a new Library with default ID generator and time source
func NewLibrary(store *Store, images ImageStore) *Library {
	return NewLibraryWithDeps(store, images, DefaultIDGenerator(), DefaultTimeSource())
}

// NewLibraryWithDeps creates a new Library with custom dependencies for testing
func NewLibraryWithDeps(store *Store, images ImageStore, idGen IDGenerator, timeSrc TimeSource) *Library {
	return &Library{
		store:       store,
		images:      images,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// NewID returns a fresh item id
func (l *Library) NewID() string {
	return l.idGenerator.Generate()
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = spaceRuns.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// Phone cameras produce very long names
	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "image"
	}
	if ext == "" || ext == "." {
		ext = ".jpg"
	}
	return base + ext
}

// Save copies the image into durable storage and appends the item. The
// draft id is used when set so a retried save keeps its id. If the append
// fails the copied image is removed again.
func (l *Library) Save(ctx context.Context, d Draft) (SavedItem, error) {
	if d.DomainTag == "" {
		d.DomainTag = subject.Default
	}
	if len(d.Data) == 0 {
		return SavedItem{}, fmt.Errorf("image data is required")
	}
	id := d.ID
	if id == "" {
		id = l.idGenerator.Generate()
	} else if _, err := l.store.Get(id); err == nil {
		// The stored image of an existing item must not be overwritten
		return SavedItem{}, fmt.Errorf("saving item: %w: %s", ErrDuplicateID, id)
	} else if !errors.Is(err, ErrNotFound) {
		return SavedItem{}, fmt.Errorf("saving item: %w", err)
	}

	ref, err := l.images.Put(ctx, fmt.Sprintf("%s_%s", id, sanitizeFilename(d.Filename)), d.Data)
	if err != nil {
		return SavedItem{}, fault.Persistence("saving image", err)
	}

	item := SavedItem{
		ID:            id,
		Kind:          d.Kind,
		ImageRef:      ref,
		ExtractedText: d.ExtractedText,
		AIResponse:    d.AIResponse,
		DomainTag:     d.DomainTag,
		CreatedAt:     l.timeSource.Now(),
	}

	if err := l.store.Append(item); err != nil {
		if !errors.Is(err, ErrDuplicateID) {
			// Clean up the image since the item was not recorded
			if delErr := l.images.Delete(ctx, ref); delErr != nil {
				slog.Warn("Failed to remove unsaved image", "ref", ref, "error", delErr)
			}
		}
		return SavedItem{}, fmt.Errorf("saving item: %w", err)
	}
	return item, nil
}

// Get retrieves an item by ID
func (l *Library) Get(id string) (SavedItem, error) {
	return l.store.Get(id)
}

// List returns the items of one kind, or all items for an empty kind
func (l *Library) List(kind Kind) ([]SavedItem, error) {
	return l.store.List(kind)
}

// Image returns the stored image bytes of an item and their content type
func (l *Library) Image(ctx context.Context, id string) ([]byte, string, error) {
	it, err := l.store.Get(id)
	if err != nil {
		return nil, "", err
	}
	data, err := l.images.Get(ctx, it.ImageRef)
	if err != nil {
		return nil, "", fmt.Errorf("getting image: %w", err)
	}
	return data, http.DetectContentType(data), nil
}

// Share returns the share message for an item
func (l *Library) Share(id string) (string, error) {
	it, err := l.store.Get(id)
	if err != nil {
		return "", err
	}
	return ShareText(it), nil
}

// Delete removes an item and its image. Deleting an unknown id is a no-op.
func (l *Library) Delete(ctx context.Context, id string) error {
	it, err := l.store.Get(id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("getting item for deletion: %w", err)
	}

	if err := l.store.Delete(id); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}

	if err := l.images.Delete(ctx, it.ImageRef); err != nil {
		slog.Warn("Failed to delete image", "ref", it.ImageRef, "error", err)
	}
	return nil
}
