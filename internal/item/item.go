package item

import (
	"errors"
	"fmt"
	"time"

	"github.com/zombor/scan-insight/internal/subject"
)

// Kind categorizes a saved item.
type Kind string

const (
	KindPhoto    Kind = "photo"
	KindDocument Kind = "document"
	KindAnalyzed Kind = "analyzed"
)

// ParseKind matches s against the known kinds. The empty string is
// accepted and means "any kind".
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "", KindPhoto, KindDocument, KindAnalyzed:
		return k, nil
	}
	return "", fmt.Errorf("unknown kind: %q", s)
}

// SavedItem is the persisted unit. Items are immutable once saved.
type SavedItem struct {
	ID            string      `json:"id"`
	Kind          Kind        `json:"kind"`
	ImageRef      string      `json:"imageRef"`                // Durable storage reference, never a capture cache path
	ExtractedText string      `json:"extractedText,omitempty"` // OCR output, may be the no-text sentinel
	AIResponse    string      `json:"aiResponse,omitempty"`
	DomainTag     subject.Tag `json:"domainTag"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Validate checks the fields every saved item must carry
func (i SavedItem) Validate() error {
	var errs []error
	if i.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	switch i.Kind {
	case KindPhoto, KindDocument, KindAnalyzed:
	default:
		errs = append(errs, fmt.Errorf("invalid kind %q", i.Kind))
	}
	if i.ImageRef == "" {
		errs = append(errs, errors.New("image reference is required"))
	}
	if !i.DomainTag.Valid() {
		errs = append(errs, fmt.Errorf("invalid domain tag %q", i.DomainTag))
	}
	if i.CreatedAt.IsZero() {
		errs = append(errs, errors.New("creation time is required"))
	}
	return errors.Join(errs...)
}
