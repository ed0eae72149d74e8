package item

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/scan-insight/internal/fault"
	"github.com/zombor/scan-insight/internal/subject"
)

// Keys written by the earlier app: analyzed scans and plain pictures were
// kept in two separate arrays.
const (
	LegacyItemsKey    = "savedItems"
	LegacyPicturesKey = "savedPictures"
)

// legacyRecord covers both legacy shapes. Ids were sometimes numbers and
// timestamps either ISO strings or epoch milliseconds.
type legacyRecord struct {
	ID            json.RawMessage `json:"id"`
	ImageURI      string          `json:"imageUri"`
	URI           string          `json:"uri"`
	ExtractedText string          `json:"extractedText"`
	AIResponse    string          `json:"aiResponse"`
	AIMode        string          `json:"aiMode"`
	Timestamp     json.RawMessage `json:"timestamp"`
	Type          string          `json:"type"`
}

func (r legacyRecord) id() string {
	raw := bytes.TrimSpace(r.ID)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (r legacyRecord) imageRef() string {
	ref := r.ImageURI
	if ref == "" {
		ref = r.URI
	}
	return strings.TrimPrefix(strings.TrimSpace(ref), "file://")
}

func (r legacyRecord) createdAt(fallback time.Time) time.Time {
	raw := bytes.TrimSpace(r.Timestamp)
	if len(raw) == 0 || string(raw) == "null" {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
		return fallback
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(int64(ms)).UTC()
	}
	return fallback
}

func (r legacyRecord) kind() Kind {
	if strings.TrimSpace(r.AIResponse) != "" {
		return KindAnalyzed
	}
	if strings.EqualFold(strings.TrimSpace(r.Type), string(KindDocument)) {
		return KindDocument
	}
	return KindPhoto
}

// domainTag falls back to Math, the mode the earlier app started in
func (r legacyRecord) domainTag() subject.Tag {
	if tag, ok := subject.Parse(r.AIMode); ok {
		return tag
	}
	return subject.Default
}

func (r legacyRecord) toItem(key string, index int, now time.Time) (SavedItem, bool) {
	ref := r.imageRef()
	if ref == "" {
		return SavedItem{}, false
	}
	id := r.id()
	if id == "" {
		id = fmt.Sprintf("legacy-%s-%d", key, index)
	}
	return SavedItem{
		ID:            id,
		Kind:          r.kind(),
		ImageRef:      ref,
		ExtractedText: r.ExtractedText,
		AIResponse:    r.AIResponse,
		DomainTag:     r.domainTag(),
		CreatedAt:     r.createdAt(now),
	}, true
}

func decodeLegacy(data []byte) ([]legacyRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var records []legacyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshaling legacy records: %w", err)
	}
	return records, nil
}

// Migrate folds the legacy arrays into the collection and removes the
// legacy keys. Items already in the collection win over legacy records with
// the same id, so running it twice imports nothing new. Records without an
// image are skipped. now stamps records that carry no usable timestamp.
// Images are not copied: a migrated item keeps the legacy device path as
// its ImageRef. Library.Image fails for such an item and Library.Delete
// removes only the record. It returns the number of imported items.
func (s *Store) Migrate(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var legacy []SavedItem
	found := false
	for _, key := range []string{LegacyItemsKey, LegacyPicturesKey} {
		data, err := s.kv.Load(key)
		if err != nil {
			return 0, fault.Persistence("loading legacy items", err)
		}
		if data != nil {
			found = true
		}
		records, err := decodeLegacy(data)
		if err != nil {
			return 0, fault.Persistence("loading legacy items", err)
		}
		for i, rec := range records {
			if it, ok := rec.toItem(key, i, now); ok {
				legacy = append(legacy, it)
			}
		}
	}
	if !found {
		return 0, nil
	}

	imported := 0
	err := s.kv.Update(CollectionKey, func(current []byte) ([]byte, error) {
		items, err := decodeItems(current)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(items)+len(legacy))
		for _, it := range items {
			seen[it.ID] = true
		}
		for _, it := range legacy {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			items = append(items, it)
			imported++
		}
		data, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("marshaling items: %w", err)
		}
		return data, nil
	})
	if err != nil {
		return 0, fault.Persistence("merging legacy items", err)
	}

	for _, key := range []string{LegacyItemsKey, LegacyPicturesKey} {
		if err := s.kv.Delete(key); err != nil {
			return imported, fault.Persistence("removing legacy items", err)
		}
	}
	return imported, nil
}
