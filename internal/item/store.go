package item

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zombor/scan-insight/internal/fault"
)

// CollectionKey is the single key holding the serialized collection
const CollectionKey = "saved_items"

var (
	// ErrNotFound is returned by Get for an unknown id
	ErrNotFound = errors.New("item not found")
	// ErrDuplicateID is returned by Append when the id is already stored
	ErrDuplicateID = errors.New("item id already exists")
)

// Store is the saved-item collection. Every mutation reads the whole
// collection, applies the change and writes the whole collection back as
// one unit. Mutations are serialized by an in-process lock; concurrent
// writers in other processes are not coordinated.
type Store struct {
	mu sync.RWMutex
	kv KV
}

// NewStore creates a Store on top of kv
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

func decodeItems(data []byte) ([]SavedItem, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []SavedItem{}, nil
	}
	var items []SavedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling items: %w", err)
	}
	if items == nil {
		items = []SavedItem{}
	}
	return items, nil
}

// sortNewestFirst orders by creation time descending, ties by id descending
func sortNewestFirst(items []SavedItem) {
	sort.SliceStable(items, func(a, b int) bool {
		if !items[a].CreatedAt.Equal(items[b].CreatedAt) {
			return items[a].CreatedAt.After(items[b].CreatedAt)
		}
		return items[a].ID > items[b].ID
	})
}

// Append adds item to the collection. A failed write leaves the
// previously persisted collection intact.
func (s *Store) Append(item SavedItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.kv.Update(CollectionKey, func(current []byte) ([]byte, error) {
		items, err := decodeItems(current)
		if err != nil {
			return nil, err
		}
		for _, existing := range items {
			if existing.ID == item.ID {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateID, item.ID)
			}
		}
		data, err := json.Marshal(append(items, item))
		if err != nil {
			return nil, fmt.Errorf("marshaling items: %w", err)
		}
		return data, nil
	})
	if errors.Is(err, ErrDuplicateID) {
		return err
	}
	return fault.Persistence("appending item", err)
}

// List returns a copy of the collection, newest first. An empty kind
// returns every item. A store that was never written is empty.
func (s *Store) List(kind Kind) ([]SavedItem, error) {
	s.mu.RLock()
	data, err := s.kv.Load(CollectionKey)
	s.mu.RUnlock()
	if err != nil {
		return nil, fault.Persistence("loading items", err)
	}

	items, err := decodeItems(data)
	if err != nil {
		return nil, fault.Persistence("loading items", err)
	}

	if kind != "" {
		filtered := make([]SavedItem, 0, len(items))
		for _, it := range items {
			if it.Kind == kind {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	sortNewestFirst(items)
	return items, nil
}

// Get returns the item with the given id
func (s *Store) Get(id string) (SavedItem, error) {
	items, err := s.List("")
	if err != nil {
		return SavedItem{}, err
	}
	for _, it := range items {
		if it.ID == id {
			return it, nil
		}
	}
	return SavedItem{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes the item with the given id. Deleting an unknown id is a
// no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.kv.Update(CollectionKey, func(current []byte) ([]byte, error) {
		items, err := decodeItems(current)
		if err != nil {
			return nil, err
		}

		kept := make([]SavedItem, 0, len(items))
		for _, it := range items {
			if it.ID != id {
				kept = append(kept, it)
			}
		}
		if len(kept) == len(items) {
			// Nothing to remove. current belongs to the KV and must not be
			// handed back to it.
			if current == nil {
				return nil, nil
			}
			return append([]byte{}, current...), nil
		}

		data, err := json.Marshal(kept)
		if err != nil {
			return nil, fmt.Errorf("marshaling items: %w", err)
		}
		return data, nil
	})
	return fault.Persistence("deleting item", err)
}
