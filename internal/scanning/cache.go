package scanning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachingRecognizer remembers successful extractions by image digest so
// the same bytes are not sent to a paid service twice. Failures are never
// cached, a retry always reaches the wrapped Recognizer.
type CachingRecognizer struct {
	next  Recognizer
	cache *lru.Cache[string, string]
}

// NewCachingRecognizer wraps next with an LRU of the given size
func NewCachingRecognizer(next Recognizer, size int) (*CachingRecognizer, error) {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating ocr cache: %w", err)
	}
	return &CachingRecognizer{next: next, cache: cache}, nil
}

// ExtractText returns a cached result or delegates to the wrapped Recognizer
func (c *CachingRecognizer) ExtractText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	sum := sha256.Sum256(imageData)
	key := hex.EncodeToString(sum[:])

	if text, ok := c.cache.Get(key); ok {
		return text, nil
	}

	text, err := c.next.ExtractText(ctx, imageData, contentType)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, text)
	return text, nil
}

// Close closes the wrapped Recognizer
func (c *CachingRecognizer) Close() error {
	c.cache.Purge()
	return c.next.Close()
}
