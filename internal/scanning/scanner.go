package scanning

import (
	"context"
	"time"
)

// NoTextDetected is returned by a Recognizer when the service succeeded
// but found no legible text. It is a successful result, not a failure.
const NoTextDetected = "No text detected"

// DefaultTimeout bounds a single OCR call when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Config holds the connection settings for an OCR backend.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Recognizer extracts text from image bytes.
//
// Implementations never retry. Transport failures are reported as
// fault.NetworkError, unusable responses as fault.ServiceError.
type Recognizer interface {
	// ExtractText returns the text found in the image, or NoTextDetected
	ExtractText(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close releases the underlying client
	Close() error
}
