package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zombor/scan-insight/internal/fault"
	"github.com/zombor/scan-insight/internal/scanning"
	"github.com/zombor/scan-insight/internal/subject"
)

// FallbackMessage is returned without calling the service when OCR found
// nothing to analyze.
const FallbackMessage = "Sorry, no text was detected in the image, so there is nothing to analyze. Try again with a clearer picture of the text."

const (
	DefaultMaxTokens   = 300
	DefaultTemperature = 0.7
	DefaultTimeout     = 60 * time.Second
)

// ErrEmptyQuestion is returned by Ask for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// Config holds the connection and sampling settings for a text
// generation backend.
type Config struct {
	Endpoint      string
	APIKey        string
	Model         string
	Timeout       time.Duration
	MaxTokens     int
	Temperature   float64
	StopSequences []string
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c Config) maxTokens() int {
	if c.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return c.MaxTokens
}

// Request is a single text generation call.
type Request struct {
	Prompt        string
	MaxTokens     int
	Temperature   float64
	StopSequences []string
}

// Generator is a remote text generation service. Implementations never
// retry and classify failures with the fault package.
type Generator interface {
	// Generate returns the text of the first candidate generation
	Generate(ctx context.Context, req Request) (string, error)
	// Close releases the underlying client
	Close() error
}

// Client produces domain-specific analyses of extracted text.
type Client struct {
	gen Generator
	cfg Config
}

// NewClient creates a Client that sends prompts to gen
func NewClient(gen Generator, cfg Config) *Client {
	return &Client{gen: gen, cfg: cfg}
}

// Analyze asks the service for an analysis of text in the given domain.
// The no-text sentinel short-circuits to FallbackMessage.
func (c *Client) Analyze(ctx context.Context, text string, tag subject.Tag) (string, error) {
	if text == scanning.NoTextDetected || strings.TrimSpace(text) == "" {
		return FallbackMessage, nil
	}
	return c.generate(ctx, "analyze", BuildPrompt(tag, text))
}

// Ask answers a free-form question in the given domain.
func (c *Client) Ask(ctx context.Context, question string, tag subject.Tag) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	return c.generate(ctx, "ask", QuestionPrompt(tag, question))
}

func (c *Client) generate(ctx context.Context, op, prompt string) (string, error) {
	text, err := c.gen.Generate(ctx, Request{
		Prompt:        prompt,
		MaxTokens:     c.cfg.maxTokens(),
		Temperature:   c.cfg.Temperature,
		StopSequences: c.cfg.StopSequences,
	})
	if err != nil {
		return "", fault.Classify(op, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fault.Service(op, 0, "", fmt.Errorf("empty generation"))
	}
	return text, nil
}

// Close closes the underlying Generator
func (c *Client) Close() error {
	return c.gen.Close()
}
