package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/zombor/scan-insight/internal/fault"
)

const geminiOp = "gemini transcribe"

// transcribePrompt asks the model to behave like an OCR engine
const transcribePrompt = `Transcribe all text visible in this image exactly as written.

Rules:
- Preserve line breaks, numbers, symbols and mathematical notation.
- Do not explain, summarize, translate or correct anything.
- Do not use markdown code blocks.
- If the image contains no legible text, reply with exactly: ` + noTextMarker

// Gemini implements the Recognizer interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	cfg    Config
}

// NewGemini creates a new Gemini Recognizer instance
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(0)

	return &Gemini{
		client: client,
		model:  model,
		cfg:    cfg,
	}, nil
}

// ExtractText transcribes the text in an image
func (g *Gemini) ExtractText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.timeout())
	defer cancel()

	finalImageData, mimeType, err := Prepare(imageData, contentType)
	if err != nil {
		return "", fault.Service("preparing image", 0, "", err)
	}

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	parts := []genai.Part{
		genai.ImageData(strings.TrimPrefix(mimeType, "image/"), finalImageData),
		genai.Text(transcribePrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return "", fault.Service(geminiOp, apiErr.Code, apiErr.Body, apiErr)
		}
		return "", fault.Classify(geminiOp, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fault.Service(geminiOp, 0, "", errors.New("no candidates in response"))
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return cleanTranscription(responseText.String()), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
