package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zombor/scan-insight/internal/fault"
)

const cohereOp = "cohere generate"

// Cohere implements the Generator interface using Cohere's generate API
type Cohere struct {
	baseURL string
	apiKey  string
	model   string
	cfg     Config
	client  *http.Client
}

// NewCohere creates a new Cohere Generator instance
func NewCohere(cfg Config) (*Cohere, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cohere api key is required")
	}
	baseURL := strings.TrimSuffix(cfg.Endpoint, "/")
	if baseURL == "" {
		baseURL = "https://api.cohere.ai"
	}
	model := cfg.Model
	if model == "" {
		model = "command"
	}

	return &Cohere{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
		cfg:     cfg,
		client:  &http.Client{},
	}, nil
}

// cohereGenerateRequest is the request body for POST /v1/generate
type cohereGenerateRequest struct {
	Model             string   `json:"model"`
	Prompt            string   `json:"prompt"`
	MaxTokens         int      `json:"max_tokens"`
	Temperature       float64  `json:"temperature"`
	K                 int      `json:"k"`
	StopSequences     []string `json:"stop_sequences"`
	ReturnLikelihoods string   `json:"return_likelihoods"`
}

type cohereGeneration struct {
	ID   string  `json:"id"`
	Text *string `json:"text"`
}

// cohereGenerateResponse is the subset of the response we depend on
type cohereGenerateResponse struct {
	ID          string             `json:"id"`
	Generations []cohereGeneration `json:"generations"`
	Message     string             `json:"message"`
}

// Generate returns the text of the first generation
func (c *Cohere) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()

	stop := req.StopSequences
	if stop == nil {
		stop = []string{}
	}

	jsonData, err := json.Marshal(cohereGenerateRequest{
		Model:             c.model,
		Prompt:            req.Prompt,
		MaxTokens:         req.MaxTokens,
		Temperature:       req.Temperature,
		K:                 0,
		StopSequences:     stop,
		ReturnLikelihoods: "NONE",
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/generate", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fault.Classify(cohereOp, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fault.Classify(cohereOp, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fault.Service(cohereOp, resp.StatusCode, string(body),
			fmt.Errorf("cohere API error (status %d)", resp.StatusCode))
	}

	var genResp cohereGenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fault.Service(cohereOp, resp.StatusCode, string(body), fmt.Errorf("decoding response: %w", err))
	}
	if len(genResp.Generations) == 0 || genResp.Generations[0].Text == nil {
		msg := "no generations in response"
		if genResp.Message != "" {
			msg = genResp.Message
		}
		return "", fault.Service(cohereOp, resp.StatusCode, string(body), errors.New(msg))
	}

	return *genResp.Generations[0].Text, nil
}

// Close closes the Cohere client (no-op for HTTP client)
func (c *Cohere) Close() error {
	return nil
}
