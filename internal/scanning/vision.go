package scanning

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/zombor/scan-insight/internal/fault"
)

const visionOp = "vision annotate"

// Vision implements the Recognizer interface using Google Cloud Vision
// text detection.
type Vision struct {
	svc *vision.Service
	cfg Config
}

// NewVision creates a Vision recognizer authenticated with a static API key
func NewVision(ctx context.Context, cfg Config) (*Vision, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vision api key is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w", err)
	}

	return &Vision{svc: svc, cfg: cfg}, nil
}

// ExtractText sends the image for TEXT_DETECTION and returns the full
// text annotation.
func (v *Vision) ExtractText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.timeout())
	defer cancel()

	finalImageData, _, err := Prepare(imageData, contentType)
	if err != nil {
		return "", fault.Service("preparing image", 0, "", err)
	}

	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(finalImageData)},
			Features: []*vision.Feature{{Type: "TEXT_DETECTION"}},
		}},
	}

	resp, err := v.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return "", fault.Service(visionOp, apiErr.Code, apiErr.Body, apiErr)
		}
		return "", fault.Classify(visionOp, err)
	}

	if len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", fault.Service(visionOp, 0, "", errors.New("no annotation in response"))
	}

	annotation := resp.Responses[0]
	if annotation.Error != nil && annotation.Error.Code != 0 {
		return "", fault.Service(visionOp, int(annotation.Error.Code), annotation.Error.Message,
			fmt.Errorf("annotating image: %s", annotation.Error.Message))
	}

	var text string
	switch {
	case annotation.FullTextAnnotation != nil:
		text = annotation.FullTextAnnotation.Text
	case len(annotation.TextAnnotations) > 0 && annotation.TextAnnotations[0] != nil:
		text = annotation.TextAnnotations[0].Description
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return NoTextDetected, nil
	}
	return text, nil
}

// Close is a no-op, the REST service holds no open connections of its own
func (v *Vision) Close() error {
	return nil
}
