package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// HTTPInference calls an external inference service for classification and
// captioning. The service exposes POST /classify and POST /caption taking
// raw image bytes and returning JSON. Model internals stay on the other
// side of the wire.
type HTTPInference struct {
	endpoint string
	hc       *http.Client
}

// NewHTTPInference creates a client for the inference service at endpoint.
func NewHTTPInference(endpoint string, timeout time.Duration) *HTTPInference {
	return &HTTPInference{
		endpoint: endpoint,
		hc:       &http.Client{Timeout: timeout},
	}
}

type classifyResponse struct {
	Label string `json:"label"`
}

type captionResponse struct {
	Captions []string `json:"captions"`
}

// Classify implements Classifier.
func (h *HTTPInference) Classify(ctx context.Context, imagePath string) (string, error) {
	body, err := h.post(ctx, "/classify", imagePath)
	if err != nil {
		return "", err
	}

	var parsed classifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode classify response: %w", err)
	}
	if parsed.Label == "" {
		return "", fmt.Errorf("classify returned no label")
	}
	return parsed.Label, nil
}

// Caption implements Captioner. Images are posted one at a time; the batch
// boundary only matters to callers managing write-back granularity.
func (h *HTTPInference) Caption(ctx context.Context, imagePaths []string) ([]string, error) {
	captions := make([]string, 0, len(imagePaths))
	for _, path := range imagePaths {
		body, err := h.post(ctx, "/caption", path)
		if err != nil {
			return nil, err
		}

		var parsed captionResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to decode caption response: %w", err)
		}
		if len(parsed.Captions) == 0 {
			return nil, fmt.Errorf("caption returned no text for %s", path)
		}
		captions = append(captions, parsed.Captions[0])
	}
	return captions, nil
}

func (h *HTTPInference) post(ctx context.Context, route, imagePath string) ([]byte, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+route, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := h.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference service returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
