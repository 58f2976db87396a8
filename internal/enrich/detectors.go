package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// KeyPhraseDetector extracts key phrases from free text. The production
// implementation calls the external text-analysis service.
type KeyPhraseDetector interface {
	DetectKeyPhrases(ctx context.Context, text string) ([]string, error)
}

// LabelDetector names what an image shows, capped at maxLabels top labels.
type LabelDetector interface {
	DetectLabels(ctx context.Context, bucket, key string, maxLabels int) ([]string, error)
}

// DetectorConfig points the HTTP detectors at the detection services.
type DetectorConfig struct {
	KeyPhrasesURL string
	LabelsURL     string
	Timeout       time.Duration
}

// HTTPDetector implements both detector interfaces against the detection
// services' JSON endpoints.
type HTTPDetector struct {
	config DetectorConfig
	client *http.Client
}

// NewHTTPDetector builds an HTTPDetector with the configured timeout.
func NewHTTPDetector(cfg DetectorConfig) *HTTPDetector {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &HTTPDetector{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// DetectKeyPhrases posts the text to the key-phrase service.
func (d *HTTPDetector) DetectKeyPhrases(ctx context.Context, text string) ([]string, error) {
	request := struct {
		Text string `json:"text"`
	}{Text: text}

	var response struct {
		KeyPhrases []string `json:"keyPhrases"`
	}
	if err := d.post(ctx, d.config.KeyPhrasesURL, request, &response); err != nil {
		return nil, fmt.Errorf("detect key phrases: %w", err)
	}
	return response.KeyPhrases, nil
}

// DetectLabels posts the image reference to the label service.
func (d *HTTPDetector) DetectLabels(ctx context.Context, bucket, key string, maxLabels int) ([]string, error) {
	request := struct {
		Bucket    string `json:"bucket"`
		Key       string `json:"key"`
		MaxLabels int    `json:"maxLabels"`
	}{Bucket: bucket, Key: key, MaxLabels: maxLabels}

	var response struct {
		Labels []string `json:"labels"`
	}
	if err := d.post(ctx, d.config.LabelsURL, request, &response); err != nil {
		return nil, fmt.Errorf("detect labels: %w", err)
	}
	return response.Labels, nil
}

func (d *HTTPDetector) post(ctx context.Context, url string, request, response any) error {
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detection service returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(response)
}
