package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPDetectorDetectKeyPhrases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Leaky pipes in the kitchen", req.Text)

		_ = json.NewEncoder(w).Encode(map[string]any{"keyPhrases": []string{"Leaky pipes", "kitchen"}})
	}))
	defer srv.Close()

	detector := NewHTTPDetector(DetectorConfig{KeyPhrasesURL: srv.URL})

	phrases, err := detector.DetectKeyPhrases(context.Background(), "Leaky pipes in the kitchen")
	require.NoError(t, err)
	assert.Equal(t, []string{"Leaky pipes", "kitchen"}, phrases)
}

func TestHTTPDetectorDetectLabels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Bucket    string `json:"bucket"`
			Key       string `json:"key"`
			MaxLabels int    `json:"maxLabels"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "report-photos", req.Bucket)
		assert.Equal(t, "RPT-1/leak.jpg", req.Key)
		assert.Equal(t, 5, req.MaxLabels)

		_ = json.NewEncoder(w).Encode(map[string]any{"labels": []string{"Pipe", "Water"}})
	}))
	defer srv.Close()

	detector := NewHTTPDetector(DetectorConfig{LabelsURL: srv.URL})

	labels, err := detector.DetectLabels(context.Background(), "report-photos", "RPT-1/leak.jpg", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pipe", "Water"}, labels)
}

func TestHTTPDetectorPropagatesServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	detector := NewHTTPDetector(DetectorConfig{KeyPhrasesURL: srv.URL, LabelsURL: srv.URL})

	_, err := detector.DetectKeyPhrases(context.Background(), "text")
	assert.Error(t, err)

	_, err = detector.DetectLabels(context.Background(), "b", "k", 5)
	assert.Error(t, err)
}
