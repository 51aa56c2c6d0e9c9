package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/podcast-service/internal/config"
)

func TestNewSet_AnalysisFallsBackToScript(t *testing.T) {
	t.Setenv("PODCAST_TEST_API_KEY", testAPIKey)

	set := NewSet(config.ServicesConfig{
		ScriptURL:      "http://script.local/",
		AnalysisURL:    "",
		VoiceURL:       "http://voice.local",
		ImageURL:       "http://image.local",
		VideoURL:       "http://video.local",
		TimeoutSeconds: 5,
		APIKeyEnv:      "PODCAST_TEST_API_KEY",
	})

	assert.Equal(t, "http://script.local", set.Script.BaseURL())
	assert.Equal(t, "http://script.local", set.Analysis.BaseURL())
	assert.Equal(t, "http://voice.local", set.Voice.BaseURL())
	assert.Equal(t, testAPIKey, set.Voice.apiKey)
	assert.Equal(t, testTimeout, set.Image.httpClient.Timeout)
}

func TestSet_Health(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(healthy.Close)

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(unhealthy.Close)

	set := NewSet(config.ServicesConfig{
		ScriptURL:      healthy.URL,
		AnalysisURL:    healthy.URL,
		VoiceURL:       unhealthy.URL,
		ImageURL:       healthy.URL,
		VideoURL:       healthy.URL,
		TimeoutSeconds: 5,
		APIKeyEnv:      "",
	})

	results := set.Health(context.Background())
	require.Len(t, results, 5)

	names := make([]string, 0, len(results))
	for _, result := range results {
		names = append(names, result.Name)

		if result.Name == "voice" {
			require.ErrorIs(t, result.Err, ErrService)

			continue
		}

		assert.NoError(t, result.Err, result.Name)
	}

	assert.Equal(t, []string{"script", "analysis", "voice", "image", "video"}, names)
}
