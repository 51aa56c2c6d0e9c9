package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/podcast-service/internal/core"
)

// Test constants.
const (
	testAPIKey         = "secret-key"
	testConcept        = "The future of urban farming"
	testScript         = "Avatar 1: Welcome.\nAvatar 2: Thanks for having me."
	testAudioBase64    = "SUQzAwAAAAAA"
	testVoiceID        = "voice-1"
	testModelID        = "eleven_multilingual_v2"
	testImageURL       = "https://images.example/portrait.png"
	testVideoRef       = "https://videos.example/clip.mp4"
	testErrMsgBadVoice = "voice not found"
	testErrCodeVoice   = "VOICE_NOT_FOUND"
	testTimeout        = 5 * time.Second
)

func newJSONServer(t *testing.T, path string, handle func(t *testing.T, r *http.Request) (int, any)) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, path, r.URL.Path)
			assert.Equal(t, contentTypeJSON, r.Header.Get(headerContentType))

			status, body := handle(t, r)

			w.Header().Set(headerContentType, contentTypeJSON)
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(body)
		}),
	)
	t.Cleanup(server.Close)

	return server
}

func TestScriptClient_GenerateScript_Success(t *testing.T) {
	t.Parallel()

	server := newJSONServer(t, apiGenerateScript, func(t *testing.T, r *http.Request) (int, any) {
		var req core.ScriptRequest

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testConcept, req.Concept)
		assert.Equal(t, []string{"https://a.example"}, req.Links)
		assert.Equal(t, 2, req.SpeakerCount)
		assert.Equal(t, bearerPrefix+testAPIKey, r.Header.Get(headerAuthorization))

		return http.StatusOK, core.ScriptResponse{Script: testScript}
	})

	client := NewScriptClient(server.URL, testAPIKey, testTimeout)

	script, err := client.GenerateScript(context.Background(), core.ScriptRequest{
		Concept:      "  " + testConcept + " ",
		Links:        []string{"", " https://a.example ", "   "},
		SpeakerCount: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, testScript, script)
}

func TestScriptClient_GenerateScript_EmptyConcept(t *testing.T) {
	t.Parallel()

	client := NewScriptClient("http://127.0.0.1:1", "", testTimeout)

	_, err := client.GenerateScript(context.Background(), core.ScriptRequest{
		Concept:      "   ",
		Links:        nil,
		SpeakerCount: 2,
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "Concept")
}

func TestScriptClient_GenerateScript_EmptyReply(t *testing.T) {
	t.Parallel()

	server := newJSONServer(t, apiGenerateScript, func(*testing.T, *http.Request) (int, any) {
		return http.StatusOK, core.ScriptResponse{Script: "  "}
	})

	client := NewScriptClient(server.URL, "", testTimeout)

	_, err := client.GenerateScript(context.Background(), core.ScriptRequest{
		Concept:      testConcept,
		Links:        nil,
		SpeakerCount: 2,
	})
	require.ErrorIs(t, err, ErrService)
}

func TestScriptClient_AnalyzeLinks(t *testing.T) {
	t.Parallel()

	server := newJSONServer(t, apiAnalyzeLinks, func(t *testing.T, r *http.Request) (int, any) {
		var req core.LinkAnalysisRequest

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"https://a.example"}, req.Links)

		return http.StatusOK, core.LinkAnalysisResponse{
			Analysis: core.LinkAnalysis{
				EnhancedConcept:   "Rooftop farms",
				MainTopics:        []string{"soil"},
				Style:             "conversational",
				KeyPoints:         []string{"yield"},
				SuggestedApproach: "interview",
			},
			OriginalLinks: nil,
		}
	})

	client := NewScriptClient(server.URL, "", testTimeout)

	resp, err := client.AnalyzeLinks(context.Background(), core.LinkAnalysisRequest{
		Links:    []string{"https://a.example", " "},
		Concept:  "",
		Duration: "5",
	})
	require.NoError(t, err)
	assert.Equal(t, "Rooftop farms", resp.Analysis.EnhancedConcept)
	assert.Equal(t, []string{"https://a.example"}, resp.OriginalLinks)
}

func TestScriptClient_AnalyzeLinks_NoLinks(t *testing.T) {
	t.Parallel()

	client := NewScriptClient("http://127.0.0.1:1", "", testTimeout)

	_, err := client.AnalyzeLinks(context.Background(), core.LinkAnalysisRequest{
		Links:    []string{" ", ""},
		Concept:  "",
		Duration: "",
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestVoiceClient_Synthesize_Success(t *testing.T) {
	t.Parallel()

	server := newJSONServer(t, apiGenerateVoice, func(t *testing.T, r *http.Request) (int, any) {
		var req core.VoiceRequest

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testVoiceID, req.VoiceID)
		assert.Equal(t, testModelID, req.ModelID)

		return http.StatusOK, core.VoiceResponse{AudioContent: testAudioBase64, MimeType: "audio/mpeg"}
	})

	client := NewVoiceClient(server.URL, "", testTimeout)

	resp, err := client.Synthesize(context.Background(), core.VoiceRequest{
		Text:    "Welcome.",
		VoiceID: testVoiceID,
		ModelID: testModelID,
	})
	require.NoError(t, err)
	assert.Equal(t, testAudioBase64, resp.AudioContent)
	assert.Equal(t, "audio/mpeg", resp.MimeType)
}

func TestVoiceClient_Synthesize_ServiceError(t *testing.T) {
	t.Parallel()

	server := newJSONServer(t, apiGenerateVoice, func(*testing.T, *http.Request) (int, any) {
		return http.StatusBadRequest, ErrorResponse{
			Error:     testErrMsgBadVoice,
			Detail:    "",
			ErrorCode: testErrCodeVoice,
		}
	})

	client := NewVoiceClient(server.URL, "", testTimeout)

	_, err := client.Synthesize(context.Background(), core.VoiceRequest{
		Text:    "Welcome.",
		VoiceID: testVoiceID,
		ModelID: "",
	})
	require.ErrorIs(t, err, ErrService)
	assert.Contains(t, err.Error(), testErrMsgBadVoice)
	assert.Contains(t, err.Error(), testErrCodeVoice)
}

func TestVoiceClient_Synthesize_PlainTextError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewVoiceClient(server.URL, "", testTimeout)

	_, err := client.Synthesize(context.Background(), core.VoiceRequest{
		Text:    "Welcome.",
		VoiceID: testVoiceID,
		ModelID: "",
	})
	require.ErrorIs(t, err, ErrService)
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestVoiceClient_Synthesize_Validation(t *testing.T) {
	t.Parallel()

	client := NewVoiceClient("http://127.0.0.1:1", "", testTimeout)

	_, err := client.Synthesize(context.Background(), core.VoiceRequest{
		Text:    "",
		VoiceID: "",
		ModelID: "",
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "Text")
	assert.Contains(t, err.Error(), "VoiceID")
}

func TestVoiceClient_Synthesize_EmptyAudio(t *testing.T) {
	t.Parallel()

	server := newJSONServer(t, apiGenerateVoice, func(*testing.T, *http.Request) (int, any) {
		return http.StatusOK, core.VoiceResponse{AudioContent: "", MimeType: ""}
	})

	client := NewVoiceClient(server.URL, "", testTimeout)

	_, err := client.Synthesize(context.Background(), core.VoiceRequest{
		Text:    "Welcome.",
		VoiceID: testVoiceID,
		ModelID: "",
	})
	require.ErrorIs(t, err, ErrService)
}

func TestImageClient_GenerateImage(t *testing.T) {
	t.Parallel()

	server := newJSONServer(t, apiGenerateImage, func(*testing.T, *http.Request) (int, any) {
		return http.StatusOK, core.ImageResponse{ImageURL: testImageURL, Model: "gen4", RunwayID: "rw-1"}
	})

	client := NewImageClient(server.URL, "", testTimeout)

	resp, err := client.GenerateImage(context.Background(), core.ImageRequest{Prompt: "a friendly host"})
	require.NoError(t, err)
	assert.Equal(t, testImageURL, resp.ImageURL)
	assert.Equal(t, "rw-1", resp.RunwayID)
}

func TestVideoClient_GenerateVideo(t *testing.T) {
	t.Parallel()

	server := newJSONServer(t, apiGenerateVideo, func(t *testing.T, r *http.Request) (int, any) {
		var req core.VideoRequest

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, core.GenderFemale, req.GenderHint)
		assert.Equal(t, 10, req.DurationSeconds)

		return http.StatusOK, core.VideoResponse{VideoRef: testVideoRef, Error: ""}
	})

	client := NewVideoClient(server.URL, "", testTimeout)

	resp, err := client.GenerateVideo(context.Background(), core.VideoRequest{
		GenderHint:      core.GenderFemale,
		ImageRef:        testImageURL,
		AudioRef:        "data:audio/mpeg;base64," + testAudioBase64,
		DurationSeconds: 10,
		EmotionTags:     []string{"happy"},
		MovementTags:    nil,
	})
	require.NoError(t, err)
	assert.Equal(t, testVideoRef, resp.VideoRef)
}

func TestVideoClient_GenerateVideo_ReplyError(t *testing.T) {
	t.Parallel()

	server := newJSONServer(t, apiGenerateVideo, func(*testing.T, *http.Request) (int, any) {
		return http.StatusOK, core.VideoResponse{VideoRef: "", Error: "face not detected"}
	})

	client := NewVideoClient(server.URL, "", testTimeout)

	_, err := client.GenerateVideo(context.Background(), core.VideoRequest{
		GenderHint:      "",
		ImageRef:        testImageURL,
		AudioRef:        "audio",
		DurationSeconds: 10,
		EmotionTags:     nil,
		MovementTags:    nil,
	})
	require.ErrorIs(t, err, ErrService)
	assert.Contains(t, err.Error(), "face not detected")
}

func TestVideoClient_GenerateVideo_BadGender(t *testing.T) {
	t.Parallel()

	client := NewVideoClient("http://127.0.0.1:1", "", testTimeout)

	_, err := client.GenerateVideo(context.Background(), core.VideoRequest{
		GenderHint:      "robot",
		ImageRef:        testImageURL,
		AudioRef:        "audio",
		DurationSeconds: 10,
		EmotionTags:     nil,
		MovementTags:    nil,
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "oneof")
}

func TestClient_HealthCheck(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)

		if r.URL.Path != apiHealth {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "", testTimeout)
	assert.Equal(t, server.URL, client.BaseURL())
	require.NoError(t, client.HealthCheck(context.Background()))
}

func TestClient_HealthCheck_Unhealthy(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := NewClient(server.URL, "", testTimeout).HealthCheck(context.Background())
	require.ErrorIs(t, err, ErrService)
}

func TestClient_Unreachable(t *testing.T) {
	t.Parallel()

	client := NewClient("http://127.0.0.1:1", "", time.Second)
	require.Error(t, client.HealthCheck(context.Background()))
}
