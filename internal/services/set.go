package services

import (
	"context"

	"github.com/book-expert/podcast-service/internal/config"
)

// Set groups the clients of every collaborator built from one configuration.
type Set struct {
	Script   *ScriptClient
	Analysis *ScriptClient
	Voice    *VoiceClient
	Image    *ImageClient
	Video    *VideoClient
}

// HealthResult is the outcome of one collaborator health check. Err is nil when healthy.
type HealthResult struct {
	Name string
	URL  string
	Err  error
}

// NewSet creates a client per configured collaborator.
func NewSet(cfg config.ServicesConfig) *Set {
	apiKey := cfg.APIKey()
	timeout := cfg.Timeout()

	return &Set{
		Script:   NewScriptClient(cfg.ScriptURL, apiKey, timeout),
		Analysis: NewScriptClient(cfg.AnalysisBaseURL(), apiKey, timeout),
		Voice:    NewVoiceClient(cfg.VoiceURL, apiKey, timeout),
		Image:    NewImageClient(cfg.ImageURL, apiKey, timeout),
		Video:    NewVideoClient(cfg.VideoURL, apiKey, timeout),
	}
}

// Health checks every collaborator in a fixed order.
func (s *Set) Health(ctx context.Context) []HealthResult {
	clients := []struct {
		name   string
		client *Client
	}{
		{name: "script", client: s.Script.Client},
		{name: "analysis", client: s.Analysis.Client},
		{name: "voice", client: s.Voice.Client},
		{name: "image", client: s.Image.Client},
		{name: "video", client: s.Video.Client},
	}

	results := make([]HealthResult, 0, len(clients))
	for _, entry := range clients {
		results = append(results, HealthResult{
			Name: entry.name,
			URL:  entry.client.BaseURL(),
			Err:  entry.client.HealthCheck(ctx),
		})
	}

	return results
}
