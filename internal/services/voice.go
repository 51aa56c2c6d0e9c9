package services

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/podcast-service/internal/core"
)

const apiGenerateVoice = "/generate-voice"

// VoiceClient talks to the voice synthesis collaborator.
type VoiceClient struct {
	*Client
}

// NewVoiceClient creates a voice client.
func NewVoiceClient(baseURL, apiKey string, timeout time.Duration) *VoiceClient {
	return &VoiceClient{Client: NewClient(baseURL, apiKey, timeout)}
}

// Synthesize requests speech for req.Text and returns the base64 payload.
func (c *VoiceClient) Synthesize(ctx context.Context, req core.VoiceRequest) (*core.VoiceResponse, error) {
	var resp core.VoiceResponse

	err := c.postJSON(ctx, apiGenerateVoice, req, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize voice %s: %w", req.VoiceID, err)
	}

	if resp.AudioContent == "" {
		return nil, fmt.Errorf("%w: voice service returned empty audio", ErrService)
	}

	return &resp, nil
}
