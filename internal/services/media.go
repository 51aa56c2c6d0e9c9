package services

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/podcast-service/internal/core"
)

// Media collaborator paths.
const (
	apiGenerateImage = "/generate-image"
	apiGenerateVideo = "/generate-avatar-video"
)

// ImageClient talks to the portrait generation collaborator.
type ImageClient struct {
	*Client
}

// NewImageClient creates an image client.
func NewImageClient(baseURL, apiKey string, timeout time.Duration) *ImageClient {
	return &ImageClient{Client: NewClient(baseURL, apiKey, timeout)}
}

// GenerateImage requests a portrait for the prompt.
func (c *ImageClient) GenerateImage(ctx context.Context, req core.ImageRequest) (*core.ImageResponse, error) {
	var resp core.ImageResponse

	err := c.postJSON(ctx, apiGenerateImage, req, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}

	if resp.ImageURL == "" {
		return nil, fmt.Errorf("%w: image service returned no image url", ErrService)
	}

	return &resp, nil
}

// VideoClient talks to the avatar video collaborator.
type VideoClient struct {
	*Client
}

// NewVideoClient creates a video client.
func NewVideoClient(baseURL, apiKey string, timeout time.Duration) *VideoClient {
	return &VideoClient{Client: NewClient(baseURL, apiKey, timeout)}
}

// GenerateVideo requests a lip-synced clip for the image and audio references.
func (c *VideoClient) GenerateVideo(ctx context.Context, req core.VideoRequest) (*core.VideoResponse, error) {
	var resp core.VideoResponse

	err := c.postJSON(ctx, apiGenerateVideo, req, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to generate video: %w", err)
	}

	if resp.Error != "" {
		return nil, fmt.Errorf("%w: video service: %s", ErrService, resp.Error)
	}

	if resp.VideoRef == "" {
		return nil, fmt.Errorf("%w: video service returned no video reference", ErrService)
	}

	return &resp, nil
}
