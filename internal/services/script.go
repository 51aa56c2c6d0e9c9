package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/podcast-service/internal/core"
)

// Script collaborator paths.
const (
	apiGenerateScript = "/generate-script"
	apiAnalyzeLinks   = "/analyze-links"
)

// ScriptClient talks to the script and link-analysis collaborators.
type ScriptClient struct {
	*Client
}

// NewScriptClient creates a script client.
func NewScriptClient(baseURL, apiKey string, timeout time.Duration) *ScriptClient {
	return &ScriptClient{Client: NewClient(baseURL, apiKey, timeout)}
}

// GenerateScript requests a transcript for the concept and returns it unchanged.
func (c *ScriptClient) GenerateScript(ctx context.Context, req core.ScriptRequest) (string, error) {
	req.Concept = strings.TrimSpace(req.Concept)
	req.Links = nonBlank(req.Links)

	var resp core.ScriptResponse

	err := c.postJSON(ctx, apiGenerateScript, req, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to generate script: %w", err)
	}

	if strings.TrimSpace(resp.Script) == "" {
		return "", fmt.Errorf("%w: script service returned an empty script", ErrService)
	}

	return resp.Script, nil
}

// AnalyzeLinks turns reference links into an enhanced podcast concept.
func (c *ScriptClient) AnalyzeLinks(
	ctx context.Context,
	req core.LinkAnalysisRequest,
) (*core.LinkAnalysisResponse, error) {
	req.Links = nonBlank(req.Links)

	var resp core.LinkAnalysisResponse

	err := c.postJSON(ctx, apiAnalyzeLinks, req, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze links: %w", err)
	}

	if len(resp.OriginalLinks) == 0 {
		resp.OriginalLinks = req.Links
	}

	return &resp, nil
}
