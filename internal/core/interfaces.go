// Package core defines the domain types and collaborator interfaces for the podcast service.
package core

import (
	"context"
	"errors"
	"strings"
)

// CustomVoiceID marks a voice configuration whose real id lives in CustomVoiceID.
const CustomVoiceID = "custom"

// ErrObjectNotFound is returned by an ObjectStore when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Gender is the presentation hint passed to the video collaborator.
type Gender string

// Supported genders.
const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// AvatarVoiceConfig selects the synthesis voice for one avatar slot.
type AvatarVoiceConfig struct {
	VoiceID       string `json:"voiceId"       toml:"voice_id"`
	ModelID       string `json:"modelId"       toml:"model_id"`
	CustomVoiceID string `json:"customVoiceId" toml:"custom_voice_id"`
}

// ResolvedVoiceID returns the id that should be sent to the voice service.
// It is empty when the configuration cannot be used.
func (c AvatarVoiceConfig) ResolvedVoiceID() string {
	if c.VoiceID == CustomVoiceID {
		return strings.TrimSpace(c.CustomVoiceID)
	}

	return strings.TrimSpace(c.VoiceID)
}

// GeneratedAvatar is an immutable record produced once a slot's video is ready.
type GeneratedAvatar struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Gender      Gender `json:"gender"`
	VoiceID     string `json:"voice"`
	ImageRef    string `json:"image,omitempty"`
	VideoRef    string `json:"video,omitempty"`
	AudioRef    string `json:"audio,omitempty"`
	Description string `json:"description"`
}

// ScriptRequest is the payload of the script collaborator.
type ScriptRequest struct {
	Concept      string   `json:"concept"      validate:"required"`
	Links        []string `json:"links"`
	SpeakerCount int      `json:"speakerCount" validate:"min=1,max=8"`
}

// ScriptResponse is the reply of the script collaborator.
type ScriptResponse struct {
	Script string `json:"script"`
}

// LinkAnalysisRequest asks the analysis collaborator to turn reference links into a concept.
type LinkAnalysisRequest struct {
	Links    []string `json:"links"    validate:"required,min=1,dive,required"`
	Concept  string   `json:"concept"`
	Duration string   `json:"duration"`
}

// LinkAnalysis is the enhanced podcast concept derived from reference links.
type LinkAnalysis struct {
	EnhancedConcept   string   `json:"enhancedConcept"`
	MainTopics        []string `json:"mainTopics"`
	Style             string   `json:"style"`
	KeyPoints         []string `json:"keyPoints"`
	SuggestedApproach string   `json:"suggestedApproach"`
}

// LinkAnalysisResponse is the reply of the analysis collaborator.
type LinkAnalysisResponse struct {
	Analysis      LinkAnalysis `json:"analysis"`
	OriginalLinks []string     `json:"originalLinks"`
}

// VoiceRequest is the payload of the voice collaborator.
type VoiceRequest struct {
	Text    string `json:"text"    validate:"required"`
	VoiceID string `json:"voiceId" validate:"required"`
	ModelID string `json:"modelId"`
}

// VoiceResponse carries base64 encoded audio.
type VoiceResponse struct {
	AudioContent string `json:"audioContent"`
	MimeType     string `json:"mimeType"`
}

// ImageRequest is the payload of the image collaborator.
type ImageRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

// ImageResponse is the reply of the image collaborator.
type ImageResponse struct {
	ImageURL string `json:"imageUrl"`
	Model    string `json:"model"`
	RunwayID string `json:"runway_id"`
}

// VideoRequest is the payload of the video collaborator.
type VideoRequest struct {
	GenderHint      Gender   `json:"genderHint"      validate:"omitempty,oneof=male female"`
	ImageRef        string   `json:"imageRef"        validate:"required"`
	AudioRef        string   `json:"audioRef"        validate:"required"`
	DurationSeconds int      `json:"durationSeconds" validate:"min=1"`
	EmotionTags     []string `json:"emotionTags"`
	MovementTags    []string `json:"movementTags"`
}

// VideoResponse is the reply of the video collaborator.
type VideoResponse struct {
	VideoRef string `json:"videoRef"`
	Error    string `json:"error,omitempty"`
}

// ScriptService generates podcast transcripts.
type ScriptService interface {
	GenerateScript(ctx context.Context, req ScriptRequest) (string, error)
}

// LinkAnalyzer turns reference links into an enhanced concept.
type LinkAnalyzer interface {
	AnalyzeLinks(ctx context.Context, req LinkAnalysisRequest) (*LinkAnalysisResponse, error)
}

// VoiceService synthesizes speech for one speaker's text.
type VoiceService interface {
	Synthesize(ctx context.Context, req VoiceRequest) (*VoiceResponse, error)
}

// ImageService generates avatar portraits.
type ImageService interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error)
}

// VideoService renders a lip-synced avatar clip from an image and audio.
type VideoService interface {
	GenerateVideo(ctx context.Context, req VideoRequest) (*VideoResponse, error)
}
