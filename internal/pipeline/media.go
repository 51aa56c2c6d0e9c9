package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/metrics"
)

const portraitPromptFormat = "Professional studio portrait of %s, a %s podcast host, looking at the camera, " +
	"soft lighting, neutral background. %s"

// SelectImage attaches an image to a slot whose voice is ready. Selecting again replaces the
// image and discards the slot's current video; avatars already produced are kept.
func (c *Controller) SelectImage(slotIndex int, imageRef string) error {
	imageRef = strings.TrimSpace(imageRef)
	if imageRef == "" {
		return slotError(slotIndex, StageImage, ErrNoImage)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.slotLocked(slotIndex, StageImage)
	if err != nil {
		return err
	}

	if !s.state.hasImageStage() {
		return slotError(slotIndex, StageImage,
			fmt.Errorf("%w: cannot select an image in state %s", ErrInvalidTransition, s.state))
	}

	c.selectImageLocked(s, imageRef)

	return nil
}

func (c *Controller) selectImageLocked(s *slot, imageRef string) {
	s.imageRef = imageRef
	s.videoRef = ""
	s.avatarID = ""
	s.state = ImageSelected
	s.lastErr = nil

	c.log.Info("Slot %d: image selected", s.index)
}

// GenerateImage asks the image collaborator for a portrait and selects it. An empty prompt is
// built from the slot's profile. A failure leaves the slot as it was.
func (c *Controller) GenerateImage(ctx context.Context, slotIndex int, prompt string) (string, error) {
	c.mu.Lock()

	s, err := c.slotLocked(slotIndex, StageImage)
	if err != nil {
		c.mu.Unlock()

		return "", err
	}

	if !s.state.hasImageStage() {
		state := s.state
		c.mu.Unlock()

		return "", slotError(slotIndex, StageImage,
			fmt.Errorf("%w: cannot generate an image in state %s", ErrInvalidTransition, state))
	}

	if c.services.Image == nil {
		c.mu.Unlock()

		return "", slotError(slotIndex, StageImage, ErrServiceUnavailable)
	}

	if strings.TrimSpace(prompt) == "" {
		prompt = portraitPrompt(s.profile)
	}

	generation := s.generation
	c.mu.Unlock()

	started := c.begin(StageImage)
	resp, err := c.services.Image.GenerateImage(ctx, core.ImageRequest{Prompt: prompt})

	c.mu.Lock()
	defer c.mu.Unlock()

	settleErr := c.settleLocked(ctx, s, generation, StageImage, started)
	if settleErr != nil {
		return "", settleErr
	}

	if err != nil {
		c.finish(StageImage, metrics.OutcomeFailure, started)
		c.log.Error("Slot %d: image generation failed: %v", slotIndex, err)

		return "", slotError(slotIndex, StageImage, err)
	}

	if !s.state.hasImageStage() {
		c.finish(StageImage, metrics.OutcomeSuperseded, started)

		return "", slotError(slotIndex, StageImage, ErrSuperseded)
	}

	c.finish(StageImage, metrics.OutcomeSuccess, started)
	c.selectImageLocked(s, resp.ImageURL)

	return resp.ImageURL, nil
}

func portraitPrompt(profile Profile) string {
	gender := string(profile.Gender)
	if gender == "" {
		gender = "friendly"
	}

	return strings.TrimSpace(fmt.Sprintf(portraitPromptFormat, profile.Name, gender, profile.Description))
}

// videoJob is everything a video request needs, captured under the lock.
type videoJob struct {
	generation uint64
	request    core.VideoRequest
}

// GenerateVideo renders the slot's avatar clip from its audio and selected image. On success
// a new GeneratedAvatar with a fresh id is appended to the collection; earlier avatars are
// never modified. A failure moves the slot to VideoFailed, from which the request may be
// re-issued.
func (c *Controller) GenerateVideo(ctx context.Context, slotIndex int) (*core.GeneratedAvatar, error) {
	job, err := c.startVideo(slotIndex)
	if err != nil {
		return nil, err
	}

	c.log.Info("Slot %d: video generation started (generation %d)", slotIndex, job.generation)

	started := c.begin(StageVideo)
	resp, err := c.services.Video.GenerateVideo(ctx, job.request)

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.slots[slotIndex]

	settleErr := c.settleLocked(ctx, s, job.generation, StageVideo, started)
	if settleErr != nil {
		return nil, settleErr
	}

	if err != nil {
		c.finish(StageVideo, metrics.OutcomeFailure, started)
		s.fail(VideoFailed, err)
		c.log.Error("Slot %d: video generation failed: %v", slotIndex, err)

		return nil, slotError(slotIndex, StageVideo, err)
	}

	c.finish(StageVideo, metrics.OutcomeSuccess, started)

	avatar := core.GeneratedAvatar{
		ID:          uuid.NewString(),
		Name:        s.profile.Name,
		Gender:      s.profile.Gender,
		VoiceID:     s.voiceUsed,
		ImageRef:    s.imageRef,
		VideoRef:    resp.VideoRef,
		AudioRef:    s.audioRef,
		Description: s.profile.Description,
	}

	s.state = VideoReady
	s.videoRef = resp.VideoRef
	s.avatarID = avatar.ID
	c.avatars = append(c.avatars, avatar)

	if c.opts.Sink != nil {
		c.opts.Sink.Add(avatar)
	}

	c.log.Info("Slot %d: video ready, avatar %s created", slotIndex, avatar.ID)

	return &avatar, nil
}

// startVideo validates the slot's preconditions and enters VideoGenerating.
func (c *Controller) startVideo(slotIndex int) (videoJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.slotLocked(slotIndex, StageVideo)
	if err != nil {
		return videoJob{}, err
	}

	if s.audio == nil {
		return videoJob{}, slotError(slotIndex, StageVideo, ErrNoAudio)
	}

	if s.imageRef == "" {
		return videoJob{}, slotError(slotIndex, StageVideo, ErrNoImage)
	}

	if !s.state.canStartVideo() {
		return videoJob{}, slotError(slotIndex, StageVideo,
			fmt.Errorf("%w: cannot generate a video in state %s", ErrInvalidTransition, s.state))
	}

	if c.services.Video == nil {
		return videoJob{}, slotError(slotIndex, StageVideo, ErrServiceUnavailable)
	}

	// A failed or finished video goes back through ImageSelected before the retry.
	s.state = ImageSelected
	s.videoRef = ""
	s.avatarID = ""
	generation := s.enter(VideoGenerating)

	return videoJob{
		generation: generation,
		request: core.VideoRequest{
			GenderHint:      s.profile.Gender,
			ImageRef:        s.imageRef,
			AudioRef:        s.audio.URL(),
			DurationSeconds: c.opts.VideoDurationSeconds,
			EmotionTags:     append([]string(nil), c.opts.EmotionTags...),
			MovementTags:    append([]string(nil), c.opts.MovementTags...),
		},
	}, nil
}
