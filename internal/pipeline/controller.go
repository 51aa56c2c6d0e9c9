// Package pipeline drives every avatar slot of a podcast through voice, image and video
// generation.
//
// Each slot is a small state machine. Transitions happen under the controller's mutex while
// collaborator calls run without it, so slots progress independently. Every entry into a
// generating state bumps the slot's generation counter; a reply tagged with an older counter
// is discarded with ErrSuperseded and changes nothing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/podcast-service/internal/audio"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/metrics"
	"github.com/book-expert/podcast-service/internal/segment"
	"github.com/book-expert/podcast-service/internal/speech"
)

const (
	defaultVideoDurationSeconds = 10
	audioKeyPrefix              = "audio/"
)

// Services groups the collaborators the controller calls. Any of them may be nil, in which
// case the matching operation fails with ErrServiceUnavailable.
type Services struct {
	Script core.ScriptService
	Voice  core.VoiceService
	Image  core.ImageService
	Video  core.VideoService
}

// Recorder receives generation metrics.
type Recorder interface {
	GenerationStarted(stage string)
	GenerationFinished(stage, outcome string, elapsed time.Duration)
}

// AvatarSink receives every avatar the pipeline produces.
type AvatarSink interface {
	Add(avatar core.GeneratedAvatar)
}

// Options tune the controller.
type Options struct {
	SpeakerCount         int
	DefaultModelID       string
	VideoDurationSeconds int
	ExclusivePlayback    bool
	NormalizeText        bool
	EmotionTags          []string
	MovementTags         []string
	// Store, when set, receives decoded audio so slots can refer to it by key.
	Store    core.ObjectStore
	Recorder Recorder
	Sink     AvatarSink
	// Clock drives playback positions. Nil means time.Now.
	Clock func() time.Time
}

// Controller owns the per-slot pipeline state for one podcast.
type Controller struct {
	mu         sync.Mutex
	services   Services
	opts       Options
	log        *logger.Logger
	recorder   Recorder
	normalizer *speech.Normalizer
	script     string
	slots      []*slot
	avatars    []core.GeneratedAvatar
}

type noopRecorder struct{}

func (noopRecorder) GenerationStarted(string)                        {}
func (noopRecorder) GenerationFinished(string, string, time.Duration) {}

// NewController creates a controller with opts.SpeakerCount empty slots.
func NewController(services Services, opts Options, log *logger.Logger) (*Controller, error) {
	if opts.SpeakerCount < 1 {
		return nil, fmt.Errorf("%w: speaker count must be at least 1, got %d", ErrInvalidOptions, opts.SpeakerCount)
	}

	if opts.VideoDurationSeconds < 0 {
		return nil, fmt.Errorf("%w: video duration must not be negative", ErrInvalidOptions)
	}

	if opts.VideoDurationSeconds == 0 {
		opts.VideoDurationSeconds = defaultVideoDurationSeconds
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	var recorder Recorder = noopRecorder{}
	if opts.Recorder != nil {
		recorder = opts.Recorder
	}

	var normalizer *speech.Normalizer
	if opts.NormalizeText {
		normalizer = speech.NewNormalizer()
	}

	slots := make([]*slot, opts.SpeakerCount)
	for index := range slots {
		slots[index] = newSlot(index)
	}

	return &Controller{
		mu:         sync.Mutex{},
		services:   services,
		opts:       opts,
		log:        log,
		recorder:   recorder,
		normalizer: normalizer,
		script:     "",
		slots:      slots,
		avatars:    nil,
	}, nil
}

// SlotCount returns the number of avatar slots.
func (c *Controller) SlotCount() int {
	return len(c.slots)
}

// Script returns the current script.
func (c *Controller) Script() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.script
}

// SetScript replaces the script and resets every slot to NoVoice. Voice configurations and
// avatar profiles survive; audio, images and videos do not. Replies still in flight become stale.
func (c *Controller) SetScript(script string) {
	c.mu.Lock()

	c.script = script

	discarded := make([]string, 0, len(c.slots))
	for _, s := range c.slots {
		discarded = append(discarded, c.orphanedAudioLocked(s))
		s.reset()
	}

	c.log.Info("Script set (%d characters); %d slots reset", len(script), len(c.slots))
	c.mu.Unlock()

	c.discardAudio(context.Background(), discarded...)
}

// GenerateScript asks the script collaborator for a new transcript and installs it with SetScript.
// On failure the current script and slot states are left untouched.
func (c *Controller) GenerateScript(ctx context.Context, concept string, links []string) (string, error) {
	if c.services.Script == nil {
		return "", fmt.Errorf("%s: %w", StageScript, ErrServiceUnavailable)
	}

	req := core.ScriptRequest{Concept: concept, Links: links, SpeakerCount: len(c.slots)}

	started := c.begin(StageScript)
	script, err := c.services.Script.GenerateScript(ctx, req)

	if ctx.Err() != nil {
		c.finish(StageScript, metrics.OutcomeCancelled, started)

		return "", fmt.Errorf("script generation abandoned: %w", ctx.Err())
	}

	if err != nil {
		c.finish(StageScript, metrics.OutcomeFailure, started)
		c.log.Error("Script generation failed: %v", err)

		return "", fmt.Errorf("failed to generate script: %w", err)
	}

	c.finish(StageScript, metrics.OutcomeSuccess, started)
	c.SetScript(script)

	return script, nil
}

// SpeakerText returns the text the script attributes to the slot, after normalisation when enabled.
func (c *Controller) SpeakerText(slotIndex int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.slotLocked(slotIndex, StageVoice)
	if err != nil {
		return "", err
	}

	return c.speakerTextLocked(slotIndex), nil
}

func (c *Controller) speakerTextLocked(slotIndex int) string {
	text := segment.ExtractSpeakerText(c.script, slotIndex)
	if c.normalizer != nil && text != "" {
		text = c.normalizer.Normalize(text)
	}

	return text
}

// ConfigureVoice assigns the voice used by the slot's next voice generation.
func (c *Controller) ConfigureVoice(slotIndex int, voice core.AvatarVoiceConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.slotLocked(slotIndex, StageConfig)
	if err != nil {
		return err
	}

	s.voice = voice

	return nil
}

// ConfigureAvatar sets the profile used when the slot's avatar is created.
func (c *Controller) ConfigureAvatar(slotIndex int, profile Profile) error {
	if profile.Gender != "" && profile.Gender != core.GenderMale && profile.Gender != core.GenderFemale {
		return slotError(slotIndex, StageConfig, fmt.Errorf("%w: got %q", ErrInvalidGender, profile.Gender))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.slotLocked(slotIndex, StageConfig)
	if err != nil {
		return err
	}

	if strings.TrimSpace(profile.Name) == "" {
		profile.Name = s.profile.Name
	}

	if profile.Gender == "" {
		profile.Gender = s.profile.Gender
	}

	s.profile = profile

	return nil
}

// Snapshot returns a copy of the slot's state.
func (c *Controller) Snapshot(slotIndex int) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.slotLocked(slotIndex, StageConfig)
	if err != nil {
		return Snapshot{}, err
	}

	return s.snapshot(), nil
}

// Snapshots returns copies of every slot's state in index order.
func (c *Controller) Snapshots() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshots := make([]Snapshot, len(c.slots))
	for index, s := range c.slots {
		snapshots[index] = s.snapshot()
	}

	return snapshots
}

// Avatars returns the avatars produced so far, oldest first.
func (c *Controller) Avatars() []core.GeneratedAvatar {
	c.mu.Lock()
	defer c.mu.Unlock()

	avatars := make([]core.GeneratedAvatar, len(c.avatars))
	copy(avatars, c.avatars)

	return avatars
}

// AudioHandle returns the slot's decoded audio.
func (c *Controller) AudioHandle(slotIndex int) (*audio.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.slotLocked(slotIndex, StagePlayback)
	if err != nil {
		return nil, err
	}

	if s.audio == nil {
		return nil, slotError(slotIndex, StagePlayback, ErrNoAudio)
	}

	return s.audio, nil
}

func (c *Controller) slotLocked(slotIndex int, stage Stage) (*slot, error) {
	if slotIndex < 0 || slotIndex >= len(c.slots) {
		return nil, slotError(slotIndex, stage, fmt.Errorf("%w: %d not in [0, %d)", ErrSlotOutOfRange, slotIndex, len(c.slots)))
	}

	return c.slots[slotIndex], nil
}

// settleLocked decides whether a reply for request generation may still be applied.
func (c *Controller) settleLocked(ctx context.Context, s *slot, generation uint64, stage Stage, started time.Time) error {
	if ctx.Err() != nil {
		c.finish(stage, metrics.OutcomeCancelled, started)
		c.log.Warn("Slot %d: %s request abandoned: %v", s.index, stage, ctx.Err())

		return slotError(s.index, stage, ctx.Err())
	}

	if s.generation != generation {
		c.finish(stage, metrics.OutcomeSuperseded, started)
		c.log.Warn("Slot %d: discarding stale %s reply (generation %d, current %d)", s.index, stage, generation, s.generation)

		return slotError(s.index, stage, ErrSuperseded)
	}

	return nil
}

func (c *Controller) begin(stage Stage) time.Time {
	c.recorder.GenerationStarted(string(stage))

	return time.Now()
}

func (c *Controller) finish(stage Stage, outcome string, started time.Time) {
	c.recorder.GenerationFinished(string(stage), outcome, time.Since(started))
}

func (c *Controller) storeAudio(ctx context.Context, slotIndex int, handle *audio.Handle) string {
	if c.opts.Store == nil || !handle.Decoded() {
		return handle.URL()
	}

	key := audioKeyPrefix + uuid.NewString() + handle.Format().Extension()

	err := c.opts.Store.Upload(ctx, key, handle.Data)
	if err != nil {
		c.log.Warn("Slot %d: failed to upload audio, keeping it inline: %v", slotIndex, err)

		return handle.URL()
	}

	return key
}

// orphanedAudioLocked returns the slot's stored audio key when no avatar refers to it.
func (c *Controller) orphanedAudioLocked(s *slot) string {
	if !strings.HasPrefix(s.audioRef, audioKeyPrefix) {
		return ""
	}

	for _, avatar := range c.avatars {
		if avatar.AudioRef == s.audioRef {
			return ""
		}
	}

	return s.audioRef
}

// current reports whether generation is still the slot's latest request.
func (c *Controller) current(slotIndex int, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.slots[slotIndex].generation == generation
}

// discardAudio deletes stored audio objects nothing refers to any more. Empty keys are skipped.
func (c *Controller) discardAudio(ctx context.Context, keys ...string) {
	if c.opts.Store == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)

	for _, key := range keys {
		if key == "" {
			continue
		}

		err := c.opts.Store.Delete(ctx, key)
		if err != nil {
			c.log.Warn("Failed to delete stale audio object %s: %v", key, err)
		}
	}
}

// IsSlotError reports whether err carries a slot and returns it.
func IsSlotError(err error) (*SlotError, bool) {
	var slotErr *SlotError
	if errors.As(err, &slotErr) {
		return slotErr, true
	}

	return nil, false
}
