package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/podcast-service/internal/audio"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/metrics"
)

// voiceJob is everything a voice request needs, captured under the lock.
type voiceJob struct {
	generation uint64
	request    core.VoiceRequest
	// discard is the stored audio key the new request replaces.
	discard string
}

// GenerateVoice synthesizes the slot's text with its configured voice. Configuration problems
// are reported before any network call and leave the slot untouched. A service or decode
// failure moves the slot to VoiceFailed. Re-issuing the request from any state starts over
// and makes earlier replies stale.
func (c *Controller) GenerateVoice(ctx context.Context, slotIndex int) error {
	job, err := c.startVoice(slotIndex)
	if err != nil {
		return err
	}

	c.log.Info("Slot %d: voice generation started (voice %s, generation %d)",
		slotIndex, job.request.VoiceID, job.generation)
	c.discardAudio(ctx, job.discard)

	started := c.begin(StageVoice)
	resp, err := c.services.Voice.Synthesize(ctx, job.request)

	var handle *audio.Handle
	if err == nil {
		handle, err = audio.Decode(resp.AudioContent, resp.MimeType)
	}

	audioRef := ""
	if err == nil && ctx.Err() == nil && c.current(slotIndex, job.generation) {
		audioRef = c.storeAudio(ctx, slotIndex, handle)
	}

	return c.applyVoice(ctx, slotIndex, job, started, handle, audioRef, err)
}

// applyVoice settles a voice reply. A stored upload whose reply is rejected is deleted again.
func (c *Controller) applyVoice(
	ctx context.Context,
	slotIndex int,
	job voiceJob,
	started time.Time,
	handle *audio.Handle,
	audioRef string,
	err error,
) error {
	c.mu.Lock()

	s := c.slots[slotIndex]

	settleErr := c.settleLocked(ctx, s, job.generation, StageVoice, started)
	if settleErr != nil {
		c.mu.Unlock()
		c.discardAudio(ctx, storedKey(audioRef))

		return settleErr
	}

	defer c.mu.Unlock()

	if err != nil {
		c.finish(StageVoice, metrics.OutcomeFailure, started)
		s.fail(VoiceFailed, err)
		c.log.Error("Slot %d: voice generation failed: %v", slotIndex, err)

		return slotError(slotIndex, StageVoice, err)
	}

	c.finish(StageVoice, metrics.OutcomeSuccess, started)

	s.state = VoiceReady
	s.audio = handle
	s.audioRef = audioRef
	s.voiceUsed = job.request.VoiceID
	s.player = audio.NewPlayer(handle, c.opts.Clock)

	c.log.Info("Slot %d: voice ready (%s, decoded=%t)", slotIndex, handle.MIMEType, handle.Decoded())

	return nil
}

// startVoice validates the slot's preconditions and enters VoiceGenerating.
func (c *Controller) startVoice(slotIndex int) (voiceJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.slotLocked(slotIndex, StageVoice)
	if err != nil {
		return voiceJob{}, err
	}

	if c.script == "" {
		return voiceJob{}, slotError(slotIndex, StageVoice, ErrNoScript)
	}

	voiceID, err := resolveVoice(s.voice)
	if err != nil {
		return voiceJob{}, slotError(slotIndex, StageVoice, err)
	}

	text := c.speakerTextLocked(slotIndex)
	if text == "" {
		return voiceJob{}, slotError(slotIndex, StageVoice, ErrNoSpeakerText)
	}

	if c.services.Voice == nil {
		return voiceJob{}, slotError(slotIndex, StageVoice, ErrServiceUnavailable)
	}

	modelID := s.voice.ModelID
	if modelID == "" {
		modelID = c.opts.DefaultModelID
	}

	discard := c.orphanedAudioLocked(s)
	s.clearAudio()
	generation := s.enter(VoiceGenerating)

	return voiceJob{
		generation: generation,
		request:    core.VoiceRequest{Text: text, VoiceID: voiceID, ModelID: modelID},
		discard:    discard,
	}, nil
}

func storedKey(audioRef string) string {
	if strings.HasPrefix(audioRef, audioKeyPrefix) {
		return audioRef
	}

	return ""
}

func resolveVoice(voice core.AvatarVoiceConfig) (string, error) {
	if voice.VoiceID == core.CustomVoiceID {
		if voice.ResolvedVoiceID() == "" {
			return "", ErrCustomVoiceIDEmpty
		}

		return voice.ResolvedVoiceID(), nil
	}

	voiceID := voice.ResolvedVoiceID()
	if voiceID == "" {
		return "", ErrVoiceIDEmpty
	}

	return voiceID, nil
}

// GenerateAllVoices runs GenerateVoice for every slot still lacking a voice, strictly one after
// another in index order. A failing slot does not stop the rest; its error is collected. Only
// cancellation of ctx ends the run early.
func (c *Controller) GenerateAllVoices(ctx context.Context) []*SlotError {
	var failures []*SlotError

	for slotIndex := range c.slots {
		if ctx.Err() != nil {
			c.log.Warn("Bulk voice generation cancelled before slot %d: %v", slotIndex, ctx.Err())

			break
		}

		c.mu.Lock()
		pending := c.slots[slotIndex].state.needsVoice()
		c.mu.Unlock()

		if !pending {
			continue
		}

		err := c.GenerateVoice(ctx, slotIndex)
		if err == nil {
			continue
		}

		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			break
		}

		slotErr, ok := IsSlotError(err)
		if !ok {
			slotErr = slotError(slotIndex, StageVoice, fmt.Errorf("unexpected error: %w", err))
		}

		failures = append(failures, slotErr)
	}

	c.log.Info("Bulk voice generation finished with %d failed slots", len(failures))

	return failures
}
