package pipeline

import (
	"fmt"

	"github.com/book-expert/podcast-service/internal/audio"
)

// Play starts or resumes the slot's audio. With exclusive playback every other slot is
// stopped first.
func (c *Controller) Play(slotIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	player, err := c.playerLocked(slotIndex)
	if err != nil {
		return err
	}

	if c.opts.ExclusivePlayback {
		for _, other := range c.slots {
			if other.index != slotIndex && other.player != nil {
				other.player.Stop()
			}
		}
	}

	playErr := player.Play()
	if playErr != nil {
		return slotError(slotIndex, StagePlayback, fmt.Errorf("failed to play: %w", playErr))
	}

	return nil
}

// Pause suspends the slot's audio, keeping its position.
func (c *Controller) Pause(slotIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	player, err := c.playerLocked(slotIndex)
	if err != nil {
		return err
	}

	player.Pause()

	return nil
}

// Stop halts the slot's audio and rewinds it.
func (c *Controller) Stop(slotIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	player, err := c.playerLocked(slotIndex)
	if err != nil {
		return err
	}

	player.Stop()

	return nil
}

// PlaybackState returns the slot's transport state; slots without audio are stopped.
func (c *Controller) PlaybackState(slotIndex int) (audio.PlaybackState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.slotLocked(slotIndex, StagePlayback)
	if err != nil {
		return audio.Stopped, err
	}

	if s.player == nil {
		return audio.Stopped, nil
	}

	return s.player.State(), nil
}

func (c *Controller) playerLocked(slotIndex int) (*audio.Player, error) {
	s, err := c.slotLocked(slotIndex, StagePlayback)
	if err != nil {
		return nil, err
	}

	if s.player == nil {
		return nil, slotError(slotIndex, StagePlayback, ErrNoAudio)
	}

	return s.player, nil
}
