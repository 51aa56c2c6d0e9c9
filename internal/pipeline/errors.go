package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is the parent of every voice configuration error.
	ErrInvalidConfiguration = errors.New("invalid voice configuration")
	// ErrVoiceIDEmpty indicates that no voice was selected for the slot.
	ErrVoiceIDEmpty = fmt.Errorf("%w: voice id is empty", ErrInvalidConfiguration)
	// ErrCustomVoiceIDEmpty indicates that the custom voice was selected without an id.
	ErrCustomVoiceIDEmpty = fmt.Errorf("%w: custom voice selected without a custom voice id", ErrInvalidConfiguration)
	// ErrNoSpeakerText indicates that the script has no text for the slot's speaker.
	ErrNoSpeakerText = fmt.Errorf("%w: script has no text for this speaker", ErrInvalidConfiguration)
	// ErrInvalidGender indicates an avatar profile with an unsupported gender.
	ErrInvalidGender = errors.New("gender must be male or female")

	// ErrInvalidOptions indicates unusable controller options.
	ErrInvalidOptions = errors.New("invalid pipeline options")
	// ErrSlotOutOfRange indicates a slot index outside the configured speaker count.
	ErrSlotOutOfRange = errors.New("slot index out of range")
	// ErrNoScript indicates that no script has been set.
	ErrNoScript = errors.New("no script available")
	// ErrInvalidTransition indicates an operation that the slot's current state does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNoAudio indicates that the slot has no ready voice.
	ErrNoAudio = errors.New("slot has no generated audio")
	// ErrNoImage indicates that the slot has no selected image.
	ErrNoImage = errors.New("slot has no selected image")
	// ErrSuperseded indicates that a reply arrived after the slot moved on.
	ErrSuperseded = errors.New("request superseded by a newer one")
	// ErrServiceUnavailable indicates that the collaborator for a stage is not configured.
	ErrServiceUnavailable = errors.New("collaborator service not configured")
)

// SlotError attaches a failure to the slot and stage it happened in.
type SlotError struct {
	Slot  int
	Stage Stage
	Err   error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("slot %d %s: %v", e.Slot, e.Stage, e.Err)
}

func (e *SlotError) Unwrap() error {
	return e.Err
}

func slotError(slot int, stage Stage, err error) *SlotError {
	return &SlotError{Slot: slot, Stage: stage, Err: err}
}
