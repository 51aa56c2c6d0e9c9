// Package live models a live podcast broadcast in which the host hands the floor to
// pre-rendered avatars.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/podcast-service/internal/core"
)

// Host is the speaker id of the human host.
const Host = "host"

var (
	// ErrAlreadyLive indicates Start on a running session.
	ErrAlreadyLive = errors.New("session is already live")
	// ErrNotLive indicates an operation that needs a running session.
	ErrNotLive = errors.New("session is not live")
	// ErrNoAvatars indicates that no avatar is selected for the live session.
	ErrNoAvatars = errors.New("no avatars selected for live")
	// ErrAvatarsInactive indicates handing the floor to an avatar while avatars are off.
	ErrAvatarsInactive = errors.New("avatars are not active")
	// ErrUnknownSpeaker indicates a speaker that is neither the host nor a selected avatar.
	ErrUnknownSpeaker = errors.New("unknown speaker")
	// ErrCapture indicates that the host's camera or microphone could not be opened.
	ErrCapture = errors.New("failed to open media capture")
)

// Roster supplies the avatars selected for the live session.
type Roster interface {
	Selected() []core.GeneratedAvatar
}

// Capture opens and closes the host's camera and microphone.
type Capture interface {
	Start(ctx context.Context) error
	Stop() error
}

// Status is a copy of the session state.
type Status struct {
	Live          bool      `json:"live"`
	Recording     bool      `json:"recording"`
	AvatarsActive bool      `json:"avatarsActive"`
	MicEnabled    bool      `json:"micEnabled"`
	CameraEnabled bool      `json:"cameraEnabled"`
	Speaker       string    `json:"speaker"`
	StartedAt     time.Time `json:"startedAt"`
}

// Session is one live broadcast. It is safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	roster  Roster
	capture Capture
	now     func() time.Time
	status  Status
}

// NewSession creates a stopped session with microphone and camera enabled. capture may be nil.
func NewSession(roster Roster, capture Capture, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}

	return &Session{
		mu:      sync.Mutex{},
		roster:  roster,
		capture: capture,
		now:     now,
		status:  idleStatus(),
	}
}

func idleStatus() Status {
	return Status{
		Live:          false,
		Recording:     false,
		AvatarsActive: false,
		MicEnabled:    true,
		CameraEnabled: true,
		Speaker:       Host,
		StartedAt:     time.Time{},
	}
}

// Start opens the capture devices and goes live with the host speaking.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Live {
		return ErrAlreadyLive
	}

	if s.capture != nil {
		err := s.capture.Start(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCapture, err)
		}
	}

	s.status.Live = true
	s.status.Recording = true
	s.status.Speaker = Host
	s.status.StartedAt = s.now()

	return nil
}

// Stop ends the broadcast, deactivates the avatars and releases the capture devices.
// Microphone and camera preferences are kept for the next session.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.Live {
		return ErrNotLive
	}

	mic, camera := s.status.MicEnabled, s.status.CameraEnabled
	s.status = idleStatus()
	s.status.MicEnabled = mic
	s.status.CameraEnabled = camera

	if s.capture != nil {
		err := s.capture.Stop()
		if err != nil {
			return fmt.Errorf("failed to stop media capture: %w", err)
		}
	}

	return nil
}

// ToggleAvatars switches the avatars on or off and returns the new setting. Turning them on
// gives the floor to the first selected avatar; turning them off returns it to the host.
func (s *Session) ToggleAvatars() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.AvatarsActive {
		s.status.AvatarsActive = false
		s.status.Speaker = Host

		return false, nil
	}

	selected := s.roster.Selected()
	if len(selected) == 0 {
		return false, ErrNoAvatars
	}

	s.status.AvatarsActive = true
	s.status.Speaker = selected[0].ID

	return true, nil
}

// SetSpeaker hands the floor to the host or, while avatars are active, to a selected avatar.
func (s *Session) SetSpeaker(speaker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.Live {
		return ErrNotLive
	}

	if speaker != Host {
		if !s.selected(speaker) {
			return fmt.Errorf("%w: %q", ErrUnknownSpeaker, speaker)
		}

		if !s.status.AvatarsActive {
			return fmt.Errorf("%w: %q", ErrAvatarsInactive, speaker)
		}
	}

	s.status.Speaker = speaker

	return nil
}

func (s *Session) selected(id string) bool {
	for _, avatar := range s.roster.Selected() {
		if avatar.ID == id {
			return true
		}
	}

	return false
}

// ToggleMic flips the microphone and returns the new setting.
func (s *Session) ToggleMic() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.MicEnabled = !s.status.MicEnabled

	return s.status.MicEnabled
}

// ToggleCamera flips the camera and returns the new setting.
func (s *Session) ToggleCamera() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.CameraEnabled = !s.status.CameraEnabled

	return s.status.CameraEnabled
}

// Status returns a copy of the session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}
