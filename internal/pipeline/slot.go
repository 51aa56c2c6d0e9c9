package pipeline

import (
	"fmt"

	"github.com/book-expert/podcast-service/internal/audio"
	"github.com/book-expert/podcast-service/internal/core"
)

// Profile describes the avatar a slot turns into once its video is ready.
type Profile struct {
	Name        string      `json:"name"`
	Gender      core.Gender `json:"gender"`
	Description string      `json:"description"`
}

// Snapshot is a read-only copy of one slot.
type Snapshot struct {
	Slot       int                    `json:"slot"`
	State      State                  `json:"state"`
	Generation uint64                 `json:"generation"`
	Voice      core.AvatarVoiceConfig `json:"voice"`
	Profile    Profile                `json:"profile"`
	AudioRef   string                 `json:"audioRef,omitempty"`
	ImageRef   string                 `json:"imageRef,omitempty"`
	VideoRef   string                 `json:"videoRef,omitempty"`
	AvatarID   string                 `json:"avatarId,omitempty"`
	Playback   audio.PlaybackState    `json:"-"`
	Err        error                  `json:"-"`
}

type slot struct {
	index      int
	state      State
	generation uint64
	voice      core.AvatarVoiceConfig
	profile    Profile
	// voiceUsed is the resolved voice id the current audio was generated with.
	voiceUsed string
	audio     *audio.Handle
	audioRef  string
	player    *audio.Player
	imageRef  string
	videoRef  string
	avatarID  string
	lastErr   error
}

func newSlot(index int) *slot {
	gender := core.GenderFemale
	if index%2 == 1 {
		gender = core.GenderMale
	}

	return &slot{
		index:      index,
		state:      NoVoice,
		generation: 0,
		voice:      core.AvatarVoiceConfig{VoiceID: "", ModelID: "", CustomVoiceID: ""},
		profile: Profile{
			Name:        fmt.Sprintf("Avatar %d", index+1),
			Gender:      gender,
			Description: "",
		},
		voiceUsed: "",
		audio:     nil,
		audioRef:  "",
		player:    nil,
		imageRef:  "",
		videoRef:  "",
		avatarID:  "",
		lastErr:   nil,
	}
}

// reset returns the slot to NoVoice and invalidates any reply in flight.
func (s *slot) reset() {
	s.generation++
	s.clearAudio()
	s.state = NoVoice
	s.lastErr = nil
}

// clearAudio drops the audio and everything derived from it.
func (s *slot) clearAudio() {
	if s.player != nil {
		s.player.Release()
	}

	s.player = nil
	s.audio = nil
	s.audioRef = ""
	s.voiceUsed = ""
	s.imageRef = ""
	s.videoRef = ""
	s.avatarID = ""
}

// enter moves the slot into a generating state and returns the request's generation.
func (s *slot) enter(state State) uint64 {
	s.generation++
	s.state = state
	s.lastErr = nil

	return s.generation
}

func (s *slot) fail(state State, err error) {
	s.state = state
	s.lastErr = err
}

func (s *slot) snapshot() Snapshot {
	playback := audio.Stopped
	if s.player != nil {
		playback = s.player.State()
	}

	return Snapshot{
		Slot:       s.index,
		State:      s.state,
		Generation: s.generation,
		Voice:      s.voice,
		Profile:    s.profile,
		AudioRef:   s.audioRef,
		ImageRef:   s.imageRef,
		VideoRef:   s.videoRef,
		AvatarID:   s.avatarID,
		Playback:   playback,
		Err:        s.lastErr,
	}
}
