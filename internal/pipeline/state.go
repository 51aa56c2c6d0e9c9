package pipeline

// State is the position of one avatar slot in the generation pipeline.
type State int

// Slot states in pipeline order.
const (
	NoVoice State = iota
	VoiceGenerating
	VoiceReady
	VoiceFailed
	ImageSelected
	VideoGenerating
	VideoReady
	VideoFailed
)

func (s State) String() string {
	switch s {
	case NoVoice:
		return "no_voice"
	case VoiceGenerating:
		return "voice_generating"
	case VoiceReady:
		return "voice_ready"
	case VoiceFailed:
		return "voice_failed"
	case ImageSelected:
		return "image_selected"
	case VideoGenerating:
		return "video_generating"
	case VideoReady:
		return "video_ready"
	case VideoFailed:
		return "video_failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Generating reports whether a collaborator request is outstanding in this state.
func (s State) Generating() bool {
	return s == VoiceGenerating || s == VideoGenerating
}

// hasImageStage reports whether the slot has a usable voice and may pick an image.
func (s State) hasImageStage() bool {
	switch s {
	case VoiceReady, ImageSelected, VideoReady, VideoFailed:
		return true
	case NoVoice, VoiceGenerating, VoiceFailed, VideoGenerating:
		return false
	default:
		return false
	}
}

// canStartVideo reports whether a video request may be issued from this state.
func (s State) canStartVideo() bool {
	switch s {
	case ImageSelected, VideoFailed, VideoReady:
		return true
	case NoVoice, VoiceGenerating, VoiceReady, VoiceFailed, VideoGenerating:
		return false
	default:
		return false
	}
}

// needsVoice reports whether bulk voice generation should process the slot.
func (s State) needsVoice() bool {
	return s == NoVoice || s == VoiceFailed
}

// Stage names the collaborator step an operation belongs to.
type Stage string

// Pipeline stages.
const (
	StageScript   Stage = "script"
	StageVoice    Stage = "voice"
	StageImage    Stage = "image"
	StageVideo    Stage = "video"
	StagePlayback Stage = "playback"
	StageConfig   Stage = "config"
)
