// Package audio decodes synthesized speech payloads into playable handles and tracks
// their playback.
package audio

import (
	"mime"
	"strings"
)

// Format represents supported audio formats.
type Format string

// Supported formats.
const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
	FormatOGG  Format = "ogg"
	FormatM4A  Format = "m4a"
	FormatAAC  Format = "aac"
)

// DefaultMIMEType is assumed when the voice service omits one.
const DefaultMIMEType = "audio/mpeg"

var mimeFormats = map[string]Format{
	"audio/wav":    FormatWAV,
	"audio/x-wav":  FormatWAV,
	"audio/wave":   FormatWAV,
	"audio/mpeg":   FormatMP3,
	"audio/mp3":    FormatMP3,
	"audio/flac":   FormatFLAC,
	"audio/x-flac": FormatFLAC,
	"audio/ogg":    FormatOGG,
	"audio/mp4":    FormatM4A,
	"audio/x-m4a":  FormatM4A,
	"audio/aac":    FormatAAC,
}

// FormatFromMIME maps a MIME type to a Format, defaulting to MP3.
func FormatFromMIME(mimeType string) Format {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}

	if format, ok := mimeFormats[mediaType]; ok {
		return format
	}

	return FormatMP3
}

// Extension returns the file extension for the format, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}
