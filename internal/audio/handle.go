package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	dataURLPrefix     = "data:"
	dataURLBase64Mark = ";base64,"
	base64Pattern     = `^[A-Za-z0-9+/_-]+=*$`
)

// ErrDecode indicates that an audio payload could not be turned into a playable handle.
var ErrDecode = errors.New("malformed audio payload")

var base64Alphabet = regexp.MustCompile(base64Pattern)

// Handle is a playable audio resource. Either Data holds the decoded bytes or the
// handle carries an undecoded base64 payload that is only reachable through URL.
type Handle struct {
	Data     []byte
	MIMEType string
	encoded  string
}

// Format returns the audio format implied by the handle's MIME type.
func (h *Handle) Format() Format {
	return FormatFromMIME(h.MIMEType)
}

// Decoded reports whether the handle holds raw bytes.
func (h *Handle) Decoded() bool {
	return len(h.Data) > 0
}

// URL returns a data URL for the handle.
func (h *Handle) URL() string {
	encoded := h.encoded
	if h.Decoded() {
		encoded = base64.StdEncoding.EncodeToString(h.Data)
	}

	return dataURLPrefix + h.MIMEType + dataURLBase64Mark + encoded
}

// Decode turns a base64 audio payload into a Handle. When binary decoding fails the
// payload is kept as a data URL; ErrDecode is returned only when that is impossible too.
func Decode(content, mimeType string) (*Handle, error) {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = DefaultMIMEType
	}

	cleaned := stripDataURL(strings.Join(strings.Fields(content), ""))
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty content", ErrDecode)
	}

	data, decodeErr := decodeBase64(cleaned)
	if decodeErr == nil && len(data) > 0 {
		return &Handle{Data: data, MIMEType: mimeType, encoded: ""}, nil
	}

	if !base64Alphabet.MatchString(cleaned) {
		return nil, fmt.Errorf("%w: payload is not base64", ErrDecode)
	}

	return &Handle{Data: nil, MIMEType: mimeType, encoded: cleaned}, nil
}

func stripDataURL(content string) string {
	if !strings.HasPrefix(content, dataURLPrefix) {
		return content
	}

	_, payload, found := strings.Cut(content, dataURLBase64Mark)
	if !found {
		return content
	}

	return payload
}

func decodeBase64(content string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	var lastErr error

	for _, encoding := range encodings {
		data, err := encoding.DecodeString(content)
		if err == nil {
			return data, nil
		}

		lastErr = err
	}

	return nil, fmt.Errorf("base64 decode failed: %w", lastErr)
}
