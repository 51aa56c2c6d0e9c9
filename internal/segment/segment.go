// Package segment splits a generated podcast transcript into speaker-attributed blocks
// and aggregates the text belonging to one avatar slot.
//
// Parsing never fails: a transcript without usable labels simply yields no blocks, and
// a slot without text yields an empty string.
package segment

import (
	"strings"
)

const lineSeparator = "\n"

// Block is one run of utterance fragments spoken by a single label.
type Block struct {
	Label     Label
	Fragments []string
}

// Text joins the block's fragments with single spaces.
func (b Block) Text() string {
	return strings.Join(b.Fragments, " ")
}

// Transcript is the parsed form of a generated script. It is rebuilt on every parse.
type Transcript struct {
	// Lines holds every non-blank trimmed line of the input.
	Lines []string
	// Blocks holds the recognised speaker blocks in input order.
	Blocks []Block
	// Speakers holds distinct labels in order of first appearance.
	Speakers []Label
}

// ExtractSpeakerText returns the concatenated utterances of the speaker at speakerIndex.
func ExtractSpeakerText(transcript string, speakerIndex int) string {
	return Parse(transcript).TextFor(speakerIndex)
}

// Parse classifies every line of the transcript and groups fragments into blocks.
func Parse(transcript string) *Transcript {
	normalized := strings.NewReplacer("\r\n", lineSeparator, "\r", lineSeparator).Replace(transcript)

	parsed := &Transcript{
		Lines:    nil,
		Blocks:   nil,
		Speakers: nil,
	}
	seen := make(map[string]struct{})

	var open *Block

	for _, raw := range strings.Split(normalized, lineSeparator) {
		classified := classifyLine(raw)

		switch classified.kind {
		case lineBlank:
			continue
		case lineLabel:
			if open != nil {
				parsed.Blocks = append(parsed.Blocks, *open)
			}

			open = &Block{Label: classified.label, Fragments: nil}
			if classified.text != "" {
				open.Fragments = append(open.Fragments, classified.text)
			}

			if _, ok := seen[classified.label.key()]; !ok {
				seen[classified.label.key()] = struct{}{}
				parsed.Speakers = append(parsed.Speakers, classified.label)
			}
		case lineContinuation:
			if open != nil && classified.text != "" {
				open.Fragments = append(open.Fragments, classified.text)
			}
		}

		parsed.Lines = append(parsed.Lines, strings.TrimSpace(raw))
	}

	if open != nil {
		parsed.Blocks = append(parsed.Blocks, *open)
	}

	return parsed
}

// SpeakerIndex maps a label to a zero-based avatar slot.
// Indexed labels use their number; named labels use their order of first appearance.
func (t *Transcript) SpeakerIndex(label Label) int {
	if label.Kind == KindIndexed {
		return max(label.Number-1, 0)
	}

	for position, speaker := range t.Speakers {
		if speaker.key() == label.key() {
			return position
		}
	}

	return -1
}

// TextFor returns the text attributed to speakerIndex, applying the recovery rules
// when the direct lookup is empty.
func (t *Transcript) TextFor(speakerIndex int) string {
	if speakerIndex < 0 {
		return ""
	}

	if len(t.Blocks) == 0 {
		if speakerIndex == 0 {
			return strings.TrimSpace(strings.Join(t.Lines, " "))
		}

		return ""
	}

	text := t.collect(func(_ int, block Block) bool {
		return t.SpeakerIndex(block.Label) == speakerIndex
	})
	if text != "" {
		return text
	}

	// Two speakers whose labels do not map onto the requested slot alternate by position.
	if len(t.Speakers) == 2 {
		return t.collect(func(position int, _ Block) bool {
			return position%2 == speakerIndex
		})
	}

	return ""
}

// SpeakerCount returns the number of slots the transcript addresses.
func (t *Transcript) SpeakerCount() int {
	count := len(t.Speakers)

	for _, block := range t.Blocks {
		count = max(count, t.SpeakerIndex(block.Label)+1)
	}

	return count
}

func (t *Transcript) collect(include func(position int, block Block) bool) string {
	parts := make([]string, 0, len(t.Blocks))

	for position, block := range t.Blocks {
		if !include(position, block) {
			continue
		}

		text := strings.TrimSpace(block.Text())
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.TrimSpace(strings.Join(parts, " "))
}
