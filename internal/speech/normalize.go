// Package speech prepares extracted utterance text for the voice service.
//
// Transcripts produced by the script collaborator carry markdown emphasis, bracketed
// stage directions and typographic punctuation that voice providers either read aloud
// or mispronounce. The Normalizer removes them before synthesis.
package speech

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Regex patterns for utterance cleanup.
const (
	stageDirectionRegexPattern = `\[[^\]]*\]`
	emphasisRegexPattern       = `\*+|_{2,}|~~|#+\s`
	whitespaceRegexPattern     = `\s+`
	urlRegexPattern            = `https?://[^\s\])]+`
	emailRegexPattern          = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	superscriptRegexPattern    = `[¹²³⁴⁵⁶⁷⁸⁹⁰]+`
)

// Placeholders use private-use runes so no cleanup pattern can touch them.
const placeholderPattern = "\uE000%d\uE001"

// Punctuation constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// Normalizer cleans utterance text. It is safe for concurrent use.
type Normalizer struct {
	stageDirectionPattern *regexp.Regexp
	emphasisPattern       *regexp.Regexp
	whitespacePattern     *regexp.Regexp
	superscriptPattern    *regexp.Regexp
	tokenPatterns         []*regexp.Regexp
	punctuationReplacer   *strings.Replacer
	abbreviationReplacer  *strings.Replacer
}

// NewNormalizer creates a Normalizer with compiled patterns.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		stageDirectionPattern: regexp.MustCompile(stageDirectionRegexPattern),
		emphasisPattern:       regexp.MustCompile(emphasisRegexPattern),
		whitespacePattern:     regexp.MustCompile(whitespaceRegexPattern),
		superscriptPattern:    regexp.MustCompile(superscriptRegexPattern),
		tokenPatterns: []*regexp.Regexp{
			regexp.MustCompile(urlRegexPattern),
			regexp.MustCompile(emailRegexPattern),
		},
		punctuationReplacer: strings.NewReplacer(
			emDash, " - ",
			enDash, " - ",
			figureDash, " - ",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`, "„", `"`,
			"‘", "'", "’", "'",
		),
		abbreviationReplacer: strings.NewReplacer(
			"Mr.", "Mister",
			"Mrs.", "Misses",
			"Ms.", "Miss",
			"Dr.", "Doctor",
			"Prof.", "Professor",
			"e.g.", "for example",
			"i.e.", "that is",
			"vs.", "versus",
			"etc.", "et cetera",
		),
	}
}

// Normalize returns text ready for synthesis, or an empty string when nothing speakable remains.
func (n *Normalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	cleaned, tokens := n.preserveTokens(text)
	cleaned = n.abbreviationReplacer.Replace(cleaned)
	cleaned = n.stageDirectionPattern.ReplaceAllString(cleaned, " ")
	cleaned = n.superscriptPattern.ReplaceAllString(cleaned, "")
	cleaned = n.emphasisPattern.ReplaceAllString(cleaned, "")
	cleaned = n.removeExcessivePunctuation(cleaned)
	cleaned = n.punctuationReplacer.Replace(cleaned)
	cleaned = strings.TrimSpace(n.whitespacePattern.ReplaceAllString(cleaned, " "))
	cleaned = restoreTokens(cleaned, tokens)

	return n.ensureProperSentenceEnding(cleaned)
}

// preserveTokens swaps URLs and email addresses for placeholders so cleanup leaves them intact.
func (n *Normalizer) preserveTokens(text string) (string, map[string]string) {
	tokens := make(map[string]string)

	for _, pattern := range n.tokenPatterns {
		text = pattern.ReplaceAllStringFunc(text, func(match string) string {
			placeholder := fmt.Sprintf(placeholderPattern, len(tokens))
			tokens[placeholder] = match

			return placeholder
		})
	}

	return text, tokens
}

func restoreTokens(text string, tokens map[string]string) string {
	for placeholder, original := range tokens {
		text = strings.ReplaceAll(text, placeholder, original)
	}

	return text
}

// removeExcessivePunctuation collapses runs of identical punctuation marks, keeping ellipses.
func (n *Normalizer) removeExcessivePunctuation(text string) string {
	var (
		result   []rune
		previous rune
		run      int
	)

	for _, char := range text {
		if unicode.IsPunct(char) && char == previous {
			run++
			if char != '.' || run > len(ellipsis) {
				continue
			}
		} else {
			run = 1
		}

		result = append(result, char)
		previous = char
	}

	return string(result)
}

// ensureProperSentenceEnding appends a period when the text lacks terminal punctuation.
func (n *Normalizer) ensureProperSentenceEnding(text string) string {
	if text == "" {
		return ""
	}

	lastChar, _ := utf8.DecodeLastRuneInString(text)
	switch lastChar {
	case '.', '!', '?', '"', '\'':
		return text
	}

	if unicode.IsPunct(lastChar) {
		return strings.TrimRightFunc(text, unicode.IsPunct) + "."
	}

	return text + "."
}
