package segment

import (
	"regexp"
	"strconv"
	"strings"
)

// Label grammar. Indexed labels carry an explicit avatar number and win over named labels.
const (
	indexedLabelPattern = `(?i)^[*_\s]*[\[(]?[*_\s]*avatar\s*(\d{1,6})(?:\s*\([^)]{0,40}\))?[*_\s]*[\])]?[*_\s]*(?:[:：\-–—]|$)(.*)$`
	emphasisCutset      = "*_ \t"
)

// A dash only separates a named label when it touches the name, so prose such as
// "So - what now?" stays a continuation line.
const namedLabelPattern = `^[*_]*([A-Za-zÀ-ÖØ-öø-ÿĀ-ž](?:[A-Za-zÀ-ÖØ-öø-ÿĀ-ž' \-]{0,29}[A-Za-zÀ-ÖØ-öø-ÿĀ-ž'])?)` +
	`[*_]*(?:\s*[:：]|[\-–—](?:\s|$))\s*(.*)$`

var (
	indexedLabelRegexp = regexp.MustCompile(indexedLabelPattern)
	namedLabelRegexp   = regexp.MustCompile(namedLabelPattern)
)

// LabelKind tells how a speaker label identifies its speaker.
type LabelKind int

// Label kinds.
const (
	// KindIndexed is an "Avatar N" label.
	KindIndexed LabelKind = iota + 1
	// KindNamed is a bare name such as "Amir".
	KindNamed
)

// Label identifies the speaker of a block.
type Label struct {
	Kind   LabelKind
	Name   string
	Number int
}

// key is the identity used to count distinct speakers.
func (l Label) key() string {
	if l.Kind == KindIndexed {
		return "avatar " + strconv.Itoa(l.Number)
	}

	return strings.ToLower(l.Name)
}

type lineKind int

const (
	lineBlank lineKind = iota
	lineLabel
	lineContinuation
)

// line is one classified transcript line.
type line struct {
	kind  lineKind
	label Label
	text  string
}

// classifyLine applies the label grammar to one trimmed line.
func classifyLine(raw string) line {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return line{kind: lineBlank, label: Label{}, text: ""}
	}

	if match := indexedLabelRegexp.FindStringSubmatch(trimmed); match != nil {
		number, err := strconv.Atoi(match[1])
		if err == nil {
			return line{
				kind:  lineLabel,
				label: Label{Kind: KindIndexed, Name: "Avatar " + match[1], Number: number},
				text:  stripEmphasis(match[2]),
			}
		}
	}

	if match := namedLabelRegexp.FindStringSubmatch(trimmed); match != nil {
		name := strings.TrimSpace(match[1])
		if name != "" {
			return line{
				kind:  lineLabel,
				label: Label{Kind: KindNamed, Name: name, Number: 0},
				text:  stripEmphasis(match[2]),
			}
		}
	}

	return line{kind: lineContinuation, label: Label{}, text: stripEmphasis(trimmed)}
}

func stripEmphasis(text string) string {
	return strings.Trim(text, emphasisCutset)
}
