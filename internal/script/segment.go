// Package script turns a generated podcast script into ordered, speaker
// attributed utterances ready for speech synthesis.
package script

import (
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrEmptyScript is returned when no speakable utterance survives
// segmentation and stage-direction cleanup.
var ErrEmptyScript = errors.New("script contains no speakable utterances")

// Utterance is one speaker turn. Sequence reflects script order and is
// strictly increasing across the slice returned by Segment.
type Utterance struct {
	Speaker  string
	Text     string
	Sequence int
}

// Strategy splits a raw script into speaker turns. Returned text is not yet
// cleaned. A strategy that cannot recognise the script returns no turns.
type Strategy interface {
	Name() string
	Split(text string, speakers []string) []Utterance
}

// Segmenter tries its strategies in order; the first one that yields any
// turns wins.
type Segmenter struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewSegmenter returns a segmenter using bold markers, then loose markers,
// then fixed windows of at most maxChars characters.
func NewSegmenter(maxChars int, logger *slog.Logger) *Segmenter {
	return NewSegmenterWithStrategies(logger,
		BoldMarkerStrategy{},
		LooseMarkerStrategy{},
		WindowStrategy{Size: maxChars},
	)
}

func NewSegmenterWithStrategies(logger *slog.Logger, strategies ...Strategy) *Segmenter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Segmenter{strategies: strategies, logger: logger.With(slog.String("component", "segmenter"))}
}

// Segment splits text into cleaned utterances. It also reports which strategy
// produced them.
func (s *Segmenter) Segment(text string, speakers []string) ([]Utterance, string, error) {
	for i, strategy := range s.strategies {
		raw := strategy.Split(text, speakers)
		s.logger.Debug("segmentation strategy tried",
			slog.String("strategy", strategy.Name()),
			slog.Int("turns", len(raw)))
		if len(raw) == 0 {
			continue
		}
		if i == len(s.strategies)-1 && i > 0 {
			s.logger.Warn("no speaker markers found, falling back", slog.String("strategy", strategy.Name()))
		}

		out := make([]Utterance, 0, len(raw))
		for _, u := range raw {
			cleaned := Clean(u.Text)
			if cleaned == "" {
				continue
			}
			out = append(out, Utterance{Speaker: u.Speaker, Text: cleaned, Sequence: len(out)})
		}
		if len(out) == 0 {
			return nil, strategy.Name(), ErrEmptyScript
		}
		return out, strategy.Name(), nil
	}
	return nil, "", ErrEmptyScript
}

// BoldMarkerStrategy matches "**Name:**" (or "**Name**:") anywhere in the
// script. Text runs to the next marker or the end of the script.
type BoldMarkerStrategy struct{}

func (BoldMarkerStrategy) Name() string { return "bold-markers" }

func (BoldMarkerStrategy) Split(text string, speakers []string) []Utterance {
	alt := speakerAlternation(speakers)
	if alt == "" {
		return nil
	}
	re := regexp.MustCompile(`\*\*(` + alt + `)(?::\*\*|\*\*:)`)
	return splitAtMarkers(text, re)
}

// LooseMarkerStrategy matches a speaker name at the start of a line with
// optional emphasis around the name and colon, e.g. "David:", "*David*:".
type LooseMarkerStrategy struct{}

func (LooseMarkerStrategy) Name() string { return "loose-markers" }

func (LooseMarkerStrategy) Split(text string, speakers []string) []Utterance {
	alt := speakerAlternation(speakers)
	if alt == "" {
		return nil
	}
	re := regexp.MustCompile(`(?m)^[ \t]*\*{0,2}(` + alt + `)\*{0,2}[ \t]*:\*{0,2}`)
	return splitAtMarkers(text, re)
}

// WindowStrategy ignores markers entirely and cuts the script into windows of
// Size characters, assigning speakers round-robin. Speaker attribution is lost
// but the script is never rejected for its formatting.
type WindowStrategy struct {
	Size int
}

func (WindowStrategy) Name() string { return "windows" }

func (w WindowStrategy) Split(text string, speakers []string) []Utterance {
	if len(speakers) == 0 || strings.TrimSpace(text) == "" {
		return nil
	}
	windows := SplitWindows(text, w.Size)
	out := make([]Utterance, 0, len(windows))
	for i, window := range windows {
		out = append(out, Utterance{Speaker: speakers[i%len(speakers)], Text: window, Sequence: i})
	}
	return out
}

// SplitWindows cuts text into consecutive slices of at most size characters
// (runes). The cut is not word aware. A non-positive size returns text whole.
func SplitWindows(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 || utf8.RuneCountInString(text) <= size {
		return []string{text}
	}
	var out []string
	start, count := 0, 0
	for i := range text {
		if count == size {
			out = append(out, text[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(out, text[start:])
}

func splitAtMarkers(text string, re *regexp.Regexp) []Utterance {
	locs := re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]Utterance, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, Utterance{
			Speaker:  text[loc[2]:loc[3]],
			Text:     text[loc[1]:end],
			Sequence: i,
		})
	}
	return out
}

// speakerAlternation builds a regexp alternation of the quoted names, longest
// first so that "Anna" wins over "Ann".
func speakerAlternation(speakers []string) string {
	names := make([]string, 0, len(speakers))
	seen := make(map[string]struct{}, len(speakers))
	for _, name := range speakers {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for i, name := range names {
		names[i] = regexp.QuoteMeta(name)
	}
	return strings.Join(names, "|")
}
