package script

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanRemovesStageDirections(t *testing.T) {
	got := Clean("[excitedly]  *laughs* (pause) Great\n\tpoint!")
	if got != "Great point!" {
		t.Fatalf("unexpected cleaned text: %q", got)
	}
}

func TestCleanStripsEmphasisMarkers(t *testing.T) {
	got := Clean("This is **really** important")
	if got != "This is really important" {
		t.Fatalf("unexpected cleaned text: %q", got)
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	inputs := []string{
		"[warmly] Hello (smiles) there *waves*",
		"[a\nb] split direction",
		"(a (b) c) nested",
		"[a [b] c] nested brackets",
		"*one* two * three",
		"   plain   text   ",
		"unbalanced ] and ) and *",
		"",
	}
	for _, in := range inputs {
		once := Clean(in)
		twice := Clean(once)
		if once != twice {
			t.Fatalf("clean not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestSegmentBoldMarkers(t *testing.T) {
	seg := NewSegmenter(4000, nil)
	utts, strategy, err := seg.Segment("**David:** Hello there.\n**Emma:** Hi David!", []string{"David", "Emma"})
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if strategy != "bold-markers" {
		t.Fatalf("expected bold-markers, got %s", strategy)
	}
	if len(utts) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(utts))
	}
	if utts[0].Speaker != "David" || utts[0].Text != "Hello there." || utts[0].Sequence != 0 {
		t.Fatalf("unexpected first utterance: %+v", utts[0])
	}
	if utts[1].Speaker != "Emma" || utts[1].Text != "Hi David!" || utts[1].Sequence != 1 {
		t.Fatalf("unexpected second utterance: %+v", utts[1])
	}
}

func TestSegmentBoldMarkersColonOutside(t *testing.T) {
	seg := NewSegmenter(4000, nil)
	utts, strategy, err := seg.Segment("Intro line\n**David**: First.\nStill David.\n**Emma**: Second.", []string{"David", "Emma"})
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if strategy != "bold-markers" || len(utts) != 2 {
		t.Fatalf("unexpected result %s %+v", strategy, utts)
	}
	if utts[0].Text != "First. Still David." {
		t.Fatalf("expected multi-line text joined, got %q", utts[0].Text)
	}
}

func TestSegmentStageDirectionBeforeMarker(t *testing.T) {
	seg := NewSegmenter(4000, nil)
	utts, _, err := seg.Segment("[excitedly] **David:** *laughs* (pause) Great point!", []string{"David", "Emma"})
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(utts) != 1 || utts[0].Speaker != "David" || utts[0].Text != "Great point!" {
		t.Fatalf("unexpected utterances: %+v", utts)
	}
}

func TestSegmentLooseMarkers(t *testing.T) {
	seg := NewSegmenter(4000, nil)
	script := "David: Welcome back.\n*Emma*: Thanks!\nEmma : Glad to be here."
	utts, strategy, err := seg.Segment(script, []string{"David", "Emma"})
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if strategy != "loose-markers" {
		t.Fatalf("expected loose-markers, got %s", strategy)
	}
	want := []Utterance{
		{Speaker: "David", Text: "Welcome back.", Sequence: 0},
		{Speaker: "Emma", Text: "Thanks!", Sequence: 1},
		{Speaker: "Emma", Text: "Glad to be here.", Sequence: 2},
	}
	if len(utts) != len(want) {
		t.Fatalf("expected %d utterances, got %+v", len(want), utts)
	}
	for i := range want {
		if utts[i] != want[i] {
			t.Fatalf("utterance %d: want %+v got %+v", i, want[i], utts[i])
		}
	}
}

func TestSegmentCaseSensitiveNames(t *testing.T) {
	seg := NewSegmenter(4000, nil)
	utts, strategy, err := seg.Segment("**david:** lower case marker", []string{"David"})
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if strategy != "windows" {
		t.Fatalf("expected lower-case marker to be ignored, got strategy %s", strategy)
	}
	if len(utts) != 1 || utts[0].Speaker != "David" {
		t.Fatalf("unexpected utterances: %+v", utts)
	}
}

func TestSegmentQuotesSpeakerNames(t *testing.T) {
	seg := NewSegmenter(4000, nil)
	utts, _, err := seg.Segment("**Dr. Who:** Hello.\n**Ann:** Hi.\n**Anna:** Hey.", []string{"Ann", "Anna", "Dr. Who"})
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(utts) != 3 {
		t.Fatalf("expected 3 utterances, got %+v", utts)
	}
	if utts[0].Speaker != "Dr. Who" || utts[1].Speaker != "Ann" || utts[2].Speaker != "Anna" {
		t.Fatalf("unexpected speakers: %+v", utts)
	}
}

func TestSegmentDropsEmptyUtterances(t *testing.T) {
	seg := NewSegmenter(4000, nil)
	utts, _, err := seg.Segment("**David:** (laughs)\n**Emma:** Right.\n**David:** [nods]", []string{"David", "Emma"})
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(utts) != 1 || utts[0].Speaker != "Emma" || utts[0].Sequence != 0 {
		t.Fatalf("expected only Emma to survive, got %+v", utts)
	}
}

func TestSegmentWindowFallback(t *testing.T) {
	seg := NewSegmenter(4000, nil)
	script := strings.Repeat("abcdefghij", 850)
	utts, strategy, err := seg.Segment(script, []string{"A", "B"})
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if strategy != "windows" {
		t.Fatalf("expected windows strategy, got %s", strategy)
	}
	if len(utts) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(utts))
	}
	speakers := []string{utts[0].Speaker, utts[1].Speaker, utts[2].Speaker}
	if strings.Join(speakers, ",") != "A,B,A" {
		t.Fatalf("expected round-robin A,B,A, got %v", speakers)
	}
	var rebuilt strings.Builder
	for i, u := range utts {
		if u.Sequence != i {
			t.Fatalf("expected sequence %d, got %d", i, u.Sequence)
		}
		if len(u.Text) > 4000 {
			t.Fatalf("window %d exceeds limit: %d", i, len(u.Text))
		}
		rebuilt.WriteString(u.Text)
	}
	if rebuilt.String() != script {
		t.Fatal("windows do not reconstruct the script")
	}
}

func TestSegmentEmptyScript(t *testing.T) {
	seg := NewSegmenter(4000, nil)
	for _, script := range []string{"", "   \n\t  "} {
		if _, _, err := seg.Segment(script, []string{"A"}); !errors.Is(err, ErrEmptyScript) {
			t.Fatalf("expected ErrEmptyScript for %q, got %v", script, err)
		}
	}
}

func TestSplitWindowsRespectsRunes(t *testing.T) {
	text := strings.Repeat("é", 10)
	windows := SplitWindows(text, 4)
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}
	for _, w := range windows {
		if !utf8.ValidString(w) {
			t.Fatalf("window split a rune: %q", w)
		}
		if utf8.RuneCountInString(w) > 4 {
			t.Fatalf("window too long: %q", w)
		}
	}
	if strings.Join(windows, "") != text {
		t.Fatal("windows do not reconstruct text")
	}
}

func TestSplitWindowsShortText(t *testing.T) {
	if got := SplitWindows("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("unexpected windows: %v", got)
	}
	if got := SplitWindows("", 10); got != nil {
		t.Fatalf("expected nil for empty text, got %v", got)
	}
}
