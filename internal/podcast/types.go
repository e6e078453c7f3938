// Package podcast runs the script-to-audio pipeline: segmentation, chunking,
// voice assignment, synthesis and assembly into one podcast file.
package podcast

import (
	"github.com/loqalabs/loqa-podcast/internal/script"
)

// Request is one synthesis job. SpeakerNames and SpeakerGenders are parallel.
type Request struct {
	JobID          string
	Script         string
	SpeakerNames   []string
	SpeakerGenders []string
	OutputDir      string
}

// Result is the tagged outcome of a job: either Path is set, or Err is.
type Result struct {
	JobID string
	Path  string
	Err   *Error
}

func OK(jobID, path string) Result { return Result{JobID: jobID, Path: path} }

func Failed(jobID string, err *Error) Result { return Result{JobID: jobID, Err: err} }

func (r Result) Success() bool { return r.Err == nil }

// AudioChunk is one synthesizable slice of an utterance. Chunks order by
// (Sequence, SubIndex).
type AudioChunk struct {
	Speaker  string
	Text     string
	Sequence int
	SubIndex int
}

// Less reports whether c sorts before o in concatenation order.
func (c AudioChunk) Less(o AudioChunk) bool {
	if c.Sequence != o.Sequence {
		return c.Sequence < o.Sequence
	}
	return c.SubIndex < o.SubIndex
}

// Chunk splits an utterance into chunks of at most maxChars characters. All
// chunks share the utterance's speaker and sequence; SubIndex counts from 0.
func Chunk(u script.Utterance, maxChars int) []AudioChunk {
	windows := script.SplitWindows(u.Text, maxChars)
	out := make([]AudioChunk, 0, len(windows))
	for i, w := range windows {
		out = append(out, AudioChunk{Speaker: u.Speaker, Text: w, Sequence: u.Sequence, SubIndex: i})
	}
	return out
}

// ChunkAll expands utterances in order.
func ChunkAll(utterances []script.Utterance, maxChars int) []AudioChunk {
	var out []AudioChunk
	for _, u := range utterances {
		out = append(out, Chunk(u, maxChars)...)
	}
	return out
}
