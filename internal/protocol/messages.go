package protocol

import (
	"strings"
	"time"
)

// PodcastRequest asks a worker to render a script into a podcast file.
type PodcastRequest struct {
	JobID          string   `json:"job_id"`
	Script         string   `json:"script"`
	SpeakerNames   []string `json:"speaker_names,omitempty"`
	SpeakerGenders []string `json:"speaker_genders,omitempty"`
	OutputDir      string   `json:"output_dir,omitempty"`
}

// PodcastProgress is published at every pipeline transition.
type PodcastProgress struct {
	JobID     string    `json:"job_id"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Progress  int       `json:"progress"`
	Timestamp time.Time `json:"timestamp"`
}

// PodcastResult is the terminal outcome of a job.
type PodcastResult struct {
	JobID     string    `json:"job_id"`
	Success   bool      `json:"success"`
	AudioPath string    `json:"audio_path,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Segment   int       `json:"segment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkerAnnouncement advertises a podcast worker and its backend.
type WorkerAnnouncement struct {
	WorkerID    string    `json:"worker_id"`
	Runtime     string    `json:"runtime"`
	TTSMode     string    `json:"tts_mode"`
	AudioFormat string    `json:"audio_format"`
	MaxJobs     int       `json:"max_jobs"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	SubjectPodcastRequest        = "podcast.request"
	SubjectPodcastProgressPrefix = "podcast.progress"
	SubjectPodcastResultPrefix   = "podcast.result"
	SubjectWorkerAnnounce        = "podcast.worker.announce"
)

func ProgressSubject(jobID string) string {
	return SubjectPodcastProgressPrefix + "." + subjectToken(jobID)
}

func ResultSubject(jobID string) string {
	return SubjectPodcastResultPrefix + "." + subjectToken(jobID)
}

// subjectToken makes a job ID safe to use as a single subject token.
func subjectToken(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, id)
}

// WorkerHeartbeat keeps a worker marked healthy in peers' registries.
type WorkerHeartbeat struct {
	WorkerID   string    `json:"worker_id"`
	ActiveJobs int       `json:"active_jobs"`
	Timestamp  time.Time `json:"timestamp"`
}

// WorkerInfo is one registry entry as returned on SubjectWorkerList.
type WorkerInfo struct {
	WorkerID    string    `json:"worker_id"`
	Runtime     string    `json:"runtime"`
	TTSMode     string    `json:"tts_mode"`
	AudioFormat string    `json:"audio_format"`
	MaxJobs     int       `json:"max_jobs"`
	ActiveJobs  int       `json:"active_jobs"`
	LastSeen    time.Time `json:"last_seen"`
	Healthy     bool      `json:"healthy"`
}

const (
	SubjectWorkerHeartbeatPrefix = "podcast.worker.heartbeat"
	SubjectWorkerList            = "podcast.worker.list"
)

func HeartbeatSubject(workerID string) string {
	return SubjectWorkerHeartbeatPrefix + "." + subjectToken(workerID)
}
