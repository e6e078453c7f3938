package podcast

import (
	"log/slog"
	"sync"
)

// Stage is a pipeline state.
type Stage string

const (
	StageStart           Stage = "start"
	StageSegmenting      Stage = "segmenting"
	StageChunking        Stage = "chunking"
	StageVoiceAssignment Stage = "voice_assignment"
	StageSynthesizing    Stage = "synthesizing"
	StageAssembling      Stage = "assembling"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
)

// Progress is one status update.
type Progress struct {
	JobID   string
	Stage   Stage
	Message string
	Percent int
}

// Observer receives status updates synchronously at each pipeline transition.
type Observer interface {
	OnProgress(p Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Progress)

func (f ObserverFunc) OnProgress(p Progress) { f(p) }

// Observers fans out to several observers in order.
type Observers []Observer

func (o Observers) OnProgress(p Progress) {
	for _, obs := range o {
		if obs != nil {
			obs.OnProgress(p)
		}
	}
}

// LogObserver writes each update to a logger.
func LogObserver(logger *slog.Logger) Observer {
	return ObserverFunc(func(p Progress) {
		logger.Info("podcast progress",
			slog.String("job_id", p.JobID),
			slog.String("stage", string(p.Stage)),
			slog.Int("progress", p.Percent),
			slog.String("message", p.Message))
	})
}

// monotonic clamps percentages so they never go backwards and stay in 0..100.
type monotonic struct {
	mu    sync.Mutex
	jobID string
	last  int
	next  Observer
}

func newMonotonic(jobID string, next Observer) *monotonic {
	return &monotonic{jobID: jobID, next: next}
}

func (m *monotonic) report(stage Stage, message string, percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	percent = max(min(percent, 100), m.last)
	m.last = percent
	if m.next != nil {
		m.next.OnProgress(Progress{JobID: m.jobID, Stage: stage, Message: message, Percent: percent})
	}
}
