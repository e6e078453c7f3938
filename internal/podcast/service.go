package podcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/semaphore"

	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
)

var errServiceClosed = errors.New("podcast service is shutting down")

// Service runs podcast jobs received on the bus. Jobs are load balanced across
// workers through a queue group and bounded per worker by a semaphore.
type Service struct {
	cfg      config.PodcastConfig
	bus      *bus.Client
	pipeline *Pipeline
	sem      *semaphore.Weighted
	active   atomic.Int64
	sub      *nats.Subscription
	mu       sync.Mutex
	closed   bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func NewService(parent context.Context, cfg config.PodcastConfig, busClient *bus.Client, pipeline *Pipeline, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		bus:      busClient,
		pipeline: pipeline,
		sem:      semaphore.NewWeighted(int64(max(cfg.MaxConcurrentJobs, 1))),
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "podcast-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().QueueSubscribe(protocol.SubjectPodcastRequest, s.cfg.QueueGroup, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("podcast service listening",
		slog.String("subject", protocol.SubjectPodcastRequest),
		slog.String("queue_group", s.cfg.QueueGroup),
		slog.Int("max_concurrent_jobs", s.cfg.MaxConcurrentJobs))
	return s.bus.Conn().Flush()
}

// Close stops accepting jobs, cancels running ones and waits for them to
// report. Requests delivered after Close are answered as cancelled.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || (s.sub != nil && s.sub.IsValid()) }

// ActiveJobs is the number of jobs currently holding a slot.
func (s *Service) ActiveJobs() int { return int(s.active.Load()) }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.PodcastRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode podcast request", slogError(err))
		s.reply(msg, protocol.PodcastResult{
			Success:   false,
			Error:     "invalid request: " + err.Error(),
			ErrorKind: string(KindConfiguration),
			Timestamp: time.Now().UTC(),
		})
		return
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}

	// wg.Add must not race with the Wait in Close.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("podcast job rejected after shutdown", slog.String("job_id", req.JobID))
		s.reply(msg, ResultMessage(Failed(req.JobID, &Error{Kind: KindCancelled, Stage: StageStart, Err: errServiceClosed})))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		s.runJob(msg, req)
	}()
}

func (s *Service) runJob(msg *nats.Msg, req protocol.PodcastRequest) {
	logger := s.logger.With(slog.String("job_id", req.JobID))

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		logger.Warn("podcast job dropped during shutdown", slogError(err))
		s.finish(msg, Failed(req.JobID, &Error{Kind: KindCancelled, Stage: StageStart, Err: err}))
		return
	}
	defer s.sem.Release(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	ctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.cfg.JobTimeoutMS)*time.Millisecond)
	defer cancel()

	logger.Info("podcast job started", slog.Int("script_chars", len(req.Script)))
	result := s.pipeline.Run(ctx, Request{
		JobID:          req.JobID,
		Script:         req.Script,
		SpeakerNames:   req.SpeakerNames,
		SpeakerGenders: req.SpeakerGenders,
		OutputDir:      req.OutputDir,
	}, ObserverFunc(s.publishProgress))
	s.finish(msg, result)
}

func (s *Service) publishProgress(p Progress) {
	update := protocol.PodcastProgress{
		JobID:     p.JobID,
		Stage:     string(p.Stage),
		Message:   p.Message,
		Progress:  p.Percent,
		Timestamp: time.Now().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.ProgressSubject(p.JobID), update); err != nil {
		s.logger.Warn("failed to publish progress", slog.String("job_id", p.JobID), slogError(err))
	}
}

func (s *Service) finish(msg *nats.Msg, result Result) {
	out := ResultMessage(result)
	if err := s.bus.PublishJSON(protocol.ResultSubject(result.JobID), out); err != nil {
		s.logger.Warn("failed to publish result", slog.String("job_id", result.JobID), slogError(err))
	}
	s.reply(msg, out)
}

func (s *Service) reply(msg *nats.Msg, out protocol.PodcastResult) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(out)
	if err != nil {
		s.logger.Warn("failed to marshal result", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to reply with result", slogError(err))
	}
}

// ResultMessage converts a pipeline result to its wire form.
func ResultMessage(r Result) protocol.PodcastResult {
	out := protocol.PodcastResult{
		JobID:     r.JobID,
		Success:   r.Success(),
		AudioPath: r.Path,
		Timestamp: time.Now().UTC(),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
		out.ErrorKind = string(r.Err.Kind)
		out.Segment = r.Err.Segment
	}
	return out
}
