// Package workers tracks the podcast workers sharing a bus. Each worker
// announces its backend once, heartbeats while alive, and answers list
// requests with its view of the fleet.
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
)

// LoadFunc reports how many jobs this worker is running.
type LoadFunc func() int

// Self describes the local worker.
type Self struct {
	ID          string
	Runtime     string
	TTSMode     string
	AudioFormat string
	MaxJobs     int
}

type Registry struct {
	cfg       config.WorkerConfig
	self      Self
	load      LoadFunc
	log       *slog.Logger
	bus       *bus.Client
	mu        sync.RWMutex
	workers   map[string]*protocol.WorkerInfo
	heartbeat *time.Ticker
	cancel    context.CancelFunc
	subs      []*nats.Subscription
	meter     metric.Meter
}

func NewRegistry(ctx context.Context, cfg config.WorkerConfig, self Self, load LoadFunc, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(ctx)
	if load == nil {
		load = func() int { return 0 }
	}
	r := &Registry{
		cfg:     cfg,
		self:    self,
		load:    load,
		log:     log.With(slog.String("component", "worker-registry")),
		bus:     busClient,
		workers: make(map[string]*protocol.WorkerInfo),
		meter:   otel.Meter("github.com/loqalabs/loqa-podcast/workers"),
		cancel:  cancel,
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := r.subscribe(); err != nil {
		r.cancel()
		return nil, err
	}

	r.heartbeat = time.NewTicker(time.Duration(cfg.HeartbeatInterval) * time.Millisecond)
	go r.runHeartbeat(ctx)
	go r.monitorHealth(ctx)

	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce worker", slog.String("error", err.Error()))
	}

	return r, nil
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.heartbeat != nil {
		r.heartbeat.Stop()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
}

func (r *Registry) subscribe() error {
	conn := r.bus.Conn()
	announceSub, err := conn.Subscribe(protocol.SubjectWorkerAnnounce, r.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(protocol.SubjectWorkerHeartbeatPrefix+".*", r.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)

	listSub, err := conn.Subscribe(protocol.SubjectWorkerList, r.handleList)
	if err != nil {
		return fmt.Errorf("subscribe list: %w", err)
	}
	r.subs = append(r.subs, listSub)

	return conn.Flush()
}

func (r *Registry) runHeartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.heartbeat.C:
			if err := r.publishHeartbeat(); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Registry) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evaluateHealth(time.Now())
		}
	}
}

func (r *Registry) announce() error {
	msg := protocol.WorkerAnnouncement{
		WorkerID:    r.self.ID,
		Runtime:     r.self.Runtime,
		TTSMode:     r.self.TTSMode,
		AudioFormat: r.self.AudioFormat,
		MaxJobs:     r.self.MaxJobs,
		Timestamp:   time.Now().UTC(),
	}
	if err := r.bus.PublishJSON(protocol.SubjectWorkerAnnounce, msg); err != nil {
		return err
	}
	r.updateFromAnnouncement(msg)
	return nil
}

func (r *Registry) publishHeartbeat() error {
	msg := protocol.WorkerHeartbeat{
		WorkerID:   r.self.ID,
		ActiveJobs: r.load(),
		Timestamp:  time.Now().UTC(),
	}
	return r.bus.PublishJSON(protocol.HeartbeatSubject(r.self.ID), msg)
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var announcement protocol.WorkerAnnouncement
	if err := json.Unmarshal(msg.Data, &announcement); err != nil {
		r.log.Warn("invalid announce message", slog.String("error", err.Error()))
		return
	}
	if announcement.Timestamp.IsZero() {
		announcement.Timestamp = time.Now().UTC()
	}
	r.updateFromAnnouncement(announcement)
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb protocol.WorkerHeartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		r.log.Warn("invalid heartbeat message", slog.String("error", err.Error()))
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.entry(hb.WorkerID)
	w.ActiveJobs = hb.ActiveJobs
	w.LastSeen = hb.Timestamp
	w.Healthy = true
}

func (r *Registry) handleList(msg *nats.Msg) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(r.List())
	if err != nil {
		r.log.Warn("failed to marshal worker list", slog.String("error", err.Error()))
		return
	}
	if err := msg.Respond(data); err != nil {
		r.log.Warn("failed to answer worker list", slog.String("error", err.Error()))
	}
}

func (r *Registry) updateFromAnnouncement(a protocol.WorkerAnnouncement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.entry(a.WorkerID)
	w.Runtime = a.Runtime
	w.TTSMode = a.TTSMode
	w.AudioFormat = a.AudioFormat
	w.MaxJobs = a.MaxJobs
	w.LastSeen = a.Timestamp
	w.Healthy = true
}

// entry returns the record for id, creating it. Callers hold r.mu.
func (r *Registry) entry(id string) *protocol.WorkerInfo {
	w, ok := r.workers[id]
	if !ok {
		w = &protocol.WorkerInfo{WorkerID: id}
		r.workers[id] = w
	}
	return w
}

func (r *Registry) evaluateHealth(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	for id, w := range r.workers {
		if id == r.self.ID {
			continue
		}
		if now.Sub(w.LastSeen) > timeout {
			w.Healthy = false
		}
	}
}

// Healthy reports whether this worker is registered.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[r.self.ID]
	return ok && w.Healthy
}

// List returns all known workers sorted by ID. The local entry carries the
// current load.
func (r *Registry) List() []protocol.WorkerInfo {
	active := r.load()

	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]protocol.WorkerInfo, 0, len(r.workers))
	for id, w := range r.workers {
		entry := *w
		if id == r.self.ID {
			entry.ActiveJobs = active
		}
		results = append(results, entry)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].WorkerID < results[j].WorkerID })
	return results
}

func (r *Registry) initMetrics() error {
	if r.meter == nil {
		return nil
	}
	workerGauge, err := r.meter.Int64ObservableGauge("podcast.workers.healthy", metric.WithDescription("Healthy podcast workers"))
	if err != nil {
		return err
	}
	slotGauge, err := r.meter.Int64ObservableGauge("podcast.workers.free_slots", metric.WithDescription("Job slots free across healthy workers"))
	if err != nil {
		return err
	}
	_, err = r.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		healthy, free := r.snapshotCounts()
		obs.ObserveInt64(workerGauge, healthy)
		obs.ObserveInt64(slotGauge, free)
		return nil
	}, workerGauge, slotGauge)
	return err
}

func (r *Registry) snapshotCounts() (int64, int64) {
	var healthy, free int64
	for _, w := range r.List() {
		if !w.Healthy {
			continue
		}
		healthy++
		free += int64(max(w.MaxJobs-w.ActiveJobs, 0))
	}
	return healthy, free
}
