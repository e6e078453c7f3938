package workers

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/natsserver"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
)

func connect(t *testing.T) *bus.Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, logger)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	client, err := bus.Connect(context.Background(), "workers-test", config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRegistryTracksPeers(t *testing.T) {
	client := connect(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.WorkerConfig{HeartbeatInterval: 50, HeartbeatTimeout: 500}

	first, err := NewRegistry(context.Background(), cfg, Self{ID: "w1", TTSMode: "mock", AudioFormat: "wav", MaxJobs: 2}, func() int { return 1 }, client, logger)
	if err != nil {
		t.Fatalf("first registry: %v", err)
	}
	defer first.Close()
	second, err := NewRegistry(context.Background(), cfg, Self{ID: "w2", TTSMode: "openai", AudioFormat: "mp3", MaxJobs: 4}, nil, client, logger)
	if err != nil {
		t.Fatalf("second registry: %v", err)
	}
	defer second.Close()

	if !first.Healthy() || !second.Healthy() {
		t.Fatal("registries should see themselves after announcing")
	}
	// w1 announced before w2 subscribed, so it only learns of w1 via heartbeat.
	waitFor(t, func() bool { return len(first.List()) == 2 && len(second.List()) == 2 })

	list := first.List()
	if list[0].WorkerID != "w1" || list[0].ActiveJobs != 1 || list[1].TTSMode != "openai" {
		t.Fatalf("unexpected list %+v", list)
	}
	healthy, free := first.snapshotCounts()
	if healthy != 2 || free != 5 {
		t.Fatalf("expected 2 healthy workers with 5 free slots, got %d/%d", healthy, free)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var reply []protocol.WorkerInfo
	if err := client.RequestJSON(ctx, protocol.SubjectWorkerList, struct{}{}, &reply); err != nil {
		t.Fatalf("list request: %v", err)
	}
	if len(reply) == 0 {
		t.Fatal("expected at least one worker in reply")
	}
}

func TestRegistryMarksSilentPeersUnhealthy(t *testing.T) {
	client := connect(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := NewRegistry(context.Background(), config.WorkerConfig{HeartbeatInterval: 1000, HeartbeatTimeout: 2000}, Self{ID: "self"}, nil, client, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	r.updateFromAnnouncement(protocol.WorkerAnnouncement{WorkerID: "peer", Timestamp: time.Now().Add(-time.Minute)})
	r.evaluateHealth(time.Now())

	for _, w := range r.List() {
		if w.WorkerID == "peer" && w.Healthy {
			t.Fatal("silent peer should be unhealthy")
		}
		if w.WorkerID == "self" && !w.Healthy {
			t.Fatal("self should stay healthy")
		}
	}
}
