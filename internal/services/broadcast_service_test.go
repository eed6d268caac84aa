package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardeus-ua/ha-addons/internal/models"
)

type mockSink struct {
	name string
	err  error

	mu        sync.Mutex
	published []models.Readings
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) Publish(_ context.Context, readings models.Readings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, readings)
	return m.err
}

func (m *mockSink) Published() []models.Readings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Readings{}, m.published...)
}

type staticSnapshotter struct {
	readings models.Readings
}

func (s staticSnapshotter) Snapshot() models.Readings { return s.readings.Clone() }

func TestBroadcast_AllSinks(t *testing.T) {
	snap := staticSnapshotter{readings: models.Readings{"1": models.SOC(17), "2": nil}}
	failing := &mockSink{name: "failing", err: errors.New("boom")}
	ok := &mockSink{name: "ok"}

	b := NewBroadcastService(snap, DefaultBroadcastServiceConfig(), failing)
	b.AddSink(ok)
	b.Broadcast(context.Background())

	if len(failing.Published()) != 1 {
		t.Errorf("failing sink: expected 1 publish, got %d", len(failing.Published()))
	}
	published := ok.Published()
	if len(published) != 1 {
		t.Fatalf("ok sink: expected 1 publish after failing sink, got %d", len(published))
	}
	if *published[0]["1"] != 17 || published[0]["2"] != nil {
		t.Errorf("unexpected payload %v", published[0])
	}
}

func TestBroadcast_CancelledContext(t *testing.T) {
	sink := &mockSink{name: "s"}
	b := NewBroadcastService(staticSnapshotter{readings: models.Readings{}}, DefaultBroadcastServiceConfig(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Broadcast(ctx)

	if len(sink.Published()) != 0 {
		t.Error("expected no publish on cancelled context")
	}
}

func TestStart_TimerBroadcasts(t *testing.T) {
	sink := &mockSink{name: "s"}
	b := NewBroadcastService(
		staticSnapshotter{readings: models.Readings{"1": nil}},
		BroadcastServiceConfig{Interval: 20 * time.Millisecond},
		sink,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Start(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for len(sink.Published()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 2 timer broadcasts, got %d", len(sink.Published()))
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestStart_TimerDisabled(t *testing.T) {
	b := NewBroadcastService(staticSnapshotter{}, BroadcastServiceConfig{Interval: 0})

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Start(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return immediately when the timer is disabled")
	}
}
