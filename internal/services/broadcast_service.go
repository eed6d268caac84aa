package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ardeus-ua/ha-addons/internal/models"
)

// Sink is a viewer channel that receives the full reading set
type Sink interface {
	Name() string
	Publish(ctx context.Context, readings models.Readings) error
}

// Snapshotter provides a consistent copy of the current readings
type Snapshotter interface {
	Snapshot() models.Readings
}

// BroadcastService fans the current readings out to every sink, on demand
// (push-on-write) and on a fixed interval (push-on-timer)
type BroadcastService struct {
	store    Snapshotter
	interval time.Duration

	mu    sync.RWMutex
	sinks []Sink
}

// BroadcastServiceConfig holds configuration for broadcast service
type BroadcastServiceConfig struct {
	Interval time.Duration // 0 disables the timer
}

// DefaultBroadcastServiceConfig returns default configuration
func DefaultBroadcastServiceConfig() BroadcastServiceConfig {
	return BroadcastServiceConfig{
		Interval: 5 * time.Second,
	}
}

// NewBroadcastService creates a new broadcast service
func NewBroadcastService(store Snapshotter, config BroadcastServiceConfig, sinks ...Sink) *BroadcastService {
	return &BroadcastService{
		store:    store,
		interval: config.Interval,
		sinks:    sinks,
	}
}

// AddSink registers another viewer channel
func (b *BroadcastService) AddSink(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Broadcast publishes one snapshot to all sinks. Sink errors are logged
func (b *BroadcastService) Broadcast(ctx context.Context) {
	readings := b.store.Snapshot()

	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, sink := range sinks {
		if ctx.Err() != nil {
			return
		}
		if err := sink.Publish(ctx, readings); err != nil {
			log.Printf("BroadcastService: Error publishing to %s: %v", sink.Name(), err)
		}
	}
}

// Start runs the timer loop until ctx is cancelled
func (b *BroadcastService) Start(ctx context.Context) {
	if b.interval <= 0 {
		log.Println("BroadcastService: Timer disabled, push-on-write only")
		return
	}

	log.Printf("BroadcastService: Starting, broadcasting every %v", b.interval)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("BroadcastService: Shutting down...")
			return
		case <-ticker.C:
			b.Broadcast(ctx)
		}
	}
}
