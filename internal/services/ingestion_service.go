package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/ardeus-ua/ha-addons/internal/models"
)

// ReadingStore is the part of the store the ingestion path needs
type ReadingStore interface {
	Update(updates models.Readings) (int, models.Readings, error)
}

// Notifier re-publishes the current readings to viewers
type Notifier interface {
	Broadcast(ctx context.Context)
}

// Mirror receives a copy of the readings after each accepted update
type Mirror interface {
	Enqueue(source string, readings models.Readings)
}

// Result reports how a batch was applied
type Result struct {
	Accepted int `json:"accepted"`
	Ignored  int `json:"ignored"`
}

// IngestionService applies SOC batches from every transport to the store
type IngestionService struct {
	store       ReadingStore
	notifier    Notifier
	mirror      Mirror
	pushOnWrite bool
	debug       bool

	// Input channel from the MQTT subscriber
	BatchChan chan *models.Batch
}

// IngestionServiceConfig holds configuration for ingestion service
type IngestionServiceConfig struct {
	PushOnWrite      bool // Broadcast right after each accepted batch
	Debug            bool // Log every received batch
	BatchChannelSize int
}

// DefaultIngestionServiceConfig returns default configuration
func DefaultIngestionServiceConfig() IngestionServiceConfig {
	return IngestionServiceConfig{
		PushOnWrite:      true,
		BatchChannelSize: 100,
	}
}

// NewIngestionService creates a new ingestion service. notifier and mirror may be nil
func NewIngestionService(
	store ReadingStore,
	notifier Notifier,
	mirror Mirror,
	config IngestionServiceConfig,
) *IngestionService {
	return &IngestionService{
		store:       store,
		notifier:    notifier,
		mirror:      mirror,
		pushOnWrite: config.PushOnWrite,
		debug:       config.Debug,
		BatchChan:   make(chan *models.Batch, config.BatchChannelSize),
	}
}

// Ingest applies one batch, persists it and fans it out
// Unregistered sensors are counted as ignored, not reported as errors
func (s *IngestionService) Ingest(ctx context.Context, batch *models.Batch) (Result, error) {
	if s.debug {
		log.Printf("IngestionService: Received %d updates from %s: %s", len(batch.Updates), batch.Source, formatUpdates(batch.Updates))
	}

	accepted, current, err := s.store.Update(batch.Updates)
	result := Result{Accepted: accepted, Ignored: len(batch.Updates) - accepted}
	if err != nil {
		log.Printf("IngestionService: Error storing batch from %s: %v", batch.Source, err)
		return result, err
	}

	if result.Ignored > 0 {
		log.Printf("IngestionService: Ignored %d unregistered sensors from %s", result.Ignored, batch.Source)
	}
	if accepted == 0 {
		return result, nil
	}

	if s.pushOnWrite && s.notifier != nil {
		s.notifier.Broadcast(ctx)
	}
	if s.mirror != nil {
		s.mirror.Enqueue(batch.Source, current)
	}

	return result, nil
}

// Start processes batches from BatchChan until ctx is cancelled or the channel is closed
func (s *IngestionService) Start(ctx context.Context) {
	log.Println("IngestionService: Starting...")

	for {
		select {
		case <-ctx.Done():
			log.Println("IngestionService: Shutting down...")
			return

		case batch, ok := <-s.BatchChan:
			if !ok {
				log.Println("IngestionService: Batch channel closed, shutting down...")
				return
			}
			if _, err := s.Ingest(ctx, batch); err != nil {
				log.Printf("IngestionService: Dropped batch from %s: %v", batch.Source, err)
			}
		}
	}
}

func formatUpdates(updates models.Readings) string {
	ids := make([]string, 0, len(updates))
	for id := range updates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if v := updates[id]; v != nil {
			parts = append(parts, fmt.Sprintf("%s=%d", id, *v))
		} else {
			parts = append(parts, id+"=null")
		}
	}
	return strings.Join(parts, " ")
}
