package database

import (
	"context"
	"log"
	"time"

	"github.com/ardeus-ua/ha-addons/internal/models"
)

// SOCWriter stores one row per sensor
type SOCWriter interface {
	SaveSOC(ctx context.Context, row SOCRow) error
}

type mirrorJob struct {
	source   string
	readings models.Readings
	at       time.Time
}

// SOCMirror copies accepted reading sets into ClickHouse off the request path
type SOCMirror struct {
	db    SOCWriter
	names func(string) (string, bool)
	jobs  chan mirrorJob
	now   func() time.Time
}

// NewSOCMirror creates a mirror; names resolves display names and may be nil
func NewSOCMirror(db SOCWriter, names func(string) (string, bool), queueSize int) *SOCMirror {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &SOCMirror{
		db:    db,
		names: names,
		jobs:  make(chan mirrorJob, queueSize),
		now:   time.Now,
	}
}

// Enqueue never blocks; a full queue drops the snapshot
func (m *SOCMirror) Enqueue(source string, readings models.Readings) {
	select {
	case m.jobs <- mirrorJob{source: source, readings: readings, at: m.now()}:
	default:
		log.Printf("SOCMirror: Queue full, dropping snapshot from %s", source)
	}
}

// Start writes queued snapshots until ctx is cancelled
func (m *SOCMirror) Start(ctx context.Context) {
	log.Println("SOCMirror: Starting...")

	for {
		select {
		case <-ctx.Done():
			log.Println("SOCMirror: Shutting down...")
			return

		case job := <-m.jobs:
			m.write(ctx, job)
		}
	}
}

func (m *SOCMirror) write(ctx context.Context, job mirrorJob) {
	failed := 0
	for _, row := range RowsFromReadings(job.readings, m.names, job.source, job.at) {
		if err := m.db.SaveSOC(ctx, row); err != nil {
			log.Printf("SOCMirror: %v", err)
			failed++
		}
	}
	if failed > 0 {
		log.Printf("SOCMirror: %d of %d rows not written", failed, len(job.readings))
	}
}
