package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/ardeus-ua/ha-addons/internal/models"
)

// execer is the part of driver.Conn used for writes
type execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

type ClickHouseDB struct {
	conn  execer
	close func() error
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(addr, database, username, password string) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Printf("Connected to ClickHouse at %s", addr)

	db := newClickHouseDB(conn)
	if err := db.InitSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func newClickHouseDB(conn driver.Conn) *ClickHouseDB {
	return &ClickHouseDB{conn: conn, close: conn.Close}
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	log.Println("Database schema initialized successfully")
	return nil
}

// SOCRow is one sensor's latest value as stored in battery_soc_latest
type SOCRow struct {
	SensorID  string
	Name      string
	Value     *uint8
	Source    string
	UpdatedAt time.Time
}

// SaveSOC inserts one row; unknown readings are stored as NULL
func (db *ClickHouseDB) SaveSOC(ctx context.Context, row SOCRow) error {
	query := `
		INSERT INTO battery_soc_latest (sensor_id, name, value, source, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		row.SensorID,
		row.Name,
		row.Value,
		row.Source,
		row.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert SOC for sensor %s: %w", row.SensorID, err)
	}

	return nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.close != nil {
		if err := db.close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		log.Println("ClickHouse connection closed")
	}
	return nil
}

// RowsFromReadings builds one row per sensor in the set
func RowsFromReadings(readings models.Readings, names func(string) (string, bool), source string, ts time.Time) []SOCRow {
	rows := make([]SOCRow, 0, len(readings))
	for id, v := range readings {
		name := id
		if names != nil {
			if n, ok := names(id); ok {
				name = n
			}
		}

		var value *uint8
		if v != nil {
			u := uint8(*v)
			value = &u
		}

		rows = append(rows, SOCRow{
			SensorID:  id,
			Name:      name,
			Value:     value,
			Source:    source,
			UpdatedAt: ts,
		})
	}
	return rows
}
