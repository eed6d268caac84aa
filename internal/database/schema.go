package database

// SQL schemas for all ClickHouse tables

const (
	// BatterySOCLatestTableSQL creates the battery_soc_latest table.
	// ReplacingMergeTree keeps the row with the newest updated_at per sensor.
	BatterySOCLatestTableSQL = `
		CREATE TABLE IF NOT EXISTS battery_soc_latest (
			sensor_id String,
			name String,
			value Nullable(UInt8),
			source String,
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY sensor_id
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		BatterySOCLatestTableSQL,
	}
}
