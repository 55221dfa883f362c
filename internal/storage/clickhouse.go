package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB archives raw position samples for later analytics. The
// relational store only keeps derived values (odometer, classification);
// the archive keeps every GPS fix the pipeline fetched.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	err := d.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS position_history (
			vehicle         LowCardinality(String),
			event_date      DateTime64(3),
			odometer        Nullable(Float64),
			velocity        Float64,
			latitude        Float64,
			longitude       Float64,
			fetched_at      DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(event_date)
		ORDER BY (vehicle, event_date)
		SETTINGS index_granularity = 8192`)
	if err != nil {
		return fmt.Errorf("create clickhouse schema: %w", err)
	}
	return nil
}

// PositionSample is one archived GPS fix.
type PositionSample struct {
	Vehicle   string
	EventDate time.Time
	Odometer  *float64
	Velocity  float64
	Latitude  float64
	Longitude float64
}

// InsertPositions stores a batch of position samples.
func (d *ClickHouseDB) InsertPositions(ctx context.Context, samples []PositionSample) error {
	if len(samples) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO position_history (vehicle, event_date, odometer, velocity, latitude, longitude)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, s := range samples {
		if err := batch.Append(s.Vehicle, s.EventDate, s.Odometer, s.Velocity, s.Latitude, s.Longitude); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
