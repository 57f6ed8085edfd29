package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/gridedge/internal/domain/model"
	"github.com/okian/gridedge/pkg/metrics"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS power_readings (
    id                     BIGSERIAL PRIMARY KEY,
    source_id              TEXT NOT NULL,
    ts                     TIMESTAMPTZ NOT NULL,
    voltage                DOUBLE PRECISION NOT NULL,
    current_amps           DOUBLE PRECISION NOT NULL,
    power_consumption      DOUBLE PRECISION NOT NULL,
    temperature            DOUBLE PRECISION,
    humidity               DOUBLE PRECISION,
    zone_industrial        DOUBLE PRECISION,
    zone_residential       DOUBLE PRECISION,
    zone_commercial        DOUBLE PRECISION,
    per_capita_consumption DOUBLE PRECISION,
    efficiency_score       DOUBLE PRECISION,
    is_peak_hour           BOOLEAN,
    is_anomaly             BOOLEAN,
    status                 TEXT NOT NULL,
    flagged                BOOLEAN NOT NULL,
    anomaly                BOOLEAN NOT NULL,
    z_score                DOUBLE PRECISION NOT NULL,
    received_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS power_readings_source_ts ON power_readings (source_id, ts DESC);
`

const insertReadingSQL = `
INSERT INTO power_readings (
    source_id, ts, voltage, current_amps, power_consumption,
    temperature, humidity, zone_industrial, zone_residential, zone_commercial,
    per_capita_consumption, efficiency_score, is_peak_hour, is_anomaly,
    status, flagged, anomaly, z_score
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
RETURNING id`

const selectReadingsSQL = `
SELECT id, source_id, ts, voltage, current_amps, power_consumption,
       temperature, humidity, zone_industrial, zone_residential, zone_commercial,
       per_capita_consumption, efficiency_score, is_peak_hour, is_anomaly,
       status, flagged, anomaly, z_score, received_at
FROM power_readings
WHERE source_id = $1 AND ts > $2
ORDER BY ts DESC`

// PostgresStore persists readings in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrStorage, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrStorage, err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: schema: %w", ErrStorage, err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, rec model.StoreRecord) (int64, error) {
	if err := Check(rec); err != nil {
		metrics.RecordStoreWrite("invalid")
		return 0, err
	}

	var industrial, residential, commercial *float64
	if z := rec.ZoneDistribution; z != nil {
		industrial, residential, commercial = &z.Industrial, &z.Residential, &z.Commercial
	}

	var id int64
	err := s.pool.QueryRow(ctx, insertReadingSQL,
		rec.SourceID, rec.Timestamp.UTC(), rec.Voltage, rec.Current, rec.PowerConsumption,
		rec.Temperature, rec.Humidity, industrial, residential, commercial,
		rec.PerCapitaConsumption, rec.EfficiencyScore, rec.IsPeakHour, rec.IsAnomaly,
		string(rec.Status), rec.Flagged, rec.Anomaly, rec.ZScore,
	).Scan(&id)
	if err != nil {
		metrics.RecordStoreWrite("error")
		return 0, fmt.Errorf("%w: insert: %w", ErrStorage, err)
	}
	metrics.RecordStoreWrite("ok")
	return id, nil
}

// Readings implements Store.
func (s *PostgresStore) Readings(ctx context.Context, sourceID string, since time.Time) ([]Stored, error) {
	rows, err := s.pool.Query(ctx, selectReadingsSQL, sourceID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrStorage, err)
	}
	defer rows.Close()

	out := make([]Stored, 0)
	for rows.Next() {
		r, err := scanStored(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrStorage, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %w", ErrStorage, err)
	}
	return out, nil
}

func scanStored(rows pgx.Rows) (Stored, error) {
	var (
		r                                   Stored
		status                              string
		industrial, residential, commercial *float64
	)
	err := rows.Scan(
		&r.ID, &r.SourceID, &r.Timestamp, &r.Voltage, &r.Current, &r.PowerConsumption,
		&r.Temperature, &r.Humidity, &industrial, &residential, &commercial,
		&r.PerCapitaConsumption, &r.EfficiencyScore, &r.IsPeakHour, &r.IsAnomaly,
		&status, &r.Flagged, &r.Anomaly, &r.ZScore, &r.ReceivedAt,
	)
	if err != nil {
		return Stored{}, err
	}
	r.City = r.SourceID
	r.Status = model.Status(status)
	r.Timestamp = r.Timestamp.UTC()
	r.ReceivedAt = r.ReceivedAt.UTC()
	r.ZoneDistribution = zonesFromColumns(industrial, residential, commercial)
	return r, nil
}

// zonesFromColumns rebuilds a zone split; it is nil when no column was set.
func zonesFromColumns(industrial, residential, commercial *float64) *model.ZoneDistribution {
	if industrial == nil && residential == nil && commercial == nil {
		return nil
	}
	z := &model.ZoneDistribution{}
	if industrial != nil {
		z.Industrial = *industrial
	}
	if residential != nil {
		z.Residential = *residential
	}
	if commercial != nil {
		z.Commercial = *commercial
	}
	return z
}

// Prune implements Store.
func (s *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM power_readings WHERE ts < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %w", ErrStorage, err)
	}
	n := int(tag.RowsAffected())
	metrics.RecordStorePruned(n)
	return n, nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM power_readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrStorage, err)
	}
	return n, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
