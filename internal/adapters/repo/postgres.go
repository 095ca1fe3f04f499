package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"ready2rent-bot/internal/domain"
	"ready2rent-bot/internal/infra/metrics"
)

// Postgres is the alternative listings repository for deployments that
// already run a database. Same append-only contract as the Sheets adapter.
type Postgres struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

const createListingsTable = `
CREATE TABLE IF NOT EXISTS listings (
    id BIGSERIAL PRIMARY KEY,
    submitted_at TEXT NOT NULL DEFAULT '',
    chat_id TEXT NOT NULL DEFAULT '',
    submitter TEXT NOT NULL DEFAULT '',
    city TEXT NOT NULL DEFAULT '',
    price DOUBLE PRECISION,
    area_m2 DOUBLE PRECISION,
    rent_est DOUBLE PRECISION,
    condition TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    photo TEXT NOT NULL DEFAULT '',
    contact TEXT NOT NULL DEFAULT ''
)`

// NewPostgres creates the adapter and bootstraps the listings table
// idempotently, mirroring the header bootstrap of the Sheets backend.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) (*Postgres, error) {
	start := time.Now()
	_, err := pool.Exec(ctx, createListingsTable)
	metrics.ObserveNetworkRequest("postgres", "bootstrap", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: crear tabla listings: %v", domain.ErrBackendUnavailable, err)
	}
	return &Postgres{pool: pool, log: log}, nil
}

// Append inserts one listing row.
func (p *Postgres) Append(ctx context.Context, rec domain.ListingRecord) error {
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO listings (submitted_at, chat_id, submitter, city, price, area_m2, rent_est, condition, url, notes, photo, contact)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`, rec.SubmittedAt, rec.ChatID, rec.Submitter, rec.City,
		nullFloat(rec.Price), nullFloat(rec.AreaM2), nullFloat(rec.MonthlyRent),
		rec.Condition, rec.URL, rec.Notes, rec.Photo, rec.Contact)
	metrics.ObserveNetworkRequest("postgres", "listings_insert", start, err)
	if err != nil {
		return fmt.Errorf("%w: insert: %v", domain.ErrPersistence, err)
	}
	return nil
}

// ListAll returns every listing in submission order.
func (p *Postgres) ListAll(ctx context.Context) ([]domain.ListingRecord, error) {
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT submitted_at, chat_id, submitter, city, price, area_m2, rent_est, condition, url, notes, photo, contact
FROM listings
ORDER BY id
`)
	metrics.ObserveNetworkRequest("postgres", "listings_select", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: select: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var records []domain.ListingRecord
	for rows.Next() {
		var (
			rec                  domain.ListingRecord
			price, area, rentEst sql.NullFloat64
		)
		if err := rows.Scan(&rec.SubmittedAt, &rec.ChatID, &rec.Submitter, &rec.City,
			&price, &area, &rentEst,
			&rec.Condition, &rec.URL, &rec.Notes, &rec.Photo, &rec.Contact); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrPersistence, err)
		}
		rec.Price = floatPtr(price)
		rec.AreaM2 = floatPtr(area)
		rec.MonthlyRent = floatPtr(rentEst)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", domain.ErrPersistence, err)
	}
	return records, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
