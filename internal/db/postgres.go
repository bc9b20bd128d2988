package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/RichardoC/compi/internal/models"
	"github.com/RichardoC/compi/internal/retry"
)

// PostgresListings reads listings from the hosted Postgres database.
type PostgresListings struct {
	db *sql.DB
}

// NewPostgresListings opens a connection and waits for the database to answer.
func NewPostgresListings(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresListings, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	ping := retry.Config{MaxAttempts: 5, BaseDelay: time.Second, Logger: logger}
	if err := ping.Do(ctx, "postgres ping", db.PingContext); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &PostgresListings{db: db}, nil
}

func (p *PostgresListings) ListListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, title, COALESCE(price, 0), lat, lng, images
		FROM listings
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	listings := make([]models.Listing, 0)
	for rows.Next() {
		var (
			l        models.Listing
			lat, lng sql.NullFloat64
			images   pq.StringArray
		)
		if err := rows.Scan(&l.ID, &l.Title, &l.Price, &lat, &lng, &images); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		l.Lat = nullFloat(lat)
		l.Lng = nullFloat(lng)
		l.Images = []string(images)
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (p *PostgresListings) Close() error {
	return p.db.Close()
}
