package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/RichardoC/compi/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    history_key TEXT NOT NULL,
    id TEXT NOT NULL,
    role TEXT NOT NULL,
    text TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_key ON chat_messages(history_key, seq);

CREATE TABLE IF NOT EXISTS listings (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    price REAL NOT NULL DEFAULT 0,
    lat REAL,
    lng REAL,
    images TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

// Database is the local sqlite store. It keeps chat history per key, capped
// to historyLimit messages, and the development copy of the listings.
type Database struct {
	db           *sql.DB
	historyLimit int
}

func New(dbPath string, historyLimit int) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return &Database{db: db, historyLimit: historyLimit}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) LoadHistory(ctx context.Context, key string) ([]models.ChatMessage, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT id, role, text
        FROM chat_messages
        WHERE history_key = ?
        ORDER BY seq ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load history: %w", err)
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Text); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AppendHistory stores msgs under key and evicts the oldest messages beyond
// the history limit in the same transaction.
func (d *Database) AppendHistory(ctx context.Context, key string, msgs ...models.ChatMessage) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, msg := range msgs {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO chat_messages (history_key, id, role, text)
            VALUES (?, ?, ?, ?)`, key, msg.ID, msg.Role, msg.Text); err != nil {
			return fmt.Errorf("sqlite: insert message: %w", err)
		}
	}

	if d.historyLimit > 0 {
		if _, err := tx.ExecContext(ctx, `
            DELETE FROM chat_messages
            WHERE history_key = ?
              AND seq NOT IN (
                SELECT seq FROM chat_messages
                WHERE history_key = ?
                ORDER BY seq DESC
                LIMIT ?)`, key, key, d.historyLimit); err != nil {
			return fmt.Errorf("sqlite: evict history: %w", err)
		}
	}

	return tx.Commit()
}

func (d *Database) ClearHistory(ctx context.Context, key string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM chat_messages WHERE history_key = ?", key)
	return err
}

func (d *Database) ListListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT id, title, price, lat, lng, images
        FROM listings
        ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list listings: %w", err)
	}
	defer rows.Close()

	listings := make([]models.Listing, 0)
	for rows.Next() {
		var (
			l        models.Listing
			lat, lng sql.NullFloat64
			images   string
		)
		if err := rows.Scan(&l.ID, &l.Title, &l.Price, &lat, &lng, &images); err != nil {
			return nil, fmt.Errorf("sqlite: scan listing: %w", err)
		}
		l.Lat = nullFloat(lat)
		l.Lng = nullFloat(lng)
		if err := json.Unmarshal([]byte(images), &l.Images); err != nil {
			return nil, fmt.Errorf("sqlite: decode images for %s: %w", l.ID, err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// SaveListings upserts listings by id.
func (d *Database) SaveListings(ctx context.Context, listings []models.Listing) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, l := range listings {
		images := l.Images
		if images == nil {
			images = []string{}
		}
		encoded, err := json.Marshal(images)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO listings (id, title, price, lat, lng, images)
            VALUES (?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                title = excluded.title,
                price = excluded.price,
                lat = excluded.lat,
                lng = excluded.lng,
                images = excluded.images`,
			l.ID, l.Title, l.Price, floatArg(l.Lat), floatArg(l.Lng), string(encoded)); err != nil {
			return fmt.Errorf("sqlite: save listing %s: %w", l.ID, err)
		}
	}

	return tx.Commit()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func floatArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
