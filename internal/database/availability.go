package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nailbook/internal/models"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (db *DB) FetchAvailability(ctx context.Context) (map[string]*models.DayAvailability, error) {
	rows, err := db.QueryContext(ctx, `SELECT date, available, slots FROM availability`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch availability: %w", err)
	}
	defer rows.Close()

	days := make(map[string]*models.DayAvailability)
	for rows.Next() {
		day, err := scanDay(rows)
		if err != nil {
			return nil, err
		}
		days[day.Date] = day
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate availability: %w", err)
	}
	return days, nil
}

func (db *DB) GetDayAvailability(ctx context.Context, date string) (*models.DayAvailability, error) {
	row := db.QueryRowContext(ctx, `SELECT date, available, slots FROM availability WHERE date = ?`, date)
	day, err := scanDay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return day, err
}

func (db *DB) UpsertAvailability(ctx context.Context, day *models.DayAvailability) error {
	return upsertDay(ctx, db, day)
}

func upsertDay(ctx context.Context, ex execer, day *models.DayAvailability) error {
	slots, err := json.Marshal(models.NormalizeSlots(day.Slots))
	if err != nil {
		return fmt.Errorf("failed to encode slots: %w", err)
	}

	query := `INSERT INTO availability (date, available, slots, updated_at) VALUES (?, ?, ?, ?)
              ON CONFLICT(date) DO UPDATE SET
                available = excluded.available,
                slots = excluded.slots,
                updated_at = excluded.updated_at`
	if _, err := ex.ExecContext(ctx, query, day.Date, day.Available, string(slots), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert availability for %s: %w", day.Date, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDay(row rowScanner) (*models.DayAvailability, error) {
	var (
		day   models.DayAvailability
		slots string
	)
	if err := row.Scan(&day.Date, &day.Available, &slots); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan availability: %w", err)
	}
	if err := json.Unmarshal([]byte(slots), &day.Slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots for %s: %w", day.Date, err)
	}
	day.Slots = models.NormalizeSlots(day.Slots)
	return &day, nil
}
