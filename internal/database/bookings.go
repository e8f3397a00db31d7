package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"nailbook/internal/models"
)

const bookingColumns = `id, service_id, date, time, customer_name, customer_email, customer_phone,
        payment_option, status, payment_status, total_amount, deposit_amount, is_maintenance,
        note, created_at, updated_at`

func (db *DB) FetchBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []interface{}
	)
	if !filter.IncludePending {
		where = append(where, "status <> ?")
		args = append(args, models.StatusPending)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.DateFrom != "" {
		where = append(where, "date >= ?")
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		where = append(where, "date <= ?")
		args = append(args, filter.DateTo)
	}

	query := `SELECT ` + bookingColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date ASC, time ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// FetchBookedSlots reads the PII-free projection.
func (db *DB) FetchBookedSlots(ctx context.Context) ([]models.BookedSlot, error) {
	rows, err := db.QueryContext(ctx, `SELECT date, time, status FROM public_appointments`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booked slots: %w", err)
	}
	defer rows.Close()

	var slots []models.BookedSlot
	for rows.Next() {
		var s models.BookedSlot
		if err := rows.Scan(&s.Date, &s.Time, &s.Status); err != nil {
			return nil, fmt.Errorf("failed to scan booked slot: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booked slots: %w", err)
	}
	return slots, nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM appointments WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (db *DB) InsertBooking(ctx context.Context, booking *models.Booking) error {
	return insertBooking(ctx, db, booking)
}

func insertBooking(ctx context.Context, ex execer, booking *models.Booking) error {
	now := time.Now().UTC()
	query := `INSERT INTO appointments (` + bookingColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := ex.ExecContext(ctx, query,
		booking.ID,
		booking.ServiceID,
		booking.Date,
		booking.Time,
		booking.CustomerName,
		booking.CustomerEmail,
		booking.CustomerPhone,
		booking.PaymentOption,
		booking.Status,
		booking.PaymentStatus,
		booking.TotalAmount,
		booking.DepositAmount,
		booking.IsMaintenance,
		booking.Note,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %s: %w", booking.Date, booking.Time, ErrSlotTaken)
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

func (db *DB) UpdateBookingStatus(ctx context.Context, id string, status string) error {
	return db.updateBookingColumn(ctx, "status", id, status)
}

func (db *DB) UpdatePaymentStatus(ctx context.Context, id string, paymentStatus string) error {
	return db.updateBookingColumn(ctx, "payment_status", id, paymentStatus)
}

func (db *DB) updateBookingColumn(ctx context.Context, column, id, value string) error {
	query := fmt.Sprintf(`UPDATE appointments SET %s = ?, updated_at = ? WHERE id = ?`, column)
	result, err := db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to update booking %s: %w", column, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ScheduleMaintenance writes the day record and the maintenance booking in one transaction.
func (db *DB) ScheduleMaintenance(ctx context.Context, day *models.DayAvailability, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := upsertDay(ctx, tx, day); err != nil {
		return err
	}
	if err := insertBooking(ctx, tx, booking); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit maintenance: %w", err)
	}
	return nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID,
		&b.ServiceID,
		&b.Date,
		&b.Time,
		&b.CustomerName,
		&b.CustomerEmail,
		&b.CustomerPhone,
		&b.PaymentOption,
		&b.Status,
		&b.PaymentStatus,
		&b.TotalAmount,
		&b.DepositAmount,
		&b.IsMaintenance,
		&b.Note,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}
	return &b, nil
}
