package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nailbook/internal/models"

	"github.com/google/uuid"
)

func (db *DB) ListServices(ctx context.Context) ([]*models.Service, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, price, description, image, popular, created_at
        FROM services ORDER BY popular DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate services: %w", err)
	}
	return services, nil
}

func (db *DB) GetService(ctx context.Context, id string) (*models.Service, error) {
	row := db.QueryRowContext(ctx, `SELECT id, name, price, description, image, popular, created_at
        FROM services WHERE id = ?`, id)
	s, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	return s, err
}

func (db *DB) InsertService(ctx context.Context, service *models.Service) error {
	if service.ID == "" {
		service.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `INSERT INTO services (id, name, price, description, image, popular, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		service.ID, service.Name, service.Price, service.Description, service.Image, service.Popular, now)
	if err != nil {
		return fmt.Errorf("failed to insert service: %w", err)
	}
	service.CreatedAt = now
	return nil
}

func (db *DB) UpdateService(ctx context.Context, service *models.Service) error {
	result, err := db.ExecContext(ctx, `UPDATE services SET name = ?, price = ?, description = ?, image = ?, popular = ?
        WHERE id = ?`,
		service.Name, service.Price, service.Description, service.Image, service.Popular, service.ID)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	return expectAffected(result, ErrServiceNotFound)
}

func (db *DB) DeleteService(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM services WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	return expectAffected(result, ErrServiceNotFound)
}

func (db *DB) GetPriceMapping(ctx context.Context, serviceID string) (*models.PriceMapping, error) {
	var m models.PriceMapping
	err := db.QueryRowContext(ctx, `SELECT service_id, stripe_product_id, stripe_price_full_id, stripe_price_deposit_id
        FROM stripe_products WHERE service_id = ?`, serviceID).
		Scan(&m.ServiceID, &m.ProductID, &m.PriceFullID, &m.PriceDepositID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPriceMappingNotFound
		}
		return nil, fmt.Errorf("failed to get price mapping: %w", err)
	}
	return &m, nil
}

func (db *DB) UpsertPriceMapping(ctx context.Context, m *models.PriceMapping) error {
	_, err := db.ExecContext(ctx, `INSERT INTO stripe_products
        (service_id, stripe_product_id, stripe_price_full_id, stripe_price_deposit_id) VALUES (?, ?, ?, ?)
        ON CONFLICT(service_id) DO UPDATE SET
          stripe_product_id = excluded.stripe_product_id,
          stripe_price_full_id = excluded.stripe_price_full_id,
          stripe_price_deposit_id = excluded.stripe_price_deposit_id`,
		m.ServiceID, m.ProductID, m.PriceFullID, m.PriceDepositID)
	if err != nil {
		return fmt.Errorf("failed to upsert price mapping: %w", err)
	}
	return nil
}

func expectAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func scanService(row rowScanner) (*models.Service, error) {
	var s models.Service
	if err := row.Scan(&s.ID, &s.Name, &s.Price, &s.Description, &s.Image, &s.Popular, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan service: %w", err)
	}
	return &s, nil
}
