package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/Mutombe/cargo-space/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

// Migrate applies the SQL files under dir. It reports whether anything changed.
func Migrate(dsn, dir string) (bool, error) {
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return false, fmt.Errorf("migration init: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, fmt.Errorf("migration up: %w", err)
	}
	return true, nil
}

func (p *PostgresStore) SaveCargo(ctx context.Context, post models.CargoPost) error {
	data, err := json.Marshal(post)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO cargo_posts(id, owner_id, cargo_type, transport_mode, title, estimated_cost, posted_at, data)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, estimated_cost = EXCLUDED.estimated_cost`,
		post.ID, post.OwnerID, post.Type, post.TransportMode, post.Details.Title, post.EstimatedCost, post.PostedAt, data)
	return err
}

func (p *PostgresStore) GetCargo(ctx context.Context, id string) (models.CargoPost, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT data FROM cargo_posts WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CargoPost{}, ErrNotFound
	}
	if err != nil {
		return models.CargoPost{}, err
	}
	var post models.CargoPost
	if err := json.Unmarshal(data, &post); err != nil {
		return models.CargoPost{}, fmt.Errorf("decode cargo %s: %w", id, err)
	}
	return post, nil
}

// SaveBooking upserts b. The status_rank guard drops updates that would move
// the booking backwards.
func (p *PostgresStore) SaveBooking(ctx context.Context, b models.Booking) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	var driverID sql.NullString
	if b.SelectedDriver != nil {
		driverID = sql.NullString{String: b.SelectedDriver.ID, Valid: true}
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO bookings(id, cargo_id, owner_id, driver_id, agreed_price, price_source, payment_method,
			service_fee, total, payment_ref, status, status_rank, created_at, updated_at, data)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			payment_method = EXCLUDED.payment_method,
			payment_ref    = EXCLUDED.payment_ref,
			status         = EXCLUDED.status,
			status_rank    = EXCLUDED.status_rank,
			updated_at     = EXCLUDED.updated_at,
			data           = EXCLUDED.data
		WHERE bookings.status_rank <= EXCLUDED.status_rank`,
		b.ID, b.CargoPost.ID, b.CargoPost.OwnerID, driverID, b.AgreedPrice, b.PriceSource, b.PaymentMethod,
		b.ServiceFee, b.Total, b.PaymentRef, b.Status, b.Status.Rank(), b.CreatedAt, b.UpdatedAt, data)
	return err
}

func (p *PostgresStore) GetBooking(ctx context.Context, id string) (models.Booking, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT data FROM bookings WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Booking{}, ErrNotFound
	}
	if err != nil {
		return models.Booking{}, err
	}
	var b models.Booking
	if err := json.Unmarshal(data, &b); err != nil {
		return models.Booking{}, fmt.Errorf("decode booking %s: %w", id, err)
	}
	return b, nil
}

func (p *PostgresStore) ListBookings(ctx context.Context, ownerID string) ([]models.Booking, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT data FROM bookings WHERE owner_id = $1 ORDER BY updated_at DESC, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Booking, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var b models.Booking
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
