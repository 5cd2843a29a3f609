package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

const vehicleColumns = `id, brand, model, year, color, price, status,
	sale_id, client_id, reservation_id, reserved_at, sold_at, created_at, updated_at`

type vehicleRepository struct {
	db *sql.DB
}

// NewVehicleRepository создаёт PostgreSQL-реализацию VehicleRepository.
// Переходы статусов выполняются одним UPDATE с условием в WHERE.
func NewVehicleRepository(store *Store) domain.VehicleRepository {
	return &vehicleRepository{db: store.DB()}
}

func (r *vehicleRepository) Create(ctx context.Context, v domain.Vehicle) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO vehicles (
			id, brand, model, year, color, price, status,
			sale_id, client_id, reservation_id, reserved_at, sold_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO NOTHING
	`,
		v.ID, v.Brand, v.Model, v.Year, v.Color, v.Price, string(v.Status),
		v.SaleID, v.ClientID, v.ReservationID, nullTime(v.ReservedAt), nullTime(v.SoldAt),
		v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert vehicle: %w", err)
	}

	affected, err := affectedRows(res, "insert vehicle")
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("vehicle %s: %w", v.ID, domain.ErrAlreadyExists)
	}
	return nil
}

func (r *vehicleRepository) Get(ctx context.Context, id string) (domain.Vehicle, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
	vehicle, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, domain.ErrNotFound)
		}
		return domain.Vehicle{}, fmt.Errorf("select vehicle: %w", err)
	}
	return vehicle, nil
}

func (r *vehicleRepository) Reserve(ctx context.Context, id string, reservation domain.VehicleReservation) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE vehicles
		SET status = $2,
		    sale_id = $3,
		    client_id = $4,
		    reservation_id = $5,
		    reserved_at = $6,
		    updated_at = $6
		WHERE id = $1
		  AND status = $7
	`,
		id,
		string(domain.VehicleStatusReserved),
		reservation.SaleID,
		reservation.ClientID,
		reservation.ReservationID,
		reservation.ReservedAt,
		string(domain.VehicleStatusAvailable),
	)
	if err != nil {
		return fmt.Errorf("reserve vehicle: %w", err)
	}
	return r.requireAffected(res, "reserve vehicle", fmt.Sprintf("vehicle %s is not available", id))
}

func (r *vehicleRepository) MarkSold(ctx context.Context, id, saleID, clientID string, soldAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE vehicles
		SET status = $2,
		    client_id = $3,
		    sold_at = $4,
		    updated_at = $4
		WHERE id = $1
		  AND status = $5
		  AND sale_id = $6
	`,
		id,
		string(domain.VehicleStatusSold),
		clientID,
		soldAt,
		string(domain.VehicleStatusReserved),
		saleID,
	)
	if err != nil {
		return fmt.Errorf("mark vehicle sold: %w", err)
	}
	return r.requireAffected(res, "mark vehicle sold", fmt.Sprintf("vehicle %s is not reserved by sale %s", id, saleID))
}

func (r *vehicleRepository) Release(ctx context.Context, id, saleID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE vehicles
		SET status = $2,
		    sale_id = '',
		    client_id = '',
		    reservation_id = '',
		    reserved_at = NULL,
		    updated_at = $3
		WHERE id = $1
		  AND status = $4
		  AND sale_id = $5
	`,
		id,
		string(domain.VehicleStatusAvailable),
		at,
		string(domain.VehicleStatusReserved),
		saleID,
	)
	if err != nil {
		return fmt.Errorf("release vehicle: %w", err)
	}
	return r.requireAffected(res, "release vehicle", fmt.Sprintf("vehicle %s is not reserved by sale %s", id, saleID))
}

func (r *vehicleRepository) UpdateDetails(ctx context.Context, id string, details domain.VehicleDetails, at time.Time) (domain.Vehicle, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		UPDATE vehicles
		SET brand = COALESCE($2, brand),
		    model = COALESCE($3, model),
		    year = COALESCE($4, year),
		    color = COALESCE($5, color),
		    price = COALESCE($6, price),
		    updated_at = $7
		WHERE id = $1
		  AND status <> $8
		RETURNING `+vehicleColumns,
		id,
		details.Brand,
		details.Model,
		details.Year,
		details.Color,
		details.Price,
		at,
		string(domain.VehicleStatusSold),
	)
	vehicle, err := scanVehicle(row)
	if err == nil {
		return vehicle, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Vehicle{}, fmt.Errorf("update vehicle details: %w", err)
	}

	// Ни одна строка не обновлена: либо записи нет, либо автомобиль продан.
	var status string
	if err := r.db.QueryRowContext(ctx, `SELECT status FROM vehicles WHERE id = $1`, id).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, domain.ErrNotFound)
		}
		return domain.Vehicle{}, fmt.Errorf("check vehicle existence: %w", err)
	}
	return domain.Vehicle{}, fmt.Errorf("vehicle %s is %s: %w", id, status, domain.ErrInvalidState)
}

func (r *vehicleRepository) ListByStatus(ctx context.Context, status domain.VehicleStatus) ([]domain.Vehicle, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+vehicleColumns+`
		FROM vehicles
		WHERE status = $1
		ORDER BY price ASC, id ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	vehicles := make([]domain.Vehicle, 0)
	for rows.Next() {
		vehicle, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle row: %w", err)
		}
		vehicles = append(vehicles, vehicle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vehicle rows: %w", err)
	}

	return vehicles, nil
}

func (r *vehicleRepository) requireAffected(res sql.Result, op, conflict string) error {
	affected, err := affectedRows(res, op)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", conflict, domain.ErrPreconditionFailed)
	}
	return nil
}

func scanVehicle(row scanner) (domain.Vehicle, error) {
	var (
		v          domain.Vehicle
		status     string
		reservedAt sql.NullTime
		soldAt     sql.NullTime
	)
	if err := row.Scan(
		&v.ID, &v.Brand, &v.Model, &v.Year, &v.Color, &v.Price, &status,
		&v.SaleID, &v.ClientID, &v.ReservationID, &reservedAt, &soldAt,
		&v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return domain.Vehicle{}, err
	}
	v.Status = domain.VehicleStatus(status)
	v.ReservedAt = timePtr(reservedAt)
	v.SoldAt = timePtr(soldAt)
	return v, nil
}

var _ domain.VehicleRepository = (*vehicleRepository)(nil)
