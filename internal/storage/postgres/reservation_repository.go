package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

const reservationColumns = `id, sale_id, vehicle_id, client_id, status, payment_code,
	reserved_at, expires_at, updated_at, confirmed_at, cancelled_at, cancel_reason`

type reservationRepository struct {
	db *sql.DB
}

// NewReservationRepository создаёт PostgreSQL-реализацию ReservationRepository.
func NewReservationRepository(store *Store) domain.ReservationRepository {
	return &reservationRepository{db: store.DB()}
}

func (r *reservationRepository) Create(ctx context.Context, res domain.Reservation) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO reservations (
			id, sale_id, vehicle_id, client_id, status, payment_code,
			reserved_at, expires_at, updated_at, confirmed_at, cancelled_at, cancel_reason
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO NOTHING
	`,
		res.ID, res.SaleID, res.VehicleID, res.ClientID, string(res.Status), res.PaymentCode,
		res.ReservedAt, res.ExpiresAt, res.UpdatedAt,
		nullTime(res.ConfirmedAt), nullTime(res.CancelledAt), res.CancelReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("reservation %s: %w", res.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}

	affected, err := affectedRows(result, "insert reservation")
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("reservation %s: %w", res.ID, domain.ErrAlreadyExists)
	}
	return nil
}

func (r *reservationRepository) Get(ctx context.Context, id string) (domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		res         domain.Reservation
		status      string
		confirmedAt sql.NullTime
		cancelledAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id).Scan(
		&res.ID, &res.SaleID, &res.VehicleID, &res.ClientID, &status, &res.PaymentCode,
		&res.ReservedAt, &res.ExpiresAt, &res.UpdatedAt, &confirmedAt, &cancelledAt, &res.CancelReason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, fmt.Errorf("reservation %s: %w", id, domain.ErrNotFound)
		}
		return domain.Reservation{}, fmt.Errorf("select reservation: %w", err)
	}
	res.Status = domain.ReservationStatus(status)
	res.ConfirmedAt = timePtr(confirmedAt)
	res.CancelledAt = timePtr(cancelledAt)
	return res, nil
}

func (r *reservationRepository) AwaitPayment(ctx context.Context, id, paymentCode string, at time.Time) error {
	return r.transition(ctx, id, domain.ReservationStatusAwaitingPayment,
		"payment_code = $3, updated_at = $4", paymentCode, at)
}

func (r *reservationRepository) Confirm(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx, id, domain.ReservationStatusConfirmed,
		"confirmed_at = $3, updated_at = $3", at)
}

func (r *reservationRepository) Cancel(ctx context.Context, id, reason string, at time.Time) error {
	return r.transition(ctx, id, domain.ReservationStatusCancelled,
		"cancel_reason = $3, cancelled_at = $4, updated_at = $4", reason, at)
}

// transition выполняет UPDATE ... WHERE status IN (источники target).
// Плейсхолдеры $1 и $2 заняты id и новым статусом, set использует $3 и далее.
func (r *reservationRepository) transition(ctx context.Context, id string, target domain.ReservationStatus, set string, setArgs ...any) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sources := domain.ReservationSourcesFor(target)
	placeholders, sourceArgs := inPlaceholders(3+len(setArgs), sources)

	args := make([]any, 0, 2+len(setArgs)+len(sourceArgs))
	args = append(args, id, string(target))
	args = append(args, setArgs...)
	args = append(args, sourceArgs...)

	query := `
		UPDATE reservations
		SET status = $2, ` + set + `
		WHERE id = $1
		  AND status IN (` + placeholders + `)`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("move reservation to %s: %w", target, err)
	}

	affected, err := affectedRows(res, "move reservation to "+string(target))
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("reservation %s cannot move to %s (expected one of %d source statuses): %w",
			id, target, len(sources), domain.ErrPreconditionFailed)
	}
	return nil
}

var _ domain.ReservationRepository = (*reservationRepository)(nil)
