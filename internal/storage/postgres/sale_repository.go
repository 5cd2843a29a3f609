package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

const saleColumns = `id, reservation_id, vehicle_id, client_id, payment_code, payment_status,
	status, total_price, provider_reference, cancel_reason, created_at, updated_at, paid_at, completed_at`

type saleRepository struct {
	db *sql.DB
}

// NewSaleRepository создаёт PostgreSQL-реализацию SaleRepository.
func NewSaleRepository(store *Store) domain.SaleRepository {
	return &saleRepository{db: store.DB()}
}

func (r *saleRepository) Put(ctx context.Context, s domain.Sale) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sales (
			id, reservation_id, vehicle_id, client_id, payment_code, payment_status,
			status, total_price, provider_reference, cancel_reason, created_at, updated_at, paid_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			reservation_id = EXCLUDED.reservation_id,
			vehicle_id = EXCLUDED.vehicle_id,
			client_id = EXCLUDED.client_id,
			payment_code = EXCLUDED.payment_code,
			payment_status = EXCLUDED.payment_status,
			status = EXCLUDED.status,
			total_price = EXCLUDED.total_price,
			provider_reference = EXCLUDED.provider_reference,
			cancel_reason = EXCLUDED.cancel_reason,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			paid_at = EXCLUDED.paid_at,
			completed_at = EXCLUDED.completed_at
	`,
		s.ID, s.ReservationID, s.VehicleID, s.ClientID, s.PaymentCode, string(s.PaymentStatus),
		string(s.Status), s.TotalPrice, s.ProviderReference, s.CancelReason, s.CreatedAt, s.UpdatedAt,
		nullTime(s.PaidAt), nullTime(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("put sale: %w", err)
	}
	return nil
}

func (r *saleRepository) Get(ctx context.Context, id string) (domain.Sale, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		s             domain.Sale
		paymentStatus string
		status        string
		paidAt        sql.NullTime
		completedAt   sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id).Scan(
		&s.ID, &s.ReservationID, &s.VehicleID, &s.ClientID, &s.PaymentCode, &paymentStatus,
		&status, &s.TotalPrice, &s.ProviderReference, &s.CancelReason, &s.CreatedAt, &s.UpdatedAt,
		&paidAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sale{}, fmt.Errorf("sale %s: %w", id, domain.ErrNotFound)
		}
		return domain.Sale{}, fmt.Errorf("select sale: %w", err)
	}
	s.PaymentStatus = domain.PaymentStatus(paymentStatus)
	s.Status = domain.SaleStatus(status)
	s.PaidAt = timePtr(paidAt)
	s.CompletedAt = timePtr(completedAt)
	return s, nil
}

func (r *saleRepository) UpdatePayment(ctx context.Context, id string, payment domain.SalePayment) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE sales
		SET payment_status = $2,
		    status = $3,
		    provider_reference = COALESCE(NULLIF($4, ''), provider_reference),
		    paid_at = COALESCE($5, paid_at),
		    updated_at = $6
		WHERE id = $1
	`,
		id,
		string(payment.PaymentStatus),
		string(payment.Status),
		payment.ProviderReference,
		nullTime(payment.PaidAt),
		payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update sale payment: %w", err)
	}
	return requireSaleRow(res, id, "update sale payment")
}

func (r *saleRepository) Complete(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE sales
		SET status = $2,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1
	`, id, string(domain.SaleStatusCompleted), at)
	if err != nil {
		return fmt.Errorf("complete sale: %w", err)
	}
	return requireSaleRow(res, id, "complete sale")
}

func (r *saleRepository) Cancel(ctx context.Context, id, reason string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sales (id, status, cancel_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			cancel_reason = EXCLUDED.cancel_reason,
			updated_at = EXCLUDED.updated_at
	`, id, string(domain.SaleStatusCancelled), reason, at)
	if err != nil {
		return fmt.Errorf("cancel sale: %w", err)
	}
	return nil
}

func requireSaleRow(res sql.Result, id, op string) error {
	affected, err := affectedRows(res, op)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sale %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

var _ domain.SaleRepository = (*saleRepository)(nil)
