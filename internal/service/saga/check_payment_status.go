package saga

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

type checkPaymentStatus struct {
	sealedStep
	deps      Dependencies
	maxChecks int
}

// NewCheckPaymentStatus создаёт шаг проверки оплаты. Оркестратор вызывает его
// повторно, пока в результате shouldRetry = true.
func NewCheckPaymentStatus(deps Dependencies, cfg Config) Step {
	return &checkPaymentStatus{
		deps:      deps.withDefaults(),
		maxChecks: cfg.withDefaults().MaxPaymentChecks,
	}
}

func (s *checkPaymentStatus) Name() StepName { return StepCheckPaymentStatus }

func (s *checkPaymentStatus) Execute(ctx context.Context, in Input) (Delta, error) {
	if in.SaleID == "" {
		return Delta{}, domain.ErrSaleIDRequired
	}

	attempt := in.PaymentCheckAttempt + 1
	maxChecks := in.MaxPaymentChecks
	if maxChecks < 1 {
		maxChecks = s.maxChecks
	}

	sale, err := s.deps.Sales.Get(ctx, in.SaleID)
	if err != nil {
		return Delta{}, err
	}

	status := sale.PaymentStatus
	if status == domain.PaymentStatusPending {
		now := s.deps.Now()
		switch {
		case in.PaymentApproved != nil && *in.PaymentApproved:
			if err := s.deps.Sales.UpdatePayment(ctx, in.SaleID, domain.SalePayment{
				PaymentStatus: domain.PaymentStatusPaid,
				Status:        domain.SaleStatusPaid,
				PaidAt:        &now,
				UpdatedAt:     now,
			}); err != nil {
				return Delta{}, err
			}
			status = domain.PaymentStatusPaid
		case in.PaymentApproved != nil || attempt >= maxChecks:
			if err := s.deps.Sales.UpdatePayment(ctx, in.SaleID, domain.SalePayment{
				PaymentStatus: domain.PaymentStatusFailed,
				Status:        domain.SaleStatusPaymentTimeout,
				UpdatedAt:     now,
			}); err != nil {
				return Delta{}, err
			}
			status = domain.PaymentStatusFailed
		}
	}

	shouldRetry := status == domain.PaymentStatusPending && attempt < maxChecks

	s.deps.Logger.WithFields(log.Fields{
		"sale_id":        in.SaleID,
		"attempt":        attempt,
		"max_checks":     maxChecks,
		"payment_status": status,
		"should_retry":   shouldRetry,
	}).Debug("payment status checked")

	return Delta{
		PaymentCheckAttempt: attempt,
		PaymentStatus:       status,
		ShouldRetry:         &shouldRetry,
	}, nil
}
