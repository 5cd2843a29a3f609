package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

type clientRepository struct {
	db *sql.DB
}

// NewClientRepository создаёт PostgreSQL-реализацию ClientRepository.
func NewClientRepository(store *Store) domain.ClientRepository {
	return &clientRepository{db: store.DB()}
}

func (r *clientRepository) Create(ctx context.Context, c domain.Client) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (
			id, full_name, email, document_number, payment_key, address, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		c.ID, c.FullName, c.Email, c.DocumentNumber, c.PaymentKey, c.Address, string(c.Status), c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("client %s: %w", c.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (r *clientRepository) Get(ctx context.Context, id string) (domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		c      domain.Client
		status string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, document_number, payment_key, address, status, created_at
		FROM clients
		WHERE id = $1
	`, id).Scan(&c.ID, &c.FullName, &c.Email, &c.DocumentNumber, &c.PaymentKey, &c.Address, &status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Client{}, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
		}
		return domain.Client{}, fmt.Errorf("select client: %w", err)
	}
	c.Status = domain.ClientStatus(status)
	return c, nil
}

var _ domain.ClientRepository = (*clientRepository)(nil)
