package saga

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

type validateClient struct {
	sealedStep
	clients domain.ClientRepository
}

// NewValidateClient создаёт шаг проверки покупателя. Шаг ничего не пишет.
func NewValidateClient(deps Dependencies) Step {
	return &validateClient{clients: deps.Clients}
}

func (s *validateClient) Name() StepName { return StepValidateClient }

func (s *validateClient) Execute(ctx context.Context, in Input) (Delta, error) {
	clientID := in.CustomerID()
	if clientID == "" {
		return Delta{}, domain.ErrClientIDRequired
	}

	client, err := s.clients.Get(ctx, clientID)
	if err != nil {
		return Delta{}, err
	}
	if !client.IsActive() {
		return Delta{}, fmt.Errorf("client %s is %s: %w", clientID, client.Status, domain.ErrInvalidState)
	}

	return Delta{ClientID: clientID}, nil
}
