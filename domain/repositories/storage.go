package repositories

import (
	"context"

	"github.com/satriahrh/wavebridge/domain/entities"
)

// ExchangeRepository defines data access methods for completed exchanges
type ExchangeRepository interface {
	Create(ctx context.Context, exchange *entities.Exchange) error
	// ListRecent returns up to limit exchanges, newest first
	ListRecent(ctx context.Context, limit int) ([]*entities.Exchange, error)
}
