package adapters

import (
	"context"
	"errors"
	"sync"

	"github.com/satriahrh/wavebridge/domain/entities"
	"github.com/satriahrh/wavebridge/domain/repositories"
)

// DefaultMemoryCapacity bounds MemoryExchangeRepository when no capacity is given
const DefaultMemoryCapacity = 1000

// MemoryExchangeRepository keeps the most recent exchanges in memory.
// The oldest record is dropped once capacity is reached.
type MemoryExchangeRepository struct {
	mu        sync.RWMutex
	exchanges []*entities.Exchange // oldest first
	capacity  int
}

var _ repositories.ExchangeRepository = (*MemoryExchangeRepository)(nil)

// NewMemoryExchangeRepository creates a new in-memory exchange repository
func NewMemoryExchangeRepository(capacity int) *MemoryExchangeRepository {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryExchangeRepository{
		exchanges: make([]*entities.Exchange, 0, capacity),
		capacity:  capacity,
	}
}

// Create implements ExchangeRepository interface
func (m *MemoryExchangeRepository) Create(ctx context.Context, exchange *entities.Exchange) error {
	if exchange == nil {
		return errors.New("exchange cannot be nil")
	}

	if err := exchange.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Store a copy to prevent external modifications
	exchangeCopy := *exchange
	if len(m.exchanges) == m.capacity {
		copy(m.exchanges, m.exchanges[1:])
		m.exchanges[len(m.exchanges)-1] = &exchangeCopy
		return nil
	}
	m.exchanges = append(m.exchanges, &exchangeCopy)

	return nil
}

// ListRecent implements ExchangeRepository interface
func (m *MemoryExchangeRepository) ListRecent(ctx context.Context, limit int) ([]*entities.Exchange, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit > len(m.exchanges) {
		limit = len(m.exchanges)
	}

	// Return copies, newest first
	result := make([]*entities.Exchange, 0, limit)
	for i := len(m.exchanges) - 1; i >= len(m.exchanges)-limit; i-- {
		exchangeCopy := *m.exchanges[i]
		result = append(result, &exchangeCopy)
	}

	return result, nil
}

// Len returns the number of stored exchanges
func (m *MemoryExchangeRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.exchanges)
}
