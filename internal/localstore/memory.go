package localstore

import (
	"context" // Store interface signature
	"sync"    // Map guard

	"kiosk_system/internal/domain" // Persisted models
)

// Memory is a process-local store with the same semantics as Redis
type Memory struct {
	mu         sync.Mutex
	identities map[string]domain.Identity     // By session id
	pending    map[string]domain.Transaction  // Ready but not yet approved
	details    map[string]domain.OrderDetails // Frozen cart of the pending order
	receipts   map[string]domain.Receipt      // Unacknowledged receipts
}

// NewMemory creates an empty store
func NewMemory() *Memory {
	return &Memory{
		identities: make(map[string]domain.Identity),
		pending:    make(map[string]domain.Transaction),
		details:    make(map[string]domain.OrderDetails),
		receipts:   make(map[string]domain.Receipt),
	}
}

func (m *Memory) SaveIdentity(_ context.Context, sid string, id domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[sid] = id
	return nil
}

func (m *Memory) LoadIdentity(_ context.Context, sid string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.identities[sid]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (m *Memory) DeleteIdentity(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identities, sid)
	return nil
}

func (m *Memory) SavePending(_ context.Context, sid string, tx domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[sid] = tx
	m.details[sid] = tx.OrderDetails
	return nil
}

func (m *Memory) LoadPending(_ context.Context, sid string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.pending[sid]
	if !ok || tx.GatewayTransactionID == "" || tx.PartnerOrderID == "" {
		return nil, nil
	}
	tx.Status = domain.StatusPending
	tx.OrderDetails = m.details[sid]
	return &tx, nil
}

func (m *Memory) TakeIdentifiers(_ context.Context, sid string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.pending[sid]
	if !ok {
		return "", "", nil
	}
	delete(m.pending, sid)
	return tx.GatewayTransactionID, tx.PartnerOrderID, nil
}

func (m *Memory) LoadOrderDetails(_ context.Context, sid string) (*domain.OrderDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.details[sid]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *Memory) SaveReceipt(_ context.Context, sid string, r domain.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[sid] = r
	return nil
}

func (m *Memory) LoadReceipt(_ context.Context, sid string) (*domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[sid]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) ClearTransaction(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, sid)
	delete(m.details, sid)
	delete(m.receipts, sid)
	return nil
}
