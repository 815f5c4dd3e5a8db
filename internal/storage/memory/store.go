// Package memory implements storage interfaces in process memory. It
// backs tests and single-shot runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

// Store implements storage.Store with mutex-guarded maps.
type Store struct {
	mu       sync.RWMutex
	messages map[string]*storage.BankMessage
	seen     map[string]string // connectionID+messageID -> record ID
	payments map[string]*storage.PaymentInitiation
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		messages: make(map[string]*storage.BankMessage),
		seen:     make(map[string]string),
		payments: make(map[string]*storage.PaymentInitiation),
	}
}

func dedupKey(connectionID, messageID string) string {
	return connectionID + "\x00" + messageID
}

// RecordBankMessage implements storage.MessageStore.
func (s *Store) RecordBankMessage(ctx context.Context, msg *storage.BankMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey(msg.ConnectionID, msg.MessageID)
	if _, exists := s.seen[key]; exists {
		return false, nil
	}
	stored := *msg
	if stored.ReceivedAt.IsZero() {
		stored.ReceivedAt = time.Now()
	}
	s.messages[stored.ID] = &stored
	s.seen[key] = stored.ID
	return true, nil
}

// ListBankMessages implements storage.MessageStore.
func (s *Store) ListBankMessages(ctx context.Context, connectionID string) ([]*storage.BankMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.BankMessage
	for _, msg := range s.messages {
		if msg.ConnectionID == connectionID {
			copied := *msg
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	return out, nil
}

// CreatePaymentInitiation implements storage.PaymentStore.
func (s *Store) CreatePaymentInitiation(ctx context.Context, payment *storage.PaymentInitiation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *payment
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.payments[stored.ID] = &stored
	return nil
}

// ListPendingPayments implements storage.PaymentStore.
func (s *Store) ListPendingPayments(ctx context.Context, connectionID string) ([]*storage.PaymentInitiation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.PaymentInitiation
	for _, payment := range s.payments {
		if payment.ConnectionID == connectionID && !payment.Submitted {
			copied := *payment
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MarkPaymentSubmitted implements storage.PaymentStore.
func (s *Store) MarkPaymentSubmitted(ctx context.Context, id, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[id]
	if !ok {
		return storage.ErrNotFound
	}
	payment.Submitted = true
	payment.OrderID = orderID
	payment.SubmittedAt = time.Now()
	return nil
}

// Close implements storage.Store.
func (s *Store) Close(ctx context.Context) error {
	return nil
}
