// Package storage defines the persistence interfaces of the daemon:
// bank messages fetched from connections, deduplicated by message ID,
// and outgoing payment initiations with their submission state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// BankMessage is one business document fetched from a bank, for
// example a single camt.053 statement out of a download.
type BankMessage struct {
	ID           string    `bson:"_id" json:"id"`
	ConnectionID string    `bson:"connection_id" json:"connectionId"`
	MessageID    string    `bson:"message_id" json:"messageId"`
	OrderType    string    `bson:"order_type" json:"orderType"`
	Payload      []byte    `bson:"payload" json:"payload"`
	ReceivedAt   time.Time `bson:"received_at" json:"receivedAt"`
}

// PaymentInitiation is an outgoing pain.001 document queued for
// upload. Submitted flips once the bank accepted the order; the
// record is never submitted twice.
type PaymentInitiation struct {
	ID           string    `bson:"_id" json:"id"`
	ConnectionID string    `bson:"connection_id" json:"connectionId"`
	Document     []byte    `bson:"document" json:"document"`
	Submitted    bool      `bson:"submitted" json:"submitted"`
	OrderID      string    `bson:"order_id,omitempty" json:"orderId,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	SubmittedAt  time.Time `bson:"submitted_at,omitempty" json:"submittedAt,omitempty"`
}

// MessageStore persists fetched bank messages.
type MessageStore interface {
	// RecordBankMessage stores a message unless one with the same
	// connection and message ID already exists. It reports whether
	// the message was new.
	RecordBankMessage(ctx context.Context, msg *BankMessage) (bool, error)

	// ListBankMessages returns the stored messages of a connection,
	// newest first.
	ListBankMessages(ctx context.Context, connectionID string) ([]*BankMessage, error)
}

// PaymentStore persists outgoing payment initiations.
type PaymentStore interface {
	CreatePaymentInitiation(ctx context.Context, payment *PaymentInitiation) error

	// ListPendingPayments returns the unsubmitted payments of a
	// connection, oldest first.
	ListPendingPayments(ctx context.Context, connectionID string) ([]*PaymentInitiation, error)

	// MarkPaymentSubmitted records the bank's order ID and flips the
	// submitted flag.
	MarkPaymentSubmitted(ctx context.Context, id, orderID string) error
}

// Store combines all persistence interfaces.
type Store interface {
	MessageStore
	PaymentStore
	Close(ctx context.Context) error
}
