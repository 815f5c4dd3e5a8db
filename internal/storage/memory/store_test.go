package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

func TestRecordBankMessageDeduplicates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	msg := &storage.BankMessage{
		ID:           uuid.NewString(),
		ConnectionID: "bank-a",
		MessageID:    "MSG-001",
		OrderType:    "C53",
		Payload:      []byte("<Document/>"),
	}

	created, err := store.RecordBankMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, created)

	// Same message ID on the same connection is dropped.
	dup := *msg
	dup.ID = uuid.NewString()
	created, err = store.RecordBankMessage(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)

	// The same message ID on another connection is distinct.
	other := *msg
	other.ID = uuid.NewString()
	other.ConnectionID = "bank-b"
	created, err = store.RecordBankMessage(ctx, &other)
	require.NoError(t, err)
	assert.True(t, created)

	msgs, err := store.ListBankMessages(ctx, "bank-a")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestPaymentSubmissionFlow(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	payment := &storage.PaymentInitiation{
		ID:           uuid.NewString(),
		ConnectionID: "bank-a",
		Document:     []byte("<CstmrCdtTrfInitn/>"),
	}
	require.NoError(t, store.CreatePaymentInitiation(ctx, payment))

	pending, err := store.ListPendingPayments(ctx, "bank-a")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.MarkPaymentSubmitted(ctx, payment.ID, "OR01"))

	pending, err = store.ListPendingPayments(ctx, "bank-a")
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = store.MarkPaymentSubmitted(ctx, "missing", "OR02")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
