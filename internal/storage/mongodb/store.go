// Package mongodb implements storage interfaces using MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

// Store implements storage.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	messages *mongo.Collection
	payments *mongo.Collection
}

// Config holds MongoDB connection settings.
type Config struct {
	URI      string
	Database string
}

// NewStore connects to MongoDB and prepares collections and indexes.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:   client,
		db:       db,
		messages: db.Collection("bank_messages"),
		payments: db.Collection("payment_initiations"),
	}
	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}
	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	// The unique index is what makes message deduplication atomic.
	_, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "connection_id", Value: 1}, {Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "connection_id", Value: 1}, {Key: "received_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating message indexes: %w", err)
	}

	_, err = s.payments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "connection_id", Value: 1}, {Key: "submitted", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating payment indexes: %w", err)
	}
	return nil
}

// RecordBankMessage implements storage.MessageStore.
func (s *Store) RecordBankMessage(ctx context.Context, msg *storage.BankMessage) (bool, error) {
	stored := *msg
	if stored.ReceivedAt.IsZero() {
		stored.ReceivedAt = time.Now()
	}
	_, err := s.messages.InsertOne(ctx, &stored)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("inserting bank message: %w", err)
	}
	return true, nil
}

// ListBankMessages implements storage.MessageStore.
func (s *Store) ListBankMessages(ctx context.Context, connectionID string) ([]*storage.BankMessage, error) {
	cursor, err := s.messages.Find(ctx,
		bson.M{"connection_id": connectionID},
		options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("querying bank messages: %w", err)
	}
	var out []*storage.BankMessage
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding bank messages: %w", err)
	}
	return out, nil
}

// CreatePaymentInitiation implements storage.PaymentStore.
func (s *Store) CreatePaymentInitiation(ctx context.Context, payment *storage.PaymentInitiation) error {
	stored := *payment
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if _, err := s.payments.InsertOne(ctx, &stored); err != nil {
		return fmt.Errorf("inserting payment initiation: %w", err)
	}
	return nil
}

// ListPendingPayments implements storage.PaymentStore.
func (s *Store) ListPendingPayments(ctx context.Context, connectionID string) ([]*storage.PaymentInitiation, error) {
	cursor, err := s.payments.Find(ctx,
		bson.M{"connection_id": connectionID, "submitted": false},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("querying pending payments: %w", err)
	}
	var out []*storage.PaymentInitiation
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding pending payments: %w", err)
	}
	return out, nil
}

// MarkPaymentSubmitted implements storage.PaymentStore.
func (s *Store) MarkPaymentSubmitted(ctx context.Context, id, orderID string) error {
	result, err := s.payments.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"submitted":    true,
			"order_id":     orderID,
			"submitted_at": time.Now(),
		}})
	if err != nil {
		return fmt.Errorf("updating payment initiation: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close implements storage.Store.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
