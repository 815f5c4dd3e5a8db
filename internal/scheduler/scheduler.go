// Package scheduler periodically sweeps all configured bank
// connections: it advances key initialization, fetches new account
// statements and submits pending payment initiations. Connections are
// processed through a bounded worker pool and failures of one
// connection never affect the others.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sirosfoundation/go-ebics/internal/config"
	"github.com/sirosfoundation/go-ebics/internal/keystore"
	"github.com/sirosfoundation/go-ebics/internal/storage"
	"github.com/sirosfoundation/go-ebics/pkg/ebics"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/xmlutil"
)

// engine is the slice of the EBICS client the scheduler drives.
type engine interface {
	Connect(ctx context.Context, sub *ebics.Subscriber) (*ebics.Subscriber, error)
	DownloadTransaction(ctx context.Context, sub *ebics.Subscriber, orderType string, params *message.OrderParams) ([]byte, error)
	UploadTransaction(ctx context.Context, sub *ebics.Subscriber, orderType string, params *message.OrderParams, payload []byte) (string, error)
}

// Scheduler drives the periodic sweeps.
type Scheduler struct {
	client engine
	store  storage.Store
	keys   *keystore.Store
	log    *slog.Logger

	interval        time.Duration
	maxConcurrent   int
	fetchWindowDays int
	connections     []config.ConnectionConfig
}

// New creates a scheduler from the daemon configuration.
func New(client *ebics.Client, store storage.Store, keys *keystore.Store, cfg *config.Config, log *slog.Logger) *Scheduler {
	return &Scheduler{
		client:          client,
		store:           store,
		keys:            keys,
		log:             log,
		interval:        cfg.Scheduler.Interval,
		maxConcurrent:   cfg.Scheduler.MaxConcurrent,
		fetchWindowDays: cfg.Scheduler.FetchWindowDays,
		connections:     cfg.Connections,
	}
}

// Run sweeps immediately and then on every interval tick until the
// context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep processes every configured connection once. Each connection
// runs in its own goroutine, bounded by the concurrency limit;
// failures are logged and isolated.
func (s *Scheduler) Sweep(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)

	for _, conn := range s.connections {
		conn := conn
		g.Go(func() error {
			if err := s.runConnection(ctx, conn); err != nil {
				s.log.Error("connection sweep failed",
					"connection", conn.Name, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

func (s *Scheduler) runConnection(ctx context.Context, conn config.ConnectionConfig) error {
	sub, err := s.loadOrCreate(conn)
	if err != nil {
		return err
	}

	next, err := s.client.Connect(ctx, sub)
	if next != nil {
		if saveErr := s.keys.Save(conn.Name, next); saveErr != nil {
			return fmt.Errorf("persisting connection state: %w", saveErr)
		}
	}
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	if !next.Initialized() {
		s.log.Info("connection not yet initialized, skipping orders",
			"connection", conn.Name)
		return nil
	}

	if conn.Fetch {
		if err := s.fetchStatements(ctx, conn.Name, next); err != nil {
			return fmt.Errorf("fetching statements: %w", err)
		}
	}
	if conn.Submit {
		if err := s.submitPayments(ctx, conn.Name, next); err != nil {
			return fmt.Errorf("submitting payments: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) loadOrCreate(conn config.ConnectionConfig) (*ebics.Subscriber, error) {
	sub, err := s.keys.Load(conn.Name)
	if errors.Is(err, keystore.ErrNotFound) {
		s.log.Info("creating keys for new connection", "connection", conn.Name)
		sub, err = ebics.NewSubscriber(conn.URL, conn.HostID, conn.PartnerID, conn.UserID)
		if err != nil {
			return nil, err
		}
		sub.SystemID = conn.SystemID
		if err := s.keys.Save(conn.Name, sub); err != nil {
			return nil, err
		}
		return sub, nil
	}
	if err != nil {
		return nil, err
	}
	// The endpoint follows the configuration, not the stored state.
	sub.URL = conn.URL
	return sub, nil
}

// fetchStatements downloads the camt.053 statements of the recent
// window and records each contained document, deduplicated by its
// message ID.
func (s *Scheduler) fetchStatements(ctx context.Context, connName string, sub *ebics.Subscriber) error {
	end := time.Now()
	start := end.AddDate(0, 0, -s.fetchWindowDays)
	params := &message.OrderParams{
		DateRange: &message.DateRange{Start: start, End: end},
	}

	data, err := s.client.DownloadTransaction(ctx, sub, message.OrderTypeC53, params)
	if err != nil {
		var bankErr *ebics.BankError
		if errors.As(err, &bankErr) && bankErr.Code == message.CodeNoDownloadDataAvailable {
			s.log.Debug("no new statements", "connection", connName)
			return nil
		}
		return err
	}

	documents, err := order.Unzip(data)
	if err != nil {
		// Some hosts deliver a single document without a container.
		documents = map[string][]byte{"statement.xml": data}
	}

	var created int
	for name, doc := range documents {
		messageID := extractMessageID(doc)
		if messageID == "" {
			messageID = name
		}
		fresh, err := s.store.RecordBankMessage(ctx, &storage.BankMessage{
			ID:           uuid.NewString(),
			ConnectionID: connName,
			MessageID:    messageID,
			OrderType:    message.OrderTypeC53,
			Payload:      doc,
		})
		if err != nil {
			return err
		}
		if fresh {
			created++
		}
	}
	s.log.Info("statements fetched",
		"connection", connName, "documents", len(documents), "new", created)
	return nil
}

// submitPayments uploads every pending payment initiation and marks it
// submitted with the assigned order ID.
func (s *Scheduler) submitPayments(ctx context.Context, connName string, sub *ebics.Subscriber) error {
	pending, err := s.store.ListPendingPayments(ctx, connName)
	if err != nil {
		return err
	}
	for _, payment := range pending {
		orderID, err := s.client.UploadTransaction(ctx, sub, message.OrderTypeCCT, nil, payment.Document)
		if err != nil {
			return fmt.Errorf("uploading payment %s: %w", payment.ID, err)
		}
		if err := s.store.MarkPaymentSubmitted(ctx, payment.ID, orderID); err != nil {
			return err
		}
		s.log.Info("payment submitted",
			"connection", connName, "payment", payment.ID, "order", orderID)
	}
	return nil
}

// extractMessageID pulls the group header message ID out of a camt
// document.
func extractMessageID(data []byte) string {
	doc, err := xmlutil.Parse(data)
	if err != nil {
		return ""
	}
	grpHdr := findByLocalName(doc.Root(), "GrpHdr")
	if grpHdr == nil {
		return ""
	}
	return xmlutil.Text(grpHdr, "MsgId")
}

func findByLocalName(e *etree.Element, name string) *etree.Element {
	if e.Tag == name {
		return e
	}
	for _, c := range e.ChildElements() {
		if found := findByLocalName(c, name); found != nil {
			return found
		}
	}
	return nil
}
