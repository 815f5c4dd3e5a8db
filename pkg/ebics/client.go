package ebics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
	"github.com/sirosfoundation/go-ebics/pkg/xmlutil"
)

// Config holds engine settings.
type Config struct {
	Transport *transport.Config
	Logger    *slog.Logger

	// SegmentSize overrides the transfer segment size, mainly for
	// tests. Zero selects order.DefaultSegmentSize.
	SegmentSize int
}

// Client drives EBICS transactions against bank endpoints. It is
// stateless across calls; all per-connection state lives in the
// Subscriber passed to each operation.
type Client struct {
	http        *transport.Client
	log         *slog.Logger
	segmentSize int
}

// NewClient creates an engine client.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:        transport.NewClient(cfg.Transport),
		log:         logger,
		segmentSize: cfg.SegmentSize,
	}
}

// post serializes a document, runs the soft validation gate and sends
// it to the subscriber's endpoint, returning the parsed response.
func (c *Client) post(ctx context.Context, url string, doc *etree.Document) (*etree.Document, error) {
	if err := xmlutil.Validate(doc); err != nil {
		return nil, fmt.Errorf("outbound document rejected: %w", err)
	}
	data, err := xmlutil.Serialize(doc)
	if err != nil {
		return nil, err
	}
	respData, err := c.http.PostXML(ctx, url, data)
	if err != nil {
		return nil, err
	}
	respDoc, err := xmlutil.Parse(respData)
	if err != nil {
		return nil, &ParseError{Reason: "malformed XML", Err: err}
	}
	if err := xmlutil.Validate(respDoc); err != nil {
		c.log.Warn("response failed structural validation",
			"url", url, "error", err)
	}
	return respDoc, nil
}

// postSigned signs a request with the subscriber's authentication key
// before sending and verifies the bank's signature on the response.
func (c *Client) postSigned(ctx context.Context, sub *Subscriber, doc *etree.Document) (*message.ResponseContent, error) {
	if err := xmlutil.SignDocument(doc, sub.AuthenticationKey); err != nil {
		return nil, fmt.Errorf("signing request: %w", err)
	}
	respDoc, err := c.post(ctx, sub.URL, doc)
	if err != nil {
		return nil, err
	}
	if sub.BankAuthenticationKey == nil {
		return nil, &KeyStateError{Reason: "bank authentication key missing"}
	}
	if err := xmlutil.VerifyDocument(respDoc, sub.BankAuthenticationKey); err != nil {
		return nil, &SignatureError{Err: err}
	}
	content, err := message.ParseResponse(respDoc)
	if err != nil {
		return nil, &ParseError{Reason: "unexpected response structure", Err: err}
	}
	return content, nil
}

// HostVersionQuery asks a host which protocol versions it offers. It
// works without any established keys.
func (c *Client) HostVersionQuery(ctx context.Context, url, hostID string) (*message.HEVResponse, error) {
	respDoc, err := c.post(ctx, url, message.BuildHEVRequest(hostID))
	if err != nil {
		return nil, err
	}
	resp, err := message.ParseHEVResponse(respDoc)
	if err != nil {
		return nil, &ParseError{Reason: "unexpected HEV response", Err: err}
	}
	if !message.IsOK(resp.ReturnCode) {
		return nil, &TechnicalError{Code: resp.ReturnCode, Report: resp.ReportText}
	}
	return resp, nil
}

// IniRequest transmits the subscriber's signature public key. The
// order is unsigned; success requires both return codes to be OK.
func (c *Client) IniRequest(ctx context.Context, sub *Subscriber) error {
	if err := sub.requireKeys(); err != nil {
		return err
	}
	doc, err := message.BuildIniRequest(sub.spec(), &sub.SignatureKey.PublicKey, time.Now())
	if err != nil {
		return err
	}
	return c.keyManagementExchange(ctx, sub, doc, nil)
}

// HiaRequest transmits the subscriber's authentication and encryption
// public keys.
func (c *Client) HiaRequest(ctx context.Context, sub *Subscriber) error {
	if err := sub.requireKeys(); err != nil {
		return err
	}
	doc, err := message.BuildHiaRequest(sub.spec(),
		&sub.AuthenticationKey.PublicKey, &sub.EncryptionKey.PublicKey, time.Now())
	if err != nil {
		return err
	}
	return c.keyManagementExchange(ctx, sub, doc, nil)
}

// HpbRequest fetches the bank's public keys. The request is signed
// with the subscriber's authentication key; the response order data is
// decrypted with whichever subscriber key the bank wrapped the
// transaction key for.
func (c *Client) HpbRequest(ctx context.Context, sub *Subscriber) (*message.HPBOrderData, error) {
	if err := sub.requireKeys(); err != nil {
		return nil, err
	}
	doc := message.BuildHpbRequest(sub.spec(), order.Nonce(), time.Now())
	if err := xmlutil.SignDocument(doc, sub.AuthenticationKey); err != nil {
		return nil, fmt.Errorf("signing request: %w", err)
	}

	var resp *message.KeyManagementResponse
	if err := c.keyManagementExchange(ctx, sub, doc, &resp); err != nil {
		return nil, err
	}
	if resp.OrderData == "" || resp.EncryptionInfo == nil {
		return nil, &ParseError{Reason: "HPB response carries no order data"}
	}

	orderData, err := c.decryptOrderData(sub, resp.EncryptionInfo, []string{resp.OrderData})
	if err != nil {
		return nil, err
	}
	hpb, err := message.ParseHPBOrderData(orderData)
	if err != nil {
		return nil, &ParseError{Reason: "invalid HPB order data", Err: err}
	}
	return hpb, nil
}

// keyManagementExchange posts a key management order and evaluates its
// return codes, technical first. The parsed response is assigned to
// out when the caller needs the body.
func (c *Client) keyManagementExchange(ctx context.Context, sub *Subscriber, doc *etree.Document, out **message.KeyManagementResponse) error {
	respDoc, err := c.post(ctx, sub.URL, doc)
	if err != nil {
		return err
	}
	resp, err := message.ParseKeyManagementResponse(respDoc)
	if err != nil {
		return &ParseError{Reason: "unexpected key management response", Err: err}
	}
	if !message.IsOK(resp.TechnicalCode) {
		return &TechnicalError{Code: resp.TechnicalCode, Report: resp.TechnicalReport}
	}
	if !message.IsOK(resp.BankCode) {
		return &BankError{Code: resp.BankCode, Report: resp.BankReport}
	}
	if out != nil {
		*out = resp
	}
	return nil
}

// decryptOrderData reassembles, decrypts and decompresses the order
// data segments of a download.
func (c *Client) decryptOrderData(sub *Subscriber, encInfo *message.DataEncryptionInfo, chunks []string) ([]byte, error) {
	key, err := sub.decryptionKey(encInfo.EncryptionPubKeyDigest)
	if err != nil {
		return nil, err
	}
	encrypted, err := order.JoinSegments(chunks)
	if err != nil {
		return nil, &ParseError{Reason: "invalid order data encoding", Err: err}
	}
	compressed, err := security.DecryptE002(key, encInfo.TransactionKey, encrypted)
	if err != nil {
		return nil, &ParseError{Reason: "order data decryption failed", Err: err}
	}
	data, err := order.Decompress(compressed)
	if err != nil {
		return nil, &ParseError{Reason: "order data decompression failed", Err: err}
	}
	return data, nil
}
