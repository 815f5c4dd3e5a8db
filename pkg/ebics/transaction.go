package ebics

import (
	"context"
	"fmt"
	"time"

	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/xmlutil"
)

// DownloadTransaction runs a complete download: initialization,
// transfer of all remaining segments, decryption and the closing
// receipt. A non-OK bank return code on initialization is returned as
// a *BankError; callers decide whether codes like
// EBICS_NO_DOWNLOAD_DATA_AVAILABLE are failures.
func (c *Client) DownloadTransaction(ctx context.Context, sub *Subscriber, orderType string, params *message.OrderParams) ([]byte, error) {
	if err := sub.requireKeys(); err != nil {
		return nil, err
	}
	if !sub.Initialized() {
		return nil, &KeyStateError{Reason: "bank keys missing, request HPB first"}
	}

	init := message.BuildTransactionInit(message.InitParams{
		Spec:           sub.spec(),
		Nonce:          order.Nonce(),
		Timestamp:      time.Now(),
		OrderType:      orderType,
		OrderAttribute: message.OrderAttributeDownload,
		OrderParams:    params,
		BankAuthDigest: security.PublicKeyDigest(sub.BankAuthenticationKey),
		BankEncDigest:  security.PublicKeyDigest(sub.BankEncryptionKey),
	})
	resp, err := c.postSigned(ctx, sub, init)
	if err != nil {
		return nil, err
	}
	if !message.IsOK(resp.TechnicalCode) {
		return nil, &TechnicalError{Code: resp.TechnicalCode, Report: resp.TechnicalReport}
	}
	if !message.IsOK(resp.BankCode) {
		return nil, &BankError{Code: resp.BankCode, Report: resp.BankReport}
	}
	if resp.TransactionID == "" || resp.EncryptionInfo == nil || resp.OrderDataChunk == "" || resp.NumSegments < 1 {
		return nil, &ParseError{Reason: "download initialization response is incomplete"}
	}

	c.log.Debug("download transaction opened",
		"host", sub.HostID, "order", orderType,
		"transaction", resp.TransactionID, "segments", resp.NumSegments)

	chunks := make([]string, 0, resp.NumSegments)
	chunks = append(chunks, resp.OrderDataChunk)
	encInfo := resp.EncryptionInfo
	transactionID := resp.TransactionID

	for segment := 2; segment <= resp.NumSegments; segment++ {
		transfer := message.BuildTransferPhase(sub.HostID, transactionID,
			segment, segment == resp.NumSegments, "")
		segResp, err := c.postSigned(ctx, sub, transfer)
		if err != nil {
			return nil, err
		}
		if !message.IsOK(segResp.TechnicalCode) {
			return nil, &TechnicalError{Code: segResp.TechnicalCode, Report: segResp.TechnicalReport}
		}
		if !message.IsOK(segResp.BankCode) {
			return nil, &BankError{Code: segResp.BankCode, Report: segResp.BankReport}
		}
		if segResp.SegmentNumber != segment {
			return nil, &ParseError{Reason: fmt.Sprintf(
				"expected segment %d, bank sent %d", segment, segResp.SegmentNumber)}
		}
		if segResp.OrderDataChunk == "" {
			return nil, &ParseError{Reason: fmt.Sprintf("segment %d carries no order data", segment)}
		}
		chunks = append(chunks, segResp.OrderDataChunk)
	}

	data, err := c.decryptOrderData(sub, encInfo, chunks)
	if err != nil {
		return nil, err
	}

	receipt := message.BuildReceiptPhase(sub.HostID, transactionID, 0)
	receiptResp, err := c.postSigned(ctx, sub, receipt)
	if err != nil {
		return nil, err
	}
	if receiptResp.TechnicalCode != message.CodeDownloadPostprocessDone {
		return nil, &TechnicalError{Code: receiptResp.TechnicalCode, Report: receiptResp.TechnicalReport}
	}

	return data, nil
}

// UploadTransaction runs a complete upload of one order: the payload
// is signed with the subscriber's A006 key, compressed and encrypted
// together with the signature blob under one transaction key, then
// transferred segment by segment. The assigned order ID is returned.
func (c *Client) UploadTransaction(ctx context.Context, sub *Subscriber, orderType string, params *message.OrderParams, payload []byte) (string, error) {
	if err := sub.requireKeys(); err != nil {
		return "", err
	}
	if !sub.Initialized() {
		return "", &KeyStateError{Reason: "bank keys missing, request HPB first"}
	}

	prepared, err := c.prepareUpload(sub, payload)
	if err != nil {
		return "", err
	}

	init := message.BuildTransactionInit(message.InitParams{
		Spec:           sub.spec(),
		Nonce:          order.Nonce(),
		Timestamp:      time.Now(),
		OrderType:      orderType,
		OrderAttribute: message.OrderAttributeUpload,
		OrderParams:    params,
		BankAuthDigest: security.PublicKeyDigest(sub.BankAuthenticationKey),
		BankEncDigest:  security.PublicKeyDigest(sub.BankEncryptionKey),
		NumSegments:    len(prepared.segments),
		EncryptionInfo: prepared.encryptionInfo,
		SignatureData:  prepared.signatureData,
	})
	resp, err := c.postSigned(ctx, sub, init)
	if err != nil {
		return "", err
	}
	if !message.IsOK(resp.TechnicalCode) {
		return "", &TechnicalError{Code: resp.TechnicalCode, Report: resp.TechnicalReport}
	}
	if !message.IsOK(resp.BankCode) {
		return "", &BankError{Code: resp.BankCode, Report: resp.BankReport}
	}
	if resp.TransactionID == "" {
		return "", &ParseError{Reason: "upload initialization response has no transaction ID"}
	}
	orderID := resp.OrderID

	c.log.Debug("upload transaction opened",
		"host", sub.HostID, "order", orderType,
		"transaction", resp.TransactionID, "segments", len(prepared.segments))

	for i, segment := range prepared.segments {
		transfer := message.BuildTransferPhase(sub.HostID, resp.TransactionID,
			i+1, i == len(prepared.segments)-1, segment)
		segResp, err := c.postSigned(ctx, sub, transfer)
		if err != nil {
			return "", err
		}
		if !message.IsOK(segResp.TechnicalCode) {
			return "", &TechnicalError{Code: segResp.TechnicalCode, Report: segResp.TechnicalReport}
		}
		if !message.IsOK(segResp.BankCode) {
			return "", &BankError{Code: segResp.BankCode, Report: segResp.BankReport}
		}
		if segResp.OrderID != "" {
			orderID = segResp.OrderID
		}
	}

	return orderID, nil
}

// preparedUpload holds the encrypted artifacts of an upload payload.
type preparedUpload struct {
	encryptionInfo *message.DataEncryptionInfo
	signatureData  []byte
	segments       []string
}

// prepareUpload signs and encrypts a payload for transmission. The
// signature blob and the order data share one transaction key.
func (c *Client) prepareUpload(sub *Subscriber, payload []byte) (*preparedUpload, error) {
	signature, err := security.SignOrder(sub.SignatureKey, payload)
	if err != nil {
		return nil, fmt.Errorf("signing order data: %w", err)
	}
	sigDoc := message.BuildUserSignatureData(sub.PartnerID, sub.UserID, signature)
	sigXML, err := xmlutil.Serialize(sigDoc)
	if err != nil {
		return nil, err
	}
	sigCompressed, err := order.Compress(sigXML)
	if err != nil {
		return nil, err
	}

	transactionKey, err := security.NewTransactionKey()
	if err != nil {
		return nil, err
	}
	sigEncrypted, err := security.EncryptE002WithKey(sub.BankEncryptionKey, transactionKey, sigCompressed)
	if err != nil {
		return nil, fmt.Errorf("encrypting signature data: %w", err)
	}

	payloadCompressed, err := order.Compress(payload)
	if err != nil {
		return nil, err
	}
	payloadEncrypted, err := security.EncryptE002WithKey(sub.BankEncryptionKey, transactionKey, payloadCompressed)
	if err != nil {
		return nil, fmt.Errorf("encrypting order data: %w", err)
	}

	return &preparedUpload{
		encryptionInfo: &message.DataEncryptionInfo{
			EncryptionPubKeyDigest: security.PublicKeyDigest(sub.BankEncryptionKey),
			TransactionKey:         sigEncrypted.EncryptedTransactionKey,
		},
		signatureData: sigEncrypted.Ciphertext,
		segments:      order.EncodeSegments(payloadEncrypted.Ciphertext, c.segmentSize),
	}, nil
}
