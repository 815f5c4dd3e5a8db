package message

import (
	"encoding/base64"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/xmlutil"
)

// SubscriberSpec identifies the requesting subscriber to the bank.
type SubscriberSpec struct {
	HostID    string
	PartnerID string
	UserID    string
	SystemID  string
	Product   string
}

// DateRange restricts a download order to a booking period.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// OrderParams are the order parameters of a transaction init request.
// A DateRange renders as StandardOrderParams, Generic entries as
// GenericOrderParams.
type OrderParams struct {
	DateRange *DateRange
	Generic   map[string]string
}

// InitParams collects everything needed for a transaction
// initialization request. NumSegments, EncryptionInfo and
// SignatureData are set for uploads only.
type InitParams struct {
	Spec           SubscriberSpec
	Nonce          []byte
	Timestamp      time.Time
	OrderType      string
	OrderAttribute string
	OrderParams    *OrderParams
	BankAuthDigest []byte
	BankEncDigest  []byte
	NumSegments    int
	EncryptionInfo *DataEncryptionInfo
	SignatureData  []byte
}

// BuildTransactionInit builds the initialization request of an upload
// or download transaction. The document still needs to be signed.
func BuildTransactionInit(p InitParams) *etree.Document {
	doc, root := newRequestRoot()

	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")

	static := header.CreateElement("static")
	static.CreateElement("HostID").SetText(p.Spec.HostID)
	static.CreateElement("Nonce").SetText(strings.ToUpper(hex.EncodeToString(p.Nonce)))
	static.CreateElement("Timestamp").SetText(p.Timestamp.UTC().Format(timestampLayout))
	static.CreateElement("PartnerID").SetText(p.Spec.PartnerID)
	static.CreateElement("UserID").SetText(p.Spec.UserID)
	addSystemAndProduct(static, p.Spec)

	details := static.CreateElement("OrderDetails")
	details.CreateElement("OrderType").SetText(p.OrderType)
	details.CreateElement("OrderAttribute").SetText(p.OrderAttribute)
	addOrderParams(details, p.OrderParams)

	digests := static.CreateElement("BankPubKeyDigests")
	addPubKeyDigest(digests, "Authentication", AuthenticationVersion, p.BankAuthDigest)
	addPubKeyDigest(digests, "Encryption", EncryptionVersion, p.BankEncDigest)

	static.CreateElement("SecurityMedium").SetText(securityMedium)
	if p.NumSegments > 0 {
		static.CreateElement("NumSegments").SetText(strconv.Itoa(p.NumSegments))
	}

	header.CreateElement("mutable").
		CreateElement("TransactionPhase").SetText(phaseInitialisation)

	root.CreateElement("AuthSignature")

	body := root.CreateElement("body")
	if p.EncryptionInfo != nil {
		transfer := body.CreateElement("DataTransfer")
		encInfo := transfer.CreateElement("DataEncryptionInfo")
		encInfo.CreateAttr("authenticate", "true")
		digest := encInfo.CreateElement("EncryptionPubKeyDigest")
		digest.CreateAttr("Version", EncryptionVersion)
		digest.CreateAttr("Algorithm", digestAlgorithm)
		digest.SetText(base64.StdEncoding.EncodeToString(p.EncryptionInfo.EncryptionPubKeyDigest))
		encInfo.CreateElement("TransactionKey").
			SetText(base64.StdEncoding.EncodeToString(p.EncryptionInfo.TransactionKey))

		sigData := transfer.CreateElement("SignatureData")
		sigData.CreateAttr("authenticate", "true")
		sigData.SetText(base64.StdEncoding.EncodeToString(p.SignatureData))
	}

	return doc
}

// BuildTransferPhase builds a transfer-phase request. For uploads the
// chunk carries one base64 segment of the encrypted order data; for
// downloads it is empty and the body stays empty.
func BuildTransferPhase(hostID, transactionID string, segment int, lastSegment bool, chunk string) *etree.Document {
	doc, root := newRequestRoot()

	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	static := header.CreateElement("static")
	static.CreateElement("HostID").SetText(hostID)
	static.CreateElement("TransactionID").SetText(transactionID)

	mutable := header.CreateElement("mutable")
	mutable.CreateElement("TransactionPhase").SetText(phaseTransfer)
	seg := mutable.CreateElement("SegmentNumber")
	seg.CreateAttr("lastSegment", strconv.FormatBool(lastSegment))
	seg.SetText(strconv.Itoa(segment))

	root.CreateElement("AuthSignature")

	body := root.CreateElement("body")
	if chunk != "" {
		body.CreateElement("DataTransfer").
			CreateElement("OrderData").SetText(chunk)
	}

	return doc
}

// BuildReceiptPhase builds the receipt-phase request closing a
// download transaction. Receipt code 0 acknowledges successful
// processing of the order data.
func BuildReceiptPhase(hostID, transactionID string, receiptCode int) *etree.Document {
	doc, root := newRequestRoot()

	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	static := header.CreateElement("static")
	static.CreateElement("HostID").SetText(hostID)
	static.CreateElement("TransactionID").SetText(transactionID)
	header.CreateElement("mutable").
		CreateElement("TransactionPhase").SetText(phaseReceipt)

	root.CreateElement("AuthSignature")

	receipt := root.CreateElement("body").CreateElement("TransferReceipt")
	receipt.CreateAttr("authenticate", "true")
	receipt.CreateElement("ReceiptCode").SetText(strconv.Itoa(receiptCode))

	return doc
}

func newRequestRoot() (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("ebicsRequest")
	root.CreateAttr("xmlns", xmlutil.NamespaceH004)
	root.CreateAttr("Version", "H004")
	root.CreateAttr("Revision", "1")
	return doc, root
}

func addSystemAndProduct(static *etree.Element, spec SubscriberSpec) {
	if spec.SystemID != "" {
		static.CreateElement("SystemID").SetText(spec.SystemID)
	}
	if spec.Product != "" {
		product := static.CreateElement("Product")
		product.CreateAttr("Language", "en")
		product.SetText(spec.Product)
	}
}

func addOrderParams(details *etree.Element, params *OrderParams) {
	if params != nil && len(params.Generic) > 0 {
		generic := details.CreateElement("GenericOrderParams")
		names := make([]string, 0, len(params.Generic))
		for name := range params.Generic {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			param := generic.CreateElement("Parameter")
			param.CreateElement("Name").SetText(name)
			value := param.CreateElement("Value")
			value.CreateAttr("Type", "string")
			value.SetText(params.Generic[name])
		}
		return
	}

	standard := details.CreateElement("StandardOrderParams")
	if params != nil && params.DateRange != nil {
		dateRange := standard.CreateElement("DateRange")
		dateRange.CreateElement("Start").SetText(params.DateRange.Start.Format(dateLayout))
		dateRange.CreateElement("End").SetText(params.DateRange.End.Format(dateLayout))
	}
}

func addPubKeyDigest(parent *etree.Element, name, version string, digest []byte) {
	el := parent.CreateElement(name)
	el.CreateAttr("Version", version)
	el.CreateAttr("Algorithm", digestAlgorithm)
	el.SetText(base64.StdEncoding.EncodeToString(digest))
}
