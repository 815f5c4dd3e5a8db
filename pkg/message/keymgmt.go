package message

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/xmlutil"
)

// BuildIniRequest builds the unsigned INI order transmitting the
// subscriber's A006 signature public key.
func BuildIniRequest(spec SubscriberSpec, sigPub *rsa.PublicKey, ts time.Time) (*etree.Document, error) {
	orderData := buildSignaturePubKeyOrderData(spec, sigPub, ts)
	return buildUnsecuredRequest(spec, OrderTypeINI, orderData)
}

// BuildHiaRequest builds the unsigned HIA order transmitting the
// subscriber's X002 authentication and E002 encryption public keys.
func BuildHiaRequest(spec SubscriberSpec, authPub, encPub *rsa.PublicKey, ts time.Time) (*etree.Document, error) {
	orderData := buildHIARequestOrderData(spec, authPub, encPub, ts)
	return buildUnsecuredRequest(spec, OrderTypeHIA, orderData)
}

// BuildHpbRequest builds the signed HPB order fetching the bank's
// public keys. The document still needs to be signed.
func BuildHpbRequest(spec SubscriberSpec, nonce []byte, ts time.Time) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("ebicsNoPubKeyDigestsRequest")
	root.CreateAttr("xmlns", xmlutil.NamespaceH004)
	root.CreateAttr("Version", "H004")
	root.CreateAttr("Revision", "1")

	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	static := header.CreateElement("static")
	static.CreateElement("HostID").SetText(spec.HostID)
	static.CreateElement("Nonce").SetText(strings.ToUpper(hex.EncodeToString(nonce)))
	static.CreateElement("Timestamp").SetText(ts.UTC().Format(timestampLayout))
	static.CreateElement("PartnerID").SetText(spec.PartnerID)
	static.CreateElement("UserID").SetText(spec.UserID)
	addSystemAndProduct(static, spec)
	details := static.CreateElement("OrderDetails")
	details.CreateElement("OrderType").SetText(OrderTypeHPB)
	details.CreateElement("OrderAttribute").SetText(OrderAttributeDownload)
	static.CreateElement("SecurityMedium").SetText(securityMedium)
	header.CreateElement("mutable")

	root.CreateElement("AuthSignature")
	root.CreateElement("body")
	return doc
}

// BuildUserSignatureData renders the A006 signature of an upload
// payload as the order signature document accompanying the order data.
func BuildUserSignatureData(partnerID, userID string, signature []byte) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("UserSignatureData")
	root.CreateAttr("xmlns", xmlutil.NamespaceS001)

	sig := root.CreateElement("OrderSignatureData")
	sig.CreateElement("SignatureVersion").SetText(SignatureVersion)
	sig.CreateElement("SignatureValue").SetText(base64.StdEncoding.EncodeToString(signature))
	sig.CreateElement("PartnerID").SetText(partnerID)
	sig.CreateElement("UserID").SetText(userID)
	return doc
}

// KeyManagementResponse is the flattened view of an
// ebicsKeyManagementResponse.
type KeyManagementResponse struct {
	TechnicalCode   string
	TechnicalReport string
	BankCode        string
	BankReport      string
	OrderID         string
	EncryptionInfo  *DataEncryptionInfo
	OrderData       string
}

// ParseKeyManagementResponse extracts return codes and encrypted order
// data from a key management response document.
func ParseKeyManagementResponse(doc *etree.Document) (*KeyManagementResponse, error) {
	root := doc.Root()
	if root == nil || root.Tag != "ebicsKeyManagementResponse" {
		return nil, fmt.Errorf("document is not an ebicsKeyManagementResponse")
	}

	mutable := xmlutil.Path(root, "header", "mutable")
	if mutable == nil {
		return nil, fmt.Errorf("response has no mutable header")
	}
	technical := xmlutil.Text(mutable, "ReturnCode")
	if technical == "" {
		return nil, fmt.Errorf("response has no technical return code")
	}

	body := xmlutil.Child(root, "body")
	if body == nil {
		return nil, fmt.Errorf("response has no body")
	}

	resp := &KeyManagementResponse{
		TechnicalCode:   technical,
		TechnicalReport: xmlutil.Text(mutable, "ReportText"),
		BankCode:        xmlutil.Text(body, "ReturnCode"),
		BankReport:      xmlutil.Text(body, "ReportText"),
		OrderID:         xmlutil.Text(mutable, "OrderID"),
		OrderData:       strings.TrimSpace(xmlutil.Text(body, "DataTransfer", "OrderData")),
	}

	if encInfoEl := xmlutil.Path(body, "DataTransfer", "DataEncryptionInfo"); encInfoEl != nil {
		encInfo, err := parseDataEncryptionInfo(encInfoEl)
		if err != nil {
			return nil, err
		}
		resp.EncryptionInfo = encInfo
	}
	return resp, nil
}

// HPBOrderData carries the bank public keys delivered by an HPB order.
type HPBOrderData struct {
	HostID            string
	AuthenticationKey *rsa.PublicKey
	EncryptionKey     *rsa.PublicKey
}

// ParseHPBOrderData parses decrypted, decompressed HPB order data into
// the bank's authentication and encryption public keys.
func ParseHPBOrderData(data []byte) (*HPBOrderData, error) {
	doc, err := xmlutil.Parse(data)
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	if root.Tag != "HPBResponseOrderData" {
		return nil, fmt.Errorf("order data is not HPBResponseOrderData")
	}

	authKey, err := parsePubKeyInfo(xmlutil.Child(root, "AuthenticationPubKeyInfo"))
	if err != nil {
		return nil, fmt.Errorf("parsing authentication key: %w", err)
	}
	encKey, err := parsePubKeyInfo(xmlutil.Child(root, "EncryptionPubKeyInfo"))
	if err != nil {
		return nil, fmt.Errorf("parsing encryption key: %w", err)
	}

	return &HPBOrderData{
		HostID:            xmlutil.Text(root, "HostID"),
		AuthenticationKey: authKey,
		EncryptionKey:     encKey,
	}, nil
}

func parsePubKeyInfo(info *etree.Element) (*rsa.PublicKey, error) {
	if info == nil {
		return nil, fmt.Errorf("missing key info element")
	}
	keyValue := xmlutil.Path(info, "PubKeyValue", "RSAKeyValue")
	if keyValue == nil {
		return nil, fmt.Errorf("missing RSAKeyValue")
	}
	modulus, err := base64.StdEncoding.DecodeString(strings.TrimSpace(xmlutil.Text(keyValue, "Modulus")))
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	exponent, err := base64.StdEncoding.DecodeString(strings.TrimSpace(xmlutil.Text(keyValue, "Exponent")))
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	return security.PublicKeyFromComponents(modulus, exponent)
}

func parseDataEncryptionInfo(el *etree.Element) (*DataEncryptionInfo, error) {
	digest, err := base64.StdEncoding.DecodeString(strings.TrimSpace(xmlutil.Text(el, "EncryptionPubKeyDigest")))
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key digest: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(xmlutil.Text(el, "TransactionKey")))
	if err != nil {
		return nil, fmt.Errorf("decoding transaction key: %w", err)
	}
	if len(digest) == 0 || len(key) == 0 {
		return nil, fmt.Errorf("incomplete data encryption info")
	}
	return &DataEncryptionInfo{
		EncryptionPubKeyDigest: digest,
		TransactionKey:         key,
	}, nil
}

func buildUnsecuredRequest(spec SubscriberSpec, orderType string, orderData *etree.Document) (*etree.Document, error) {
	serialized, err := xmlutil.Serialize(orderData)
	if err != nil {
		return nil, err
	}
	compressed, err := order.Compress(serialized)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("ebicsUnsecuredRequest")
	root.CreateAttr("xmlns", xmlutil.NamespaceH004)
	root.CreateAttr("Version", "H004")
	root.CreateAttr("Revision", "1")

	static := root.CreateElement("header").CreateElement("static")
	static.CreateElement("HostID").SetText(spec.HostID)
	static.CreateElement("PartnerID").SetText(spec.PartnerID)
	static.CreateElement("UserID").SetText(spec.UserID)
	addSystemAndProduct(static, spec)
	details := static.CreateElement("OrderDetails")
	details.CreateElement("OrderType").SetText(orderType)
	details.CreateElement("OrderAttribute").SetText(OrderAttributeKeyManagement)
	static.CreateElement("SecurityMedium").SetText(securityMedium)
	xmlutil.Child(root, "header").CreateElement("mutable")

	root.CreateElement("body").
		CreateElement("DataTransfer").
		CreateElement("OrderData").
		SetText(base64.StdEncoding.EncodeToString(compressed))
	return doc, nil
}

func buildSignaturePubKeyOrderData(spec SubscriberSpec, sigPub *rsa.PublicKey, ts time.Time) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("SignaturePubKeyOrderData")
	root.CreateAttr("xmlns", xmlutil.NamespaceS001)
	root.CreateAttr("xmlns:ds", xmlutil.NamespaceDSig)

	info := root.CreateElement("SignaturePubKeyInfo")
	addPubKeyValue(info, sigPub, ts)
	info.CreateElement("SignatureVersion").SetText(SignatureVersion)

	root.CreateElement("PartnerID").SetText(spec.PartnerID)
	root.CreateElement("UserID").SetText(spec.UserID)
	return doc
}

func buildHIARequestOrderData(spec SubscriberSpec, authPub, encPub *rsa.PublicKey, ts time.Time) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("HIARequestOrderData")
	root.CreateAttr("xmlns", xmlutil.NamespaceH004)
	root.CreateAttr("xmlns:ds", xmlutil.NamespaceDSig)

	auth := root.CreateElement("AuthenticationPubKeyInfo")
	addPubKeyValue(auth, authPub, ts)
	auth.CreateElement("AuthenticationVersion").SetText(AuthenticationVersion)

	enc := root.CreateElement("EncryptionPubKeyInfo")
	addPubKeyValue(enc, encPub, ts)
	enc.CreateElement("EncryptionVersion").SetText(EncryptionVersion)

	root.CreateElement("PartnerID").SetText(spec.PartnerID)
	root.CreateElement("UserID").SetText(spec.UserID)
	return doc
}

func addPubKeyValue(info *etree.Element, pub *rsa.PublicKey, ts time.Time) {
	keyValue := info.CreateElement("PubKeyValue")
	rsaValue := keyValue.CreateElement("ds:RSAKeyValue")
	rsaValue.CreateElement("ds:Modulus").
		SetText(base64.StdEncoding.EncodeToString(pub.N.Bytes()))
	rsaValue.CreateElement("ds:Exponent").
		SetText(base64.StdEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()))
	keyValue.CreateElement("TimeStamp").SetText(ts.UTC().Format(timestampLayout))
}
