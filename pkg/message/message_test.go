package message

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/xmlutil"
)

var testSpec = SubscriberSpec{
	HostID:    "EBIXHOST",
	PartnerID: "PARTNER1",
	UserID:    "USER0001",
	Product:   "go-ebics",
}

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestBuildDownloadInit(t *testing.T) {
	nonce := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	doc := BuildTransactionInit(InitParams{
		Spec:           testSpec,
		Nonce:          nonce,
		Timestamp:      time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC),
		OrderType:      OrderTypeC53,
		OrderAttribute: OrderAttributeDownload,
		OrderParams:    &OrderParams{DateRange: &DateRange{Start: start, End: end}},
		BankAuthDigest: []byte("auth-digest"),
		BankEncDigest:  []byte("enc-digest"),
	})

	root := doc.Root()
	require.Equal(t, "ebicsRequest", root.Tag)
	assert.Equal(t, "H004", root.SelectAttrValue("Version", ""))

	static := xmlutil.Path(root, "header", "static")
	require.NotNil(t, static)
	assert.Equal(t, "EBIXHOST", xmlutil.Text(static, "HostID"))
	assert.Equal(t, "DEADBEEF", xmlutil.Text(static, "Nonce"))
	assert.Equal(t, "2026-02-01T09:30:00Z", xmlutil.Text(static, "Timestamp"))
	assert.Equal(t, "C53", xmlutil.Text(static, "OrderDetails", "OrderType"))
	assert.Equal(t, "DZHNN", xmlutil.Text(static, "OrderDetails", "OrderAttribute"))
	assert.Equal(t, "2026-01-01", xmlutil.Text(static, "OrderDetails", "StandardOrderParams", "DateRange", "Start"))
	assert.Equal(t, "2026-01-31", xmlutil.Text(static, "OrderDetails", "StandardOrderParams", "DateRange", "End"))
	assert.Equal(t, "0000", xmlutil.Text(static, "SecurityMedium"))
	assert.Nil(t, xmlutil.Child(static, "NumSegments"))

	assert.Equal(t, "Initialisation", xmlutil.Text(root, "header", "mutable", "TransactionPhase"))
	assert.NotNil(t, xmlutil.Child(root, "AuthSignature"))
	assert.Nil(t, xmlutil.Path(root, "body", "DataTransfer"))

	assert.NoError(t, xmlutil.Validate(doc))
}

func TestBuildUploadInit(t *testing.T) {
	doc := BuildTransactionInit(InitParams{
		Spec:           testSpec,
		Nonce:          []byte{1, 2, 3, 4},
		Timestamp:      time.Now(),
		OrderType:      OrderTypeCCT,
		OrderAttribute: OrderAttributeUpload,
		BankAuthDigest: []byte("auth-digest"),
		BankEncDigest:  []byte("enc-digest"),
		NumSegments:    3,
		EncryptionInfo: &DataEncryptionInfo{
			EncryptionPubKeyDigest: []byte("enc-digest"),
			TransactionKey:         []byte("wrapped-key"),
		},
		SignatureData: []byte("encrypted-signature"),
	})

	root := doc.Root()
	assert.Equal(t, "3", xmlutil.Text(root, "header", "static", "NumSegments"))
	assert.Equal(t, "OZHNN", xmlutil.Text(root, "header", "static", "OrderDetails", "OrderAttribute"))

	transfer := xmlutil.Path(root, "body", "DataTransfer")
	require.NotNil(t, transfer)
	encInfo := xmlutil.Child(transfer, "DataEncryptionInfo")
	require.NotNil(t, encInfo)
	assert.Equal(t, "true", encInfo.SelectAttrValue("authenticate", ""))
	sigData := xmlutil.Child(transfer, "SignatureData")
	require.NotNil(t, sigData)
	assert.Equal(t, "true", sigData.SelectAttrValue("authenticate", ""))

	assert.NoError(t, xmlutil.Validate(doc))
}

func TestBuildGenericOrderParams(t *testing.T) {
	doc := BuildTransactionInit(InitParams{
		Spec:           testSpec,
		Nonce:          []byte{1},
		Timestamp:      time.Now(),
		OrderType:      OrderTypeHTD,
		OrderAttribute: OrderAttributeDownload,
		OrderParams:    &OrderParams{Generic: map[string]string{"ACCOUNT": "DE89"}},
	})

	params := xmlutil.Path(doc.Root(), "header", "static", "OrderDetails", "GenericOrderParams")
	require.NotNil(t, params)
	param := xmlutil.Child(params, "Parameter")
	require.NotNil(t, param)
	assert.Equal(t, "ACCOUNT", xmlutil.Text(param, "Name"))
	assert.Equal(t, "DE89", xmlutil.Text(param, "Value"))
	assert.Equal(t, "string", xmlutil.Child(param, "Value").SelectAttrValue("Type", ""))
}

func TestBuildTransferAndReceipt(t *testing.T) {
	transfer := BuildTransferPhase("EBIXHOST", "A1B2", 2, false, "")
	root := transfer.Root()
	assert.Equal(t, "Transfer", xmlutil.Text(root, "header", "mutable", "TransactionPhase"))
	assert.Equal(t, "A1B2", xmlutil.Text(root, "header", "static", "TransactionID"))
	seg := xmlutil.Path(root, "header", "mutable", "SegmentNumber")
	require.NotNil(t, seg)
	assert.Equal(t, "2", seg.Text())
	assert.Equal(t, "false", seg.SelectAttrValue("lastSegment", ""))
	assert.Nil(t, xmlutil.Path(root, "body", "DataTransfer"))

	upload := BuildTransferPhase("EBIXHOST", "A1B2", 3, true, "Y2h1bms=")
	assert.Equal(t, "Y2h1bms=", xmlutil.Text(upload.Root(), "body", "DataTransfer", "OrderData"))
	assert.Equal(t, "true",
		xmlutil.Path(upload.Root(), "header", "mutable", "SegmentNumber").SelectAttrValue("lastSegment", ""))

	receipt := BuildReceiptPhase("EBIXHOST", "A1B2", 0)
	root = receipt.Root()
	assert.Equal(t, "Receipt", xmlutil.Text(root, "header", "mutable", "TransactionPhase"))
	assert.Equal(t, "0", xmlutil.Text(root, "body", "TransferReceipt", "ReceiptCode"))
	assert.Equal(t, "true",
		xmlutil.Path(root, "body", "TransferReceipt").SelectAttrValue("authenticate", ""))
}

func TestResponseRoundTrip(t *testing.T) {
	content := &ResponseContent{
		TransactionID:    "FEEDC0DEFEEDC0DEFEEDC0DEFEEDC0DE",
		TransactionPhase: "Initialisation",
		OrderID:          "OR01",
		TechnicalCode:    CodeOK,
		BankCode:         CodeNoDownloadDataAvailable,
		BankReport:       "no new data",
		SegmentNumber:    1,
		LastSegment:      true,
		NumSegments:      1,
		OrderDataChunk:   "AAAA",
		EncryptionInfo: &DataEncryptionInfo{
			EncryptionPubKeyDigest: []byte("digest"),
			TransactionKey:         []byte("key"),
		},
	}

	built := BuildResponse(content)
	require.NoError(t, xmlutil.Validate(built))

	data, err := xmlutil.Serialize(built)
	require.NoError(t, err)
	doc, err := xmlutil.Parse(data)
	require.NoError(t, err)

	parsed, err := ParseResponse(doc)
	require.NoError(t, err)
	assert.Equal(t, content, parsed)
}

func TestParseResponseSeparatesCodes(t *testing.T) {
	// A technically accepted response can still carry a bank-level
	// failure; the two codes must not bleed into each other.
	doc := BuildResponse(&ResponseContent{
		TechnicalCode: CodeOK,
		BankCode:      CodeProcessingError,
	})
	parsed, err := ParseResponse(doc)
	require.NoError(t, err)
	assert.True(t, IsOK(parsed.TechnicalCode))
	assert.False(t, IsOK(parsed.BankCode))
}

func TestParseResponseMissingStructure(t *testing.T) {
	doc, err := xmlutil.Parse([]byte(`<ebicsResponse xmlns="urn:org:ebics:H004"><header><mutable/></header><body/></ebicsResponse>`))
	require.NoError(t, err)
	_, err = ParseResponse(doc)
	assert.Error(t, err)

	doc, err = xmlutil.Parse([]byte(`<notAResponse/>`))
	require.NoError(t, err)
	_, err = ParseResponse(doc)
	assert.Error(t, err)
}

func TestBuildIniRequestOrderData(t *testing.T) {
	key := testKey(t)

	doc, err := BuildIniRequest(testSpec, &key.PublicKey, time.Now())
	require.NoError(t, err)
	require.NoError(t, xmlutil.Validate(doc))

	root := doc.Root()
	assert.Equal(t, "ebicsUnsecuredRequest", root.Tag)
	assert.Equal(t, "INI", xmlutil.Text(root, "header", "static", "OrderDetails", "OrderType"))
	assert.Equal(t, "DZNNN", xmlutil.Text(root, "header", "static", "OrderDetails", "OrderAttribute"))

	encoded := xmlutil.Text(root, "body", "DataTransfer", "OrderData")
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	orderData, err := order.Decompress(compressed)
	require.NoError(t, err)

	inner, err := xmlutil.Parse(orderData)
	require.NoError(t, err)
	innerRoot := inner.Root()
	assert.Equal(t, "SignaturePubKeyOrderData", innerRoot.Tag)
	assert.Equal(t, "A006", xmlutil.Text(innerRoot, "SignaturePubKeyInfo", "SignatureVersion"))
	assert.Equal(t, "PARTNER1", xmlutil.Text(innerRoot, "PartnerID"))

	modulus, err := base64.StdEncoding.DecodeString(
		xmlutil.Text(innerRoot, "SignaturePubKeyInfo", "PubKeyValue", "RSAKeyValue", "Modulus"))
	require.NoError(t, err)
	assert.Equal(t, key.N.Bytes(), modulus)
}

func TestBuildHiaRequestOrderData(t *testing.T) {
	authKey := testKey(t)
	encKey := testKey(t)

	doc, err := BuildHiaRequest(testSpec, &authKey.PublicKey, &encKey.PublicKey, time.Now())
	require.NoError(t, err)

	encoded := xmlutil.Text(doc.Root(), "body", "DataTransfer", "OrderData")
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	orderData, err := order.Decompress(compressed)
	require.NoError(t, err)

	inner, err := xmlutil.Parse(orderData)
	require.NoError(t, err)
	innerRoot := inner.Root()
	assert.Equal(t, "HIARequestOrderData", innerRoot.Tag)
	assert.Equal(t, "X002", xmlutil.Text(innerRoot, "AuthenticationPubKeyInfo", "AuthenticationVersion"))
	assert.Equal(t, "E002", xmlutil.Text(innerRoot, "EncryptionPubKeyInfo", "EncryptionVersion"))
}

func TestBuildHpbRequest(t *testing.T) {
	doc := BuildHpbRequest(testSpec, []byte{0xAA, 0xBB}, time.Now())
	require.NoError(t, xmlutil.Validate(doc))

	root := doc.Root()
	assert.Equal(t, "ebicsNoPubKeyDigestsRequest", root.Tag)
	assert.Equal(t, "HPB", xmlutil.Text(root, "header", "static", "OrderDetails", "OrderType"))
	assert.Equal(t, "AABB", xmlutil.Text(root, "header", "static", "Nonce"))
	assert.NotNil(t, xmlutil.Child(root, "AuthSignature"))
}

func TestParseHPBOrderData(t *testing.T) {
	authKey := testKey(t)
	encKey := testKey(t)

	// HPB order data reuses the HIA key info layout plus the host ID.
	hia := buildHIARequestOrderData(testSpec, &authKey.PublicKey, &encKey.PublicKey, time.Now())
	hia.Root().Tag = "HPBResponseOrderData"
	hia.Root().CreateElement("HostID").SetText("EBIXHOST")
	data, err := xmlutil.Serialize(hia)
	require.NoError(t, err)

	parsed, err := ParseHPBOrderData(data)
	require.NoError(t, err)
	assert.Equal(t, "EBIXHOST", parsed.HostID)
	assert.Equal(t,
		security.PublicKeyDigest(&authKey.PublicKey),
		security.PublicKeyDigest(parsed.AuthenticationKey))
	assert.Equal(t,
		security.PublicKeyDigest(&encKey.PublicKey),
		security.PublicKeyDigest(parsed.EncryptionKey))
}

func TestParseKeyManagementResponse(t *testing.T) {
	xml := `<ebicsKeyManagementResponse xmlns="urn:org:ebics:H004" Version="H004" Revision="1">
		<header authenticate="true">
			<static/>
			<mutable>
				<OrderID>OR01</OrderID>
				<ReturnCode>000000</ReturnCode>
				<ReportText>[EBICS_OK]</ReportText>
			</mutable>
		</header>
		<body>
			<DataTransfer>
				<DataEncryptionInfo authenticate="true">
					<EncryptionPubKeyDigest Version="E002">` + base64.StdEncoding.EncodeToString([]byte("digest")) + `</EncryptionPubKeyDigest>
					<TransactionKey>` + base64.StdEncoding.EncodeToString([]byte("wrapped")) + `</TransactionKey>
				</DataEncryptionInfo>
				<OrderData>QUJD</OrderData>
			</DataTransfer>
			<ReturnCode authenticate="true">000000</ReturnCode>
		</body>
	</ebicsKeyManagementResponse>`

	doc, err := xmlutil.Parse([]byte(xml))
	require.NoError(t, err)

	resp, err := ParseKeyManagementResponse(doc)
	require.NoError(t, err)
	assert.Equal(t, CodeOK, resp.TechnicalCode)
	assert.Equal(t, CodeOK, resp.BankCode)
	assert.Equal(t, "OR01", resp.OrderID)
	assert.Equal(t, "QUJD", resp.OrderData)
	require.NotNil(t, resp.EncryptionInfo)
	assert.Equal(t, []byte("digest"), resp.EncryptionInfo.EncryptionPubKeyDigest)
	assert.Equal(t, []byte("wrapped"), resp.EncryptionInfo.TransactionKey)
}

func TestUserSignatureData(t *testing.T) {
	doc := BuildUserSignatureData("PARTNER1", "USER0001", []byte("sig-bytes"))
	root := doc.Root()
	assert.Equal(t, "UserSignatureData", root.Tag)
	sig := xmlutil.Child(root, "OrderSignatureData")
	require.NotNil(t, sig)
	assert.Equal(t, "A006", xmlutil.Text(sig, "SignatureVersion"))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("sig-bytes")), xmlutil.Text(sig, "SignatureValue"))
}

func TestHEVRoundTrip(t *testing.T) {
	req := BuildHEVRequest("EBIXHOST")
	assert.Equal(t, "EBIXHOST", xmlutil.Text(req.Root(), "HostID"))
	assert.NoError(t, xmlutil.Validate(req))

	resp := &HEVResponse{
		ReturnCode: "000000",
		ReportText: "[EBICS_OK]",
		Versions: []HostVersion{
			{ProtocolVersion: "H003", Release: "02.40"},
			{ProtocolVersion: "H004", Release: "02.50"},
		},
	}
	data, err := xmlutil.Serialize(BuildHEVResponse(resp))
	require.NoError(t, err)
	doc, err := xmlutil.Parse(data)
	require.NoError(t, err)

	parsed, err := ParseHEVResponse(doc)
	require.NoError(t, err)
	assert.Equal(t, resp, parsed)
	assert.True(t, parsed.SupportsH004())
}

func TestPublicKeyComponentEncoding(t *testing.T) {
	// Exponent bytes are minimal big-endian, so 65537 encodes to three
	// bytes.
	assert.Equal(t, []byte{1, 0, 1}, big.NewInt(65537).Bytes())
}
