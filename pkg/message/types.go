// Package message builds and parses EBICS messages for protocol
// version H004 (plus the H000 host version query). Builders produce
// etree documents with the strict element ordering the schema
// requires; parsers tolerate namespace prefix variation and separate
// structural failures from protocol-level return codes.
package message

// Technical and bank return codes.
const (
	CodeOK                         = "000000"
	CodeDownloadPostprocessDone    = "011000"
	CodeDownloadPostprocessSkipped = "011001"
	CodeTxSegmentNumberUnderrun    = "011101"
	CodeNoDownloadDataAvailable    = "090005"
	CodeInvalidUserOrUserState     = "091002"
	CodeProcessingError            = "091116"
)

// IsOK reports whether a return code signals success.
func IsOK(code string) bool {
	return code == CodeOK
}

// Order types used by the engine.
const (
	OrderTypeINI = "INI"
	OrderTypeHIA = "HIA"
	OrderTypeHPB = "HPB"
	OrderTypeHTD = "HTD"
	OrderTypeC52 = "C52"
	OrderTypeC53 = "C53"
	OrderTypeCCT = "CCT"
)

// Order attributes. Downloads and signed key management orders carry
// DZHNN, uploads OZHNN, and the unsigned INI/HIA orders DZNNN.
const (
	OrderAttributeDownload      = "DZHNN"
	OrderAttributeUpload        = "OZHNN"
	OrderAttributeKeyManagement = "DZNNN"
)

// Versions of the three key types.
const (
	SignatureVersion      = "A006"
	AuthenticationVersion = "X002"
	EncryptionVersion     = "E002"
)

const (
	securityMedium      = "0000"
	digestAlgorithm     = "http://www.w3.org/2001/04/xmlenc#sha256"
	timestampLayout     = "2006-01-02T15:04:05Z"
	dateLayout          = "2006-01-02"
	phaseInitialisation = "Initialisation"
	phaseTransfer       = "Transfer"
	phaseReceipt        = "Receipt"
)

// DataEncryptionInfo carries the hybrid encryption parameters of a
// transaction: the wrapped transaction key and the digest identifying
// the public key it was wrapped with.
type DataEncryptionInfo struct {
	EncryptionPubKeyDigest []byte
	TransactionKey         []byte
}

// ResponseContent is the flattened view of an ebicsResponse. The
// technical return code (header) and the bank return code (body) are
// reported independently.
type ResponseContent struct {
	TransactionID    string
	TransactionPhase string
	OrderID          string
	TechnicalCode    string
	TechnicalReport  string
	BankCode         string
	BankReport       string
	SegmentNumber    int
	LastSegment      bool
	NumSegments      int
	EncryptionInfo   *DataEncryptionInfo
	OrderDataChunk   string
}
