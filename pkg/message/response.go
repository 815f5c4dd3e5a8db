package message

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/xmlutil"
)

func encodeB64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// ParseResponse extracts the flattened content of an ebicsResponse
// document. Missing mandatory structure is a parse failure; non-OK
// return codes are reported as data, not as errors.
func ParseResponse(doc *etree.Document) (*ResponseContent, error) {
	root := doc.Root()
	if root == nil || root.Tag != "ebicsResponse" {
		return nil, fmt.Errorf("document is not an ebicsResponse")
	}

	header := xmlutil.Child(root, "header")
	if header == nil {
		return nil, fmt.Errorf("response has no header")
	}
	mutable := xmlutil.Child(header, "mutable")
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

	content := &ResponseContent{
		TransactionID:    xmlutil.Text(header, "static", "TransactionID"),
		TransactionPhase: xmlutil.Text(mutable, "TransactionPhase"),
		OrderID:          xmlutil.Text(mutable, "OrderID"),
		TechnicalCode:    technical,
		TechnicalReport:  xmlutil.Text(mutable, "ReportText"),
		BankCode:         xmlutil.Text(body, "ReturnCode"),
		BankReport:       xmlutil.Text(body, "ReportText"),
		OrderDataChunk:   strings.TrimSpace(xmlutil.Text(body, "DataTransfer", "OrderData")),
	}

	if numText := xmlutil.Text(header, "static", "NumSegments"); numText != "" {
		num, err := strconv.Atoi(numText)
		if err != nil {
			return nil, fmt.Errorf("invalid NumSegments %q: %w", numText, err)
		}
		content.NumSegments = num
	}

	if segEl := xmlutil.Child(mutable, "SegmentNumber"); segEl != nil {
		seg, err := strconv.Atoi(strings.TrimSpace(segEl.Text()))
		if err != nil {
			return nil, fmt.Errorf("invalid SegmentNumber %q: %w", segEl.Text(), err)
		}
		content.SegmentNumber = seg
		content.LastSegment = segEl.SelectAttrValue("lastSegment", "false") == "true"
	}

	if encInfoEl := xmlutil.Path(body, "DataTransfer", "DataEncryptionInfo"); encInfoEl != nil {
		encInfo, err := parseDataEncryptionInfo(encInfoEl)
		if err != nil {
			return nil, err
		}
		content.EncryptionInfo = encInfo
	}

	return content, nil
}

// BuildResponse renders a ResponseContent back into an ebicsResponse
// document. Banks use this shape; the client side uses it in tests and
// local tooling.
func BuildResponse(content *ResponseContent) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("ebicsResponse")
	root.CreateAttr("xmlns", xmlutil.NamespaceH004)
	root.CreateAttr("Version", "H004")
	root.CreateAttr("Revision", "1")

	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	static := header.CreateElement("static")
	if content.TransactionID != "" {
		static.CreateElement("TransactionID").SetText(content.TransactionID)
	}
	if content.NumSegments > 0 {
		static.CreateElement("NumSegments").SetText(strconv.Itoa(content.NumSegments))
	}

	mutable := header.CreateElement("mutable")
	mutable.CreateElement("TransactionPhase").SetText(content.TransactionPhase)
	if content.SegmentNumber > 0 {
		seg := mutable.CreateElement("SegmentNumber")
		seg.CreateAttr("lastSegment", strconv.FormatBool(content.LastSegment))
		seg.SetText(strconv.Itoa(content.SegmentNumber))
	}
	if content.OrderID != "" {
		mutable.CreateElement("OrderID").SetText(content.OrderID)
	}
	mutable.CreateElement("ReturnCode").SetText(content.TechnicalCode)
	if content.TechnicalReport != "" {
		mutable.CreateElement("ReportText").SetText(content.TechnicalReport)
	}

	root.CreateElement("AuthSignature")

	body := root.CreateElement("body")
	if content.EncryptionInfo != nil || content.OrderDataChunk != "" {
		transfer := body.CreateElement("DataTransfer")
		if content.EncryptionInfo != nil {
			encInfo := transfer.CreateElement("DataEncryptionInfo")
			encInfo.CreateAttr("authenticate", "true")
			digest := encInfo.CreateElement("EncryptionPubKeyDigest")
			digest.CreateAttr("Version", EncryptionVersion)
			digest.CreateAttr("Algorithm", digestAlgorithm)
			digest.SetText(encodeB64(content.EncryptionInfo.EncryptionPubKeyDigest))
			encInfo.CreateElement("TransactionKey").
				SetText(encodeB64(content.EncryptionInfo.TransactionKey))
		}
		transfer.CreateElement("OrderData").SetText(content.OrderDataChunk)
	}
	bankRC := body.CreateElement("ReturnCode")
	bankRC.CreateAttr("authenticate", "true")
	bankRC.SetText(content.BankCode)
	if content.BankReport != "" {
		body.CreateElement("ReportText").SetText(content.BankReport)
	}

	return doc
}
