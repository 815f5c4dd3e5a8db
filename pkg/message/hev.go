package message

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/xmlutil"
)

// BuildHEVRequest builds the protocol-independent host version query.
func BuildHEVRequest(hostID string) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("ebicsHEVRequest")
	root.CreateAttr("xmlns", xmlutil.NamespaceH000)
	root.CreateElement("HostID").SetText(hostID)
	return doc
}

// HostVersion is one protocol version supported by a bank host.
type HostVersion struct {
	ProtocolVersion string
	Release         string
}

// HEVResponse is the parsed host version query response.
type HEVResponse struct {
	ReturnCode string
	ReportText string
	Versions   []HostVersion
}

// SupportsH004 reports whether the host offers protocol version H004.
func (r *HEVResponse) SupportsH004() bool {
	for _, v := range r.Versions {
		if v.ProtocolVersion == "H004" {
			return true
		}
	}
	return false
}

// ParseHEVResponse parses an ebicsHEVResponse document.
func ParseHEVResponse(doc *etree.Document) (*HEVResponse, error) {
	root := doc.Root()
	if root == nil || root.Tag != "ebicsHEVResponse" {
		return nil, fmt.Errorf("document is not an ebicsHEVResponse")
	}
	systemRC := xmlutil.Child(root, "SystemReturnCode")
	if systemRC == nil {
		return nil, fmt.Errorf("response has no SystemReturnCode")
	}
	code := xmlutil.Text(systemRC, "ReturnCode")
	if code == "" {
		return nil, fmt.Errorf("response has no return code")
	}

	resp := &HEVResponse{
		ReturnCode: code,
		ReportText: xmlutil.Text(systemRC, "ReportText"),
	}
	for _, el := range root.ChildElements() {
		if el.Tag != "VersionNumber" {
			continue
		}
		resp.Versions = append(resp.Versions, HostVersion{
			ProtocolVersion: el.SelectAttrValue("ProtocolVersion", ""),
			Release:         el.Text(),
		})
	}
	return resp, nil
}

// BuildHEVResponse renders a host version response document.
func BuildHEVResponse(resp *HEVResponse) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("ebicsHEVResponse")
	root.CreateAttr("xmlns", xmlutil.NamespaceH000)

	systemRC := root.CreateElement("SystemReturnCode")
	systemRC.CreateElement("ReturnCode").SetText(resp.ReturnCode)
	if resp.ReportText != "" {
		systemRC.CreateElement("ReportText").SetText(resp.ReportText)
	}
	for _, v := range resp.Versions {
		el := root.CreateElement("VersionNumber")
		el.CreateAttr("ProtocolVersion", v.ProtocolVersion)
		el.SetText(v.Release)
	}
	return doc
}
