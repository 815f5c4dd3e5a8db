// Package xmlutil provides XML handling for EBICS documents: parsing
// and serialization, namespace-tolerant element lookup, the EBICS
// XML-DSig profile over authenticate="true" subtrees, and a structural
// validation gate for outbound documents.
package xmlutil

import (
	"fmt"

	"github.com/beevik/etree"
)

// Namespaces used by the supported protocol versions.
const (
	NamespaceH004 = "urn:org:ebics:H004"
	NamespaceH000 = "http://www.ebics.org/H000"
	NamespaceS001 = "http://www.ebics.org/S001"
	NamespaceDSig = "http://www.w3.org/2000/09/xmldsig#"
)

// Parse reads an XML document, rejecting input without a root element.
func Parse(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("parsing XML: no root element")
	}
	return doc, nil
}

// Serialize renders a document to bytes with an XML declaration.
func Serialize(doc *etree.Document) ([]byte, error) {
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing XML: %w", err)
	}
	return out, nil
}

// Child returns the first child element with the given local name,
// ignoring namespace prefixes. Bank responses arrive with varying
// prefix conventions, so all response parsing goes through this.
func Child(e *etree.Element, name string) *etree.Element {
	if e == nil {
		return nil
	}
	for _, c := range e.ChildElements() {
		if c.Tag == name {
			return c
		}
	}
	return nil
}

// Path descends through a chain of local names and returns the final
// element, or nil if any step is missing.
func Path(e *etree.Element, names ...string) *etree.Element {
	for _, name := range names {
		e = Child(e, name)
		if e == nil {
			return nil
		}
	}
	return e
}

// Text returns the trimmed text of the element at a local-name path,
// or the empty string if the path is missing.
func Text(e *etree.Element, names ...string) string {
	target := Path(e, names...)
	if target == nil {
		return ""
	}
	return target.Text()
}

// descend visits every element below root in document order.
func descend(root *etree.Element, visit func(*etree.Element)) {
	visit(root)
	for _, c := range root.ChildElements() {
		descend(c, visit)
	}
}
