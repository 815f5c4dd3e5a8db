package xmlutil

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// requiredPaths lists, per known root element, the local-name paths
// that must be present for the document to be structurally sound.
// This is the soft validation gate applied before transmission.
var requiredPaths = map[string][][]string{
	"ebicsRequest": {
		{"header", "static", "HostID"},
		{"header", "mutable", "TransactionPhase"},
		{"AuthSignature"},
		{"body"},
	},
	"ebicsUnsecuredRequest": {
		{"header", "static", "HostID"},
		{"header", "static", "OrderDetails", "OrderType"},
		{"header", "static", "OrderDetails", "OrderAttribute"},
		{"body", "DataTransfer", "OrderData"},
	},
	"ebicsNoPubKeyDigestsRequest": {
		{"header", "static", "HostID"},
		{"header", "static", "Nonce"},
		{"header", "static", "OrderDetails", "OrderType"},
		{"AuthSignature"},
		{"body"},
	},
	"ebicsHEVRequest": {
		{"HostID"},
	},
	"ebicsResponse": {
		{"header", "mutable", "TransactionPhase"},
		{"header", "mutable", "ReturnCode"},
		{"body", "ReturnCode"},
	},
	"ebicsKeyManagementResponse": {
		{"header", "mutable", "ReturnCode"},
		{"body", "ReturnCode"},
	},
	"ebicsHEVResponse": {
		{"SystemReturnCode", "ReturnCode"},
	},
}

// Validate checks that a document's root is a known EBICS message type
// and that its required elements are present.
func Validate(doc *etree.Document) error {
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("document has no root element")
	}
	paths, ok := requiredPaths[root.Tag]
	if !ok {
		return fmt.Errorf("unknown message type %s", root.Tag)
	}
	for _, path := range paths {
		if missing := firstMissing(root, path); missing != "" {
			return fmt.Errorf("%s is missing %s", root.Tag, missing)
		}
	}
	return nil
}

func firstMissing(e *etree.Element, path []string) string {
	for i, name := range path {
		e = Child(e, name)
		if e == nil {
			return strings.Join(path[:i+1], "/")
		}
	}
	return ""
}
