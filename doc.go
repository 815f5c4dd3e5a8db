// Package goebics is the root of the go-ebics module, a Go implementation
// of the EBICS (H004) corporate-client protocol.
//
// The module is organized as follows:
//
//   - pkg/xmlutil: XML handling and the EBICS XML-DSig profile
//   - pkg/security: RSA key management, A006 signatures, E002 encryption
//   - pkg/order: order-data compression, segmentation and identifiers
//   - pkg/message: EBICS message construction and parsing
//   - pkg/transport: HTTPS POST transport to bank endpoints
//   - pkg/ebics: the transaction engine and subscriber state machine
//   - internal/: daemon shell (config, storage, keystore, scheduler)
package goebics
