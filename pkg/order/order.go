// Package order handles EBICS order data at rest: zlib compression,
// base64 segmentation for the transfer phase, ZIP container unpacking
// and order/transaction identifier generation.
package order

import (
	"archive/zip"
	"bytes"
	"compress/zlib"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// DefaultSegmentSize is the maximum number of base64 characters carried
// in a single transfer-phase segment.
const DefaultSegmentSize = 1 << 20

// Compress deflates order data with zlib as required for the
// OrderData and SignatureData elements.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compressing order data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing order data: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates zlib-compressed order data.
func Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompressing order data: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing order data: %w", err)
	}
	return out, nil
}

// EncodeSegments base64-encodes a binary blob and splits the encoding
// into segments of at most segmentSize characters. Segment boundaries
// are aligned to base64 quantums so that each segment is independently
// well formed. A non-positive segmentSize selects DefaultSegmentSize.
func EncodeSegments(data []byte, segmentSize int) []string {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	segmentSize -= segmentSize % 4
	if segmentSize < 4 {
		segmentSize = 4
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	if encoded == "" {
		return []string{""}
	}
	var segments []string
	for len(encoded) > segmentSize {
		segments = append(segments, encoded[:segmentSize])
		encoded = encoded[segmentSize:]
	}
	return append(segments, encoded)
}

// JoinSegments reassembles the segments received during a download
// transaction and decodes the concatenated base64 text.
func JoinSegments(segments []string) ([]byte, error) {
	joined := strings.Join(segments, "")
	data, err := base64.StdEncoding.DecodeString(joined)
	if err != nil {
		return nil, fmt.Errorf("decoding order data segments: %w", err)
	}
	return data, nil
}

// GenerateTransactionID returns a fresh 32-character uppercase hex
// transaction identifier.
func GenerateTransactionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return strings.ToUpper(hex.EncodeToString(b[:]))
}

// Nonce returns a fresh 128-bit nonce for signed request headers.
func Nonce() []byte {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return b[:]
}

const orderIDDigits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// OrderIDFromNumber maps a sequence number onto the two-character
// order ID space following the "OR" prefix.
func OrderIDFromNumber(n int) (string, error) {
	if n < 0 || n >= 36*36 {
		return "", fmt.Errorf("order number %d out of range", n)
	}
	return "OR" + string(orderIDDigits[n/36]) + string(orderIDDigits[n%36]), nil
}

// Unzip unpacks a ZIP order-data container, as delivered by camt
// downloads, into a filename-to-content map.
func Unzip(data []byte) (map[string][]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening order data archive: %w", err)
	}
	files := make(map[string][]byte, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening archive entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading archive entry %s: %w", f.Name, err)
		}
		files[f.Name] = content
	}
	return files, nil
}
