package security

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
)

// OrderDigest computes the A006 pre-digest of order data: SHA-256 over
// the input with every CR, LF and EOF (0x1A) byte skipped.
func OrderDigest(data []byte) []byte {
	h := sha256.New()
	buf := make([]byte, 0, 4096)
	for _, b := range data {
		if b == '\r' || b == '\n' || b == 0x1A {
			continue
		}
		buf = append(buf, b)
		if len(buf) == cap(buf) {
			h.Write(buf)
			buf = buf[:0]
		}
	}
	h.Write(buf)
	return h.Sum(nil)
}

var a006PSSOptions = rsa.PSSOptions{SaltLength: 32, Hash: crypto.SHA256}

// SignOrder produces the A006 signature over order data: RSA-PSS with
// SHA-256 and a 32-byte salt, applied to the A006 pre-digest.
func SignOrder(key *rsa.PrivateKey, orderData []byte) ([]byte, error) {
	digest := sha256.Sum256(OrderDigest(orderData))
	return rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], &a006PSSOptions)
}

// VerifyOrderSignature checks an A006 signature against order data.
func VerifyOrderSignature(pub *rsa.PublicKey, orderData, signature []byte) error {
	digest := sha256.Sum256(OrderDigest(orderData))
	return rsa.VerifyPSS(pub, crypto.SHA256, digest[:], signature, &a006PSSOptions)
}
