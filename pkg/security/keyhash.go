package security

import (
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
)

// PublicKeyDigest computes the EBICS fingerprint of an RSA public key:
// the SHA-256 hash over the ASCII string "<exponent hex> <modulus hex>"
// where both components are lowercase and stripped of leading zero
// digits.
func PublicKeyDigest(pub *rsa.PublicKey) []byte {
	input := componentHex(big.NewInt(int64(pub.E))) + " " + componentHex(pub.N)
	sum := sha256.Sum256([]byte(input))
	return sum[:]
}

func componentHex(n *big.Int) string {
	h := strings.TrimLeft(fmt.Sprintf("%x", n), "0")
	if h == "" {
		h = "0"
	}
	return h
}
