package ebics

import (
	"crypto/rsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// KeyLetter renders the initialization letter the subscriber sends to
// the bank out of band to confirm the INI and HIA key fingerprints.
func (s *Subscriber) KeyLetter() (string, error) {
	if err := s.requireKeys(); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "EBICS initialization letter\n\n")
	fmt.Fprintf(&b, "Host ID:    %s\n", s.HostID)
	fmt.Fprintf(&b, "Partner ID: %s\n", s.PartnerID)
	fmt.Fprintf(&b, "User ID:    %s\n\n", s.UserID)

	writeKeySection(&b, "Electronic signature key (A006)", &s.SignatureKey.PublicKey)
	writeKeySection(&b, "Authentication key (X002)", &s.AuthenticationKey.PublicKey)
	writeKeySection(&b, "Encryption key (E002)", &s.EncryptionKey.PublicKey)

	return b.String(), nil
}

func writeKeySection(b *strings.Builder, title string, pub *rsa.PublicKey) {
	fmt.Fprintf(b, "%s\n\n", title)
	fmt.Fprintf(b, "Exponent:\n%s\n", hexBlock(big.NewInt(int64(pub.E)).Bytes()))
	fmt.Fprintf(b, "Modulus:\n%s\n", hexBlock(pub.N.Bytes()))
	fmt.Fprintf(b, "SHA-256 hash:\n%s\n\n", hexBlock(security.PublicKeyDigest(pub)))
}

// hexBlock formats bytes as uppercase hex pairs, sixteen per line.
func hexBlock(data []byte) string {
	var b strings.Builder
	for i, octet := range data {
		fmt.Fprintf(&b, "%02X", octet)
		switch {
		case (i+1)%16 == 0 || i == len(data)-1:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}
