package keystore

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/sirosfoundation/go-ebics/pkg/ebics"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// backupDocument is the portable key backup format: connection
// identifiers in the clear, each private key individually sealed
// under the passphrase.
type backupDocument struct {
	HostID            string `json:"hostID"`
	PartnerID         string `json:"partnerID"`
	UserID            string `json:"userID"`
	SignatureKey      string `json:"signatureKey"`
	AuthenticationKey string `json:"authenticationKey"`
	EncryptionKey     string `json:"encryptionKey"`
}

// ExportBackup seals a connection's private keys under a passphrase
// and returns the portable backup document.
func (s *Store) ExportBackup(name, passphrase string) ([]byte, error) {
	sub, err := s.Load(name)
	if err != nil {
		return nil, err
	}

	doc := backupDocument{
		HostID:    sub.HostID,
		PartnerID: sub.PartnerID,
		UserID:    sub.UserID,
	}
	for target, key := range map[*string]*rsa.PrivateKey{
		&doc.SignatureKey:      sub.SignatureKey,
		&doc.AuthenticationKey: sub.AuthenticationKey,
		&doc.EncryptionKey:     sub.EncryptionKey,
	} {
		sealed, err := sealKey(key, passphrase)
		if err != nil {
			return nil, err
		}
		*target = sealed
	}

	out, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling backup: %w", err)
	}
	return out, nil
}

// ImportBackup restores a connection from a backup document. Both key
// states start as unknown since the backup carries no proof of what
// the bank received; the next Connect resolves them. A wrong
// passphrase yields security.ErrBadPassphrase.
func (s *Store) ImportBackup(name, url string, data []byte, passphrase string) (*ebics.Subscriber, error) {
	var doc backupDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing backup: %w", err)
	}

	sigKey, err := openKey(doc.SignatureKey, passphrase)
	if err != nil {
		return nil, err
	}
	authKey, err := openKey(doc.AuthenticationKey, passphrase)
	if err != nil {
		return nil, err
	}
	encKey, err := openKey(doc.EncryptionKey, passphrase)
	if err != nil {
		return nil, err
	}

	sub := &ebics.Subscriber{
		URL:               url,
		HostID:            doc.HostID,
		PartnerID:         doc.PartnerID,
		UserID:            doc.UserID,
		SignatureKey:      sigKey,
		AuthenticationKey: authKey,
		EncryptionKey:     encKey,
		IniState:          ebics.StateUnknown,
		HiaState:          ebics.StateUnknown,
	}
	if err := s.Save(name, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func sealKey(key *rsa.PrivateKey, passphrase string) (string, error) {
	pemData, err := security.MarshalPrivateKeyPEM(key)
	if err != nil {
		return "", err
	}
	sealed, err := security.EncryptBackup(passphrase, pemData)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func openKey(encoded, passphrase string) (*rsa.PrivateKey, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding backup key: %w", err)
	}
	pemData, err := security.DecryptBackup(passphrase, sealed)
	if err != nil {
		return nil, err
	}
	return security.LoadPrivateKeyPEM(pemData)
}
