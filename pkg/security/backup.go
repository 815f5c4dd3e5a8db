package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// ErrBadPassphrase is returned when a key backup cannot be opened with
// the supplied passphrase.
var ErrBadPassphrase = errors.New("wrong backup passphrase")

const (
	backupMagic      = "EBK1"
	backupSaltBytes  = 16
	backupNonceBytes = 12
	backupKeyBytes   = 32
	backupIterations = 100_000
)

// EncryptBackup seals a blob under a passphrase. The key is derived
// with PBKDF2-SHA256 and the blob sealed with AES-256-GCM, so a wrong
// passphrase is detected on open rather than producing garbage.
func EncryptBackup(passphrase string, data []byte) ([]byte, error) {
	salt := make([]byte, backupSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating backup salt: %w", err)
	}
	nonce := make([]byte, backupNonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating backup nonce: %w", err)
	}

	aead, err := backupAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(backupMagic)+len(salt)+len(nonce)+len(data)+aead.Overhead())
	out = append(out, backupMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, data, nil), nil
}

// DecryptBackup opens a blob produced by EncryptBackup. A wrong
// passphrase yields ErrBadPassphrase.
func DecryptBackup(passphrase string, blob []byte) ([]byte, error) {
	header := len(backupMagic) + backupSaltBytes + backupNonceBytes
	if len(blob) < header || string(blob[:len(backupMagic)]) != backupMagic {
		return nil, fmt.Errorf("malformed key backup")
	}
	salt := blob[len(backupMagic) : len(backupMagic)+backupSaltBytes]
	nonce := blob[len(backupMagic)+backupSaltBytes : header]

	aead, err := backupAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}
	data, err := aead.Open(nil, nonce, blob[header:], nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return data, nil
}

func backupAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, backupIterations, backupKeyBytes, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("initializing backup cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("initializing backup cipher: %w", err)
	}
	return aead, nil
}
