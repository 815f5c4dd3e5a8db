package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
)

// transactionKeyBytes is the AES-128 key size used by E002.
const transactionKeyBytes = 16

// EncryptionResult carries the two outputs of an E002 encryption: the
// transaction key wrapped for the receiving bank and the symmetric
// ciphertext of the payload.
type EncryptionResult struct {
	EncryptedTransactionKey []byte
	Ciphertext              []byte
}

// NewTransactionKey draws a fresh AES-128 transaction key.
func NewTransactionKey() ([]byte, error) {
	key := make([]byte, transactionKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating transaction key: %w", err)
	}
	return key, nil
}

// EncryptE002 encrypts a payload under a fresh transaction key and
// wraps the key with the bank's encryption public key.
func EncryptE002(bankPub *rsa.PublicKey, plaintext []byte) (*EncryptionResult, []byte, error) {
	key, err := NewTransactionKey()
	if err != nil {
		return nil, nil, err
	}
	res, err := EncryptE002WithKey(bankPub, key, plaintext)
	if err != nil {
		return nil, nil, err
	}
	return res, key, nil
}

// EncryptE002WithKey encrypts a payload under an existing transaction
// key. Upload transactions reuse one key for both the signature blob
// and the order data.
func EncryptE002WithKey(bankPub *rsa.PublicKey, transactionKey, plaintext []byte) (*EncryptionResult, error) {
	if len(transactionKey) != transactionKeyBytes {
		return nil, fmt.Errorf("transaction key must be %d bytes", transactionKeyBytes)
	}
	ciphertext, err := encryptCBC(transactionKey, plaintext)
	if err != nil {
		return nil, err
	}
	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, bankPub, transactionKey)
	if err != nil {
		return nil, fmt.Errorf("wrapping transaction key: %w", err)
	}
	return &EncryptionResult{
		EncryptedTransactionKey: wrapped,
		Ciphertext:              ciphertext,
	}, nil
}

// DecryptE002 unwraps a transaction key with the subscriber's private
// key and decrypts the payload.
func DecryptE002(priv *rsa.PrivateKey, encryptedKey, ciphertext []byte) ([]byte, error) {
	key, err := rsa.DecryptPKCS1v15(rand.Reader, priv, encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("unwrapping transaction key: %w", err)
	}
	if len(key) != transactionKeyBytes {
		return nil, fmt.Errorf("unwrapped transaction key has %d bytes", len(key))
	}
	return decryptCBC(key, ciphertext)
}

// encryptCBC applies AES-128-CBC with a zero IV and ANSI X9.23
// padding, per the E002 profile.
func encryptCBC(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}
	padded, err := padX923(plaintext, block.BlockSize())
	if err != nil {
		return nil, err
	}
	iv := make([]byte, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func decryptCBC(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}
	iv := make([]byte, block.BlockSize())
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return unpadX923(out, block.BlockSize())
}

func padX923(data []byte, blockSize int) ([]byte, error) {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	if _, err := rand.Read(padded[len(data) : len(padded)-1]); err != nil {
		return nil, fmt.Errorf("generating padding: %w", err)
	}
	padded[len(padded)-1] = byte(padLen)
	return padded, nil
}

func unpadX923(data []byte, blockSize int) ([]byte, error) {
	padLen := int(data[len(data)-1])
	if padLen < 1 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	return data[:len(data)-padLen], nil
}
