// Package ebics implements the EBICS H004 client engine: the
// subscriber key state machine, key management orders (INI, HIA, HPB)
// and the multi-phase upload and download transactions.
package ebics

import (
	"bytes"
	"crypto/rsa"
	"fmt"

	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// KeyState tracks whether a key management order has reached the bank.
type KeyState int

const (
	// StateNotSent means the order was never sent or is known to have
	// failed.
	StateNotSent KeyState = iota
	// StateSent means the bank accepted the order.
	StateSent
	// StateUnknown means an order was sent but its outcome never
	// confirmed, for example after a crash or a restored backup.
	StateUnknown
)

func (s KeyState) String() string {
	switch s {
	case StateNotSent:
		return "not-sent"
	case StateSent:
		return "sent"
	case StateUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("KeyState(%d)", int(s))
	}
}

// Subscriber is the complete client-side state of one bank connection:
// endpoint, identifiers, the three subscriber keys, the bank keys once
// fetched, and the INI/HIA progress. Engine operations treat it as a
// snapshot and return updated copies rather than mutating in place.
type Subscriber struct {
	URL       string
	HostID    string
	PartnerID string
	UserID    string
	SystemID  string
	Product   string

	SignatureKey      *rsa.PrivateKey
	AuthenticationKey *rsa.PrivateKey
	EncryptionKey     *rsa.PrivateKey

	BankAuthenticationKey *rsa.PublicKey
	BankEncryptionKey     *rsa.PublicKey

	IniState KeyState
	HiaState KeyState
}

// NewSubscriber creates a fresh connection with three newly generated
// subscriber keys and both key states at not-sent.
func NewSubscriber(url, hostID, partnerID, userID string) (*Subscriber, error) {
	sigKey, err := security.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating signature key: %w", err)
	}
	authKey, err := security.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating authentication key: %w", err)
	}
	encKey, err := security.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating encryption key: %w", err)
	}
	return &Subscriber{
		URL:               url,
		HostID:            hostID,
		PartnerID:         partnerID,
		UserID:            userID,
		SignatureKey:      sigKey,
		AuthenticationKey: authKey,
		EncryptionKey:     encKey,
		IniState:          StateNotSent,
		HiaState:          StateNotSent,
	}, nil
}

// Initialized reports whether the connection holds both bank keys and
// is ready for signed transactions.
func (s *Subscriber) Initialized() bool {
	return s.BankAuthenticationKey != nil && s.BankEncryptionKey != nil
}

// spec returns the identification block used in request headers.
func (s *Subscriber) spec() message.SubscriberSpec {
	return message.SubscriberSpec{
		HostID:    s.HostID,
		PartnerID: s.PartnerID,
		UserID:    s.UserID,
		SystemID:  s.SystemID,
		Product:   s.Product,
	}
}

func (s *Subscriber) clone() *Subscriber {
	copied := *s
	return &copied
}

// requireKeys checks that all three subscriber keys are present.
func (s *Subscriber) requireKeys() error {
	if s.SignatureKey == nil || s.AuthenticationKey == nil || s.EncryptionKey == nil {
		return &KeyStateError{Reason: "subscriber keys missing"}
	}
	return nil
}

// decryptionKey selects the subscriber private key matching the public
// key digest named in a response's encryption info. Banks may wrap the
// transaction key for either the encryption or the authentication key.
func (s *Subscriber) decryptionKey(pubDigest []byte) (*rsa.PrivateKey, error) {
	if s.EncryptionKey != nil &&
		bytes.Equal(security.PublicKeyDigest(&s.EncryptionKey.PublicKey), pubDigest) {
		return s.EncryptionKey, nil
	}
	if s.AuthenticationKey != nil &&
		bytes.Equal(security.PublicKeyDigest(&s.AuthenticationKey.PublicKey), pubDigest) {
		return s.AuthenticationKey, nil
	}
	return nil, &KeyStateError{Reason: "no subscriber key matches the response encryption key digest"}
}
