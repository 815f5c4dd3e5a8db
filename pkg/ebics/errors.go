package ebics

import "fmt"

// ParseError marks a response that could not be understood: malformed
// XML or mandatory elements missing for the current phase.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid bank response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid bank response: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SignatureError marks a response whose authentication signature did
// not verify against the bank's known keys.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("bank signature invalid: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// TechnicalError carries a non-OK technical return code from the
// response header. It aborts the transaction.
type TechnicalError struct {
	Code   string
	Report string
}

func (e *TechnicalError) Error() string {
	return fmt.Sprintf("technical failure %s: %s", e.Code, e.Report)
}

// BankError carries a non-OK bank return code from the response body.
// The message itself was well formed and technically accepted.
type BankError struct {
	Code   string
	Report string
}

func (e *BankError) Error() string {
	return fmt.Sprintf("bank returned %s: %s", e.Code, e.Report)
}

// KeyStateError marks an operation attempted in an unsuitable key
// state, such as uploading before the bank keys were fetched.
type KeyStateError struct {
	Reason string
}

func (e *KeyStateError) Error() string {
	return "key state: " + e.Reason
}
