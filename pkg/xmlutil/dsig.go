package xmlutil

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/moov-io/signedxml"
)

// ErrSignatureInvalid is returned when a document's signature does not
// verify against the expected key.
var ErrSignatureInvalid = errors.New("signature verification failed")

const (
	algCanonicalization   = "http://www.w3.org/2001/10/xml-exc-c14n#"
	algSignatureRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	algDigestSHA256       = "http://www.w3.org/2001/04/xmlenc#sha256"

	// The single reference covers the node set of every element
	// carrying authenticate="true".
	authenticatedReferenceURI = "#xpointer(//*[@authenticate='true'])"
)

// SignDocument computes the EBICS authentication signature over every
// element marked authenticate="true" and fills the document's
// AuthSignature element in place with the ds:SignedInfo and
// ds:SignatureValue children.
func SignDocument(doc *etree.Document, key *rsa.PrivateKey) error {
	authSig := findAuthSignature(doc)
	if authSig == nil {
		return fmt.Errorf("document has no AuthSignature element")
	}

	digest, err := digestAuthenticated(doc)
	if err != nil {
		return err
	}

	signedInfo := buildSignedInfo(digest)
	signature, err := signSignedInfo(signedInfo, key)
	if err != nil {
		return err
	}

	authSig.Child = nil
	authSig.AddChild(signedInfo)
	sigValue := etree.NewElement("ds:SignatureValue")
	sigValue.CreateAttr("xmlns:ds", NamespaceDSig)
	sigValue.SetText(base64.StdEncoding.EncodeToString(signature))
	authSig.AddChild(sigValue)
	return nil
}

// VerifyDocument checks the authentication signature of a received
// document against a public key. The digest over the authenticated
// node set is checked first, then the signature over SignedInfo.
func VerifyDocument(doc *etree.Document, pub *rsa.PublicKey) error {
	authSig := findAuthSignature(doc)
	if authSig == nil {
		return fmt.Errorf("document has no AuthSignature element")
	}
	signedInfo := Child(authSig, "SignedInfo")
	sigValue := Child(authSig, "SignatureValue")
	if signedInfo == nil || sigValue == nil {
		return fmt.Errorf("incomplete authentication signature")
	}

	digestText := Text(signedInfo, "Reference", "DigestValue")
	claimed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(digestText))
	if err != nil {
		return fmt.Errorf("decoding digest value: %w", err)
	}
	actual, err := digestAuthenticated(doc)
	if err != nil {
		return err
	}
	if !hmac.Equal(claimed, actual) {
		return fmt.Errorf("%w: digest mismatch", ErrSignatureInvalid)
	}

	canonical, err := canonicalizer().ProcessElement(signedInfo, "")
	if err != nil {
		return fmt.Errorf("canonicalizing SignedInfo: %w", err)
	}
	signedInfoDigest := sha256.Sum256([]byte(canonical))

	signature, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sigValue.Text()))
	if err != nil {
		return fmt.Errorf("decoding signature value: %w", err)
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, signedInfoDigest[:], signature); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

func canonicalizer() signedxml.ExclusiveCanonicalization {
	return signedxml.ExclusiveCanonicalization{WithComments: false}
}

// digestAuthenticated hashes the canonicalization of every element
// carrying authenticate="true", in document order, into one digest.
func digestAuthenticated(doc *etree.Document) ([]byte, error) {
	elems := authenticatedElements(doc)
	if len(elems) == 0 {
		return nil, fmt.Errorf("no elements carry authenticate=\"true\"")
	}
	c := canonicalizer()
	h := sha256.New()
	for _, el := range elems {
		canonical, err := c.ProcessElement(el, "")
		if err != nil {
			return nil, fmt.Errorf("canonicalizing %s: %w", el.Tag, err)
		}
		h.Write([]byte(canonical))
	}
	return h.Sum(nil), nil
}

func authenticatedElements(doc *etree.Document) []*etree.Element {
	var elems []*etree.Element
	root := doc.Root()
	if root == nil {
		return nil
	}
	descend(root, func(e *etree.Element) {
		if e.SelectAttrValue("authenticate", "") == "true" {
			elems = append(elems, e)
		}
	})
	return elems
}

func findAuthSignature(doc *etree.Document) *etree.Element {
	var found *etree.Element
	root := doc.Root()
	if root == nil {
		return nil
	}
	descend(root, func(e *etree.Element) {
		if found == nil && e.Tag == "AuthSignature" {
			found = e
		}
	})
	return found
}

func buildSignedInfo(digest []byte) *etree.Element {
	si := etree.NewElement("ds:SignedInfo")
	si.CreateAttr("xmlns:ds", NamespaceDSig)

	si.CreateElement("ds:CanonicalizationMethod").
		CreateAttr("Algorithm", algCanonicalization)
	si.CreateElement("ds:SignatureMethod").
		CreateAttr("Algorithm", algSignatureRSASHA256)

	ref := si.CreateElement("ds:Reference")
	ref.CreateAttr("URI", authenticatedReferenceURI)
	ref.CreateElement("ds:Transforms").
		CreateElement("ds:Transform").
		CreateAttr("Algorithm", algCanonicalization)
	ref.CreateElement("ds:DigestMethod").
		CreateAttr("Algorithm", algDigestSHA256)
	ref.CreateElement("ds:DigestValue").
		SetText(base64.StdEncoding.EncodeToString(digest))

	return si
}

func signSignedInfo(signedInfo *etree.Element, key *rsa.PrivateKey) ([]byte, error) {
	canonical, err := canonicalizer().ProcessElement(signedInfo, "")
	if err != nil {
		return nil, fmt.Errorf("canonicalizing SignedInfo: %w", err)
	}
	digest := sha256.Sum256([]byte(canonical))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing SignedInfo: %w", err)
	}
	return signature, nil
}
