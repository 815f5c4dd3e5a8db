package xmlutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeB64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// signableDoc builds a document with two authenticated subtrees and an
// empty AuthSignature slot between them.
func signableDoc() *etree.Document {
	doc := etree.NewDocument()
	root := doc.CreateElement("ebicsRequest")
	root.CreateAttr("xmlns", NamespaceH004)
	root.CreateAttr("Version", "H004")
	root.CreateAttr("Revision", "1")

	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	header.CreateElement("static").CreateElement("HostID").SetText("Hello World")

	root.CreateElement("AuthSignature")

	body := root.CreateElement("body")
	body.CreateAttr("authenticate", "true")
	body.SetText("Another one!")
	return doc
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key := testKey(t)
	doc := signableDoc()

	require.NoError(t, SignDocument(doc, key))

	authSig := findAuthSignature(doc)
	require.NotNil(t, authSig)
	assert.NotNil(t, Child(authSig, "SignedInfo"))
	assert.NotEmpty(t, Text(authSig, "SignatureValue"))

	assert.NoError(t, VerifyDocument(doc, &key.PublicKey))
}

func TestVerifyAfterSerializeParse(t *testing.T) {
	key := testKey(t)
	doc := signableDoc()
	require.NoError(t, SignDocument(doc, key))

	data, err := Serialize(doc)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.NoError(t, VerifyDocument(parsed, &key.PublicKey))
}

func TestVerifyDetectsTampering(t *testing.T) {
	key := testKey(t)
	doc := signableDoc()
	require.NoError(t, SignDocument(doc, key))

	Path(doc.Root(), "header", "static", "HostID").SetText("tampered")

	err := VerifyDocument(doc, &key.PublicKey)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyWrongKey(t *testing.T) {
	key := testKey(t)
	doc := signableDoc()
	require.NoError(t, SignDocument(doc, key))

	other := testKey(t)
	err := VerifyDocument(doc, &other.PublicKey)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyTamperedSignedInfo(t *testing.T) {
	key := testKey(t)
	doc := signableDoc()
	require.NoError(t, SignDocument(doc, key))

	// Swapping the digest for the recomputed one without re-signing
	// must still fail on the SignedInfo signature.
	authSig := findAuthSignature(doc)
	Path(doc.Root(), "header", "static", "HostID").SetText("tampered")
	digest, err := digestAuthenticated(doc)
	require.NoError(t, err)
	si := Child(authSig, "SignedInfo")
	Path(si, "Reference", "DigestValue").SetText(encodeB64(digest))

	err = VerifyDocument(doc, &key.PublicKey)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestSignWithoutAuthSignature(t *testing.T) {
	doc := etree.NewDocument()
	doc.CreateElement("ebicsRequest").CreateElement("header")

	err := SignDocument(doc, testKey(t))
	assert.Error(t, err)
}

func TestSignWithoutAuthenticatedElements(t *testing.T) {
	doc := etree.NewDocument()
	root := doc.CreateElement("ebicsRequest")
	root.CreateElement("AuthSignature")

	err := SignDocument(doc, testKey(t))
	assert.Error(t, err)
}

func TestVerifyMissingSignature(t *testing.T) {
	doc := signableDoc()
	err := VerifyDocument(doc, &testKey(t).PublicKey)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSignatureInvalid)
}
