package keystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/ebics"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

func newTestSubscriber(t *testing.T) *ebics.Subscriber {
	t.Helper()
	sub, err := ebics.NewSubscriber("https://bank.example/ebics", "EBIXHOST", "PARTNER1", "USER0001")
	require.NoError(t, err)
	return sub
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	sub := newTestSubscriber(t)
	sub.IniState = ebics.StateSent
	bankKey, err := security.GenerateKeyPair()
	require.NoError(t, err)
	sub.BankAuthenticationKey = &bankKey.PublicKey

	require.NoError(t, store.Save("bank-a", sub))

	loaded, err := store.Load("bank-a")
	require.NoError(t, err)
	assert.Equal(t, sub.HostID, loaded.HostID)
	assert.Equal(t, sub.URL, loaded.URL)
	assert.Equal(t, ebics.StateSent, loaded.IniState)
	assert.Equal(t, ebics.StateNotSent, loaded.HiaState)
	assert.Zero(t, sub.SignatureKey.N.Cmp(loaded.SignatureKey.N))
	require.NotNil(t, loaded.BankAuthenticationKey)
	assert.Zero(t, bankKey.N.Cmp(loaded.BankAuthenticationKey.N))
	assert.Nil(t, loaded.BankEncryptionKey)
}

func TestLoadSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	sub := newTestSubscriber(t)
	require.NoError(t, store.Save("bank-a", sub))

	// A fresh store instance must read everything from disk.
	reopened, err := NewStore(dir)
	require.NoError(t, err)
	loaded, err := reopened.Load("bank-a")
	require.NoError(t, err)
	assert.Zero(t, sub.EncryptionKey.N.Cmp(loaded.EncryptionKey.N))

	names, err := reopened.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"bank-a"}, names)
}

func TestLoadUnknownConnection(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackupExportImport(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	sub := newTestSubscriber(t)
	sub.IniState = ebics.StateSent
	sub.HiaState = ebics.StateSent
	require.NoError(t, store.Save("bank-a", sub))

	backup, err := store.ExportBackup("bank-a", "passphrase")
	require.NoError(t, err)
	assert.Contains(t, string(backup), "EBIXHOST")
	assert.NotContains(t, string(backup), "PRIVATE KEY")

	// Import into a different store, as after a machine move.
	restoreStore, err := NewStore(t.TempDir())
	require.NoError(t, err)
	restored, err := restoreStore.ImportBackup("bank-a", sub.URL, backup, "passphrase")
	require.NoError(t, err)

	assert.Zero(t, sub.SignatureKey.N.Cmp(restored.SignatureKey.N))
	assert.Zero(t, sub.AuthenticationKey.N.Cmp(restored.AuthenticationKey.N))
	assert.Zero(t, sub.EncryptionKey.N.Cmp(restored.EncryptionKey.N))

	// A restored connection cannot trust its previous key states.
	assert.Equal(t, ebics.StateUnknown, restored.IniState)
	assert.Equal(t, ebics.StateUnknown, restored.HiaState)
}

func TestBackupWrongPassphrase(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save("bank-a", newTestSubscriber(t)))

	backup, err := store.ExportBackup("bank-a", "right")
	require.NoError(t, err)

	_, err = store.ImportBackup("bank-b", "https://bank.example", backup, "wrong")
	assert.ErrorIs(t, err, security.ErrBadPassphrase)
}
