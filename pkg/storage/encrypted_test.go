package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBlob(t *testing.T, key []byte, blobKey string, sealed []byte) ([]byte, error) {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	aead, err := cipher.NewGCM(block)
	require.NoError(t, err)
	require.Greater(t, len(sealed), aead.NonceSize())

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, []byte(blobKey))
}

func TestKeyFromBase64(t *testing.T) {
	key, err := KeyFromBase64(base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32)))
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = KeyFromBase64(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidCipherKey)

	_, err = KeyFromBase64("not base64!")
	assert.ErrorIs(t, err, ErrInvalidCipherKey)
}

func TestNewEncryptedStore_RejectsBadKey(t *testing.T) {
	_, err := NewEncryptedStore(nil, []byte("short"))
	assert.ErrorIs(t, err, ErrInvalidCipherKey)
}

func TestEncryptedStore_SealsBlobs(t *testing.T) {
	root := t.TempDir()
	local, err := NewLocalStore(root)
	require.NoError(t, err)
	key := bytes.Repeat([]byte{3}, 32)

	store, err := NewEncryptedStore(local, key)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "appointments/1/scan.pdf", strings.NewReader("%PDF-1.4"), 8, "application/pdf"))

	sealed, err := os.ReadFile(filepath.Join(root, "appointments", "1", "scan.pdf"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "%PDF")

	plain, err := openBlob(t, key, "appointments/1/scan.pdf", sealed)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(plain))

	_, err = openBlob(t, key, "appointments/2/scan.pdf", sealed)
	assert.Error(t, err, "sealed blobs are bound to their key")

	require.NoError(t, store.Delete(ctx, "appointments/1/scan.pdf"))
	_, err = os.Stat(filepath.Join(root, "appointments", "1", "scan.pdf"))
	assert.True(t, os.IsNotExist(err))
}
