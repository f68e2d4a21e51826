package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var ErrInvalidCipherKey = errors.New("attachment key must be base64 of 16, 24 or 32 bytes")

// KeyFromBase64 decodes a standard base64 AES key.
func KeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCipherKey
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, ErrInvalidCipherKey
}

// EncryptedStore seals blobs with AES-GCM before handing them to the
// wrapped store. A stored blob is nonce || ciphertext. Blobs are buffered
// in memory; attachments are size-capped upstream.
type EncryptedStore struct {
	inner BlobStore
	aead  cipher.AEAD
}

func NewEncryptedStore(inner BlobStore, key []byte) (*EncryptedStore, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidCipherKey
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}
	return &EncryptedStore{inner: inner, aead: aead}, nil
}

func (s *EncryptedStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	plain, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plain, []byte(key))

	return s.inner.Put(ctx, key, bytes.NewReader(sealed), int64(len(sealed)), "application/octet-stream")
}

func (s *EncryptedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
