package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	for _, key := range []string{"", "/etc/passwd", "../x", "a/../../x", "..", `a\b`} {
		_, err := cleanKey(key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}

	got, err := cleanKey("appointments/1/./scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "appointments/1/scan.pdf", got)
}

func TestLocalStore_PutDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "appointments/1/scan.pdf", strings.NewReader("%PDF-1.4"), 8, "application/pdf"))

	data, err := os.ReadFile(filepath.Join(root, "appointments", "1", "scan.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, store.Delete(ctx, "appointments/1/scan.pdf"))
	_, err = os.Stat(filepath.Join(root, "appointments", "1", "scan.pdf"))
	assert.True(t, os.IsNotExist(err))

	// already gone
	assert.NoError(t, store.Delete(ctx, "appointments/1/scan.pdf"))
	assert.ErrorIs(t, store.Put(ctx, "../escape", strings.NewReader(""), 0, "text/plain"), ErrInvalidKey)
}

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *mockS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	return &s3.DeleteObjectOutput{}, args.Error(0)
}

func TestS3Store_PrefixesKeys(t *testing.T) {
	client := new(mockS3)
	store := newS3Store(client, S3Config{Bucket: "carebook", Prefix: "uploads"})
	ctx := context.Background()

	client.On("PutObject", ctx, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "carebook" && *in.Key == "uploads/appointments/1/scan.pdf" &&
			*in.ContentType == "application/pdf" && *in.ContentLength == 8
	})).Return(nil).Once()
	client.On("DeleteObject", ctx, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Key == "uploads/appointments/1/scan.pdf"
	})).Return(errors.New("access denied")).Once()

	require.NoError(t, store.Put(ctx, "appointments/1/scan.pdf", strings.NewReader("%PDF-1.4"), 8, "application/pdf"))
	assert.ErrorContains(t, store.Delete(ctx, "appointments/1/scan.pdf"), "access denied")
	client.AssertExpectations(t)
}
