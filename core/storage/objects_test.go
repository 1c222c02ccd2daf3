package storage_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/storage"
	"idm-reconciler/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestObjects_EnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("Exists", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "streams").Return(true, nil)

		require.NoError(t, storage.NewObjects(client, "streams").EnsureBucket(ctx))
		client.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Created", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "streams").Return(false, nil)
		client.On("MakeBucket", ctx, "streams", minio.MakeBucketOptions{}).Return(nil)

		require.NoError(t, storage.NewObjects(client, "streams").EnsureBucket(ctx))
		client.AssertExpectations(t)
	})

	t.Run("Check fails", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "streams").Return(false, errors.New("denied"))

		err := storage.NewObjects(client, "streams").EnsureBucket(ctx)
		assert.ErrorContains(t, err, "denied")
	})
}

func TestObjects_ReadAll(t *testing.T) {
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("GetObject", ctx, "streams", "users.csv", minio.GetObjectOptions{}).
			Return(io.NopCloser(strings.NewReader("username\nrossini\n")), nil)

		data, err := storage.NewObjects(client, "streams").ReadAll(ctx, "users.csv")
		require.NoError(t, err)
		assert.Equal(t, "username\nrossini\n", string(data))
	})

	t.Run("Missing", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("GetObject", ctx, "streams", "nope.csv", minio.GetObjectOptions{}).
			Return(nil, minio.ErrorResponse{Code: "NoSuchKey"})

		_, err := storage.NewObjects(client, "streams").ReadAll(ctx, "nope.csv")
		assert.True(t, clienterr.Is(err, clienterr.NotFound))
	})

	t.Run("Invalid name", func(t *testing.T) {
		_, err := storage.NewObjects(new(mocks.Client), "streams").Open(ctx, "../etc/passwd")
		assert.True(t, clienterr.Is(err, clienterr.InvalidValues))
	})
}

func TestObjects_Save(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	client.On("PutObject", ctx, "streams", "out/users.csv", mock.Anything, int64(9),
		minio.PutObjectOptions{ContentType: storage.ContentTypeCSV}).
		Return(minio.UploadInfo{Key: "out/users.csv", Size: 9}, nil)

	info, err := storage.NewObjects(client, "streams").Save(ctx, "out/users.csv", []byte("username\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), info.Size)
	client.AssertExpectations(t)
}

func TestObjects_List(t *testing.T) {
	ctx := context.Background()

	t.Run("Objects", func(t *testing.T) {
		ch := make(chan minio.ObjectInfo, 2)
		ch <- minio.ObjectInfo{Key: "out/a.csv"}
		ch <- minio.ObjectInfo{Key: "out/b.csv"}
		close(ch)

		client := new(mocks.Client)
		client.On("ListObjects", ctx, "streams", minio.ListObjectsOptions{Prefix: "out/", Recursive: true}).
			Return((<-chan minio.ObjectInfo)(ch))

		list, err := storage.NewObjects(client, "streams").List(ctx, "out/")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "out/b.csv", list[1].Key)
	})

	t.Run("Error entry", func(t *testing.T) {
		ch := make(chan minio.ObjectInfo, 1)
		ch <- minio.ObjectInfo{Err: errors.New("listing broken")}
		close(ch)

		client := new(mocks.Client)
		client.On("ListObjects", ctx, "streams", mock.Anything).Return((<-chan minio.ObjectInfo)(ch))

		_, err := storage.NewObjects(client, "streams").List(ctx, "")
		assert.ErrorContains(t, err, "listing broken")
	})
}

func TestObjects_Remove(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	client.On("RemoveObject", ctx, "streams", "a.csv", minio.RemoveObjectOptions{}).Return(nil)

	require.NoError(t, storage.NewObjects(client, "streams").Remove(ctx, "a.csv"))
	client.AssertExpectations(t)
}
