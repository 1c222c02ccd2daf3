package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"idm-reconciler/core/clienterr"

	"github.com/minio/minio-go/v7"
)

// ContentTypeCSV is set on uploaded CSV objects.
const ContentTypeCSV = "text/csv; charset=utf-8"

// Objects reads and writes CSV objects of one bucket.
type Objects struct {
	client Client
	bucket string
}

// NewObjects binds client to bucket.
func NewObjects(client Client, bucket string) *Objects {
	return &Objects{client: client, bucket: bucket}
}

// Bucket returns the bound bucket name.
func (o *Objects) Bucket() string {
	return o.bucket
}

// Exists tells whether the bound bucket exists.
func (o *Objects) Exists(ctx context.Context) (bool, error) {
	exists, err := o.client.BucketExists(ctx, o.bucket)
	if err != nil {
		return false, fmt.Errorf("failed to check bucket %s: %w", o.bucket, err)
	}
	return exists, nil
}

// EnsureBucket creates the bucket when missing.
func (o *Objects) EnsureBucket(ctx context.Context) error {
	exists, err := o.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := o.client.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", o.bucket, err)
	}
	return nil
}

// Open streams an object. A missing object fails with NotFound.
func (o *Objects) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	rc, err := o.client.GetObject(ctx, o.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, o.classify(name, err)
	}
	return rc, nil
}

// ReadAll loads a whole object. Errors surfacing while reading are classified like Open.
func (o *Objects) ReadAll(ctx context.Context, name string) ([]byte, error) {
	rc, err := o.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, o.classify(name, err)
	}
	return data, nil
}

// Save uploads data as a CSV object, replacing any previous version.
func (o *Objects) Save(ctx context.Context, name string, data []byte) (minio.UploadInfo, error) {
	if err := validName(name); err != nil {
		return minio.UploadInfo{}, err
	}
	info, err := o.client.PutObject(ctx, o.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: ContentTypeCSV})
	if err != nil {
		return minio.UploadInfo{}, fmt.Errorf("failed to upload %s/%s: %w", o.bucket, name, err)
	}
	return info, nil
}

// List returns the objects under prefix, recursively.
func (o *Objects) List(ctx context.Context, prefix string) ([]minio.ObjectInfo, error) {
	var objects []minio.ObjectInfo
	for obj := range o.client.ListObjects(ctx, o.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list %s/%s: %w", o.bucket, prefix, obj.Err)
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

// Remove deletes an object.
func (o *Objects) Remove(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := o.client.RemoveObject(ctx, o.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", o.bucket, name, err)
	}
	return nil
}

func (o *Objects) classify(name string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return clienterr.Newf(clienterr.NotFound, "Object %s/%s", o.bucket, name)
	}
	return fmt.Errorf("failed to read %s/%s: %w", o.bucket, name, err)
}

func validName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		return clienterr.Newf(clienterr.InvalidValues, "invalid object name %q", name)
	}
	return nil
}
