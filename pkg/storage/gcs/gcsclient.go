package gcs

import (
	"context"
	"io"

	cloudstorage "cloud.google.com/go/storage"
)

// ====================================================================================
// This file defines a set of interfaces to abstract the Google Cloud Storage client.
// This abstraction allows the Client to be tested without needing a real
// GCS client.
// ====================================================================================

// --- GCS Client Abstraction Interfaces ---

// GCSClient abstracts the top-level *storage.Client.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts a *storage.BucketHandle.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
	Attrs(ctx context.Context) (*cloudstorage.BucketAttrs, error)
}

// GCSObjectHandle abstracts a *storage.ObjectHandle.
type GCSObjectHandle interface {
	NewWriter(ctx context.Context, contentType string) GCSWriter
	Attrs(ctx context.Context) (*cloudstorage.ObjectAttrs, error)
}

// GCSWriter abstracts a *storage.Writer. Close finalizes the upload and
// reports its error.
type GCSWriter interface {
	io.WriteCloser
}

// --- Adapters to wrap the concrete Google Cloud Storage client ---

type gcsClientAdapter struct {
	client *cloudstorage.Client
}

// NewGCSClientAdapter makes a *storage.Client conform to GCSClient.
func NewGCSClientAdapter(client *cloudstorage.Client) GCSClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketHandleAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketHandleAdapter struct {
	handle *cloudstorage.BucketHandle
}

func (a *gcsBucketHandleAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectHandleAdapter{handle: a.handle.Object(name)}
}

func (a *gcsBucketHandleAdapter) Attrs(ctx context.Context) (*cloudstorage.BucketAttrs, error) {
	return a.handle.Attrs(ctx)
}

type gcsObjectHandleAdapter struct {
	handle *cloudstorage.ObjectHandle
}

// NewWriter returns the underlying *storage.Writer with its content type set.
func (a *gcsObjectHandleAdapter) NewWriter(ctx context.Context, contentType string) GCSWriter {
	w := a.handle.NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (a *gcsObjectHandleAdapter) Attrs(ctx context.Context) (*cloudstorage.ObjectAttrs, error) {
	return a.handle.Attrs(ctx)
}
