package gcs_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	cloudstorage "cloud.google.com/go/storage"
	"github.com/illmade-knight/go-storebridge/pkg/storage"
	"github.com/illmade-knight/go-storebridge/pkg/storage/gcs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

// --- Mock GCS Client Components ---

type mockGCSWriter struct {
	bucket      *mockGCSBucketHandle
	name        string
	contentType string
	buf         bytes.Buffer
	closeErr    error
}

func (m *mockGCSWriter) Write(p []byte) (int, error) { return m.buf.Write(p) }

func (m *mockGCSWriter) Close() error {
	if m.closeErr != nil {
		return m.closeErr
	}
	m.bucket.mu.Lock()
	defer m.bucket.mu.Unlock()
	m.bucket.objects[m.name] = storedObject{data: m.buf.Bytes(), contentType: m.contentType}
	m.bucket.writes = append(m.bucket.writes, m.name)
	return nil
}

type storedObject struct {
	data        []byte
	contentType string
}

type mockGCSObjectHandle struct {
	bucket *mockGCSBucketHandle
	name   string
}

func (m *mockGCSObjectHandle) NewWriter(_ context.Context, contentType string) gcs.GCSWriter {
	return &mockGCSWriter{bucket: m.bucket, name: m.name, contentType: contentType, closeErr: m.bucket.writeErr}
}

func (m *mockGCSObjectHandle) Attrs(_ context.Context) (*cloudstorage.ObjectAttrs, error) {
	m.bucket.mu.Lock()
	defer m.bucket.mu.Unlock()
	if m.bucket.attrsErr != nil {
		return nil, m.bucket.attrsErr
	}
	obj, ok := m.bucket.objects[m.name]
	if !ok {
		return nil, cloudstorage.ErrObjectNotExist
	}
	return &cloudstorage.ObjectAttrs{Name: m.name, Size: int64(len(obj.data))}, nil
}

type mockGCSBucketHandle struct {
	mu       sync.Mutex
	objects  map[string]storedObject
	writes   []string
	missing  bool
	attrsErr error
	writeErr error
}

func (m *mockGCSBucketHandle) Object(name string) gcs.GCSObjectHandle {
	return &mockGCSObjectHandle{bucket: m, name: name}
}

func (m *mockGCSBucketHandle) Attrs(_ context.Context) (*cloudstorage.BucketAttrs, error) {
	if m.missing {
		return nil, cloudstorage.ErrBucketNotExist
	}
	return &cloudstorage.BucketAttrs{Name: "test-bucket"}, nil
}

type mockGCSClient struct {
	bucket *mockGCSBucketHandle
}

func newMockGCSClient() *mockGCSClient {
	return &mockGCSClient{bucket: &mockGCSBucketHandle{objects: make(map[string]storedObject)}}
}

func (m *mockGCSClient) Bucket(_ string) gcs.GCSBucketHandle { return m.bucket }

func newTestClient(t *testing.T, mock *mockGCSClient) *gcs.Client {
	t.Helper()
	cfg := gcs.Config{BucketName: "test-bucket", ObjectPrefix: "/bridge/"}
	client, err := gcs.New(storage.NewSession(gcs.Endpoint(cfg)), mock, cfg, zerolog.Nop())
	require.NoError(t, err)
	return client
}

// --- Test Cases ---

func TestNew_Validation(t *testing.T) {
	sess := storage.NewSession("gs://b")
	_, err := gcs.New(sess, nil, gcs.Config{BucketName: "b"}, zerolog.Nop())
	assert.Error(t, err)
	_, err = gcs.New(sess, newMockGCSClient(), gcs.Config{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "gs://b", gcs.Endpoint(gcs.Config{BucketName: "b"}))
	assert.Equal(t, "gs://b/p/q", gcs.Endpoint(gcs.Config{BucketName: "b", ObjectPrefix: "/p/q/"}))
}

func TestClient_CreateCollection(t *testing.T) {
	ctx := context.Background()
	mock := newMockGCSClient()
	client := newTestClient(t, mock)

	require.True(t, client.CreateCollection(ctx, "/").OK())
	require.True(t, client.CreateCollection(ctx, "/galaxy/").OK())
	again := client.CreateCollection(ctx, "/galaxy/")
	require.True(t, again.OK())
	assert.Contains(t, again.Msg(), "already exists")

	assert.Equal(t, []string{"bridge/galaxy/"}, mock.bucket.writes, "marker is written once and never for the root")
	assert.Equal(t, "application/x-directory", mock.bucket.objects["bridge/galaxy/"].contentType)
}

func TestClient_CreateCollection_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("Permission denied on lookup", func(t *testing.T) {
		mock := newMockGCSClient()
		mock.bucket.attrsErr = &googleapi.Error{Code: 403, Message: "forbidden"}
		res := newTestClient(t, mock).CreateCollection(ctx, "/a/")
		assert.Equal(t, storage.CodeForbidden, res.Code())
	})

	t.Run("Upload failure", func(t *testing.T) {
		mock := newMockGCSClient()
		mock.bucket.writeErr = errors.New("connection reset")
		res := newTestClient(t, mock).CreateCollection(ctx, "/a/")
		assert.Equal(t, storage.CodeConnectionFailed, res.Code())
	})
}

func TestClient_WriteObject(t *testing.T) {
	ctx := context.Background()
	mock := newMockGCSClient()
	client := newTestClient(t, mock)

	res := client.WriteObject(ctx, "/galaxy/info/obj", []byte(`{"x":1}`))
	require.True(t, res.OK(), res.Msg())

	obj := mock.bucket.objects["bridge/galaxy/info/obj"]
	assert.Equal(t, []byte(`{"x":1}`), obj.data)
	assert.Equal(t, "application/json", obj.contentType)
}

func TestClient_ProbeAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	mock := newMockGCSClient()
	client := newTestClient(t, mock)

	assert.True(t, client.Probe(ctx, "/").OK())
	assert.Equal(t, storage.CodeNotFound, client.Probe(ctx, "/missing/").Code())

	require.True(t, client.Authenticate(ctx, "svc", "").OK())
	assert.True(t, client.Session().Authenticated())
	assert.Equal(t, gcs.AuthSchemeADC, client.Session().AuthScheme)

	mock.bucket.missing = true
	assert.Equal(t, storage.CodeNotFound, client.Probe(ctx, "/").Code())
}
