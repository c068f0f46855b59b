// Package gcs implements storage.Client on a Google Cloud Storage bucket.
// GCS has no real directories, so a collection is a zero-byte marker object
// whose name ends in "/".
package gcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cloudstorage "cloud.google.com/go/storage"
	"github.com/illmade-knight/go-storebridge/pkg/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

// AuthSchemeADC marks a session authenticated through application default
// credentials. No token is held client side.
const AuthSchemeADC = "ADC"

// Config holds the bucket layout used by the Client.
type Config struct {
	BucketName   string
	ObjectPrefix string
	// ContentType is set on written records. Collection markers are always
	// written as application/x-directory.
	ContentType string
}

// Client maps collections and records onto a GCS bucket.
type Client struct {
	session *storage.Session
	bucket  GCSBucketHandle
	config  Config
	logger  zerolog.Logger
}

// New creates a client over gcsClient for sess.
func New(sess *storage.Session, gcsClient GCSClient, cfg Config, logger zerolog.Logger) (*Client, error) {
	if sess == nil {
		return nil, errors.New("session cannot be nil")
	}
	if gcsClient == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}
	cfg.ObjectPrefix = strings.Trim(cfg.ObjectPrefix, "/")
	return &Client{
		session: sess,
		bucket:  gcsClient.Bucket(cfg.BucketName),
		config:  cfg,
		logger:  logger.With().Str("component", "GCSClient").Str("bucket", cfg.BucketName).Logger(),
	}, nil
}

// NewFactory returns a storage.Factory building clients over one GCS client.
func NewFactory(gcsClient GCSClient, cfg Config, logger zerolog.Logger) storage.Factory {
	return func(sess *storage.Session) (storage.Client, error) {
		return New(sess, gcsClient, cfg, logger)
	}
}

// Endpoint renders the gs:// URL used as the session endpoint for cfg.
func Endpoint(cfg Config) string {
	prefix := strings.Trim(cfg.ObjectPrefix, "/")
	if prefix == "" {
		return "gs://" + cfg.BucketName
	}
	return "gs://" + cfg.BucketName + "/" + prefix
}

func (c *Client) Session() *storage.Session { return c.session }

// Authenticate verifies the bucket is reachable with the ambient credentials.
// The user and password are ignored.
func (c *Client) Authenticate(ctx context.Context, user, _ string) storage.Result {
	if _, err := c.bucket.Attrs(ctx); err != nil {
		return resultFromError("Authentication failed", err)
	}
	c.session.SetAuth(user, AuthSchemeADC, "application-default", time.Now())
	return storage.OK(fmt.Sprintf("Authenticated to bucket %s", c.config.BucketName))
}

// Probe checks the bucket for "/" and the object or collection marker for
// any other path.
func (c *Client) Probe(ctx context.Context, path string) storage.Result {
	resolved := c.session.Resolve(path)
	if resolved == "/" {
		if _, err := c.bucket.Attrs(ctx); err != nil {
			return resultFromError("Probe failed", err)
		}
		return storage.OK(fmt.Sprintf("bucket %s is reachable", c.config.BucketName))
	}
	if _, err := c.bucket.Object(c.objectName(resolved)).Attrs(ctx); err != nil {
		return resultFromError(fmt.Sprintf("Probe of %s failed", resolved), err)
	}
	return storage.OK(fmt.Sprintf("%s exists", resolved))
}

// CreateCollection writes the marker object unless it already exists.
func (c *Client) CreateCollection(ctx context.Context, path string) storage.Result {
	resolved := c.session.Resolve(path)
	if !strings.HasSuffix(resolved, "/") {
		resolved += "/"
	}
	if resolved == "/" {
		return storage.OK("root collection always exists")
	}
	name := c.objectName(resolved)
	obj := c.bucket.Object(name)

	_, err := obj.Attrs(ctx)
	if err == nil {
		return storage.OK(fmt.Sprintf("Collection %s already exists", resolved))
	}
	if !errors.Is(err, cloudstorage.ErrObjectNotExist) {
		return resultFromError(fmt.Sprintf("Cannot create collection %s", resolved), err)
	}

	w := obj.NewWriter(ctx, "application/x-directory")
	if err := w.Close(); err != nil {
		return resultFromError(fmt.Sprintf("Cannot create collection %s", resolved), err)
	}
	c.logger.Debug().Str("object_name", name).Msg("Created collection marker.")
	return storage.OK(fmt.Sprintf("Collection %s created", resolved))
}

// WriteObject uploads body as a single object.
func (c *Client) WriteObject(ctx context.Context, path string, body []byte) storage.Result {
	resolved := c.session.Resolve(path)
	name := c.objectName(resolved)
	w := c.bucket.Object(name).NewWriter(ctx, c.config.ContentType)

	_, writeErr := w.Write(body)
	closeErr := w.Close() // This finalizes the GCS upload.
	if writeErr != nil {
		return resultFromError(fmt.Sprintf("Cannot write object %s", resolved), writeErr)
	}
	if closeErr != nil {
		return resultFromError(fmt.Sprintf("Cannot write object %s", resolved), closeErr)
	}
	c.logger.Debug().Str("object_name", name).Int("bytes_written", len(body)).Msg("Uploaded object to GCS.")
	return storage.OK(fmt.Sprintf("Object %s created", resolved))
}

// objectName maps an absolute storage path to a GCS object name.
func (c *Client) objectName(resolved string) string {
	name := strings.TrimPrefix(resolved, "/")
	if c.config.ObjectPrefix == "" {
		return name
	}
	return c.config.ObjectPrefix + "/" + name
}

func resultFromError(prefix string, err error) storage.Result {
	msg := fmt.Sprintf("%s: %v", prefix, err)
	var apiErr *googleapi.Error
	switch {
	case errors.Is(err, cloudstorage.ErrObjectNotExist), errors.Is(err, cloudstorage.ErrBucketNotExist):
		return storage.Fail(storage.CodeNotFound, msg)
	case errors.As(err, &apiErr):
		return storage.Fail(apiErr.Code, msg)
	default:
		return storage.Fail(storage.CodeConnectionFailed, msg)
	}
}
