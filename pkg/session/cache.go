// Package session loads and persists the storage session so a restarted bridge
// reuses its authenticated connection instead of logging in again.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/illmade-knight/go-storebridge/pkg/cache"
	"github.com/illmade-knight/go-storebridge/pkg/storage"
	"github.com/rs/zerolog"
)

// DefaultKey names the persisted session entry.
const DefaultKey = "session.json"

var (
	ErrNotAuthenticated = errors.New("refusing to save an unauthenticated session")
	ErrEndpointMismatch = errors.New("stored session points at a different endpoint")
)

// FatalError reports that a fresh session could not reach the storage
// service. Code is the storage client's status and becomes the exit code.
type FatalError struct {
	Code int
	Msg  string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("storage unusable (code %d): %s", e.Code, e.Msg)
}

// Config selects the stored entry and the endpoint a session must match.
type Config struct {
	Key      string
	Endpoint string
}

// Cache loads and saves the storage session. It is used by a single worker;
// the mutex only guards the memoized client against the startup goroutine.
type Cache struct {
	cfg     Config
	store   cache.Cache[string, cache.Entry]
	factory storage.Factory
	logger  zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	current storage.Client
}

// NewCache creates a session cache over store.
func NewCache(cfg Config, store cache.Cache[string, cache.Entry], factory storage.Factory, logger zerolog.Logger) (*Cache, error) {
	if store == nil {
		return nil, errors.New("session store cannot be nil")
	}
	if factory == nil {
		return nil, errors.New("storage client factory cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("storage endpoint is required")
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	return &Cache{
		cfg:     cfg,
		store:   store,
		factory: factory,
		logger:  logger.With().Str("component", "SessionCache").Logger(),
		now:     time.Now,
	}, nil
}

// Load returns a client over the stored session. When the stored session is
// missing, unreadable, of another schema version or bound to a different
// endpoint, it builds a fresh session and probes the storage root instead.
// A probe that succeeds or asks for authentication is usable; anything else
// is returned as a *FatalError.
func (c *Cache) Load(ctx context.Context) (storage.Client, error) {
	sess, err := c.Stored(ctx)
	if err == nil {
		client, err := c.factory(sess)
		if err != nil {
			return nil, fmt.Errorf("failed to build storage client from stored session: %w", err)
		}
		c.logger.Info().
			Str("endpoint", sess.Endpoint).
			Bool("authenticated", sess.Authenticated()).
			Msg("Loaded stored storage session.")
		return client, nil
	}

	c.logger.Info().Err(err).Msg("No usable stored session, creating a fresh one.")
	return c.fresh(ctx)
}

// Stored reads and validates the persisted session without any fallback.
// An expired bearer token is dropped so the caller re-authenticates.
func (c *Cache) Stored(ctx context.Context) (*storage.Session, error) {
	entry, err := c.store.FetchFromCache(ctx, c.cfg.Key)
	if err != nil {
		return nil, err
	}
	sess, err := storage.DecodeSession(entry.Data)
	if err != nil {
		return nil, err
	}
	if normalize(sess.Endpoint) != normalize(c.cfg.Endpoint) {
		return nil, fmt.Errorf("%w: stored %s, configured %s", ErrEndpointMismatch, sess.Endpoint, c.cfg.Endpoint)
	}
	if sess.TokenExpired(c.now()) {
		c.logger.Info().Str("user", sess.Username).Msg("Stored session token has expired, authentication required.")
		sess.ClearAuth()
	}
	return sess, nil
}

func (c *Cache) fresh(ctx context.Context) (storage.Client, error) {
	client, err := c.factory(storage.NewSession(c.cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to build storage client: %w", err)
	}
	res := client.Probe(ctx, "/")
	if res.OK() || res.AuthRequired() {
		c.logger.Info().Int("probe_code", res.Code()).Str("endpoint", c.cfg.Endpoint).Msg("Storage endpoint is usable.")
		return client, nil
	}
	return nil, &FatalError{Code: res.Code(), Msg: res.Msg()}
}

// Current returns the process-wide client, loading it on first use.
func (c *Cache) Current(ctx context.Context) (storage.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current, nil
	}
	client, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.current = client
	return client, nil
}

// Save persists an authenticated session, replacing any earlier one.
func (c *Cache) Save(ctx context.Context, sess *storage.Session) error {
	if !sess.Authenticated() {
		return ErrNotAuthenticated
	}
	data, err := storage.EncodeSession(sess)
	if err != nil {
		return err
	}
	if err := c.store.WriteToCache(ctx, c.cfg.Key, cache.NewEntry(data)); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	c.logger.Info().Str("key", c.cfg.Key).Str("user", sess.Username).Msg("Saved storage session.")
	return nil
}

// Clear removes the persisted session and forgets the memoized client.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	if err := c.store.Invalidate(ctx, c.cfg.Key); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func normalize(endpoint string) string {
	return strings.TrimRight(endpoint, "/")
}
