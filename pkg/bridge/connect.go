package bridge

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-storebridge/pkg/report"
	"github.com/illmade-knight/go-storebridge/pkg/storage"
	"github.com/rs/zerolog"
)

// Credentials authenticate the bridge against the storage service.
type Credentials struct {
	User     string
	Password string
}

// SessionStore is a SessionSource that can persist an authenticated session.
type SessionStore interface {
	SessionSource
	Save(ctx context.Context, sess *storage.Session) error
}

// Connect prepares the storage session at startup. A stored, still
// authenticated session is used as is. Otherwise, when a user is configured,
// the session is authenticated and saved. A rejected login is reported and
// the bridge carries on unauthenticated without saving. Only an unusable
// storage endpoint is returned as an error.
func Connect(ctx context.Context, sessions SessionStore, creds Credentials, reporter report.Reporter, metrics *Metrics, logger zerolog.Logger) (storage.Client, error) {
	logger = logger.With().Str("component", "Connect").Logger()

	client, err := sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	sess := client.Session()

	if sess.Authenticated() {
		logger.Info().Str("user", sess.Username).Str("endpoint", sess.Endpoint).Msg("Reusing authenticated session.")
		return client, nil
	}
	if creds.User == "" {
		reporter.Warning("No storage credentials configured, continuing unauthenticated", sess.Endpoint)
		return client, nil
	}

	res := client.Authenticate(ctx, creds.User, creds.Password)
	metrics.recordStorageCall(OperationAuthenticate, res)
	if !res.OK() {
		reporter.Error(res.Msg(), creds.User)
		logger.Warn().Int("code", res.Code()).Str("user", creds.User).Msg("Authentication failed, session not saved.")
		return client, nil
	}
	reporter.Success(fmt.Sprintf("%s in storage", res.Msg()), creds.User)

	if err := sessions.Save(ctx, sess); err != nil {
		reporter.Warning(fmt.Sprintf("Session not saved: %v", err), sess.Endpoint)
	}
	return client, nil
}
