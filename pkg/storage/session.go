package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionSchemaVersion is the version written by EncodeSession. DecodeSession
// refuses any other version so an incompatible upgrade fails loudly.
const SessionSchemaVersion = 1

// Authentication schemes understood by the storage backends.
const (
	AuthSchemeBasic  = "Basic"
	AuthSchemeBearer = "Bearer"
)

var (
	ErrSessionCorrupt = errors.New("stored session is corrupt")
	ErrSessionSchema  = errors.New("stored session has an unsupported schema version")
)

// Session is the persistable state of a storage connection: where it points,
// which collection relative operations resolve against, and the credential
// obtained by the last successful authentication.
type Session struct {
	SchemaVersion   int       `json:"schema_version"`
	Endpoint        string    `json:"endpoint"`
	WorkingPath     string    `json:"working_path"`
	Username        string    `json:"username,omitempty"`
	AuthScheme      string    `json:"auth_scheme,omitempty"`
	AuthToken       string    `json:"auth_token,omitempty"`
	AuthenticatedAt time.Time `json:"authenticated_at,omitempty"`
}

// NewSession returns an unauthenticated session rooted at "/".
func NewSession(endpoint string) *Session {
	return &Session{
		SchemaVersion: SessionSchemaVersion,
		Endpoint:      strings.TrimRight(endpoint, "/"),
		WorkingPath:   "/",
	}
}

// Authenticated reports whether the session holds a credential that has not
// expired.
func (s *Session) Authenticated() bool {
	if s == nil || s.AuthToken == "" {
		return false
	}
	return !s.TokenExpired(time.Now())
}

// TokenExpired reports whether a bearer token carries an exp claim in the
// past. Opaque tokens and basic credentials never expire client side.
func (s *Session) TokenExpired(now time.Time) bool {
	if s.AuthScheme != AuthSchemeBearer || s.AuthToken == "" {
		return false
	}
	token, _, err := jwt.NewParser().ParseUnverified(s.AuthToken, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

// SetAuth records a successful authentication.
func (s *Session) SetAuth(user, scheme, token string, at time.Time) {
	s.Username = user
	s.AuthScheme = scheme
	s.AuthToken = token
	s.AuthenticatedAt = at.UTC()
}

// ClearAuth drops the credential, returning the session to the
// unauthenticated state.
func (s *Session) ClearAuth() {
	s.AuthScheme = ""
	s.AuthToken = ""
	s.AuthenticatedAt = time.Time{}
}

// AuthorizationHeader returns the value for an HTTP Authorization header, or
// "" when unauthenticated.
func (s *Session) AuthorizationHeader() string {
	if s.AuthToken == "" {
		return ""
	}
	scheme := s.AuthScheme
	if scheme == "" {
		scheme = AuthSchemeBearer
	}
	return scheme + " " + s.AuthToken
}

// Resolve turns p into an absolute path. Relative paths resolve against the
// working path. A trailing slash, which marks a collection, is preserved.
func (s *Session) Resolve(p string) string {
	if p == "" {
		return s.workingPath()
	}
	collection := strings.HasSuffix(p, "/")
	if !strings.HasPrefix(p, "/") {
		p = s.workingPath() + p
	}
	cleaned := path.Clean(p)
	if collection && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// ChangeDir moves the working path; the result always ends in "/".
func (s *Session) ChangeDir(p string) {
	resolved := s.Resolve(p)
	if !strings.HasSuffix(resolved, "/") {
		resolved += "/"
	}
	s.WorkingPath = resolved
}

func (s *Session) workingPath() string {
	if s.WorkingPath == "" {
		return "/"
	}
	if !strings.HasSuffix(s.WorkingPath, "/") {
		return s.WorkingPath + "/"
	}
	return s.WorkingPath
}

// EncodeSession serializes a session with the current schema version.
func EncodeSession(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("session cannot be nil")
	}
	out := *s
	out.SchemaVersion = SessionSchemaVersion
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return data, nil
}

// DecodeSession parses data produced by EncodeSession.
func DecodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	if s.SchemaVersion != SessionSchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSessionSchema, s.SchemaVersion, SessionSchemaVersion)
	}
	if s.Endpoint == "" {
		return nil, fmt.Errorf("%w: missing endpoint", ErrSessionCorrupt)
	}
	if s.WorkingPath == "" {
		s.WorkingPath = "/"
	}
	return &s, nil
}
