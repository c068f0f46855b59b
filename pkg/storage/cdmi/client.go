// Package cdmi implements storage.Client against a CDMI (Cloud Data Management
// Interface) server such as Radon. Collections map to CDMI containers and
// records to CDMI data objects.
package cdmi

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/illmade-knight/go-storebridge/pkg/storage"
	"github.com/rs/zerolog"
)

const (
	DefaultAPIPath = "/api/cdmi"
	SpecVersion    = "1.1"

	ContentTypeContainer = "application/cdmi-container"
	ContentTypeObject    = "application/cdmi-object"

	// AuthSchemeCookie marks a session holding server-issued cookies, sent
	// back in a Cookie header rather than Authorization.
	AuthSchemeCookie = "Cookie"

	specVersionHeader = "X-CDMI-Specification-Version"
	authTokenHeader   = "X-Auth-Token"
	maxErrorBody      = 512
)

var (
	ErrSessionNil   = errors.New("session cannot be nil")
	ErrEndpointNone = errors.New("storage endpoint is required")
)

// Config holds the HTTP settings of the CDMI client.
type Config struct {
	// APIPath is appended to the session endpoint. Defaults to DefaultAPIPath.
	APIPath string
	// HTTPClient is used to send requests. Defaults to a client with Timeout.
	HTTPClient *http.Client
	// Timeout bounds each request when HTTPClient is not set. Zero means no
	// timeout.
	Timeout time.Duration
}

// Client talks CDMI over HTTP.
type Client struct {
	session *storage.Session
	http    *http.Client
	apiPath string
	logger  zerolog.Logger
}

type response struct {
	Body   []byte
	Header http.Header
	Code   int
}

// New creates a client for sess. It does not contact the server.
func New(sess *storage.Session, cfg Config, logger zerolog.Logger) (*Client, error) {
	if sess == nil {
		return nil, ErrSessionNil
	}
	if sess.Endpoint == "" {
		return nil, ErrEndpointNone
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	apiPath := cfg.APIPath
	if apiPath == "" {
		apiPath = DefaultAPIPath
	}
	return &Client{
		session: sess,
		http:    httpClient,
		apiPath: "/" + strings.Trim(apiPath, "/"),
		logger:  logger.With().Str("component", "CDMIClient").Str("endpoint", sess.Endpoint).Logger(),
	}, nil
}

// NewFactory returns a storage.Factory building CDMI clients with cfg.
func NewFactory(cfg Config, logger zerolog.Logger) storage.Factory {
	return func(sess *storage.Session) (storage.Client, error) {
		return New(sess, cfg, logger)
	}
}

// Session returns the session backing this client.
func (c *Client) Session() *storage.Session { return c.session }

// Authenticate reads the root container with basic credentials. A token
// returned in the X-Auth-Token header is kept as a bearer token, else any
// session cookies the server set. Only when the server issues neither is the
// basic credential itself kept, and then persisted with the session.
func (c *Client) Authenticate(ctx context.Context, user, password string) storage.Result {
	basic := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	headers := http.Header{}
	headers.Set("Accept", ContentTypeContainer)
	headers.Set("Authorization", storage.AuthSchemeBasic+" "+basic)

	resp, res := c.do(ctx, http.MethodGet, "/", nil, headers, false)
	if !res.OK() {
		return res
	}
	if !isSuccess(resp.Code) {
		return storage.Fail(resp.Code, failureMessage("Authentication failed", resp))
	}

	if token := resp.Header.Get(authTokenHeader); token != "" {
		c.session.SetAuth(user, storage.AuthSchemeBearer, token, time.Now())
	} else if cookies := cookieHeader(resp.Header); cookies != "" {
		c.session.SetAuth(user, AuthSchemeCookie, cookies, time.Now())
	} else {
		c.session.SetAuth(user, storage.AuthSchemeBasic, basic, time.Now())
	}
	c.logger.Debug().Str("user", user).Str("scheme", c.session.AuthScheme).Msg("Authenticated against CDMI server.")
	return storage.OK(fmt.Sprintf("Authenticated as %s", user))
}

// Probe reads the container or object at path.
func (c *Client) Probe(ctx context.Context, path string) storage.Result {
	headers := http.Header{}
	headers.Set("Accept", ContentTypeContainer)
	resp, res := c.do(ctx, http.MethodGet, path, nil, headers, true)
	if !res.OK() {
		return res
	}
	if !isSuccess(resp.Code) {
		return storage.Fail(resp.Code, failureMessage("Probe failed", resp))
	}
	return storage.OK(fmt.Sprintf("%s is reachable", c.session.Resolve(path)))
}

// CreateCollection creates a container. 409 Conflict means the container
// already exists and is reported as success.
func (c *Client) CreateCollection(ctx context.Context, path string) storage.Result {
	resolved := c.session.Resolve(path)
	if !strings.HasSuffix(resolved, "/") {
		resolved += "/"
	}
	headers := http.Header{}
	headers.Set("Accept", ContentTypeContainer)
	headers.Set("Content-Type", ContentTypeContainer)

	resp, res := c.do(ctx, http.MethodPut, resolved, []byte(`{"metadata":{}}`), headers, true)
	if !res.OK() {
		return res
	}
	switch {
	case resp.Code == http.StatusConflict:
		return storage.OK(fmt.Sprintf("Container %s already exists", resolved))
	case isSuccess(resp.Code):
		return storage.OK(fmt.Sprintf("Container %s created", resolved))
	default:
		return storage.Fail(resp.Code, failureMessage(fmt.Sprintf("Cannot create container %s", resolved), resp))
	}
}

// WriteObject stores body as a CDMI data object.
func (c *Client) WriteObject(ctx context.Context, path string, body []byte) storage.Result {
	resolved := c.session.Resolve(path)
	headers := http.Header{}
	headers.Set("Accept", ContentTypeObject)
	headers.Set("Content-Type", ContentTypeObject)

	resp, res := c.do(ctx, http.MethodPut, resolved, body, headers, true)
	if !res.OK() {
		return res
	}
	if !isSuccess(resp.Code) {
		return storage.Fail(resp.Code, failureMessage(fmt.Sprintf("Cannot write object %s", resolved), resp))
	}
	return storage.OK(fmt.Sprintf("Object %s created", resolved))
}

// do sends one request. The returned Result is a failure only when no HTTP
// response was obtained; status handling is left to the caller.
func (c *Client) do(ctx context.Context, method, path string, body []byte, headers http.Header, withAuth bool) (*response, storage.Result) {
	target := strings.TrimSuffix(c.session.Endpoint, "/") + c.apiPath + escapePath(c.session.Resolve(path))

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, storage.Fail(storage.CodeRequestFailed, fmt.Sprintf("failed creating request: %v", err))
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(specVersionHeader, SpecVersion)
	if withAuth {
		switch {
		case c.session.AuthToken == "":
		case c.session.AuthScheme == AuthSchemeCookie:
			req.Header.Set("Cookie", c.session.AuthToken)
		default:
			req.Header.Set("Authorization", c.session.AuthorizationHeader())
		}
	}

	c.logger.Debug().Str("method", method).Str("url", target).Msg("Sending CDMI request.")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, storage.Fail(storage.CodeConnectionFailed, fmt.Sprintf("cannot reach %s: %v", c.session.Endpoint, err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, storage.Fail(storage.CodeConnectionFailed, fmt.Sprintf("failed reading response body: %v", err))
	}
	return &response{Body: data, Header: resp.Header, Code: resp.StatusCode}, storage.OK("")
}

// cookieHeader renders the cookies set by a response as a Cookie header
// value.
func cookieHeader(h http.Header) string {
	resp := http.Response{Header: h}
	var pairs []string
	for _, ck := range resp.Cookies() {
		if ck.Value != "" {
			pairs = append(pairs, ck.Name+"="+ck.Value)
		}
	}
	return strings.Join(pairs, "; ")
}

// escapePath escapes each segment so topic characters such as '?', '#' or
// ' ' stay part of the path.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func failureMessage(prefix string, resp *response) string {
	detail := strings.TrimSpace(string(resp.Body))
	if len(detail) > maxErrorBody {
		detail = detail[:maxErrorBody]
	}
	if detail == "" {
		detail = http.StatusText(resp.Code)
	}
	return fmt.Sprintf("%s: %d %s", prefix, resp.Code, detail)
}
