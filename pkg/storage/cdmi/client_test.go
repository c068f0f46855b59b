package cdmi_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/illmade-knight/go-storebridge/pkg/storage"
	"github.com/illmade-knight/go-storebridge/pkg/storage/cdmi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method        string
	Path          string
	RawQuery      string
	ContentType   string
	Authorization string
	Cookie        string
	SpecVersion   string
	Body          string
}

// fakeCDMIServer keeps containers in a set and records every request.
type fakeCDMIServer struct {
	mu         sync.Mutex
	containers map[string]bool
	requests   []recordedRequest
	token      string
	cookie     *http.Cookie
	denyPath   string
}

func newFakeCDMIServer(t *testing.T) (*fakeCDMIServer, *httptest.Server) {
	t.Helper()
	f := &fakeCDMIServer{containers: map[string]bool{"/": true}}
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeCDMIServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()

	p := r.URL.Path[len(cdmi.DefaultAPIPath):]
	f.requests = append(f.requests, recordedRequest{
		Method:        r.Method,
		Path:          p,
		RawQuery:      r.URL.RawQuery,
		ContentType:   r.Header.Get("Content-Type"),
		Authorization: r.Header.Get("Authorization"),
		Cookie:        r.Header.Get("Cookie"),
		SpecVersion:   r.Header.Get("X-CDMI-Specification-Version"),
		Body:          string(body),
	})

	if p == f.denyPath {
		http.Error(w, "permission denied", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "login required", http.StatusUnauthorized)
			return
		}
		if f.token != "" {
			w.Header().Set("X-Auth-Token", f.token)
		}
		if f.cookie != nil {
			http.SetCookie(w, f.cookie)
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		if r.Header.Get("Content-Type") == cdmi.ContentTypeContainer {
			if f.containers[p] {
				w.WriteHeader(http.StatusConflict)
				return
			}
			f.containers[p] = true
		}
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeCDMIServer) snapshot() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newClient(t *testing.T, endpoint string) *cdmi.Client {
	t.Helper()
	client, err := cdmi.New(storage.NewSession(endpoint), cdmi.Config{}, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func TestNew_Validation(t *testing.T) {
	_, err := cdmi.New(nil, cdmi.Config{}, zerolog.Nop())
	assert.ErrorIs(t, err, cdmi.ErrSessionNil)

	_, err = cdmi.New(&storage.Session{}, cdmi.Config{}, zerolog.Nop())
	assert.ErrorIs(t, err, cdmi.ErrEndpointNone)
}

func TestClient_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("Basic credential kept when no token is issued", func(t *testing.T) {
		_, srv := newFakeCDMIServer(t)
		client := newClient(t, srv.URL)

		res := client.Authenticate(ctx, "alice", "secret")
		require.True(t, res.OK(), res.Msg())
		sess := client.Session()
		assert.True(t, sess.Authenticated())
		assert.Equal(t, storage.AuthSchemeBasic, sess.AuthScheme)
		assert.Equal(t, "Basic YWxpY2U6c2VjcmV0", sess.AuthorizationHeader())
	})

	t.Run("Issued token becomes a bearer credential", func(t *testing.T) {
		fake, srv := newFakeCDMIServer(t)
		fake.token = "opaque-token"
		client := newClient(t, srv.URL)

		require.True(t, client.Authenticate(ctx, "alice", "secret").OK())
		assert.Equal(t, "Bearer opaque-token", client.Session().AuthorizationHeader())

		require.True(t, client.CreateCollection(ctx, "/a/").OK())
		reqs := fake.snapshot()
		assert.Equal(t, "Bearer opaque-token", reqs[len(reqs)-1].Authorization)
	})

	t.Run("Session cookie kept instead of the password", func(t *testing.T) {
		fake, srv := newFakeCDMIServer(t)
		fake.cookie = &http.Cookie{Name: "sessionid", Value: "abc123", HttpOnly: true}
		client := newClient(t, srv.URL)

		require.True(t, client.Authenticate(ctx, "alice", "secret").OK())
		sess := client.Session()
		assert.Equal(t, cdmi.AuthSchemeCookie, sess.AuthScheme)
		assert.Equal(t, "sessionid=abc123", sess.AuthToken)

		encoded, err := storage.EncodeSession(sess)
		require.NoError(t, err)
		assert.NotContains(t, string(encoded), "YWxpY2U6c2VjcmV0", "the basic credential is never persisted")

		require.True(t, client.CreateCollection(ctx, "/a/").OK())
		reqs := fake.snapshot()
		last := reqs[len(reqs)-1]
		assert.Equal(t, "sessionid=abc123", last.Cookie)
		assert.Empty(t, last.Authorization)
	})

	t.Run("Rejected credential", func(t *testing.T) {
		fake, srv := newFakeCDMIServer(t)
		fake.denyPath = "/"
		client := newClient(t, srv.URL)

		res := client.Authenticate(ctx, "alice", "wrong")
		assert.Equal(t, http.StatusForbidden, res.Code())
		assert.Contains(t, res.Msg(), "Authentication failed")
		assert.False(t, client.Session().Authenticated())
	})
}

func TestClient_Probe(t *testing.T) {
	ctx := context.Background()
	_, srv := newFakeCDMIServer(t)
	client := newClient(t, srv.URL)

	res := client.Probe(ctx, "/")
	assert.Equal(t, http.StatusUnauthorized, res.Code())
	assert.True(t, res.AuthRequired())

	t.Run("Unreachable server", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		res := newClient(t, dead.URL).Probe(ctx, "/")
		assert.Equal(t, storage.CodeConnectionFailed, res.Code())
	})
}

func TestClient_CreateCollection(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeCDMIServer(t)
	client := newClient(t, srv.URL)

	first := client.CreateCollection(ctx, "/galaxy/")
	require.True(t, first.OK(), first.Msg())
	assert.Contains(t, first.Msg(), "created")

	second := client.CreateCollection(ctx, "/galaxy")
	require.True(t, second.OK(), "409 Conflict must be treated as success")
	assert.Contains(t, second.Msg(), "already exists")

	reqs := fake.snapshot()
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/galaxy/", r.Path)
		assert.Equal(t, cdmi.ContentTypeContainer, r.ContentType)
		assert.Equal(t, cdmi.SpecVersion, r.SpecVersion)
	}

	fake.denyPath = "/locked/"
	denied := client.CreateCollection(ctx, "/locked/")
	assert.Equal(t, http.StatusForbidden, denied.Code())
	assert.Contains(t, denied.Msg(), "permission denied")
}

func TestClient_WriteObject(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeCDMIServer(t)
	client := newClient(t, srv.URL)

	body := []byte(`{"mimetype":"text/plain","value":"{}","metadata":{}}`)
	res := client.WriteObject(ctx, "/galaxy/info/2026-01-01-00-00-00_galaxy_info", body)
	require.True(t, res.OK(), res.Msg())

	reqs := fake.snapshot()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/galaxy/info/2026-01-01-00-00-00_galaxy_info", reqs[0].Path)
	assert.Equal(t, cdmi.ContentTypeObject, reqs[0].ContentType)
	assert.Equal(t, string(body), reqs[0].Body)
}

func TestClient_EscapesPathSegments(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeCDMIServer(t)
	client := newClient(t, srv.URL+"/")

	require.True(t, client.CreateCollection(ctx, "/a b/q?x#y/").OK())
	require.True(t, client.WriteObject(ctx, "/a b/q?x#y/50%_obj", []byte(`{}`)).OK())

	reqs := fake.snapshot()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/a b/q?x#y/", reqs[0].Path)
	assert.Equal(t, "/a b/q?x#y/50%_obj", reqs[1].Path)
	for _, r := range reqs {
		assert.Empty(t, r.RawQuery, "no part of the path may leak into the query")
	}
}
