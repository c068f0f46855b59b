// Package memstore provides an in-memory storage.Client. It backs dry runs of
// the bridge and is the storage double used by the bridge's tests.
package memstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/illmade-knight/go-storebridge/pkg/storage"
)

// Operation names recorded in the call log.
const (
	OpAuthenticate     = "authenticate"
	OpProbe            = "probe"
	OpCreateCollection = "create_collection"
	OpWriteObject      = "write_object"
)

// Call is one recorded client operation.
type Call struct {
	Op   string
	Path string
}

// Backend is the shared state behind any number of Clients, so a test can
// build a fresh client per session and still observe one store.
type Backend struct {
	mu          sync.Mutex
	collections map[string]bool
	objects     map[string][]byte
	calls       []Call
	failures    map[Call]storage.Result
	users       map[string]string
	requireAuth bool
}

// NewBackend returns an empty store containing only the root collection.
func NewBackend() *Backend {
	return &Backend{
		collections: map[string]bool{"/": true},
		objects:     make(map[string][]byte),
		failures:    make(map[Call]storage.Result),
		users:       make(map[string]string),
	}
}

// RequireAuth makes every operation other than Authenticate return 401 until
// the calling session is authenticated. Accepted credentials are added with
// AddUser.
func (b *Backend) RequireAuth() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requireAuth = true
}

// AddUser registers a credential accepted by Authenticate.
func (b *Backend) AddUser(user, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[user] = password
}

// FailOn makes the given operation on path return res.
func (b *Backend) FailOn(op, p string, res storage.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[Call{Op: op, Path: p}] = res
}

// ClearFailures removes every injected failure.
func (b *Backend) ClearFailures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = make(map[Call]storage.Result)
}

// Calls returns a copy of the call log.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// CallsFor returns the paths of every recorded call of op, in order.
func (b *Backend) CallsFor(op string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.calls {
		if c.Op == op {
			out = append(out, c.Path)
		}
	}
	return out
}

// Collections returns every collection path, sorted.
func (b *Backend) Collections() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.collections))
	for c := range b.collections {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Objects returns a copy of every stored object keyed by path.
func (b *Backend) Objects() map[string][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]byte, len(b.objects))
	for k, v := range b.objects {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Factory returns a storage.Factory producing clients over this backend.
func (b *Backend) Factory() storage.Factory {
	return func(sess *storage.Session) (storage.Client, error) {
		return NewClient(b, sess), nil
	}
}

// Client is a storage.Client over a Backend.
type Client struct {
	backend *Backend
	session *storage.Session
}

// NewClient binds a session to the backend.
func NewClient(backend *Backend, sess *storage.Session) *Client {
	return &Client{backend: backend, session: sess}
}

// Session returns the session backing this client.
func (c *Client) Session() *storage.Session { return c.session }

// Authenticate checks the credential against the registered users. With no
// users registered any credential is accepted.
func (c *Client) Authenticate(_ context.Context, user, password string) storage.Result {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if res, failed := b.record(OpAuthenticate, "/"); failed {
		return res
	}
	if len(b.users) > 0 {
		if want, ok := b.users[user]; !ok || want != password {
			return storage.Fail(storage.CodeUnauthorized, "invalid credentials")
		}
	}
	token := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	c.session.SetAuth(user, storage.AuthSchemeBasic, token, time.Now())
	return storage.OK(fmt.Sprintf("Authenticated as %s", user))
}

// Probe reports whether path exists.
func (c *Client) Probe(_ context.Context, p string) storage.Result {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	resolved := c.session.Resolve(p)
	if res, failed := b.record(OpProbe, resolved); failed {
		return res
	}
	if res, denied := c.checkAuth(); denied {
		return res
	}
	if b.collections[resolved] || b.collections[resolved+"/"] {
		return storage.OK("collection exists")
	}
	if _, ok := b.objects[resolved]; ok {
		return storage.OK("object exists")
	}
	return storage.Fail(storage.CodeNotFound, fmt.Sprintf("%s not found", resolved))
}

// CreateCollection creates the collection if absent. The parent must exist.
func (c *Client) CreateCollection(_ context.Context, p string) storage.Result {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	resolved := c.session.Resolve(p)
	if !strings.HasSuffix(resolved, "/") {
		resolved += "/"
	}
	if res, failed := b.record(OpCreateCollection, resolved); failed {
		return res
	}
	if res, denied := c.checkAuth(); denied {
		return res
	}
	if b.collections[resolved] {
		return storage.OK(fmt.Sprintf("Container %s already exists", resolved))
	}
	if parent := parentOf(resolved); !b.collections[parent] {
		return storage.Fail(storage.CodeNotFound, fmt.Sprintf("parent container %s does not exist", parent))
	}
	b.collections[resolved] = true
	return storage.OK(fmt.Sprintf("Container %s created", resolved))
}

// WriteObject stores body at path. The parent collection must exist.
func (c *Client) WriteObject(_ context.Context, p string, body []byte) storage.Result {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	resolved := c.session.Resolve(p)
	if res, failed := b.record(OpWriteObject, resolved); failed {
		return res
	}
	if res, denied := c.checkAuth(); denied {
		return res
	}
	if parent := parentOf(resolved); !b.collections[parent] {
		return storage.Fail(storage.CodeNotFound, fmt.Sprintf("parent container %s does not exist", parent))
	}
	b.objects[resolved] = append([]byte(nil), body...)
	return storage.OK(fmt.Sprintf("Object %s created", resolved))
}

// record appends the call to the log and returns any injected failure.
// Callers hold b.mu.
func (b *Backend) record(op, p string) (storage.Result, bool) {
	call := Call{Op: op, Path: p}
	b.calls = append(b.calls, call)
	res, ok := b.failures[call]
	return res, ok
}

func (c *Client) checkAuth() (storage.Result, bool) {
	if c.backend.requireAuth && !c.session.Authenticated() {
		return storage.Fail(storage.CodeUnauthorized, "authentication required"), true
	}
	return storage.Result{}, false
}

func parentOf(p string) string {
	dir := path.Dir(strings.TrimSuffix(p, "/"))
	if dir == "/" {
		return "/"
	}
	return dir + "/"
}
