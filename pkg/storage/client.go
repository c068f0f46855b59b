package storage

import "context"

// ====================================================================================
// This file defines the contract between the bridge and a remote storage service.
// Backends (CDMI over HTTP, Google Cloud Storage, in-memory) implement Client and
// keep their connection state in the Session they were built from.
// ====================================================================================

// Client is a connection to a hierarchical object store.
//
// Every operation returns a Result rather than an error: callers inspect
// Result.OK before continuing.
type Client interface {
	// Session returns the state backing this client. Mutations made by the
	// client (authentication, working path) are visible through it.
	Session() *Session
	// Authenticate logs in and stores the credential in the session.
	Authenticate(ctx context.Context, user, password string) Result
	// Probe performs a lightweight read of path.
	Probe(ctx context.Context, path string) Result
	// CreateCollection creates the collection at path. An existing collection
	// is reported as success.
	CreateCollection(ctx context.Context, path string) Result
	// WriteObject stores body as the object at path.
	WriteObject(ctx context.Context, path string, body []byte) Result
}

// Factory builds a Client over the given session.
type Factory func(sess *Session) (Client, error)
