package storage

import "fmt"

// Result codes shared by every storage backend. HTTP-style status codes
// (401, 403, 404, 409, 5xx) are passed through unchanged by the backends.
const (
	CodeOK               = 0
	CodeRequestFailed    = 1
	CodeConnectionFailed = 2
	CodeUnauthorized     = 401
	CodeForbidden        = 403
	CodeNotFound         = 404
	CodeConflict         = 409
)

// Result is the outcome of a single storage call. A zero code means success;
// any other code identifies the failure and Msg carries a human readable reason.
type Result struct {
	code int
	msg  string
}

// OK builds a successful Result.
func OK(msg string) Result {
	return Result{code: CodeOK, msg: msg}
}

// Fail builds a failed Result. A zero code is promoted to CodeRequestFailed so
// a failure can never masquerade as success.
func Fail(code int, msg string) Result {
	if code == CodeOK {
		code = CodeRequestFailed
	}
	return Result{code: code, msg: msg}
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.code == CodeOK }

// Code returns the numeric status.
func (r Result) Code() int { return r.code }

// Msg returns the status message.
func (r Result) Msg() string { return r.msg }

// AuthRequired reports whether the failure means the caller must authenticate
// (or lacks permission) rather than that the service is unusable.
func (r Result) AuthRequired() bool {
	return r.code == CodeUnauthorized || r.code == CodeForbidden
}

func (r Result) String() string {
	if r.OK() {
		return fmt.Sprintf("ok: %s", r.msg)
	}
	return fmt.Sprintf("code %d: %s", r.code, r.msg)
}
