// Package rtcerr defines the domain error taxonomy shared by the storage,
// resolver, registry and service layers. Every Error carries the numeric
// code written into {code, error_msg} frames on the subscribe channel; the
// admin API flattens the same errors into its {code:1, msg, data:{}}
// envelope.
package rtcerr

import (
	"errors"
	"fmt"
)

// Kind discriminates domain errors without string matching.
type Kind string

const (
	KindNotFound    Kind = "project_not_found"
	KindExists      Kind = "project_exists"
	KindNameInvalid Kind = "project_name_invalid"
	KindEnvInvalid  Kind = "project_env_invalid"
	KindCycle       Kind = "project_parent_cycle"
	KindVersion     Kind = "config_version"
	KindConnect     Kind = "connect"
	KindGlobal      Kind = "global_api"
)

// Error is a domain error with a stable wire code and client-facing message.
type Error struct {
	Kind Kind
	Code int
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is makes errors.Is match two domain errors of the same kind regardless of
// their formatted message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err is a domain error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// AsError extracts the domain error from err, unwrapping as needed.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// NotFound reports a referenced project name absent from storage.
func NotFound(name string) *Error {
	return &Error{Kind: KindNotFound, Code: 404,
		Msg: fmt.Sprintf("Project %s config manager not exist.", name)}
}

// Exists reports a create against an already existing project.
func Exists(name string) *Error {
	return &Error{Kind: KindExists, Code: 403,
		Msg: fmt.Sprintf("Project %s config manager existed.", name)}
}

// NameInvalid reports a project or entry name outside the legal character set.
func NameInvalid(name string) *Error {
	return &Error{Kind: KindNameInvalid, Code: 403,
		Msg: fmt.Sprintf("Project %s formatter error.", name)}
}

// EnvInvalid reports an environment unknown to the project document.
func EnvInvalid(name, env string) *Error {
	return &Error{Kind: KindEnvInvalid, Code: 404,
		Msg: fmt.Sprintf("Project %s env [%s] or value error.", name, env)}
}

// Cycle reports a parent chain that re-enters a project during resolution.
func Cycle(name string) *Error {
	return &Error{Kind: KindCycle, Code: 404,
		Msg: fmt.Sprintf("Project %s parent cycle detected.", name)}
}

// VersionChanged reports a write against a stale document version. Reserved
// for optimistic concurrency checks.
func VersionChanged(name string) *Error {
	return &Error{Kind: KindVersion, Code: 400,
		Msg: fmt.Sprintf("Project %s version changed error.", name)}
}

// Connect reports a rejected or failed subscription. The admission path uses
// Connectf with the exact limit message clients match on.
func Connect(err error) *Error {
	return &Error{Kind: KindConnect, Code: 400,
		Msg: fmt.Sprintf("Connection happened unknown exception: \n%v", err)}
}

// Connectf builds a Connect error with a caller-supplied message.
func Connectf(format string, args ...any) *Error {
	return &Error{Kind: KindConnect, Code: 400, Msg: fmt.Sprintf(format, args...)}
}

// Global reports a user-facing validation failure on the admin surface.
func Global(msg string) *Error {
	return &Error{Kind: KindGlobal, Code: 400, Msg: msg}
}

// Globalf builds a Global error from a format string.
func Globalf(format string, args ...any) *Error {
	return Global(fmt.Sprintf(format, args...))
}
