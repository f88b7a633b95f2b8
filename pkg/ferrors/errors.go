// Package ferrors defines the error taxonomy used across the fusion
// orchestrator. Each kind carries a distinct propagation policy (see
// spec §7); callers type-assert or use errors.As/errors.Is against the
// sentinel Kind values rather than matching on message text.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by its propagation policy.
type Kind string

const (
	// KindProtocol covers bad magic, bad version, short reads, and bad
	// headers on the wire. Propagation: close the offending connection,
	// never cross a thread boundary.
	KindProtocol Kind = "protocol"

	// KindClientRequest covers bad arguments, unknown commands, and
	// handler-thrown errors. Propagation: Exception reply with message.
	KindClientRequest Kind = "client_request"

	// KindTaskConstruction covers unresolvable task inputs and static
	// requirement conflicts. Propagation: synthetic TaskDone(false) plus
	// a fatal-log file under the version's state directory.
	KindTaskConstruction Kind = "task_construction"

	// KindTaskRuntime covers a provider-reported job failure. Propagation:
	// version -> Failed, dependents -> Blocked.
	KindTaskRuntime Kind = "task_runtime"

	// KindProviderCommunication covers request timeouts and socket errors
	// talking to a provider. Propagation: schedule provider abandonment;
	// active tasks are reported Lost, not Failed.
	KindProviderCommunication Kind = "provider_communication"

	// KindStorageCommit covers file-transaction rename failures.
	// Propagation: abort the pending transaction, Exception reply.
	KindStorageCommit Kind = "storage_commit"

	// KindFatal covers missing volumes, duplicate singletons, and
	// malformed asset roots at startup. Propagation: log and terminate.
	KindFatal Kind = "fatal"
)

// Error wraps an underlying cause with a Kind and optional context.
type Error struct {
	Kind    Kind
	Op      string // short description of the operation that failed
	Err     error
	Context map[string]string
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf constructs an *Error of the given kind from a format string.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithContext attaches key/value context to an error, returning a new Error.
func (e *Error) WithContext(key, value string) *Error {
	cp := *e
	cp.Context = make(map[string]string, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}
