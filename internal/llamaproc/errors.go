package llamaproc

import "fmt"

// Kind enumerates the error categories surfaced by installation, the
// supervisor, and the completions client. Each is returned to the direct
// caller. Detection treats every error from a probe, of any kind, as
// "config infeasible" and keeps searching; it does not propagate probe
// errors of other kinds than StartFailed, Timeout and ProtocolError either.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindInvalidArgument  Kind = "invalid_argument"
	KindStartFailed      Kind = "start_failed"
	KindTimeout          Kind = "timeout"
	KindProtocolError    Kind = "protocol_error"
	KindVersionMismatch  Kind = "version_mismatch"
	KindParse            Kind = "parse"
)

// Error wraps an underlying cause with a Kind so callers can branch on
// category without string-matching messages.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind carried by err, or "" if err does not wrap one.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return ""
	}
	return e.Kind
}

// IsProbeFailure reports whether err is of a probe-failure kind
// (StartFailed, Timeout, ProtocolError). The detection engine does not call
// it: it counts every probe error as a failed probe.
func IsProbeFailure(err error) bool {
	switch KindOf(err) {
	case KindStartFailed, KindTimeout, KindProtocolError:
		return true
	default:
		return false
	}
}
