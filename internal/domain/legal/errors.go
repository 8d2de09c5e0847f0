package legal

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindConfiguration     ErrorKind = "configuration"
	KindExtraction        ErrorKind = "extraction"
	KindContentTooShort   ErrorKind = "content_too_short"
	KindProviderRateLimit ErrorKind = "provider_rate_limit"
	KindProviderAuth      ErrorKind = "provider_auth"
	KindNetwork           ErrorKind = "network"
	KindVectorIndex       ErrorKind = "vector_index"
	KindDuplicateSource   ErrorKind = "duplicate_source"
	KindNotFound          ErrorKind = "not_found"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrExtraction        = errors.New("extraction failed")
	ErrContentTooShort   = errors.New("content too short")
	ErrProviderRateLimit = errors.New("provider rate limited")
	ErrProviderAuth      = errors.New("provider auth failed")
	ErrNetwork           = errors.New("network error")
	ErrVectorIndex       = errors.New("vector index error")
	ErrDuplicateSource   = errors.New("source already ingested")
	ErrNotFound          = errors.New("not found")
)

var kindSentinels = map[ErrorKind]error{
	KindConfiguration:     ErrConfiguration,
	KindExtraction:        ErrExtraction,
	KindContentTooShort:   ErrContentTooShort,
	KindProviderRateLimit: ErrProviderRateLimit,
	KindProviderAuth:      ErrProviderAuth,
	KindNetwork:           ErrNetwork,
	KindVectorIndex:       ErrVectorIndex,
	KindDuplicateSource:   ErrDuplicateSource,
	KindNotFound:          ErrNotFound,
}

// Error carries a failure kind plus the operation that produced it.
// errors.Is matches both the kind sentinel and the wrapped cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if s, ok := kindSentinels[e.Kind]; ok {
		msg = s.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in the chain.
func KindOf(err error) (ErrorKind, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return "", false
}
