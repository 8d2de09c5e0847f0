package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type OperationErrorCode string

const (
	OperationErrorValidation         OperationErrorCode = "validation_failed"
	OperationErrorUnsupportedFilter  OperationErrorCode = "unsupported_filter"
	OperationErrorEncodeFailed       OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed       OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed    OperationErrorCode = "transport_failed"
	OperationErrorTimeout            OperationErrorCode = "timeout"
	OperationErrorQueryFailed        OperationErrorCode = "query_failed"
	OperationErrorCollectionMismatch OperationErrorCode = "collection_mismatch"
)

type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "qdrant operation failed"
	}
	detail := e.Message
	if detail == "" && e.Cause != nil {
		detail = e.Cause.Error()
	}
	if detail == "" {
		return fmt.Sprintf("qdrant %s failed (code=%s status=%d)", e.Operation, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("qdrant %s failed (code=%s status=%d): %s", e.Operation, e.Code, e.StatusCode, detail)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// HTTPStatusCode lets httpx retry helpers classify qdrant failures.
func (e *OperationError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{Code: code, Operation: op, Message: msg, Cause: cause}
}

func classifyHTTPCallError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, "request timed out", err)
	}
	return opErr(op, OperationErrorTransportFailed, "request failed", err)
}
