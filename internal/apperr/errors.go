package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code identifies a failure class that callers can branch on.
type Code string

const (
	ErrInvalidRequest     Code = "INVALID_REQUEST"     // 400
	ErrNotFound           Code = "NOT_FOUND"           // 404
	ErrLinkInvalid        Code = "LINK_INVALID"        // 404
	ErrNoContentIndexed   Code = "NO_CONTENT_INDEXED"  // 409
	ErrUnsupportedKind    Code = "UNSUPPORTED_KIND"    // 422
	ErrExtractionFailed   Code = "EXTRACTION_FAILED"   // 422
	ErrSiteBlocked        Code = "SITE_BLOCKED"        // 422
	ErrRateLimited        Code = "RATE_LIMITED"        // 429
	ErrIndexFailed        Code = "INDEX_FAILED"        // 502
	ErrChatFailed         Code = "CHAT_FAILED"         // 502
	ErrServiceUnavailable Code = "SERVICE_UNAVAILABLE" // 503
	ErrInternal           Code = "INTERNAL"            // 500
)

// Messages shown to visitors and owners. Internal detail never goes here.
const (
	MsgLinkInvalid        = "This link is invalid or has been revoked."
	MsgNoContentIndexed   = "No documents have been indexed for this space yet."
	MsgRateLimited        = "Too many requests. Please wait a moment and try again."
	MsgServiceUnavailable = "The assistant is temporarily unavailable."
	MsgChatFailed         = "Something went wrong. Please try again."
	MsgIndexFailed        = "failed to index file"
	MsgIndexCreateFailed  = "failed to create knowledge index"
	MsgIndexUploadFailed  = "failed to upload file for indexing"
	MsgChunkStoreFailed   = "failed to store document chunks"
	MsgSiteBlocked        = "This site blocks automated access."
	MsgNoMeaningfulText   = "Could not extract meaningful content."
)

// AppError is a classified failure with a user-facing message and the
// underlying cause kept for logs.
type AppError struct {
	Code    Code
	Status  int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newErr(code Code, status int, msg string, cause error) *AppError {
	return &AppError{Code: code, Status: status, Message: msg, Err: cause}
}

func NewInvalidRequest(msg string) *AppError {
	return newErr(ErrInvalidRequest, http.StatusBadRequest, msg, nil)
}

func NewNotFound(what string) *AppError {
	return newErr(ErrNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", what), nil)
}

func NewLinkInvalid() *AppError {
	return newErr(ErrLinkInvalid, http.StatusNotFound, MsgLinkInvalid, nil)
}

func NewNoContentIndexed() *AppError {
	return newErr(ErrNoContentIndexed, http.StatusConflict, MsgNoContentIndexed, nil)
}

func NewUnsupportedKind(kind string) *AppError {
	return newErr(ErrUnsupportedKind, http.StatusUnprocessableEntity, fmt.Sprintf("unsupported document type: %s", kind), nil)
}

// NewExtractionFailed carries a message that is persisted on the document row.
func NewExtractionFailed(msg string, cause error) *AppError {
	return newErr(ErrExtractionFailed, http.StatusUnprocessableEntity, msg, cause)
}

func NewSiteBlocked(cause error) *AppError {
	return newErr(ErrSiteBlocked, http.StatusUnprocessableEntity, MsgSiteBlocked, cause)
}

func NewRateLimited(cause error) *AppError {
	return newErr(ErrRateLimited, http.StatusTooManyRequests, MsgRateLimited, cause)
}

func NewIndexFailed(cause error) *AppError {
	return newErr(ErrIndexFailed, http.StatusBadGateway, MsgIndexFailed, cause)
}

func NewIndexCreateFailed(cause error) *AppError {
	return newErr(ErrIndexFailed, http.StatusBadGateway, MsgIndexCreateFailed, cause)
}

func NewIndexUploadFailed(cause error) *AppError {
	return newErr(ErrIndexFailed, http.StatusBadGateway, MsgIndexUploadFailed, cause)
}

func NewChunkStoreFailed(cause error) *AppError {
	return newErr(ErrInternal, http.StatusInternalServerError, MsgChunkStoreFailed, cause)
}

func NewChatFailed(cause error) *AppError {
	return newErr(ErrChatFailed, http.StatusBadGateway, MsgChatFailed, cause)
}

func NewServiceUnavailable(cause error) *AppError {
	return newErr(ErrServiceUnavailable, http.StatusServiceUnavailable, MsgServiceUnavailable, cause)
}

func NewInternal(err error) *AppError {
	return newErr(ErrInternal, http.StatusInternalServerError, "internal error", err)
}

// Is checks if err (or anything it wraps) is an AppError with the given code.
func Is(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// StatusOf maps err to an HTTP status, 500 for unclassified errors.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the user-facing message for err.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// CodeOf returns the code for err, ErrInternal for unclassified errors.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// ClassifyMessage sorts an upstream model error into the chat taxonomy by
// matching its text. Best-effort: it exists only for providers that do not
// expose structured error codes. Patterns, checked in order:
//
//	quota, billing, insufficient, api key, permission denied, unauthenticated -> SERVICE_UNAVAILABLE
//	429, rate limit, resource_exhausted, too many requests                     -> RATE_LIMITED
//	anything else                                                              -> CHAT_FAILED
//
// Quota is checked first because providers report exhausted quota as 429 too.
func ClassifyMessage(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{"quota", "billing", "insufficient", "api key", "api_key", "permission denied", "unauthenticated"} {
		if strings.Contains(msg, p) {
			return NewServiceUnavailable(err)
		}
	}
	for _, p := range []string{"429", "rate limit", "resource_exhausted", "resource exhausted", "too many requests"} {
		if strings.Contains(msg, p) {
			return NewRateLimited(err)
		}
	}
	return NewChatFailed(err)
}
