package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// MalformedPacket indicates a frame that could not be decoded
	MalformedPacket ErrorCode = "MALFORMED_PACKET"
	// UnknownPacket indicates a packet id missing from the registry
	UnknownPacket ErrorCode = "UNKNOWN_PACKET"
	// ParentKindMismatch indicates an entry whose parent has the wrong kind
	ParentKindMismatch ErrorCode = "PARENT_KIND_MISMATCH"
	// StringTooLong indicates a string exceeding the u16 length prefix
	StringTooLong ErrorCode = "STRING_TOO_LONG"
	// NotLoggedIn indicates a packet sent before the login handshake
	NotLoggedIn ErrorCode = "NOT_LOGGED_IN"
	// AlreadyLoggedIn indicates a second login on the same connection
	AlreadyLoggedIn ErrorCode = "ALREADY_LOGGED_IN"
	// EntryLocked indicates an edit on an entry held by another session
	EntryLocked ErrorCode = "ENTRY_LOCKED"
	// ValidationFailed indicates an edit rejected by the validation policy
	ValidationFailed ErrorCode = "VALIDATION_FAILED"
	// UsernameTaken indicates a login with a name already in use
	UsernameTaken ErrorCode = "USERNAME_TAKEN"
	// VersionMismatch indicates a client speaking another protocol version
	VersionMismatch ErrorCode = "VERSION_MISMATCH"
	// TransportFailure indicates a read, write or disconnect failure
	TransportFailure ErrorCode = "TRANSPORT_FAILURE"
	// SendQueueFull indicates a session that stopped draining its queue
	SendQueueFull ErrorCode = "SEND_QUEUE_FULL"
	// Kicked indicates the server closed the session with a reason
	Kicked ErrorCode = "KICKED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Category groups error codes by how they are handled.
type Category string

const (
	CategoryProtocol   Category = "protocol"
	CategoryPermission Category = "permission"
	CategoryValidation Category = "validation"
	CategoryLogin      Category = "login"
	CategoryTransport  Category = "transport"
	CategoryInternal   Category = "internal"
)

var categories = map[ErrorCode]Category{
	MalformedPacket:    CategoryProtocol,
	UnknownPacket:      CategoryProtocol,
	ParentKindMismatch: CategoryProtocol,
	StringTooLong:      CategoryProtocol,
	NotLoggedIn:        CategoryProtocol,
	AlreadyLoggedIn:    CategoryProtocol,
	EntryLocked:        CategoryPermission,
	ValidationFailed:   CategoryValidation,
	UsernameTaken:      CategoryLogin,
	VersionMismatch:    CategoryLogin,
	TransportFailure:   CategoryTransport,
	SendQueueFull:      CategoryTransport,
	Kicked:             CategoryTransport,
	InternalError:      CategoryInternal,
}

// Category returns the handling category of a code.
func (c ErrorCode) Category() Category {
	if cat, ok := categories[c]; ok {
		return cat
	}
	return CategoryInternal
}

// SyncError represents a mapsync error with code, message and optional details
type SyncError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new SyncError
func New(code ErrorCode, message string, cause error) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new SyncError with a formatted message and no cause
func Newf(code ErrorCode, format string, args ...interface{}) *SyncError {
	return &SyncError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *SyncError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *SyncError) WithDetails(details interface{}) *SyncError {
	e.Details = details
	return e
}

// CodeOf extracts the error code from err, or InternalError when err
// does not wrap a SyncError. A nil error has no code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var se *SyncError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return InternalError
}

// Is reports whether err wraps a SyncError with the given code.
func Is(err error, code ErrorCode) bool {
	var se *SyncError
	return stderrors.As(err, &se) && se.Code == code
}

// IsProtocol reports whether err is fatal to the connection that produced it.
func IsProtocol(err error) bool {
	var se *SyncError
	return stderrors.As(err, &se) && se.Code.Category() == CategoryProtocol
}

// Protocol wraps a decode failure as a malformed-packet protocol error.
func Protocol(message string, cause error) *SyncError {
	var se *SyncError
	if stderrors.As(cause, &se) && se.Code.Category() == CategoryProtocol {
		return se
	}
	return New(MalformedPacket, message, cause)
}

// Transport wraps an I/O failure.
func Transport(message string, cause error) *SyncError {
	return New(TransportFailure, message, cause)
}
