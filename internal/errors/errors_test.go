package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("underlying error")

	err := New(MalformedPacket, "short read", cause)

	if err.Code != MalformedPacket {
		t.Errorf("Code = %v, want %v", err.Code, MalformedPacket)
	}
	if err.Message != "short read" {
		t.Errorf("Message = %q, want %q", err.Message, "short read")
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
}

func TestSyncError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      TransportFailure,
			message:   "write frame",
			cause:     errors.New("broken pipe"),
			wantParts: []string{"TRANSPORT_FAILURE", "write frame", "broken pipe"},
		},
		{
			name:      "without cause",
			code:      EntryLocked,
			message:   "entry a.b.C is locked",
			cause:     nil,
			wantParts: []string{"ENTRY_LOCKED", "entry a.b.C is locked"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.code, tt.message, tt.cause).Error()

			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestSyncError_WithDetails(t *testing.T) {
	err := Newf(ValidationFailed, "%d problems", 2)
	details := []string{"invalid identifier", "name collision"}

	result := err.WithDetails(details)

	// Check that it returns the same error (for chaining)
	if result != err {
		t.Error("WithDetails should return the same error for chaining")
	}
	if err.Details == nil {
		t.Error("Details should be set")
	}
	if err.Message != "2 problems" {
		t.Errorf("Message = %q, want %q", err.Message, "2 problems")
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("reading session: %w", New(UnknownPacket, "id 42", nil))

	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), InternalError},
		{"direct", New(StringTooLong, "too long", nil), StringTooLong},
		{"wrapped", wrapped, UnknownPacket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsProtocol(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{MalformedPacket, true},
		{UnknownPacket, true},
		{ParentKindMismatch, true},
		{StringTooLong, true},
		{NotLoggedIn, true},
		{AlreadyLoggedIn, true},
		{EntryLocked, false},
		{ValidationFailed, false},
		{TransportFailure, false},
		{UsernameTaken, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := fmt.Errorf("ctx: %w", New(tt.code, "x", nil))
			if got := IsProtocol(err); got != tt.want {
				t.Errorf("IsProtocol(%v) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}

	if IsProtocol(errors.New("plain")) {
		t.Error("IsProtocol should be false for errors without a code")
	}
}

func TestProtocol(t *testing.T) {
	inner := New(ParentKindMismatch, "field requires class parent", nil)
	if got := Protocol("decode", inner); got != inner {
		t.Errorf("Protocol() should keep an existing protocol error, got %v", got)
	}

	got := Protocol("decode", errors.New("unexpected EOF"))
	if got.Code != MalformedPacket {
		t.Errorf("Code = %v, want %v", got.Code, MalformedPacket)
	}
}

func TestErrorCodes(t *testing.T) {
	// Ensure all error codes are unique and categorized
	codes := []ErrorCode{
		MalformedPacket,
		UnknownPacket,
		ParentKindMismatch,
		StringTooLong,
		NotLoggedIn,
		AlreadyLoggedIn,
		EntryLocked,
		ValidationFailed,
		UsernameTaken,
		VersionMismatch,
		TransportFailure,
		SendQueueFull,
		Kicked,
		InternalError,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %v", code)
		}
		seen[code] = true

		if string(code) == "" {
			t.Error("Error code should not be empty")
		}
		if _, ok := categories[code]; !ok {
			t.Errorf("Error code %v has no category", code)
		}
	}
}
