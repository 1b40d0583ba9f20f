// Package errors tests for error code definitions and error handling.
package errors

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

// TestErrorCodeValues verifies all error codes have non-empty values.
func TestErrorCodeValues(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
	}{
		// General errors
		{"internal", ErrInternal},
		{"invalid", ErrInvalid},
		{"not found", ErrNotFound},
		{"validation", ErrValidation},

		// Local storage errors
		{"storage", ErrStorage},
		{"storage not initialized", ErrStorageNotInitialized},
		{"migration", ErrMigration},

		// Remote system errors
		{"remote", ErrRemote},
		{"remote unavailable", ErrRemoteUnavailable},
		{"remote auth failed", ErrRemoteAuthFailed},
		{"upload failed", ErrUploadFailed},

		// Queue and sync errors
		{"queue", ErrQueue},
		{"sync failed", ErrSyncFailed},
		{"unsupported operation", ErrUnsupportedOperation},

		// Domain errors
		{"order not found", ErrOrderNotFound},
		{"item not found", ErrItemNotFound},
		{"menu item not found", ErrMenuItemNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code == "" {
				t.Errorf("error code for %q is empty", tt.name)
			}
		})
	}
}

// TestAppError_Error verifies error message formatting.
func TestAppError_Error(t *testing.T) {
	err := New(ErrStorage, "write rejected")
	if got := err.Error(); got != "[STORAGE_ERROR] write rejected" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := Wrap(ErrRemote, "insert failed", io.ErrUnexpectedEOF)
	msg := wrapped.Error()
	if !strings.Contains(msg, "REMOTE_ERROR") || !strings.Contains(msg, "unexpected EOF") {
		t.Errorf("Error() = %q, want code and cause", msg)
	}
}

// TestAppError_Unwrap verifies errors.Is works through AppError.
func TestAppError_Unwrap(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	wrapped := Wrap(ErrRemote, "insert failed", cause)

	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is() should find the wrapped cause")
	}
}

// TestIs verifies code matching, including through fmt.Errorf wrapping.
func TestIs(t *testing.T) {
	err := New(ErrStorageNotInitialized, "store not initialized")

	if !Is(err, ErrStorageNotInitialized) {
		t.Error("Is() = false for matching code")
	}
	if Is(err, ErrRemote) {
		t.Error("Is() = true for non-matching code")
	}

	deep := fmt.Errorf("enqueue: %w", err)
	if !Is(deep, ErrStorageNotInitialized) {
		t.Error("Is() should match through fmt.Errorf wrapping")
	}

	if Is(nil, ErrStorage) {
		t.Error("Is(nil) should be false")
	}
	if Is(io.EOF, ErrStorage) {
		t.Error("Is() should be false for plain errors")
	}
}

// TestCodeOf verifies code extraction.
func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(ErrQueue, "boom")); got != ErrQueue {
		t.Errorf("CodeOf() = %s, want %s", got, ErrQueue)
	}
	if got := CodeOf(fmt.Errorf("outer: %w", New(ErrRemote, "boom"))); got != ErrRemote {
		t.Errorf("CodeOf() = %s, want %s", got, ErrRemote)
	}
	if got := CodeOf(io.EOF); got != ErrInternal {
		t.Errorf("CodeOf(plain) = %s, want %s", got, ErrInternal)
	}
}
