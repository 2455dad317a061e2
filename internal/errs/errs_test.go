package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindIsRetryable(t *testing.T) {
	tests := []struct {
		kind      Kind
		retryable bool
	}{
		{KindToolTimeout, true},
		{KindRequestTimeout, true},
		{KindConnectionReset, true},
		{KindInvalidInput, false},
		{KindUnknownResource, false},
		{KindTransferDenied, false},
		{KindAuthRejected, false},
		{KindPayloadTooLarge, false},
		{KindPersistenceError, false},
		{KindInternal, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.IsRetryable(); got != tt.retryable {
				t.Errorf("Kind(%s).IsRetryable() = %v, want %v", tt.kind, got, tt.retryable)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	e := New(KindInvalidInput, "agent_name is required")
	if got, want := e.Error(), "[invalid_input] agent_name is required"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorMessageFallsBackToCause(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(KindInternal, cause, "")
	if got, want := e.Error(), "[internal] boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection lost")
	e := Wrap(KindConnectionReset, cause, "ha client reconnecting")
	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if got := errors.Unwrap(e); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestErrorRetryable(t *testing.T) {
	e := New(KindToolTimeout, "handler exceeded timeout")
	if !e.Retryable() {
		t.Error("expected ToolTimeout error to be retryable")
	}
	e2 := New(KindTransferDenied, "scout cannot transfer to axel")
	if e2.Retryable() {
		t.Error("expected TransferDenied error to not be retryable")
	}
}

func TestClassifyReturnsExistingKind(t *testing.T) {
	e := New(KindAuthRejected, "ha rejected the access token")
	wrapped := fmt.Errorf("dial: %w", e)
	if got := Classify(wrapped); got != KindAuthRejected {
		t.Errorf("Classify() = %q, want %q", got, KindAuthRejected)
	}
}

func TestClassifyInfersFromMessage(t *testing.T) {
	tests := []struct {
		message string
		want    Kind
	}{
		{"request timed out after 10s", KindToolTimeout},
		{"context deadline exceeded", KindToolTimeout},
		{"session not found", KindUnknownResource},
		{"unknown agent axel", KindUnknownResource},
		{"payload too large for frame", KindPayloadTooLarge},
		{"invalid input: missing field", KindInvalidInput},
		{"required field missing", KindInvalidInput},
		{"connection reset by peer", KindConnectionReset},
		{"websocket closed unexpectedly", KindConnectionReset},
		{"unauthorized: bad token", KindAuthRejected},
		{"auth_invalid from hub", KindAuthRejected},
		{"something unexpected happened", KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := Classify(errors.New(tt.message)); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.message, got, tt.want)
			}
		})
	}
}

func TestClassifyNilError(t *testing.T) {
	if got := Classify(nil); got != KindInternal {
		t.Errorf("Classify(nil) = %q, want %q", got, KindInternal)
	}
}

func TestIs(t *testing.T) {
	err := New(KindUnknownResource, "entity not found")
	if !Is(err, KindUnknownResource) {
		t.Error("expected Is to match the classified kind")
	}
	if Is(err, KindInternal) {
		t.Error("expected Is to reject a non-matching kind")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindInvalidInput, 400},
		{KindPayloadTooLarge, 400},
		{KindUnknownResource, 404},
		{KindRequestTimeout, 504},
		{KindToolTimeout, 504},
		{KindAuthRejected, 401},
		{KindInternal, 500},
		{KindTransferDenied, 500},
		{KindConnectionReset, 500},
		{KindPersistenceError, 500},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := HTTPStatus(tt.kind); got != tt.want {
				t.Errorf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}
