package errors_test

import (
	"errors"
	"testing"

	. "judgeworker/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "success"},
		{LanguageNotFound, "language not found in registry"},
		{InvalidParams, "invalid parameters"},
		{PasswordMismatch, "master password did not match"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_Fatal(t *testing.T) {
	if !PasswordMismatch.Fatal() {
		t.Error("PasswordMismatch should be fatal")
	}
	if ConnectionFailed.Fatal() {
		t.Error("ConnectionFailed should not be fatal")
	}
}

func TestNew(t *testing.T) {
	err := New(LanguageNotFound)

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Code != LanguageNotFound {
		t.Errorf("Code = %v, want %v", err.Code, LanguageNotFound)
	}
	if err.Error() != LanguageNotFound.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), LanguageNotFound.Message())
	}
}

func TestNewf(t *testing.T) {
	judgeID := "abc-123"
	err := Newf(NoActiveJudge, "no active judge %s", judgeID)

	want := "no active judge abc-123"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, ConnectionFailed)

	if wrappedErr.Code != ConnectionFailed {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, ConnectionFailed)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(InvalidParams).
		WithDetail("field", "time_limit").
		WithDetail("reason", "must be positive")

	if err.Details["field"] != "time_limit" {
		t.Error("Field detail not set correctly")
	}
	if err.Details["reason"] != "must be positive" {
		t.Error("Reason detail not set correctly")
	}
}

func TestError_WithMessage(t *testing.T) {
	customMsg := "custom error message"
	err := New(InternalError).WithMessage(customMsg)

	if err.Error() != customMsg {
		t.Errorf("Error() = %v, want %v", err.Error(), customMsg)
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(LanguageNotFound), want: LanguageNotFound},
		{name: "standard error", err: errors.New("standard error"), want: InternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(LanguageNotFound)

	if !Is(err, LanguageNotFound) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, ConnectionFailed) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, LanguageNotFound) {
		t.Error("Is() should return false for nil error")
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("email", "invalid format")
	if err.Code != InvalidParams {
		t.Error("ValidationError should use InvalidParams code")
	}
	if err.Details["field"] != "email" {
		t.Error("Field detail not set")
	}
}
