package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAsError(t *testing.T) {
	inner := ConflictUsernameTaken()
	wrapped := fmt.Errorf("signup: %w", inner)

	got, ok := AsError(wrapped)
	if !ok || got != inner {
		t.Fatalf("AsError() = %v, %v", got, ok)
	}

	if _, ok := AsError(errors.New("plain")); ok {
		t.Error("AsError should return false for a standard error")
	}
	if _, ok := AsError(nil); ok {
		t.Error("AsError should return false for nil")
	}
}

func TestCategoryChecks(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{name: "required is validation", err: Required("idToken"), check: IsValidation, want: true},
		{name: "missing subject is authentication", err: MissingSubject(), check: IsAuthentication, want: true},
		{name: "missing subject detected", err: MissingSubject(), check: IsMissingSubject, want: true},
		{name: "invalid token is not missing subject", err: InvalidToken(), check: IsMissingSubject, want: false},
		{name: "username taken is conflict", err: ConflictUsernameTaken(), check: IsConflict, want: true},
		{name: "external login is conflict", err: ConflictExternalLogin(), check: IsConflict, want: true},
		{name: "key fetch detected", err: KeyFetch(nil, "u"), check: IsKeyFetch, want: true},
		{name: "key fetch is unavailable", err: KeyFetch(nil, "u"), check: IsUnavailable, want: true},
		{name: "key fetch is not authentication", err: KeyFetch(nil, "u"), check: IsAuthentication, want: false},
		{name: "key fetch is retryable", err: KeyFetch(nil, "u"), check: IsRetryable, want: true},
		{name: "conflict is not retryable", err: ConflictEmailTaken(), check: IsRetryable, want: false},
		{name: "database is server error", err: New(CodeInternalDatabase, "x"), check: IsServerError, want: true},
		{name: "auth is not server error", err: InvalidCredentials(), check: IsServerError, want: false},
		{name: "timeout", err: New(CodeTimeoutDatabase, "x"), check: IsTimeout, want: true},
		{name: "not found", err: NotFound("x"), check: IsNotFound, want: true},
		{name: "internal", err: Internal("x"), check: IsInternal, want: true},
		{name: "standard error", err: errors.New("x"), check: IsConflict, want: false},
		{name: "nil", err: nil, check: IsAuthentication, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.want {
				t.Errorf("check(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil) != nil {
		t.Error("FromError(nil) should be nil")
	}

	e := ConflictEmailTaken()
	if FromError(fmt.Errorf("wrapped: %w", e)) != e {
		t.Error("FromError should return the *Error in the chain")
	}

	got := FromError(errors.New("raw"))
	if got.Code != CodeInternal || got.Cause == nil {
		t.Errorf("FromError(raw) = %+v", got)
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, CodeInternal, "x") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, CodeInternal, "x %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}
