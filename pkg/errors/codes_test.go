package errors

import (
	"net/http"
	"testing"
)

func TestCode_Category(t *testing.T) {
	tests := []struct {
		name string
		code Code
		want string
	}{
		{name: "validation", code: CodeValidationRequired, want: "VAL"},
		{name: "authentication", code: CodeAuthenticationMissingSubject, want: "AUTH"},
		{name: "not found", code: CodeNotFoundUser, want: "NF"},
		{name: "conflict", code: CodeConflictEmailTaken, want: "CONF"},
		{name: "internal", code: CodeInternalDatabase, want: "INT"},
		{name: "unavailable", code: CodeUnavailableKeySet, want: "UNAVAIL"},
		{name: "timeout", code: CodeTimeoutDatabase, want: "TIMEOUT"},
		{name: "no separator", code: Code("PLAIN"), want: "PLAIN"},
		{name: "empty", code: Code(""), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code.Category(); got != tt.want {
				t.Errorf("Code.Category() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{name: "missing token field", err: Required("idToken"), want: http.StatusBadRequest},
		{name: "invalid credentials", err: InvalidCredentials(), want: http.StatusUnauthorized},
		{name: "invalid token", err: InvalidToken(), want: http.StatusUnauthorized},
		{name: "missing subject", err: MissingSubject(), want: http.StatusUnauthorized},
		{name: "user not found", err: New(CodeNotFoundUser, "user not found"), want: http.StatusNotFound},
		{name: "username taken", err: ConflictUsernameTaken(), want: http.StatusConflict},
		{name: "email taken", err: ConflictEmailTaken(), want: http.StatusConflict},
		{name: "external login linked", err: ConflictExternalLogin(), want: http.StatusConflict},
		{name: "database", err: New(CodeInternalDatabase, "boom"), want: http.StatusInternalServerError},
		{name: "key fetch", err: KeyFetch(nil, "https://keys"), want: http.StatusServiceUnavailable},
		{name: "database timeout", err: New(CodeTimeoutDatabase, "slow"), want: http.StatusGatewayTimeout},
		{name: "unknown category", err: New(Code("WAT_001"), "?"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
