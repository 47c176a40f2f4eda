package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// mockVerifier accepts exactly one token.
type mockVerifier struct {
	token  string
	claims *Claims
}

func (m *mockVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	if token != m.token {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "bad token")
	}
	return m.claims, nil
}

func newMockVerifier() *mockVerifier {
	c := &Claims{UniqueName: "alice", Email: "alice@example.com"}
	c.Subject = "42"
	return &mockVerifier{token: "good-token", claims: c}
}

func TestExtractBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc":  "abc",
		"BEARER  abc": "abc",
		"Basic abc":   "",
		"Bearer ":     "",
		"":            "",
		"abc":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractBearerToken(in), in)
	}
}

func TestClaimsFromContext(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	_, ok = ClaimsFromContext(ContextWithClaims(context.Background(), nil))
	assert.False(t, ok)

	want := &Claims{UniqueName: "bob"}
	got, ok := ClaimsFromContext(ContextWithClaims(context.Background(), want))
	require.True(t, ok)
	assert.Same(t, want, got)
}

func TestHTTPMiddleware(t *testing.T) {
	verifier := newMockVerifier()

	var seen *Claims
	handler := HTTPMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer good-token", want: http.StatusNoContent},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good-token", want: http.StatusUnauthorized},
		{name: "rejected token", header: "Bearer forged", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "alice", seen.UniqueName)
			} else {
				assert.Nil(t, seen)
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	interceptor := UnaryServerInterceptor(newMockVerifier())

	tests := []struct {
		name string
		ctx  context.Context
		ok   bool
	}{
		{name: "valid", ctx: metadata.NewIncomingContext(context.Background(), metadata.Pairs(HeaderAuthorization, "Bearer good-token")), ok: true},
		{name: "no metadata", ctx: context.Background()},
		{name: "no authorization", ctx: metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-other", "1"))},
		{name: "bad format", ctx: metadata.NewIncomingContext(context.Background(), metadata.Pairs(HeaderAuthorization, "good-token"))},
		{name: "rejected", ctx: metadata.NewIncomingContext(context.Background(), metadata.Pairs(HeaderAuthorization, "Bearer forged"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			resp, err := interceptor(tt.ctx, "req", &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
				called = true
				claims, ok := ClaimsFromContext(ctx)
				require.True(t, ok)
				assert.Equal(t, "42", claims.Subject)
				return "resp", nil
			})

			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, "resp", resp)
				assert.True(t, called)
				return
			}
			assert.False(t, called)
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, codes.Unauthenticated, st.Code())
		})
	}
}

type testServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *testServerStream) Context() context.Context { return s.ctx }

func TestStreamServerInterceptor(t *testing.T) {
	interceptor := StreamServerInterceptor(newMockVerifier())
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(HeaderAuthorization, "Bearer good-token"))

	err := interceptor(nil, &testServerStream{ctx: ctx}, &grpc.StreamServerInfo{}, func(_ any, ss grpc.ServerStream) error {
		claims, ok := ClaimsFromContext(ss.Context())
		require.True(t, ok)
		assert.Equal(t, "alice", claims.UniqueName)
		return nil
	})
	require.NoError(t, err)

	err = interceptor(nil, &testServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{}, func(any, grpc.ServerStream) error {
		t.Error("handler must not run without credentials")
		return nil
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
