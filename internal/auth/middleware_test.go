package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRequireToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	guarded := RequireToken("s3cret", zerolog.Nop())(ok)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"valid bearer token", "Bearer s3cret", "", http.StatusOK},
		{"scheme is case-insensitive", "bearer s3cret", "", http.StatusOK},
		{"query parameter", "", "?access_token=s3cret", http.StatusOK},
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", "", http.StatusUnauthorized},
		{"missing token", "Bearer ", "", http.StatusUnauthorized},
		{"bare token", "s3cret", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			guarded.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}

	t.Run("empty token disables the check", func(t *testing.T) {
		rr := httptest.NewRecorder()
		RequireToken("", zerolog.Nop())(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
