package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthHandler_GetAuthStatus(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodGet, "/api/v1/auth/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"is_authenticated":true,"email":"me@example.com","display_name":"Me"}`, rr.Body.String())

	f.auth.SetAuthenticated(false)
	rr = f.do(http.MethodGet, "/api/v1/auth/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"is_authenticated":false}`, rr.Body.String())
}

func TestAuthHandler_LoginFlow(t *testing.T) {
	f := newFixture(t)
	f.auth.SetAuthenticated(false)

	rr := f.do(http.MethodGet, "/api/v1/auth/login", "")
	require.Equal(t, http.StatusFound, rr.Code)

	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, stateCookie, cookies[0].Name)
	assert.Equal(t, state, cookies[0].Value)

	callback := func(query string, withCookie bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/callback?"+query, nil)
		if withCookie {
			req.AddCookie(cookies[0])
		}
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("rejects missing cookie", func(t *testing.T) {
		rr := callback("state="+state+"&code=abc", false)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, f.flow.codes)
	})

	t.Run("rejects mismatched state", func(t *testing.T) {
		rr := callback("state=forged&code=abc", true)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, f.flow.codes)
	})

	t.Run("reports declined consent", func(t *testing.T) {
		rr := callback("state="+state+"&error=access_denied", true)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("reports exchange failure", func(t *testing.T) {
		f.flow.loginFn = func(string) error { return errors.New("bad code") }
		defer func() { f.flow.loginFn = nil }()

		rr := callback("state="+state+"&code=stale", true)
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.False(t, f.auth.IsAuthenticated())
	})

	t.Run("exchanges the code", func(t *testing.T) {
		rr := callback("state="+state+"&code=abc", true)
		assert.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "/", rr.Header().Get("Location"))
		assert.Contains(t, f.flow.codes, "abc")
		assert.True(t, f.auth.IsAuthenticated())
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/api/v1/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, f.auth.IsAuthenticated())
}
