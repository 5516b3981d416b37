package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_IssueAndParse(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Issue(Identity{UserID: "ana", DisplayName: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)

	id, err := v.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "ana", id.UserID)
	assert.Equal(t, "Ana", id.DisplayName)
	assert.True(t, id.Authenticated())
}

func TestVerifier_RejectsForeignSecretAndExpiry(t *testing.T) {
	token, err := NewVerifier("other-secret").Issue(Identity{UserID: "ana"})
	require.NoError(t, err)
	_, err = NewVerifier("test-secret").Parse(token)
	assert.Error(t, err)

	v := NewVerifier("test-secret")
	token, err = v.Issue(Identity{UserID: "ana"})
	require.NoError(t, err)
	v.Now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, err = v.Parse(token)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("test-secret")
	var seen Identity
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	// Anonymous requests pass through.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, seen.Authenticated())

	token, err := v.Issue(Identity{UserID: "ben"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "ben", seen.UserID)

	req = httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":{"code":"UNAUTHENTICATED","message":"invalid token"}}`, rec.Body.String())
}
