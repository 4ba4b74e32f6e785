package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"crm-service/internal/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_Success(t *testing.T) {
	db := setupTestDB(t)
	jwtUtil := setupTestJWT(t)
	user := createTestUser(t, db, "alice@example.com", "correct-horse")

	c, rec := newJSONContext(t, http.MethodPost, "/auth/login",
		`{"email":"alice@example.com","password":"correct-horse"}`)
	require.NoError(t, Login(c))
	requireJSONStatus(t, rec, http.StatusOK)

	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID    uint   `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.Equal(t, "alice@example.com", resp.User.Email)

	// The token must resolve back to the same subject
	claims, err := jwtUtil.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	// A session cookie is set for browser clients
	cookies := rec.Result().Cookies()
	var found bool
	for _, ck := range cookies {
		if ck.Name == middleware.SessionCookieName {
			found = true
			assert.Equal(t, resp.Token, ck.Value)
			assert.True(t, ck.HttpOnly)
		}
	}
	assert.True(t, found, "session cookie not set")
}

func TestLogin_UnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	db := setupTestDB(t)
	setupTestJWT(t)
	createTestUser(t, db, "alice@example.com", "correct-horse")

	c1, rec1 := newJSONContext(t, http.MethodPost, "/auth/login",
		`{"email":"nobody@example.com","password":"whatever"}`)
	require.NoError(t, Login(c1))

	c2, rec2 := newJSONContext(t, http.MethodPost, "/auth/login",
		`{"email":"alice@example.com","password":"wrong-password"}`)
	require.NoError(t, Login(c2))

	assert.Equal(t, http.StatusUnauthorized, rec1.Code)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)
	// Identical bodies so callers cannot probe which accounts exist
	assert.Equal(t, rec1.Body.String(), rec2.Body.String())
}

func TestLogin_EmailIsCaseSensitive(t *testing.T) {
	db := setupTestDB(t)
	setupTestJWT(t)
	createTestUser(t, db, "alice@example.com", "correct-horse")

	c, rec := newJSONContext(t, http.MethodPost, "/auth/login",
		`{"email":"Alice@Example.com","password":"correct-horse"}`)
	require.NoError(t, Login(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_MissingFields(t *testing.T) {
	setupTestDB(t)
	setupTestJWT(t)

	for _, body := range []string{
		`{"email":"","password":"secret"}`,
		`{"email":"alice@example.com","password":""}`,
		`{}`,
	} {
		c, rec := newJSONContext(t, http.MethodPost, "/auth/login", body)
		require.NoError(t, Login(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
	}
}

func TestLogout_ClearsSessionCookie(t *testing.T) {
	c, rec := newJSONContext(t, http.MethodPost, "/auth/logout", "")
	require.NoError(t, Logout(c))
	requireJSONStatus(t, rec, http.StatusOK)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	var cleared bool
	for _, ck := range cookies {
		if ck.Name == middleware.SessionCookieName {
			cleared = ck.MaxAge < 0 && ck.Value == ""
		}
	}
	assert.True(t, cleared, "session cookie not cleared")
}

func TestGetProfile_ReturnsCurrentAccount(t *testing.T) {
	db := setupTestDB(t)
	setupTestJWT(t)
	user := createTestUser(t, db, "alice@example.com", "correct-horse")

	c, rec := newAuthedContext(t, user.ID, http.MethodGet, "/api/me", "")
	require.NoError(t, GetProfile(c))
	requireJSONStatus(t, rec, http.StatusOK)

	var got struct {
		ID    uint   `json:"id"`
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.Email, got.Email)
	// The password hash must never serialize
	assert.NotContains(t, rec.Body.String(), "password")
}
