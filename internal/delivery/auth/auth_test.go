package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"rps_arena/internal/bootstrap"
	repo "rps_arena/internal/repository"
	"rps_arena/internal/store"
	authUC "rps_arena/internal/usecase/auth"
)

func newHandler(t *testing.T) *AuthHandler {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	clock := clockwork.NewFakeClock()
	s := store.NewMemoryStore()
	uc := authUC.NewUserUsecaseHandler(
		repo.NewAccountRepository(s, log),
		repo.NewProfileRepository(s, clock, log),
		repo.NewSessionMapStorage(time.Hour),
		clock, log)
	return NewAuthHandler(uc, &bootstrap.Config{SessionTTL: time.Hour}, log)
}

func post(h http.HandlerFunc, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func sessionCookieOf(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func decodeUserID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Status int
		Body   SessionResponse
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, rec.Code, resp.Status)
	return resp.Body.UserID
}

func TestRegisterLoginLogout(t *testing.T) {
	h := newHandler(t)

	rec := post(h.Register, "/register", `{"Username":"alice","Email":"alice@example.com","Password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookieOf(t, rec)
	assert.True(t, cookie.HttpOnly)
	uid := decodeUserID(t, rec)
	require.NotEmpty(t, uid)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookie)
	assert.Equal(t, uid, h.GetUserID(httptest.NewRecorder(), req))

	rec = post(h.Login, "/login", `{"Username":"alice@example.com","Password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uid, decodeUserID(t, rec))

	var loggedOut string
	h.OnLogout(func(_ context.Context, userID string) { loggedOut = userID })
	rec = post(h.Logout, "/logout", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uid, loggedOut)

	rec = httptest.NewRecorder()
	assert.Empty(t, h.GetUserID(rec, req))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterErrors(t *testing.T) {
	h := newHandler(t)

	rec := post(h.Register, "/register", `{"Username":"alice"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h.Register, "/register", `{"Username":"Al ice","Email":"a@example.com","Password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h.Register, "/register", `{"Username":"alice","Email":"a@example.com","Password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = post(h.Register, "/register", `{"Username":"alice","Email":"b@example.com","Password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginErrors(t *testing.T) {
	h := newHandler(t)
	require.Equal(t, http.StatusOK,
		post(h.Register, "/register", `{"Username":"alice","Email":"a@example.com","Password":"secret1"}`).Code)

	assert.Equal(t, http.StatusUnauthorized,
		post(h.Login, "/login", `{"Username":"alice","Password":"wrong!!"}`).Code)
	assert.Equal(t, http.StatusNotFound,
		post(h.Login, "/login", `{"Username":"bob","Password":"secret1"}`).Code)
}

func TestLogoutWithoutCookie(t *testing.T) {
	h := newHandler(t)
	assert.Equal(t, http.StatusBadRequest, post(h.Logout, "/logout", "").Code)
}
