package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nickmous/beanstash/internal/account"
	"github.com/nickmous/beanstash/internal/auth"
	"github.com/nickmous/beanstash/internal/database/dbtest"
	"github.com/nickmous/beanstash/internal/handler"
	"github.com/nickmous/beanstash/internal/repository"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type app struct {
	http     http.Handler
	accounts *account.Service
}

func newApp(t *testing.T) *app {
	t.Helper()
	db := dbtest.New(t)
	repo := repository.NewAccountRepo(db)
	live := repository.NewLiveAccounts(repo)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	cfg, err := auth.NewSigningConfig(testSecret, time.Hour, "beanstash")
	require.NoError(t, err)
	tokens := auth.NewTokenService(cfg)

	e := New(Deps{
		Auth:       handler.NewAuthHandler(auth.NewAuthenticator(live, hasher, tokens, nil), nil),
		DB:         db,
		Tokens:     tokens,
		Identities: auth.NewAccountIdentities(live),
	})
	return &app{http: e, accounts: account.NewService(repo, hasher)}
}

func (a *app) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.http.ServeHTTP(rec, req)
	return rec
}

func (a *app) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, http.MethodPost, "/auth/login", `{"username":"`+username+`","password":"`+password+`"}`, "")
}

func tokenFrom(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestLoginAndMe(t *testing.T) {
	a := newApp(t)
	_, err := a.accounts.Create(context.Background(), account.NewAccount{Username: "alice", Email: "alice@example.com", Password: "s3cret-pw"})
	require.NoError(t, err)

	rec := a.login(t, "alice", "s3cret-pw")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := tokenFrom(t, rec)

	rec = a.do(t, http.MethodGet, "/me", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var id auth.Identity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &id))
	assert.Equal(t, "alice", id.Username)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.Equal(t, []string{auth.RoleUser}, id.Authorities)
}

func TestLogin_Failures(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()
	_, err := a.accounts.Create(ctx, account.NewAccount{Username: "alice", Email: "alice@example.com", Password: "s3cret-pw"})
	require.NoError(t, err)

	rec := a.login(t, "alice", "wrong-pw")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"authentication failed"}`, rec.Body.String())

	assert.Equal(t, http.StatusForbidden, a.login(t, "Alice", "s3cret-pw").Code)
	assert.Equal(t, http.StatusForbidden, a.login(t, "nobody", "s3cret-pw").Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/auth/login", `{"username":"alice"}`, "").Code)

	_, err = a.accounts.Deactivate(ctx, "alice")
	require.NoError(t, err)
	rec = a.login(t, "alice", "s3cret-pw")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"authentication failed"}`, rec.Body.String())

	_, err = a.accounts.Activate(ctx, "alice")
	require.NoError(t, err)
	_, err = a.accounts.Delete(ctx, "alice")
	require.NoError(t, err)
	rec = a.login(t, "alice", "s3cret-pw")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"authentication failed"}`, rec.Body.String())
}

func TestMe_TokenStopsWorkingAfterAccountChanges(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()
	_, err := a.accounts.Create(ctx, account.NewAccount{Username: "alice", Email: "alice@example.com", Password: "s3cret-pw"})
	require.NoError(t, err)
	token := tokenFrom(t, a.login(t, "alice", "s3cret-pw"))

	_, err = a.accounts.Deactivate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/me", "", token).Code)

	_, err = a.accounts.Activate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/me", "", token).Code)

	_, err = a.accounts.Delete(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/me", "", token).Code)
}

func TestMe_Anonymous(t *testing.T) {
	a := newApp(t)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/me", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/me", "", "garbage").Code)
}

func TestHealthz(t *testing.T) {
	a := newApp(t)
	rec := a.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
