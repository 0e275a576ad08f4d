package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/autoshop-identity/internal/config"
	"github.com/iliyamo/autoshop-identity/internal/database/dbtest"
	"github.com/iliyamo/autoshop-identity/internal/handler"
	"github.com/iliyamo/autoshop-identity/internal/logging"
	"github.com/iliyamo/autoshop-identity/internal/middleware"
	"github.com/iliyamo/autoshop-identity/internal/model"
	"github.com/iliyamo/autoshop-identity/internal/queue"
	"github.com/iliyamo/autoshop-identity/internal/repository"
	"github.com/iliyamo/autoshop-identity/internal/service"
	"github.com/iliyamo/autoshop-identity/internal/token"
	"github.com/iliyamo/autoshop-identity/internal/utils"
)

type server struct {
	e          *echo.Echo
	principals *repository.PrincipalRepo
}

func newServer(t *testing.T) *server {
	t.Helper()
	return newServerWithLimiter(t, middleware.NewTokenBucket(config.RateLimitConfig{}, nil, logging.Discard()))
}

func newServerWithLimiter(t *testing.T, limiter echo.MiddlewareFunc) *server {
	t.Helper()
	db := dbtest.Open(t)
	principals := repository.NewPrincipalRepo(db)
	iss, err := token.NewIssuer("router-test-secret", nil)
	require.NoError(t, err)

	pub := queue.NewPublisher(queue.NopTransport{}, queue.PublisherOptions{}, logging.Discard())
	t.Cleanup(func() { _ = pub.Close(context.Background()) })

	svc, err := service.NewAuthService(principals, repository.NewSessionRepo(db), iss,
		utils.BcryptHasher{Cost: bcrypt.MinCost}, pub, service.Options{})
	require.NoError(t, err)

	e := echo.New()
	RegisterRoutes(e, db)
	RegisterAuth(e, handler.NewAuthHandler(svc), svc, limiter)
	return &server{e: e, principals: principals}
}

func (s *server) call(t *testing.T, method, path, body, bearer string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestAuthFlow(t *testing.T) {
	s := newServer(t)

	code, body := s.call(t, http.MethodPost, "/v1/auth/register",
		`{"username":"alice","password":"pw123","email":"alice@x.com","role":"CUSTOMER"}`, "")
	require.Equal(t, http.StatusCreated, code, body)
	aliceID := body["id"].(string)

	code, body = s.call(t, http.MethodPost, "/v1/auth/register",
		`{"username":"alice","password":"pw","email":"a2@x.com"}`, "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "DUPLICATE_USERNAME", body["error"])

	code, body = s.call(t, http.MethodPost, "/v1/auth/login", `{"identifier":"alice","password":"pw123"}`, "")
	require.Equal(t, http.StatusOK, code, body)
	access := body["access_token"].(string)
	refresh := body["refresh_token"].(string)
	exp, err := time.Parse(time.RFC3339, body["expires_at"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), exp, time.Minute)

	code, body = s.call(t, http.MethodGet, "/v1/me", "", access)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, aliceID, body["principal_id"])
	assert.Equal(t, "CUSTOMER", body["role"])

	code, body = s.call(t, http.MethodGet, "/v1/auth/validate", "", access)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", body["username"])

	code, body = s.call(t, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+refresh+`"}`, "")
	require.Equal(t, http.StatusOK, code)
	fresh := body["access_token"].(string)

	code, body = s.call(t, http.MethodGet, "/v1/me", "", access)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_SESSION", body["error"])

	code, _ = s.call(t, http.MethodPost, "/v1/auth/logout", "", fresh)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = s.call(t, http.MethodPost, "/v1/auth/logout", "", fresh)
	assert.Equal(t, http.StatusNoContent, code)

	code, body = s.call(t, http.MethodGet, "/v1/auth/validate", "", fresh)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_SESSION", body["error"])
}

func TestLoginWrongPassword(t *testing.T) {
	s := newServer(t)
	s.call(t, http.MethodPost, "/v1/auth/register", `{"username":"alice","password":"pw123","email":"alice@x.com"}`, "")

	code, body := s.call(t, http.MethodPost, "/v1/auth/login", `{"identifier":"alice","password":"nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_CREDENTIALS", body["error"])
}

func TestAdminRoutes(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	_, body := s.call(t, http.MethodPost, "/v1/auth/register", `{"username":"root","password":"pw","email":"root@x.com","role":"ADMIN"}`, "")
	_, body2 := s.call(t, http.MethodPost, "/v1/auth/register", `{"username":"carol","password":"pw","email":"carol@x.com"}`, "")
	carolID := body2["id"].(string)
	require.NotEmpty(t, body["id"])

	_, login := s.call(t, http.MethodPost, "/v1/auth/login", `{"identifier":"carol","password":"pw"}`, "")
	carolToken := login["access_token"].(string)
	_, login = s.call(t, http.MethodPost, "/v1/auth/login", `{"identifier":"root","password":"pw"}`, "")
	adminToken := login["access_token"].(string)

	code, _ := s.call(t, http.MethodPatch, "/v1/admin/principals/"+carolID, `{"active":false}`, carolToken)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.call(t, http.MethodPatch, "/v1/admin/principals/"+carolID, `{"active":false}`, "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = s.call(t, http.MethodPatch, "/v1/admin/principals/"+carolID, `{"active":false,"role":"MECHANIC"}`, adminToken)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "MECHANIC", body["role"])

	p, err := s.principals.FindByID(ctx, carolID)
	require.NoError(t, err)
	assert.False(t, p.Active)
	assert.Equal(t, model.RoleMechanic, p.Role)

	code, body = s.call(t, http.MethodPost, "/v1/auth/login", `{"identifier":"carol","password":"pw"}`, "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "INACTIVE_ACCOUNT", body["error"])

	code, body = s.call(t, http.MethodPatch, "/v1/admin/principals/nope", `{"role":"ADMIN"}`, adminToken)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "PRINCIPAL_NOT_FOUND", body["error"])
}

func TestHealthz(t *testing.T) {
	s := newServer(t)
	code, _ := s.call(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, code)
}

// allowFirst lets n requests through and rejects the rest with 429.
func allowFirst(n int) (echo.MiddlewareFunc, *int) {
	seen := 0
	mw := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			seen++
			if seen > n {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "TOO_MANY_REQUESTS"})
			}
			return next(c)
		}
	}
	return mw, &seen
}

func TestLimiterCoversOnlyCredentialRoutes(t *testing.T) {
	limiter, seen := allowFirst(2)
	s := newServerWithLimiter(t, limiter)

	code, _ := s.call(t, http.MethodPost, "/v1/auth/register",
		`{"username":"peer","password":"pw123","email":"peer@x.com"}`, "")
	require.Equal(t, http.StatusCreated, code)
	code, body := s.call(t, http.MethodPost, "/v1/auth/login", `{"identifier":"peer","password":"pw123"}`, "")
	require.Equal(t, http.StatusOK, code)
	access := body["access_token"].(string)
	refresh := body["refresh_token"].(string)

	for i := 0; i < 25; i++ {
		code, _ = s.call(t, http.MethodGet, "/v1/auth/validate", "", access)
		require.Equal(t, http.StatusOK, code, "validate call %d", i)
	}
	assert.Equal(t, 2, *seen)

	code, _ = s.call(t, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+refresh+`"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, code)

	code, _ = s.call(t, http.MethodPost, "/v1/auth/logout", "", access)
	assert.Equal(t, http.StatusNoContent, code)
}
