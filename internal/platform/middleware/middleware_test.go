package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	jwttoken "creditmint/internal/jwt_token"
	"creditmint/pkg/requestcontext"
)

type AuthMiddlewareSuite struct {
	suite.Suite
	tokens  *jwttoken.Service
	handler http.Handler
	seen    string
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.tokens = jwttoken.NewService("k", jwttoken.DefaultIssuer, jwttoken.DefaultAudience)
	s.seen = ""
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.seen = requestcontext.Principal(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.handler = RequireBearer(s.tokens, jwttoken.ScopeMint, logger)(next)
}

func (s *AuthMiddlewareSuite) do(authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mint", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *AuthMiddlewareSuite) TestValidTokenSetsPrincipal() {
	token, err := s.tokens.GenerateToken("sales-pipeline", jwttoken.ScopeMint, time.Minute)
	s.Require().NoError(err)

	w := s.do("Bearer " + token)
	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("sales-pipeline", s.seen)
}

func (s *AuthMiddlewareSuite) TestMissingHeader() {
	w := s.do("")
	s.Equal(http.StatusUnauthorized, w.Code)
	s.JSONEq(`{"error":"unauthorized","error_description":"Missing or invalid Authorization header"}`, w.Body.String())
	s.Empty(s.seen)
}

func (s *AuthMiddlewareSuite) TestWrongScheme() {
	s.Equal(http.StatusUnauthorized, s.do("Basic Zm9vOmJhcg==").Code)
}

func (s *AuthMiddlewareSuite) TestInvalidToken() {
	w := s.do("Bearer nope")
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Contains(w.Body.String(), "Invalid or expired token")
}

func (s *AuthMiddlewareSuite) TestWrongScope() {
	token, err := s.tokens.GenerateToken("dashboard", "read", time.Minute)
	s.Require().NoError(err)

	w := s.do("Bearer " + token)
	s.Equal(http.StatusForbidden, w.Code)
	s.Empty(s.seen)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	t.Run("generated when absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
	})

	t.Run("inbound id is kept", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, "req-42", seen)
		assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	})
}

func TestRequestTime(t *testing.T) {
	var first, second time.Time
	h := RequestTime(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(2 * time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, first, second)
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"path":"/health"`)
	assert.Contains(t, out, `"request_id":"req-7"`)
}
