package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"curaledger/internal/platform/metrics"
	"curaledger/pkg/domain"
	"curaledger/pkg/requestcontext"
)

type stubVerifier struct {
	actors map[string]domain.Actor
}

func (v stubVerifier) VerifyActor(token string) (domain.Actor, error) {
	a, ok := v.actors[token]
	if !ok {
		return domain.Actor{}, errors.New("bad token")
	}
	return a, nil
}

type MiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *MiddlewareSuite) TestRequestID() {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	s.Run("caller id is reused", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		s.Equal("req-123", seen)
		s.Equal("req-123", rec.Header().Get(RequestIDHeader))
	})

	s.Run("oversized id is replaced", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		s.Len(seen, 36)
		s.Equal(seen, rec.Header().Get(RequestIDHeader))
	})
}

func (s *MiddlewareSuite) TestRequestTimeIsStable() {
	var first, second time.Time
	h := RequestTime(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	s.False(first.IsZero())
	s.Equal(first, second)
}

func (s *MiddlewareSuite) TestRecovery() {
	h := Recovery(s.logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.JSONEq(`{"error":"internal_error","error_description":"Internal server error"}`, rec.Body.String())
}

func (s *MiddlewareSuite) TestRequireAuth() {
	admin := domain.Actor{ID: "admin", Roles: []domain.Role{domain.RoleAdmin}}
	verifier := stubVerifier{actors: map[string]domain.Actor{"good": admin}}

	var got domain.Actor
	h := RequireAuth(verifier, s.logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Actor(r.Context())
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid token", header: "Bearer good", status: http.StatusOK},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", status: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer bad", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			got = domain.Actor{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			s.Equal(tc.status, rec.Code)
			if tc.status == http.StatusOK {
				s.Equal(admin.ID, got.ID)
			} else {
				s.Empty(got.ID)
			}
		})
	}
}

func (s *MiddlewareSuite) TestRequireRole() {
	h := RequireRole(domain.RoleAdmin, s.logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	s.Run("admin passes", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(requestcontext.WithActor(req.Context(), domain.Actor{ID: "a", Roles: []domain.Role{domain.RoleAdmin}}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		s.Equal(http.StatusNoContent, rec.Code)
	})

	s.Run("donor is forbidden", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(requestcontext.WithActor(req.Context(), domain.Actor{ID: "d", Roles: []domain.Role{domain.RoleDonor}}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *MiddlewareSuite) TestLoggerRecordsRoutePattern() {
	m := &metrics.Metrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_duration"}, []string{"route", "method"}),
		RequestsTotal:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_total"}, []string{"route", "method", "status"}),
	}
	r := chi.NewRouter()
	r.Use(Logger(s.logger, m))
	r.Get("/cases/{caseID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cases/CASE0001", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cases/CASE0002", nil))

	s.Equal(float64(2), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/cases/{caseID}", http.MethodGet, "4xx")))
}

func (s *MiddlewareSuite) TestLoggerSummarizesClient() {
	m := &metrics.Metrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "client_duration"}, []string{"route", "method"}),
		RequestsTotal:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "client_total"}, []string{"route", "method", "status"}),
	}
	serve := func(userAgent string) string {
		var buf bytes.Buffer
		h := Logger(slog.New(slog.NewJSONHandler(&buf, nil)), m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		if userAgent != "" {
			req.Header.Set("User-Agent", userAgent)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		return buf.String()
	}

	s.Run("browser", func() {
		line := serve("Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0")
		s.Contains(line, `"kind":"browser"`)
		s.Contains(line, `"name":"Firefox"`)
	})

	s.Run("crawler", func() {
		line := serve("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
		s.Contains(line, `"kind":"bot"`)
	})

	s.Run("missing header", func() {
		line := serve("")
		s.Contains(line, `"client":{"kind":"unknown"}`)
	})
}
