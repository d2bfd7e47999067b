package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/noticeserve-backend/internal/batch"
	noticerepos "github.com/yungbote/noticeserve-backend/internal/data/repos/notices"
	"github.com/yungbote/noticeserve-backend/internal/data/repos/testutil"
	httpH "github.com/yungbote/noticeserve-backend/internal/http/handlers"
	httpMW "github.com/yungbote/noticeserve-backend/internal/http/middleware"
	"github.com/yungbote/noticeserve-backend/internal/ids"
	"github.com/yungbote/noticeserve-backend/internal/observability"
	"github.com/yungbote/noticeserve-backend/internal/services"
)

func newTestRouter(t *testing.T, secret string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	gen := ids.NewGenerator(log)
	set := noticerepos.NewSet(db, log)
	metrics := observability.New(log)
	svc := services.NewBatchService(services.BatchServiceDeps{DB: db, Log: log, Repos: set, IDs: gen, Metrics: metrics})
	diag := services.NewDiagnosticsService(db, log, nil, set, gen)
	return NewRouter(RouterConfig{
		Log:                log,
		Metrics:            metrics,
		AuthMiddleware:     httpMW.NewAuthMiddleware(log, secret),
		BatchHandler:       httpH.NewBatchHandler(log, batch.NewValidator(gen), svc, 0),
		DiagnosticsHandler: httpH.NewDiagnosticsHandler(log, diag),
		HealthHandler:      httpH.NewHealthHandler(),
	})
}

func TestRouterRoutes(t *testing.T) {
	r := newTestRouter(t, "")
	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/healthcheck", "", http.StatusOK},
		{http.MethodGet, "/api/batch/health", "", http.StatusOK},
		{http.MethodPost, "/api/batch/debug", "{}", http.StatusOK},
		{http.MethodPost, "/api/batch/validate", "{}", http.StatusOK},
		{http.MethodGet, "/api/batch/NOPE/status", "", http.StatusNotFound},
		{http.MethodGet, "/metrics", "", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		if tc.body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s %s: got=%d want=%d body=%s", tc.method, tc.path, rec.Code, tc.want, rec.Body.String())
		}
		if rec.Header().Get("X-Request-Id") == "" {
			t.Fatalf("%s %s: missing request id header", tc.method, tc.path)
		}
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "noticeserve_api_requests_total") {
		t.Fatalf("expected request metrics in exposition")
	}
}

func TestRouterDiagnosticsRequireToken(t *testing.T) {
	r := newTestRouter(t, "ops-secret")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batch/health", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, httpMW.DiagnosticsClaims{
		Scope: httpMW.DiagnosticsScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("ops-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/batch/health", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d body=%s", rec.Code, rec.Body.String())
	}

	// Batch routes stay public.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthcheck got %d", rec.Code)
	}
}
