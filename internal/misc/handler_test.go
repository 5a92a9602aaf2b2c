package misc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/go-redis/redismock/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2beens/notesbox/internal/auth"
	"github.com/2beens/notesbox/internal/middleware"
	"github.com/2beens/notesbox/internal/telemetry/metrics"
)

// use TestMain(m *testing.M) { ... } for
// global set-up/tear-down for all the tests in a package
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

type testRequestRateLimiter struct {
	// key to limit map
	Limits map[string]int
}

func (l *testRequestRateLimiter) Allow(_ context.Context, key string, _ redis_rate.Limit) (*redis_rate.Result, error) {
	res := &redis_rate.Result{}

	foundLimit, ok := l.Limits[key]
	if !ok || foundLimit == 0 {
		return res, nil
	}

	res.Allowed = l.Limits[key]
	l.Limits[key]--

	return res, nil
}

func setupAuthRouterForTests(
	t *testing.T,
	authService *auth.Service,
	usersRepo usersRepo,
	redisClient *redis.Client,
	reqRateLimiter *testRequestRateLimiter,
) *mux.Router {
	t.Helper()

	metricsManager := metrics.NewTestManager()

	r := mux.NewRouter()
	authMiddleware := middleware.NewAuthMiddlewareHandler(
		auth.NewLoginChecker(time.Hour, redisClient),
	)

	// the same setup as in Server.routerSetup() ... these are not so much of a "unit" tests
	r.Use(middleware.PanicRecovery(metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	handler := NewHandler(authService, usersRepo, "dummy", metricsManager)
	handler.SetupRoutes(r, reqRateLimiter, metricsManager)

	return r
}

func TestNewMiscHandler_routes(t *testing.T) {
	mainRouter := mux.NewRouter()
	handler := NewHandler(&auth.Service{}, auth.NewMockUsersRepo(), "dummy", metrics.NewTestManager())
	handler.SetupRoutes(mainRouter, nil, metrics.NewTestManager())
	require.NotNil(t, handler)
	require.NotNil(t, mainRouter)

	for caseName, route := range map[string]struct {
		name   string
		path   string
		method string
	}{
		"root-get": {
			name:   "root",
			path:   "/",
			method: "GET",
		},
		"root-post": {
			name:   "root",
			path:   "/",
			method: "POST",
		},
		"version": {
			name:   "version",
			path:   "/version",
			method: "GET",
		},
		"register": {
			name:   "register",
			path:   "/a/register",
			method: "POST",
		},
		"login": {
			name:   "login",
			path:   "/a/login",
			method: "POST",
		},
		"logout": {
			name:   "logout",
			path:   "/a/logout",
			method: "GET",
		},
		"logout-options": {
			name:   "logout",
			path:   "/a/logout",
			method: "OPTIONS",
		},
	} {
		t.Run(caseName, func(t *testing.T) {
			req, err := http.NewRequest(route.method, route.path, nil)
			require.NoError(t, err)

			routeMatch := &mux.RouteMatch{}
			route := mainRouter.Get(route.name)
			require.NotNil(t, route)
			isMatch := route.Match(req, routeMatch)
			assert.True(t, isMatch, caseName)
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	rdb, redisMock := redismock.NewClientMock()
	defer rdb.Close()

	authService := auth.NewAuthService(time.Hour, rdb)
	require.NotNil(t, authService)
	testToken := "test_token"
	authService.RandStringFunc = func(s int) (string, error) {
		return testToken, nil
	}

	usersRepo := auth.NewMockUsersRepo()

	reqRateLimiter := &testRequestRateLimiter{
		Limits: map[string]int{"login": 10},
	}
	r := setupAuthRouterForTests(t, authService, usersRepo, rdb, reqRateLimiter)

	username := "testuser"
	password := "testpass123"

	// register
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/a/register", nil)
	req.PostForm = url.Values{}
	req.PostForm.Add("username", username)
	req.PostForm.Add("password", password)
	req.Header.Set("Origin", "test")

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), fmt.Sprintf(`"username":"%s"`, username))
	assert.NotContains(t, rr.Body.String(), "password")

	// registering the same username again conflicts
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)

	// login
	redisMock.Regexp().ExpectSet(`notesbox-session\|\|`+testToken, `1\|\|\d+`, 0).SetVal("OK")
	redisMock.ExpectSAdd("notesbox-sessions", testToken).SetVal(1)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/a/login", nil)
	req.PostForm = url.Values{}
	req.PostForm.Add("username", username)
	req.PostForm.Add("password", password)
	req.Header.Set("Origin", "test")

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, fmt.Sprintf(`{"token": "%s"}`, testToken), rr.Body.String())

	// login with a wrong password fails
	rr = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/a/login", nil)
	req.PostForm = url.Values{}
	req.PostForm.Add("username", username)
	req.PostForm.Add("password", "wrong-password")
	req.Header.Set("Origin", "test")

	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "wrong credentials")
}

func TestLogin_rateLimited(t *testing.T) {
	rdb, _ := redismock.NewClientMock()
	defer rdb.Close()

	authService := auth.NewAuthService(time.Hour, rdb)
	usersRepo := auth.NewMockUsersRepo()

	reqRateLimiter := &testRequestRateLimiter{
		Limits: map[string]int{"login": 1},
	}
	r := setupAuthRouterForTests(t, authService, usersRepo, rdb, reqRateLimiter)

	req := httptest.NewRequest("POST", "/a/login", nil)
	req.PostForm = url.Values{}
	req.PostForm.Add("username", "whoever")
	req.PostForm.Add("password", "whatever1")
	req.Header.Set("Origin", "test")

	// the first request eats the limit, the login itself fails on unknown user
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// next time fails with too early
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooEarly, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Body.String(), "retry after"))
}
