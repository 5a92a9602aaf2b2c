package misc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/notesbox/internal/auth"
	"github.com/2beens/notesbox/internal/middleware"
	"github.com/2beens/notesbox/internal/telemetry/metrics"
	"github.com/2beens/notesbox/internal/telemetry/tracing"
	"github.com/2beens/notesbox/pkg"
)

type usersRepo interface {
	Create(ctx context.Context, username, passwordHash string) (*auth.User, error)
	GetByUsername(ctx context.Context, username string) (*auth.User, error)
}

type Handler struct {
	authService *auth.Service
	usersRepo   usersRepo
	versionInfo string
	metrics     *metrics.Manager
}

func NewHandler(
	authService *auth.Service,
	usersRepo usersRepo,
	versionInfo string,
	metrics *metrics.Manager,
) *Handler {
	return &Handler{
		authService: authService,
		usersRepo:   usersRepo,
		versionInfo: versionInfo,
		metrics:     metrics,
	}
}

func (handler *Handler) SetupRoutes(
	mainRouter *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	metricsManager *metrics.Manager,
) {
	mainRouter.HandleFunc("/", handler.handleRoot).Methods("GET", "POST", "OPTIONS").Name("root")
	mainRouter.HandleFunc("/version", handler.handleGetVersionInfo).Methods("GET").Name("version")

	loginSubrouter := mainRouter.PathPrefix("/a").Subrouter()
	loginSubrouter.
		HandleFunc("/register", handler.handleRegister).
		Methods("POST", "OPTIONS").Name("register")
	loginSubrouter.
		HandleFunc("/login", handler.handleLogin).
		Methods("POST", "OPTIONS").Name("login")
	loginSubrouter.
		HandleFunc("/logout", handler.handleLogout).
		Methods("GET", "OPTIONS").Name("logout")

	// rate limit the auth endpoints to prevent abuse
	loginSubrouter.Use(middleware.RateLimit(rateLimiter, "login", 15, metricsManager))
	loginSubrouter.Use(middleware.Cors())
}

func (handler *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
}

func (handler *Handler) handleGetVersionInfo(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, handler.versionInfo)
}

func (handler *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "miscHandler.register")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	creds, ok := credentialsFromRequest(w, r)
	if !ok {
		return
	}

	if len(creds.Username) < auth.UsernameMinLen || len(creds.Username) > auth.UsernameMaxLen {
		http.Error(w, "error, username must be between 3 and 30 characters", http.StatusBadRequest)
		return
	}
	if len(creds.Password) < auth.PasswordMinLen {
		http.Error(w, "error, password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	passwordHash, err := pkg.HashPassword(creds.Password)
	if err != nil {
		log.Errorf("register failed, hash password: %s", err)
		http.Error(w, "register failed", http.StatusInternalServerError)
		return
	}

	user, err := handler.usersRepo.Create(ctx, creds.Username, passwordHash)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameTaken) {
			http.Error(w, "error, username taken", http.StatusConflict)
			return
		}
		log.Errorf("register failed, create user: %s", err)
		http.Error(w, "register failed", http.StatusInternalServerError)
		return
	}

	userJson, err := json.Marshal(user)
	if err != nil {
		log.Errorf("register, marshal user: %s", err)
		http.Error(w, "register failed", http.StatusInternalServerError)
		return
	}

	log.Tracef("new user registered: %s [%d]", user.Username, user.Id)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, userJson, http.StatusCreated)
}

func (handler *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "miscHandler.login")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	creds, ok := credentialsFromRequest(w, r)
	if !ok {
		return
	}

	user, err := handler.usersRepo.GetByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			log.Tracef("[username] failed login attempt for user: %s", creds.Username)
			handler.metrics.CounterFailedLogins.Inc()
			http.Error(w, "error, wrong credentials", http.StatusBadRequest)
			return
		}
		log.Errorf("login failed, get user: %s", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	if !pkg.CheckPasswordHash(creds.Password, user.PasswordHash) {
		log.Tracef("[password] failed login attempt for user: %s", creds.Username)
		handler.metrics.CounterFailedLogins.Inc()
		http.Error(w, "error, wrong credentials", http.StatusBadRequest)
		return
	}

	token, err := handler.authService.Login(ctx, user.Id, time.Now())
	if err != nil {
		log.Errorf("login failed, generate token error: %s", err)
		http.Error(w, "generate token error", http.StatusInternalServerError)
		return
	}

	log.Tracef("new login success: %s [%d]", user.Username, user.Id)
	pkg.WriteJSONResponseOK(w, fmt.Sprintf(`{"token": "%s"}`, token))
}

func (handler *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "miscHandler.logout")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "GET, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	authToken := r.Header.Get(auth.TokenHeader)
	if authToken == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	if err := handler.authService.Logout(ctx, authToken); err != nil {
		log.Tracef("[failed logout] => %s: %s", r.URL.Path, err)
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	log.Printf("logout for [%s] success", authToken)
	pkg.WriteTextResponseOK(w, "logged-out")
}

func credentialsFromRequest(w http.ResponseWriter, r *http.Request) (auth.Credentials, bool) {
	var creds auth.Credentials
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			log.Errorf("auth, unmarshal json params: %s", err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return auth.Credentials{}, false
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("auth failed, parse form error: %s", err)
			http.Error(w, "parse form error", http.StatusInternalServerError)
			return auth.Credentials{}, false
		}
		creds = auth.Credentials{
			Username: r.Form.Get("username"),
			Password: r.Form.Get("password"),
		}
	}

	if creds.Username == "" {
		http.Error(w, "error, username empty", http.StatusBadRequest)
		return auth.Credentials{}, false
	}
	if creds.Password == "" {
		http.Error(w, "error, password empty", http.StatusBadRequest)
		return auth.Credentials{}, false
	}

	return creds, true
}
