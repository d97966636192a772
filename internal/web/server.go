// Package web wires the HTTP routes to the catalog store.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/pankajredekar/catalog/internal/auth"
	"github.com/pankajredekar/catalog/internal/store"
)

//go:embed templates/*
var templateFS embed.FS

const (
	sessionName    = "catalog"
	accessTokenKey = "access_token"
	stateKey       = "oauth_state"
)

// Authenticator is the part of the login flow the handlers need
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.TokenResponse, error)
}

// Server handles all catalog routes
type Server struct {
	store         *store.Store
	auth          Authenticator
	secretKey     string
	secureCookies bool
	sessions      *sessions.CookieStore
	templates     *template.Template
	logger        *zap.Logger
}

// New builds the server with parsed templates and a signed-cookie session
// store keyed by the configured secret. secureCookies marks the session and
// csrf cookies Secure for TLS deployments
func New(st *store.Store, authenticator Authenticator, secretKey string, sessionExpiry time.Duration, secureCookies bool, logger *zap.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	cookieStore := sessions.NewCookieStore([]byte(secretKey))
	// The setter keeps the cookie Max-Age attribute and the codec
	// validation window in sync; a cookie re-presented past the expiry
	// then fails decoding and reads as unauthenticated.
	cookieStore.MaxAge(int(sessionExpiry.Seconds()))
	cookieStore.Options.HttpOnly = true
	cookieStore.Options.Secure = secureCookies

	return &Server{
		store:         st,
		auth:          authenticator,
		secretKey:     secretKey,
		secureCookies: secureCookies,
		sessions:      cookieStore,
		templates:     tmpl,
		logger:        logger,
	}, nil
}

// Handler returns the mux with all catalog routes. The OAuth callback is
// mounted at the given path
func (s *Server) Handler(callbackPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /catalog.json", s.handleCatalogJSON)
	mux.HandleFunc("GET /catalog/{category}/Items", s.handleCategoryItems)
	mux.HandleFunc("GET /catalog/{category}/{item}", s.handleItemDetail)

	mux.Handle("GET /catalog/item/create", s.requireLogin(http.HandlerFunc(s.handleCreate)))
	mux.Handle("POST /catalog/item/create", s.requireLogin(http.HandlerFunc(s.handleCreate)))
	mux.Handle("GET /catalog/{item}/edit", s.requireLogin(http.HandlerFunc(s.handleEdit)))
	mux.Handle("POST /catalog/{item}/edit", s.requireLogin(http.HandlerFunc(s.handleEdit)))
	mux.Handle("GET /catalog/{item}/delete", s.requireLogin(http.HandlerFunc(s.handleDelete)))
	mux.Handle("POST /catalog/{item}/delete", s.requireLogin(http.HandlerFunc(s.handleDelete)))

	mux.HandleFunc("GET /login", s.handleLogin)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("GET "+callbackPath, s.handleCallback)

	mux.HandleFunc("/", s.handleNotFound)

	protect := csrf.Protect([]byte(s.secretKey), csrf.Secure(s.secureCookies))
	return s.logRequests(protect(mux))
}

// requireLogin redirects unauthenticated requests to the login route before
// the wrapped handler runs
func (s *Server) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticated(r) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticated reports whether the current session holds an access token
func (s *Server) authenticated(r *http.Request) bool {
	session, _ := s.sessions.Get(r, sessionName)
	token, _ := session.Values[accessTokenKey].(string)
	return token != ""
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template render failed", zap.String("template", name), zap.Error(err))
	}
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", zap.Error(err))
	http.Error(w, "server-side error occurred", http.StatusInternalServerError)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
