package router

import (
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/launchkit/service-core/internal/auth"
	"github.com/launchkit/service-core/internal/config"
	"github.com/launchkit/service-core/internal/mailer"
	"github.com/launchkit/service-core/internal/system"
	"github.com/launchkit/service-core/internal/user"
	"github.com/launchkit/service-core/pkg/utilities"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs each request at debug level, tagging it with a
// generated request id that is also echoed to the client.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = utilities.NewKSUID()
			}
			w.Header().Set("X-Request-ID", reqID)
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers. Intentionally
// simple and conservative so it works with most setups.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware allows the configured frontend origin to call the API with
// credentials. Preflight requests short-circuit with 204.
func CORSMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && origin == allowedOrigin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
				w.Header().Set("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes mounts HTTP handlers using the standard library's
// http.ServeMux and wires up the service graph.
func RegisterRoutes(logger *zap.SugaredLogger, db *sqlx.DB, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	users := user.NewUserService(db, nil, nil)
	tokens := auth.NewTokenService(db, cfg.SecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	mail := mailer.New(cfg.SMTP, logger)

	authHandler := auth.NewHandler(cfg, tokens, users, mail, logger)
	userHandler := user.NewHandler(logger)
	systemHandler := system.NewHandler(cfg.ServiceName, cfg.Environment, logger)

	requireUser := auth.RequireUser(tokens, users, logger)

	mux.HandleFunc("GET /{$}", systemHandler.Root)
	mux.HandleFunc("GET /api/health", systemHandler.Health)
	mux.HandleFunc("GET /api/build-info", systemHandler.BuildInfoHandler)

	mux.HandleFunc("GET /api/auth/config", authHandler.Config)
	mux.HandleFunc("POST /api/auth/login/email", authHandler.LoginEmail)
	mux.HandleFunc("POST /api/auth/register/email", authHandler.RegisterEmail)
	mux.HandleFunc("POST /api/auth/magic-link/request", authHandler.RequestMagicLink)
	mux.HandleFunc("POST /api/auth/magic-link/verify", authHandler.VerifyMagicLink)
	mux.HandleFunc("POST /api/auth/google", authHandler.Google)
	mux.HandleFunc("POST /api/auth/apple", authHandler.Apple)
	mux.HandleFunc("POST /api/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)

	mux.Handle("GET /api/users/me", requireUser(http.HandlerFunc(userHandler.Me)))
	mux.Handle("GET /api/users/profile", requireUser(http.HandlerFunc(userHandler.Profile)))

	// middleware order: logging outermost, then CORS, then security headers
	handler := LoggingMiddleware(logger)(CORSMiddleware(cfg.FrontendURL)(SecurityHeadersMiddleware()(mux)))
	return handler
}
