package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/logging"
	portalmw "github.com/MarioNunes35/Portal-de-aplicativos/internal/middleware"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/telemetry"
)

// CORSOptions returns the CORS policy for origins. Cookies are only sent
// cross-origin to the listed origins.
func CORSOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// NewRouter assembles a chi.Router with shared middleware and the portal
// handlers mounted.
func NewRouter(p *Portal) chi.Router {
	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(p.log))
	r.Use(middleware.Recoverer)

	if origins := p.deps.Store.Get().Server.CORSOrigins; len(origins) > 0 {
		r.Use(cors.Handler(CORSOptions(origins)))
	}
	if p.deps.Metrics != nil {
		r.Use(requestMetrics(p.deps.Metrics.Server))
	}

	r.Get("/health", p.HandleHealth)
	r.Get("/auth/status", p.HandleStatus)
	r.Get("/auth/login", p.HandleLogin)
	r.Get("/auth/callback", p.HandleCallback)

	r.Group(func(r chi.Router) {
		r.Use(portalmw.NewSessionMiddleware(p.deps.Dependencies))

		r.Post("/auth/local", p.HandleLocalLogin)
		r.Post("/auth/logout", p.HandleLogout)
		r.Get("/api/me", p.HandleMe)
		r.With(portalmw.NewAccessMiddleware(p.deps.Dependencies, portalmw.PortalRole)).
			Get("/api/apps", p.HandleApps)
	})

	return r
}

// requestMetrics records every request under its chi route pattern.
func requestMetrics(m *telemetry.ServerMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RecordRequest(r.Context(), r.Method, route, strconv.Itoa(status),
				float64(time.Since(start).Microseconds())/1000)
		})
	}
}

// NewHTTPServer wraps the router in an http.Server with conservative timeouts.
func NewHTTPServer(addr string, p *Portal) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(p),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		ErrorLog:          zap.NewStdLog(p.log.Named("http")),
	}
}
