package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/api"
	"github.com/dgnsrekt/stagehand-relay/internal/relay"
	"github.com/dgnsrekt/stagehand-relay/internal/stream"
)

// Relay is the relay surface served over HTTP.
type Relay interface {
	stream.Subscriber
	Commands() *relay.Commands
	Latest() relay.Update
	Diagnostics() relay.Diagnostics
}

// Options configure the HTTP surface.
type Options struct {
	PollInterval time.Duration
	CommandRate  float64
	CommandBurst int
	Heartbeat    time.Duration
	WebSocket    stream.WSConfig
}

type Server struct {
	relay   Relay
	sse     *stream.SSEHandler
	ws      *stream.WSHandler
	limiter *CommandLimiter
	reload  *ProviderReloader
	opts    Options
	started time.Time
	logger  *zap.Logger
}

func NewServer(r Relay, encoder *stream.Encoder, opts Options, logger *zap.Logger) *Server {
	return &Server{
		relay:   r,
		sse:     stream.NewSSEHandler(r, opts.Heartbeat, logger.Named("sse")),
		ws:      stream.NewWSHandler(r, encoder, opts.WebSocket, logger.Named("ws")),
		limiter: NewCommandLimiter(opts.CommandRate, opts.CommandBurst),
		opts:    opts,
		started: time.Now(),
		logger:  logger,
	}
}

// SetReloader enables POST /admin/provider. It must be called before NewRouter.
func (s *Server) SetReloader(rm *ProviderReloader) {
	s.reload = rm
}

// LoadSwagger parses and validates the embedded OpenAPI document.
func LoadSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromData(api.OpenAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := swagger.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return swagger, nil
}

func NewRouter(server *Server, logger *zap.Logger) (http.Handler, error) {
	// Load OpenAPI spec for validation
	swagger, err := LoadSwagger()
	if err != nil {
		return nil, err
	}
	swagger.Servers = nil // Allow any host

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	// Non-validated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/", server.handleBanner)
		r.Get("/health", server.handleHealth)
		r.Get("/diagnostics", server.handleDiagnostics)
		r.Get("/openapi.yaml", openapiHandler)
	})
	r.Get("/ws/media", server.ws.ServeHTTP)
	if server.reload != nil {
		r.Post("/admin/provider", server.handleReload)
	}

	// API routes with OpenAPI validation
	r.Route("/api/media", func(r chi.Router) {
		r.Use(oapimiddleware.OapiRequestValidator(swagger))

		r.Get("/status", server.handleStatus)
		r.Get("/current", server.handleCurrent)
		r.Get("/subscribe", server.sse.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(server.limiter.Middleware)
			r.Post("/play", server.handleCommand(server.relay.Commands().Play))
			r.Post("/pause", server.handleCommand(server.relay.Commands().Pause))
			r.Post("/next", server.handleCommand(server.relay.Commands().Next))
			r.Post("/previous", server.handleCommand(server.relay.Commands().Previous))
		})
	})

	return r, nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(api.OpenAPISpec)
}
