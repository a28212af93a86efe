// Package httpapi exposes facade.MemoryManager over HTTP, grounded on the
// teacher's interfaces/http/rest/router.go: the same chi middleware stack
// (RequestID, RealIP, Recoverer, a zap request logger, CORS) and the same
// route-group-per-resource layout, generalized from node/edge/graph/
// category resources to the memory engine's operations.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"agentmem/internal/facade"
)

// Router wires facade.MemoryManager behind chi routes.
type Router struct {
	mgr    *facade.MemoryManager
	logger *zap.Logger
}

func NewRouter(mgr *facade.MemoryManager, logger *zap.Logger) *Router {
	return &Router{mgr: mgr, logger: logger}
}

// Setup builds the http.Handler this server listens with.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(rt.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID", "X-Agent-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthCheck)

	h := &handlers{mgr: rt.mgr, logger: rt.logger}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireIdentity)

		r.Route("/memories", func(r chi.Router) {
			r.Post("/", h.storeMemory)
			r.Delete("/{memoryID}", h.deleteMemory)
		})

		r.Post("/recall", h.recall)
		r.Post("/decay", h.decay)
		r.Post("/decay/flush", h.flushDecay)
		r.Post("/connections", h.createConnection)
		r.Get("/stats", h.stats)
		r.Delete("/working-memory", h.clearWorkingMemory)
		r.Get("/working-context", h.workingContext)
		r.Post("/learn", h.learn)
		r.Get("/recommendations", h.recommendations)
		r.Get("/knowledge/search", h.searchKnowledge)
		r.Post("/consolidate", h.consolidate)
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// requestLogger mirrors the teacher's middleware.Logger: log method, path,
// status and latency for every request at Info level.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)
			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type ctxKey string

const (
	ctxUserID  ctxKey = "user_id"
	ctxAgentID ctxKey = "agent_id"
)

// requireIdentity reads X-User-ID/X-Agent-ID headers into the request
// context — this engine has no session/auth domain of its own (spec
// Non-goals), so the caller (API gateway, internal service mesh) is
// trusted to have already authenticated the request and forwarded these
// headers, the same trust boundary the teacher's own Authenticate()
// middleware stub assumes for its JWT-derived user id.
func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		agentID := r.Header.Get("X-Agent-ID")
		if userID == "" || agentID == "" {
			writeError(w, http.StatusUnauthorized, "X-User-ID and X-Agent-ID headers are required")
			return
		}
		ctx := r.Context()
		ctx = setCtx(ctx, ctxUserID, userID)
		ctx = setCtx(ctx, ctxAgentID, agentID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
