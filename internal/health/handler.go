package health

import (
	"context"
	"net/http"
	"time"

	httputil "roombook/pkg/http"
	"roombook/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const pingTimeout = 2 * time.Second

type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

type dependency struct {
	name string
	ping func(ctx context.Context) error
}

type HealthHandler struct {
	deps []dependency
	log  *logger.Logger
}

// NewHealthHandler checks the given clients on /ready. A nil client is skipped.
func NewHealthHandler(mongoClient *mongo.Client, redisClient *redis.Client, log *logger.Logger) *HealthHandler {
	h := &HealthHandler{log: log}
	if mongoClient != nil {
		h.deps = append(h.deps, dependency{name: "database", ping: func(ctx context.Context) error {
			return mongoClient.Ping(ctx, nil)
		}})
	}
	if redisClient != nil {
		h.deps = append(h.deps, dependency{name: "cache", ping: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	return h
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok"}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	status, resp := http.StatusOK, HealthResponse{Status: "ready", Components: map[string]string{}}
	for _, dep := range h.deps {
		if err := dep.ping(ctx); err != nil {
			h.log.Error("Dependency health check failed",
				"dependency", dep.name,
				"error", err,
				"path", r.URL.Path,
			)
			resp.Components[dep.name] = "error"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[dep.name] = "ok"
	}

	if err := httputil.WriteJSON(w, status, resp); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
