package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/pm-api/internal/api"
	apiMiddleware "github.com/phrazzld/pm-api/internal/api/middleware"
	"github.com/phrazzld/pm-api/internal/api/shared"
	"github.com/phrazzld/pm-api/internal/metrics"
)

// setupRouter builds the HTTP routes and middleware stack.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.SecurityHeaders)
	r.Use(apiMiddleware.NewMetricsMiddleware(app.metrics))

	authHandler := api.NewAuthHandler(app.userService, app.jwtService, app.config.Auth)
	projectHandler := api.NewProjectHandler(app.projectService, app.logger)
	taskHandler := api.NewTaskHandler(app.taskService, app.projectService, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService, app.userService)
	projectCreateLimiter := apiMiddleware.NewRedisRateLimiter(app.redis, "project_create",
		app.config.RateLimit.ProjectCreateLimit,
		time.Duration(app.config.RateLimit.ProjectCreateWindowSeconds)*time.Second,
		app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(app.limiter.Middleware)

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/users/me", authHandler.Me)

			r.Route("/projects", func(r chi.Router) {
				r.With(projectCreateLimiter.Middleware).Post("/", projectHandler.CreateProject)
				r.Get("/", projectHandler.ListProjects)
				r.Get("/{id}", projectHandler.GetProject)
				r.Put("/{id}", projectHandler.UpdateProject)
				r.Delete("/{id}", projectHandler.DeleteProject)
				r.Get("/{id}/metrics", projectHandler.GetProjectMetrics)
				r.Get("/{id}/timeline", projectHandler.GetProjectTimeline)
				r.Post("/{id}/tasks", taskHandler.CreateTask)
			})

			r.Get("/tasks/{id}", taskHandler.GetTask)
			r.Put("/tasks/{id}", taskHandler.UpdateTask)
			r.Delete("/tasks/{id}", taskHandler.DeleteTask)
		})
	})

	r.Get("/health", app.handleHealth)
	r.Handle("/metrics", metrics.Handler(app.registry))

	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

// handleHealth reports 503 when the database is unreachable. A cache outage
// only degrades the service.
func (app *application) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok", Cache: "ok"}
	status := http.StatusOK

	if err := app.db.PingContext(ctx); err != nil {
		resp.Status, resp.Database = "unavailable", "unreachable"
		status = http.StatusServiceUnavailable
	}
	if err := app.cache.Ping(ctx); err != nil {
		resp.Cache = "unreachable"
		if status == http.StatusOK {
			resp.Status = "degraded"
		}
	}

	shared.RespondWithJSON(w, r, status, resp)
}
