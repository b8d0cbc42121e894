package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/api/shared"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/platform/logger"
	"github.com/phrazzld/pm-api/internal/service"
)

// ProjectHandler serves /api/projects. Every route except create and list
// requires the caller to own the project.
type ProjectHandler struct {
	projects ProjectService
	logger   *slog.Logger
}

// NewProjectHandler creates a ProjectHandler.
func NewProjectHandler(projects ProjectService, logger *slog.Logger) *ProjectHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ProjectHandler")
	}
	return &ProjectHandler{
		projects: projects,
		logger:   logger.With(slog.String("component", "project_handler")),
	}
}

// CreateProject handles POST /api/projects.
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req service.CreateProjectInput
	if !decodeAndValidate(w, r, &req) {
		return
	}
	req.OwnerID = userID

	project, err := h.projects.Create(r.Context(), req)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, project)
}

// ListProjects handles GET /api/projects.
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	projects, err := h.projects.FindByOwner(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, projects)
}

// GetProject handles GET /api/projects/{id}.
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.ownedProject(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, project)
}

// UpdateProject handles PUT /api/projects/{id}.
func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	var req service.UpdateProjectInput
	if !decodeAndValidate(w, r, &req) {
		return
	}

	updated, err := h.projects.Update(r.Context(), project.ID, req)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, updated)
}

// DeleteProject handles DELETE /api/projects/{id}.
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	if err := h.projects.Delete(r.Context(), project.ID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetProjectMetrics handles GET /api/projects/{id}/metrics.
func (h *ProjectHandler) GetProjectMetrics(w http.ResponseWriter, r *http.Request) {
	project, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	metrics, err := h.projects.GetProjectMetrics(r.Context(), project.ID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, metrics)
}

// GetProjectTimeline handles GET /api/projects/{id}/timeline.
func (h *ProjectHandler) GetProjectTimeline(w http.ResponseWriter, r *http.Request) {
	project, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	timeline, err := h.projects.GetProjectTimeline(r.Context(), project.ID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, timeline)
}

// ownedProject loads the project named by the {id} path parameter and
// checks that the caller owns it.
func (h *ProjectHandler) ownedProject(w http.ResponseWriter, r *http.Request) (*domain.Project, bool) {
	userID, projectID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return nil, false
	}
	return loadOwnedProject(w, r, h.projects, h.logger, userID, projectID)
}

func loadOwnedProject(
	w http.ResponseWriter,
	r *http.Request,
	projects ProjectService,
	base *slog.Logger,
	userID, projectID uuid.UUID,
) (*domain.Project, bool) {
	project, err := projects.FindByID(r.Context(), projectID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return nil, false
	}
	if !project.IsOwnedBy(userID) {
		logger.FromContextOrDefault(r.Context(), base).Debug("project access denied",
			slog.String("project_id", projectID.String()),
			slog.String("user_id", userID.String()))
		HandleAPIError(w, r, service.ErrNotOwned, "")
		return nil, false
	}
	return project, true
}
