package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/pm-api/internal/api/shared"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/service"
)

// TaskHandler serves task routes. Access is granted to the owner of the
// task's project.
type TaskHandler struct {
	tasks    TaskService
	projects ProjectService
	logger   *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks TaskService, projects ProjectService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	return &TaskHandler{
		tasks:    tasks,
		projects: projects,
		logger:   logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /api/projects/{id}/tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}
	if _, ok := loadOwnedProject(w, r, h.projects, h.logger, userID, projectID); !ok {
		return
	}

	var req service.CreateTaskInput
	if !decodeAndValidate(w, r, &req) {
		return
	}

	task, err := h.tasks.Create(r.Context(), projectID, req)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, task)
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.ownedTask(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// UpdateTask handles PUT /api/tasks/{id}.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.ownedTask(w, r)
	if !ok {
		return
	}

	var req service.UpdateTaskInput
	if !decodeAndValidate(w, r, &req) {
		return
	}

	updated, err := h.tasks.Update(r.Context(), task.ID, req)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, updated)
}

// DeleteTask handles DELETE /api/tasks/{id}.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.ownedTask(w, r)
	if !ok {
		return
	}

	if err := h.tasks.Delete(r.Context(), task.ID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) ownedTask(w http.ResponseWriter, r *http.Request) (*domain.Task, bool) {
	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return nil, false
	}

	task, err := h.tasks.Get(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return nil, false
	}
	if _, ok := loadOwnedProject(w, r, h.projects, h.logger, userID, task.ProjectID); !ok {
		return nil, false
	}
	return task, true
}
