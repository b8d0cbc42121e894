package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

// Possible project status values
const (
	ProjectStatusActive   ProjectStatus = "ACTIVE"
	ProjectStatusArchived ProjectStatus = "ARCHIVED"
)

// MaxProjectNameLength is the maximum number of characters in a project name.
const MaxProjectNameLength = 100

// Project validation errors
var (
	ErrEmptyProjectID       = fmt.Errorf("%w: project ID cannot be empty", ErrValidation)
	ErrEmptyProjectName     = fmt.Errorf("%w: project name cannot be empty", ErrValidation)
	ErrProjectNameTooLong   = fmt.Errorf("%w: project name must be at most 100 characters", ErrValidation)
	ErrEmptyProjectOwnerID  = fmt.Errorf("%w: project owner ID cannot be empty", ErrValidation)
	ErrInvalidProjectStatus = fmt.Errorf("%w: invalid project status", ErrValidation)
	ErrProjectUnarchive     = fmt.Errorf("%w: archived projects cannot be reactivated", ErrValidation)
	ErrNegativeInactiveDays = fmt.Errorf("%w: inactive days cannot be negative", ErrValidation)
)

// Project is a named container of tasks owned by a single user.
//
// Tasks and Owner are only populated when the project is read together
// with its details; they are never written through the project.
type Project struct {
	ID            uuid.UUID     `json:"id"`
	Name          string        `json:"name"`
	Description   *string       `json:"description,omitempty"`
	Status        ProjectStatus `json:"status"`
	OwnerID       uuid.UUID     `json:"owner_id"`
	ProvisionedAt *time.Time    `json:"provisioned_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	Tasks []Task `json:"tasks,omitempty"`
	Owner *User  `json:"owner,omitempty"`
}

// NewProject creates a new active Project for the given owner.
// The name is trimmed before validation.
func NewProject(ownerID uuid.UUID, name string, description *string) (*Project, error) {
	now := time.Now().UTC()
	project := &Project{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(name),
		Description: description,
		Status:      ProjectStatusActive,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := project.Validate(); err != nil {
		return nil, err
	}

	return project, nil
}

// Validate checks if the Project has valid data.
func (p *Project) Validate() error {
	if p.ID == uuid.Nil {
		return ErrEmptyProjectID
	}
	if err := ValidateProjectName(p.Name); err != nil {
		return err
	}
	if p.OwnerID == uuid.Nil {
		return ErrEmptyProjectOwnerID
	}
	if !p.Status.Valid() {
		return ErrInvalidProjectStatus
	}
	return nil
}

// ValidateProjectName checks the name length rules for a project.
func ValidateProjectName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyProjectName
	}
	if utf8.RuneCountInString(name) > MaxProjectNameLength {
		return ErrProjectNameTooLong
	}
	return nil
}

// Valid reports whether s is a known project status.
func (s ProjectStatus) Valid() bool {
	return s == ProjectStatusActive || s == ProjectStatusArchived
}

// CanTransitionTo returns an error if the project may not move to next.
// Archiving is one-way.
func (p *Project) CanTransitionTo(next ProjectStatus) error {
	if !next.Valid() {
		return ErrInvalidProjectStatus
	}
	if p.Status == ProjectStatusArchived && next == ProjectStatusActive {
		return ErrProjectUnarchive
	}
	return nil
}

// IsOwnedBy reports whether userID owns the project.
func (p *Project) IsOwnedBy(userID uuid.UUID) bool {
	return p.OwnerID == userID
}

// IsProvisioned reports whether the default tasks have been created.
func (p *Project) IsProvisioned() bool {
	return p.ProvisionedAt != nil
}

// ProjectMetrics is a derived summary of a project's task progress.
type ProjectMetrics struct {
	TotalTasks         int     `json:"totalTasks"`
	CompletedTasks     int     `json:"completedTasks"`
	PendingTasks       int     `json:"pendingTasks"`
	ProgressPercentage float64 `json:"progressPercentage"`
}

// NewProjectMetrics computes metrics from task counts. Progress is 0 for a
// project without tasks and is not rounded.
func NewProjectMetrics(total, completed int) ProjectMetrics {
	m := ProjectMetrics{
		TotalTasks:     total,
		CompletedTasks: completed,
		PendingTasks:   total - completed,
	}
	if total > 0 {
		m.ProgressPercentage = float64(completed) / float64(total) * 100
	}
	return m
}
