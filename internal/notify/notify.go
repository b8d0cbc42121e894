package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// WelcomeData fills the project welcome email.
type WelcomeData struct {
	ProjectName string
	OwnerName   string
}

// AssignmentData fills the task assignment email.
type AssignmentData struct {
	TaskTitle    string
	ProjectName  string
	AssigneeName string
}

// Sender delivers notifications. Implementations log failures instead of
// returning them.
type Sender interface {
	SendProjectWelcome(ctx context.Context, to string, data WelcomeData)
	SendTaskAssignment(ctx context.Context, to string, data AssignmentData)
}

type message struct {
	kind     string
	to       string
	subject  string
	template string
	data     any
}

func welcomeMessage(to string, data WelcomeData) message {
	return message{
		kind:     "project_welcome",
		to:       to,
		subject:  "Welcome to your new project: " + data.ProjectName,
		template: "welcome.html",
		data:     data,
	}
}

func assignmentMessage(to string, data AssignmentData) message {
	return message{
		kind:     "task_assignment",
		to:       to,
		subject:  "New Task Assignment: " + data.TaskTitle,
		template: "assignment.html",
		data:     data,
	}
}

// render executes the message template into an HTML body.
func (m message) render() (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, m.template, m.data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", m.template, err)
	}
	return buf.String(), nil
}
