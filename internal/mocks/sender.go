package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/pm-api/internal/notify"
)

// SentWelcome records one SendProjectWelcome call.
type SentWelcome struct {
	To   string
	Data notify.WelcomeData
}

// SentAssignment records one SendTaskAssignment call.
type SentAssignment struct {
	To   string
	Data notify.AssignmentData
}

// MockSender implements notify.Sender and records every notification.
type MockSender struct {
	mu          sync.Mutex
	welcomes    []SentWelcome
	assignments []SentAssignment
}

var _ notify.Sender = (*MockSender)(nil)

// SendProjectWelcome implements notify.Sender.
func (m *MockSender) SendProjectWelcome(ctx context.Context, to string, data notify.WelcomeData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomes = append(m.welcomes, SentWelcome{To: to, Data: data})
}

// SendTaskAssignment implements notify.Sender.
func (m *MockSender) SendTaskAssignment(ctx context.Context, to string, data notify.AssignmentData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments = append(m.assignments, SentAssignment{To: to, Data: data})
}

// Welcomes returns the recorded welcome notifications.
func (m *MockSender) Welcomes() []SentWelcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentWelcome(nil), m.welcomes...)
}

// Assignments returns the recorded assignment notifications.
func (m *MockSender) Assignments() []SentAssignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentAssignment(nil), m.assignments...)
}
