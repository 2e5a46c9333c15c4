package mqtt

import (
	"context"
	"fmt"
	"sync"

	coremqtt "github.com/kilianp07/displib/core/mqtt"
)

// Publisher mirrors the core mqtt.Publisher interface.
type Publisher = coremqtt.Publisher

// MockPublisher records messages in memory. It is used by tests and by the
// serve command when no broker is configured but publishing is requested.
type MockPublisher struct {
	mu        sync.Mutex
	Solutions []coremqtt.SolutionMessage
	Progress  []coremqtt.ProgressMessage
	// FailRuns makes publishing fail for the listed run ids.
	FailRuns map[string]bool
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{FailRuns: make(map[string]bool)}
}

// PublishSolution records the message or fails if configured to.
func (m *MockPublisher) PublishSolution(_ context.Context, msg coremqtt.SolutionMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRuns[msg.RunID] {
		return fmt.Errorf("publish failed for %s", msg.RunID)
	}
	m.Solutions = append(m.Solutions, msg)
	return nil
}

// PublishProgress records the message.
func (m *MockPublisher) PublishProgress(_ context.Context, msg coremqtt.ProgressMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Progress = append(m.Progress, msg)
	return nil
}

// Close is a no-op.
func (m *MockPublisher) Close() {}

// Snapshot returns copies of the recorded messages.
func (m *MockPublisher) Snapshot() ([]coremqtt.SolutionMessage, []coremqtt.ProgressMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]coremqtt.SolutionMessage(nil), m.Solutions...), append([]coremqtt.ProgressMessage(nil), m.Progress...)
}
