package zone

import (
	"context"
	"sync"
	"time"

	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

// MockRuntime is an in-memory Runtime for controller tests: it tracks a
// State per Pod key and lets the test drive state transitions directly,
// without a real node-local runtime.
type MockRuntime struct {
	mu     sync.Mutex
	states map[resource.Key]State
}

// NewMockRuntime returns an empty MockRuntime; every Pod starts Absent
// until EnsureZone or SetState is called for its key.
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{states: map[resource.Key]State{}}
}

func podKeyOf(pod *resource.Pod) resource.Key {
	return resource.NewKey(pod.GVK(), pod.Metadata.Namespace, pod.Metadata.Name)
}

// SetState lets a test directly set the reported state for a Pod, as if
// the runtime had observed that transition on its own.
func (m *MockRuntime) SetState(key resource.Key, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = s
}

func (m *MockRuntime) EnsureZone(ctx context.Context, pod *resource.Pod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := podKeyOf(pod)
	switch m.states[key] {
	case Ready, Running:
		return nil
	}
	m.states[key] = Configured
	return nil
}

func (m *MockRuntime) TerminateZone(ctx context.Context, pod *resource.Pod, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := podKeyOf(pod)
	switch m.states[key] {
	case Down, Uninstalled, Absent, "":
		// Nothing running to terminate, same as containerd.LoadContainer
		// failing to find the container.
		return nil
	}
	m.states[key] = ShuttingDown
	return nil
}

func (m *MockRuntime) RemoveZone(ctx context.Context, pod *resource.Pod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[podKeyOf(pod)] = Absent
	return nil
}

func (m *MockRuntime) ZoneState(ctx context.Context, pod *resource.Pod) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[podKeyOf(pod)]
	if !ok {
		return Absent, nil
	}
	return s, nil
}
