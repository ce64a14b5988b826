package zone

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

func TestPhaseForCoversEveryState(t *testing.T) {
	cases := map[State]resource.PodPhase{
		Configured:   resource.PodPending,
		Installed:    resource.PodPending,
		Ready:        resource.PodRunning,
		Running:      resource.PodRunning,
		ShuttingDown: resource.PodTerminating,
		Down:         resource.PodTerminated,
		Uninstalled:  resource.PodTerminated,
		Absent:       resource.PodTerminated,
		ErrorState:   resource.PodFailed,
		State("unknown-state"): resource.PodFailed,
	}
	for state, want := range cases {
		assert.Equal(t, want, PhaseFor(state), "state %s", state)
	}
}

func TestIsGone(t *testing.T) {
	assert.True(t, IsGone(Down))
	assert.True(t, IsGone(Uninstalled))
	assert.True(t, IsGone(Absent))
	assert.False(t, IsGone(Running))
	assert.False(t, IsGone(Configured))
}

func testPod(name string) *resource.Pod {
	return &resource.Pod{
		TypeMeta: resource.TypeMeta{APIVersion: "v1", Kind: "Pod"},
		Metadata: resource.Metadata{Name: name, Namespace: "default"},
		Spec: resource.PodSpec{
			Containers: []resource.Container{{Name: "app", Image: "busybox:latest"}},
		},
	}
}

func TestMockRuntimeEnsureThenObserve(t *testing.T) {
	m := NewMockRuntime()
	pod := testPod("p1")
	ctx := context.Background()

	state, err := m.ZoneState(ctx, pod)
	require.NoError(t, err)
	assert.Equal(t, Absent, state)

	require.NoError(t, m.EnsureZone(ctx, pod))
	state, err = m.ZoneState(ctx, pod)
	require.NoError(t, err)
	assert.Equal(t, Configured, state)

	key := resource.NewKey(pod.GVK(), pod.Metadata.Namespace, pod.Metadata.Name)
	m.SetState(key, Running)
	state, err = m.ZoneState(ctx, pod)
	require.NoError(t, err)
	assert.Equal(t, Running, state)
}

func TestMockRuntimeTerminateThenRemove(t *testing.T) {
	m := NewMockRuntime()
	pod := testPod("p1")
	ctx := context.Background()
	key := resource.NewKey(pod.GVK(), pod.Metadata.Namespace, pod.Metadata.Name)

	m.SetState(key, Running)
	require.NoError(t, m.TerminateZone(ctx, pod, 0))
	state, _ := m.ZoneState(ctx, pod)
	assert.Equal(t, ShuttingDown, state)

	require.NoError(t, m.RemoveZone(ctx, pod))
	state, _ = m.ZoneState(ctx, pod)
	assert.Equal(t, Absent, state)
}
