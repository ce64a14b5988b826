package controller

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stretchr/testify/require"

	"github.com/reddwarf-sh/reddwarf/pkg/events"
	"github.com/reddwarf-sh/reddwarf/pkg/kv"
	"github.com/reddwarf-sh/reddwarf/pkg/resource"
	"github.com/reddwarf-sh/reddwarf/pkg/version"
	"github.com/reddwarf-sh/reddwarf/pkg/zone"
)

func newTestStore(t *testing.T) *version.Store {
	t.Helper()
	store, err := kv.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return version.New(store)
}

func createPod(t *testing.T, vs *version.Store, name, nodeName string) resource.Key {
	t.Helper()
	pod := &resource.Pod{
		TypeMeta: resource.TypeMeta{APIVersion: "v1", Kind: "Pod"},
		Metadata: resource.Metadata{Name: name, Namespace: "default"},
		Spec: resource.PodSpec{
			NodeName:   nodeName,
			Containers: []resource.Container{{Name: "app", Image: "busybox:latest"}},
		},
	}
	raw, err := json.Marshal(pod)
	require.NoError(t, err)
	key := resource.NewKey(pod.GVK(), "default", name)
	_, err = vs.ApplyChange([]version.Change{{Key: key, Op: version.OpPut, NewBytes: raw}}, "create pod")
	require.NoError(t, err)
	return key
}

func getPod(t *testing.T, vs *version.Store, key resource.Key) *resource.Pod {
	t.Helper()
	raw, err := vs.GetResource(key)
	require.NoError(t, err)
	var pod resource.Pod
	require.NoError(t, json.Unmarshal(raw, &pod))
	return &pod
}

func TestHandleActivePodEnsuresZoneAndAdvancesPhase(t *testing.T) {
	vs := newTestStore(t)
	bus := events.NewBroker()
	rt := zone.NewMockRuntime()
	c := New(vs, bus, rt)
	key := createPod(t, vs, "p1", "node-1")

	c.handlePod(context.Background(), key)
	pod := getPod(t, vs, key)
	require.Equal(t, resource.PodCreating, pod.Status.Phase)

	c.handlePod(context.Background(), key)
	pod = getPod(t, vs, key)
	require.Equal(t, resource.PodPending, pod.Status.Phase)

	rt.SetState(key, zone.Running)
	c.handlePod(context.Background(), key)
	pod = getPod(t, vs, key)
	require.Equal(t, resource.PodRunning, pod.Status.Phase)
}

func TestHandleActivePodSkipsUnscheduledPod(t *testing.T) {
	vs := newTestStore(t)
	bus := events.NewBroker()
	rt := zone.NewMockRuntime()
	c := New(vs, bus, rt)
	key := createPod(t, vs, "p1", "")

	c.handlePod(context.Background(), key)
	pod := getPod(t, vs, key)
	require.Empty(t, pod.Status.Phase)
}

func TestHandleTerminatingPodAutoFinalizesWhenGoneAndNoFinalizers(t *testing.T) {
	vs := newTestStore(t)
	bus := events.NewBroker()
	rt := zone.NewMockRuntime()
	c := New(vs, bus, rt)
	key := createPod(t, vs, "p1", "node-1")
	rt.SetState(key, zone.Running)

	head, _, err := vs.Head(key)
	require.NoError(t, err)
	pod := getPod(t, vs, key)
	raw, err := json.Marshal(pod)
	require.NoError(t, err)
	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &obj))
	now := metav1.NewTime(time.Now().UTC())
	md := pod.Metadata
	md.DeletionTimestamp = &now
	mdRaw, err := json.Marshal(md)
	require.NoError(t, err)
	obj["metadata"] = mdRaw
	raw, err = json.Marshal(obj)
	require.NoError(t, err)
	_, err = vs.ApplyChange([]version.Change{{Key: key, Op: version.OpPut, NewBytes: raw, PrevCommitID: head}}, "delete pod")
	require.NoError(t, err)

	c.handlePod(context.Background(), key)
	state, err := rt.ZoneState(context.Background(), pod)
	require.NoError(t, err)
	require.Equal(t, zone.ShuttingDown, state)

	_, exists, err := vs.Head(key)
	require.NoError(t, err)
	require.True(t, exists)

	rt.SetState(key, zone.Absent)
	c.handlePod(context.Background(), key)

	_, exists, err = vs.Head(key)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestNodeHealthSweepFlipsReadyUnknownOnStaleHeartbeat(t *testing.T) {
	vs := newTestStore(t)
	bus := events.NewBroker()
	rt := zone.NewMockRuntime()
	c := New(vs, bus, rt)

	node := &resource.Node{
		TypeMeta: resource.TypeMeta{APIVersion: "v1", Kind: "Node"},
		Metadata: resource.Metadata{Name: "node-1"},
		Status: resource.NodeStatus{
			LastHeartbeatTime: &metav1.Time{Time: time.Now().UTC().Add(-2 * time.Minute)},
		},
	}
	raw, err := json.Marshal(node)
	require.NoError(t, err)
	key := resource.ClusterScoped(node.GVK(), "node-1")
	_, err = vs.ApplyChange([]version.Change{{Key: key, Op: version.OpPut, NewBytes: raw}}, "register node")
	require.NoError(t, err)

	c.nodeHealthSweep(context.Background())

	rawAfter, err := vs.GetResource(key)
	require.NoError(t, err)
	var after resource.Node
	require.NoError(t, json.Unmarshal(rawAfter, &after))
	require.True(t, readyIsUnknown(&after))
}

func TestNodeHealthSweepLeavesFreshHeartbeatAlone(t *testing.T) {
	vs := newTestStore(t)
	bus := events.NewBroker()
	rt := zone.NewMockRuntime()
	c := New(vs, bus, rt)

	node := &resource.Node{
		TypeMeta: resource.TypeMeta{APIVersion: "v1", Kind: "Node"},
		Metadata: resource.Metadata{Name: "node-1"},
		Status: resource.NodeStatus{
			LastHeartbeatTime: &metav1.Time{Time: time.Now().UTC()},
		},
	}
	raw, err := json.Marshal(node)
	require.NoError(t, err)
	key := resource.ClusterScoped(node.GVK(), "node-1")
	_, err = vs.ApplyChange([]version.Change{{Key: key, Op: version.OpPut, NewBytes: raw}}, "register node")
	require.NoError(t, err)

	c.nodeHealthSweep(context.Background())

	rawAfter, err := vs.GetResource(key)
	require.NoError(t, err)
	var after resource.Node
	require.NoError(t, json.Unmarshal(rawAfter, &after))
	require.False(t, readyIsUnknown(&after))
}

func TestLivenessProbeFailureTransitionsPodToFailed(t *testing.T) {
	vs := newTestStore(t)
	bus := events.NewBroker()
	rt := zone.NewMockRuntime()
	c := New(vs, bus, rt)

	pod := &resource.Pod{
		TypeMeta: resource.TypeMeta{APIVersion: "v1", Kind: "Pod"},
		Metadata: resource.Metadata{Name: "p1", Namespace: "default"},
		Spec: resource.PodSpec{
			NodeName:   "node-1",
			Containers: []resource.Container{{Name: "app", Image: "busybox:latest"}},
			LivenessProbe: &resource.Probe{
				Exec:             &resource.ExecAction{Command: []string{"/no/such/binary"}},
				FailureThreshold: 2,
			},
		},
	}
	raw, err := json.Marshal(pod)
	require.NoError(t, err)
	key := resource.NewKey(pod.GVK(), "default", "p1")
	_, err = vs.ApplyChange([]version.Change{{Key: key, Op: version.OpPut, NewBytes: raw}}, "create pod")
	require.NoError(t, err)
	rt.SetState(key, zone.Running)

	c.handlePod(context.Background(), key) // "" -> Creating
	c.handlePod(context.Background(), key) // Creating -> Running, probe failure #1
	got := getPod(t, vs, key)
	require.Equal(t, resource.PodRunning, got.Status.Phase)

	c.handlePod(context.Background(), key) // probe failure #2 crosses threshold
	got = getPod(t, vs, key)
	require.Equal(t, resource.PodFailed, got.Status.Phase)
}

func TestStartStopRunsClean(t *testing.T) {
	vs := newTestStore(t)
	bus := events.NewBroker()
	rt := zone.NewMockRuntime()
	c := New(vs, bus, rt)

	c.Start()
	time.Sleep(10 * time.Millisecond)
	c.Stop()
}
