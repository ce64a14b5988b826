package zone

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"

	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

const (
	// containerdNamespace isolates Reddwarf's containers from anything
	// else running against the same containerd socket.
	containerdNamespace = "reddwarf"

	defaultSocketPath = "/run/containerd/containerd.sock"
)

// ContainerdRuntime implements Runtime against a local containerd
// daemon. One zone corresponds to one containerd container built from
// the Pod's first spec.containers entry; Reddwarf's core is multi-
// container-aware at the API level, but the zone runtime contract only
// ever needs a single reported zone state per Pod to drive the
// controller's state machine, so additional containers in the same Pod
// are out of scope for this adapter.
type ContainerdRuntime struct {
	client *containerd.Client
}

// NewContainerdRuntime dials the containerd socket at socketPath (or the
// default well-known path if empty).
func NewContainerdRuntime(socketPath string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = defaultSocketPath
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}
	return &ContainerdRuntime{client: client}, nil
}

// Close releases the containerd client connection.
func (r *ContainerdRuntime) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func zoneID(pod *resource.Pod) string {
	if pod.Metadata.Namespace == "" {
		return pod.Metadata.Name
	}
	return pod.Metadata.Namespace + "-" + pod.Metadata.Name
}

func (r *ContainerdRuntime) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, containerdNamespace)
}

// EnsureZone pulls the Pod's primary container image, creates the
// container and snapshot if they don't exist yet, and starts its task if
// it is not already running.
func (r *ContainerdRuntime) EnsureZone(ctx context.Context, pod *resource.Pod) error {
	ctx = r.ctx(ctx)
	if len(pod.Spec.Containers) == 0 {
		return fmt.Errorf("pod %s has no containers to provision a zone for", pod.Metadata.Name)
	}
	id := zoneID(pod)
	imageRef := pod.Spec.Containers[0].Image

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		image, err := r.client.Pull(ctx, imageRef, containerd.WithPullUnpack)
		if err != nil {
			return fmt.Errorf("pull image %s: %w", imageRef, err)
		}
		container, err = r.client.NewContainer(
			ctx, id,
			containerd.WithImage(image),
			containerd.WithNewSnapshot(id+"-snapshot", image),
			containerd.WithNewSpec(oci.WithImageConfig(image)),
		)
		if err != nil {
			return fmt.Errorf("create container %s: %w", id, err)
		}
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		task, err = container.NewTask(ctx, cio.NullIO)
		if err != nil {
			return fmt.Errorf("create task for %s: %w", id, err)
		}
	}
	status, err := task.Status(ctx)
	if err == nil && status.Status == containerd.Running {
		return nil
	}
	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("start task for %s: %w", id, err)
	}
	return nil
}

// TerminateZone sends SIGTERM to the zone's task and force-kills it with
// SIGKILL if it has not exited within timeout.
func (r *ContainerdRuntime) TerminateZone(ctx context.Context, pod *resource.Pod, timeout time.Duration) error {
	ctx = r.ctx(ctx)
	id := zoneID(pod)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return nil
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM to %s: %w", id, err)
	}
	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("wait for %s to exit: %w", id, err)
	}
	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("force kill %s: %w", id, err)
		}
	}
	_, err = task.Delete(ctx)
	return err
}

// RemoveZone deletes the zone's container and its snapshot entirely.
// Calling it on a zone that no longer exists is a no-op.
func (r *ContainerdRuntime) RemoveZone(ctx context.Context, pod *resource.Pod) error {
	ctx = r.ctx(ctx)
	id := zoneID(pod)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return nil
	}
	if err := r.TerminateZone(ctx, pod, 10*time.Second); err != nil {
		return fmt.Errorf("terminate %s before removal: %w", id, err)
	}
	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("delete container %s: %w", id, err)
	}
	return nil
}

// ZoneState reports the containerd-observed state for pod's zone,
// translated into the vocabulary the controller's state machine expects.
func (r *ContainerdRuntime) ZoneState(ctx context.Context, pod *resource.Pod) (State, error) {
	ctx = r.ctx(ctx)
	id := zoneID(pod)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return Absent, nil
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return Installed, nil
	}
	status, err := task.Status(ctx)
	if err != nil {
		return ErrorState, fmt.Errorf("get task status for %s: %w", id, err)
	}
	switch status.Status {
	case containerd.Running, containerd.Paused:
		return Running, nil
	case containerd.Stopped:
		return Down, nil
	default:
		return Configured, nil
	}
}
