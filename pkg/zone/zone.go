// Package zone defines the external runtime collaborator contract the
// controller drives Pods through, plus the zone-state → phase mapping
// table (§4.4). Nothing in this package is used by pkg/kv or pkg/version:
// pkg/controller drives it, and cmd/reddwarf picks which Runtime (mock or
// the containerd adapter) to build in the same process as the store.
package zone

import (
	"context"
	"time"

	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

// State is the external runtime's report of one zone's lifecycle stage.
// The controller never asserts a state itself; it only reads what the
// runtime reports and maps it through PhaseFor.
type State string

const (
	Configured   State = "Configured"
	Installed    State = "Installed"
	Ready        State = "Ready"
	Running      State = "Running"
	ShuttingDown State = "ShuttingDown"
	Down         State = "Down"
	Uninstalled  State = "Uninstalled"
	Absent       State = "Absent"
	ErrorState   State = "Error"
)

// PhaseFor maps a runtime-reported zone state onto the Pod phase the
// controller writes to status.phase, per spec's zone-state table.
// Any state outside the named vocabulary maps to Failed, same as an
// explicit ErrorState.
func PhaseFor(s State) resource.PodPhase {
	switch s {
	case Configured, Installed:
		return resource.PodPending
	case Ready, Running:
		return resource.PodRunning
	case ShuttingDown:
		return resource.PodTerminating
	case Down, Uninstalled, Absent:
		return resource.PodTerminated
	default:
		return resource.PodFailed
	}
}

// IsGone reports whether state reflects a zone the runtime no longer
// tracks at all — the signal the controller waits for before finalizing
// a Terminating Pod with no external finalizers.
func IsGone(s State) bool {
	switch s {
	case Down, Uninstalled, Absent:
		return true
	default:
		return false
	}
}

// Runtime is the node-local zone runtime the controller drives Pods
// through. It is out of scope per spec §1 ("the node-side OS/zone
// runtime" is named only by the interface the core consumes); every
// method must be safe to call repeatedly for the same Pod.
type Runtime interface {
	// EnsureZone creates and starts the zone for pod if it does not
	// already exist and is not already running. Idempotent.
	EnsureZone(ctx context.Context, pod *resource.Pod) error

	// TerminateZone requests graceful shutdown of pod's zone, honoring
	// timeout before the runtime is expected to force-kill.
	TerminateZone(ctx context.Context, pod *resource.Pod, timeout time.Duration) error

	// RemoveZone permanently deletes pod's zone and any runtime-side
	// resources (snapshots, mounts) associated with it.
	RemoveZone(ctx context.Context, pod *resource.Pod) error

	// ZoneState reports pod's current zone state. Absent is returned,
	// not an error, for a Pod the runtime has never heard of.
	ZoneState(ctx context.Context, pod *resource.Pod) (State, error)
}
