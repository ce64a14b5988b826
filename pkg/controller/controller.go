package controller

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/reddwarf-sh/reddwarf/pkg/apierrors"
	"github.com/reddwarf-sh/reddwarf/pkg/events"
	"github.com/reddwarf-sh/reddwarf/pkg/log"
	"github.com/reddwarf-sh/reddwarf/pkg/metrics"
	"github.com/reddwarf-sh/reddwarf/pkg/resource"
	"github.com/reddwarf-sh/reddwarf/pkg/version"
	"github.com/reddwarf-sh/reddwarf/pkg/zone"
)

const (
	podSweepInterval  = 30 * time.Second
	nodeSweepInterval = 15 * time.Second
	nodeStaleAfter    = 40 * time.Second
	terminateTimeout  = 10 * time.Second

	backoffInitial = 1 * time.Second
	backoffCap     = 30 * time.Second
)

var (
	podGVK  = resource.FromAPIVersionKind("v1", "Pod")
	nodeGVK = resource.FromAPIVersionKind("v1", "Node")
)

// Controller drives Pod and Node objects through the runtime, reacting to
// the events bus as soon as a commit lands and falling back to periodic
// sweeps to recover from anything missed — a crash between a commit and
// its publish, an overflowed watch subscriber, a controller restart.
type Controller struct {
	vs      *version.Store
	bus     *events.Broker
	runtime zone.Runtime

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	probeMu sync.Mutex
	probes  map[resource.Key]*zone.ProbeStatus

	backoffMu sync.Mutex
	backoffs  map[resource.Key]*backoffState
}

// backoffState tracks one key's retry schedule after a transient error.
// interval starts at backoffInitial and doubles on each consecutive
// failure, capped at backoffCap; until is when the next attempt is due.
type backoffState struct {
	interval time.Duration
	until    time.Time
}

// New builds a Controller. It does nothing until Start is called.
func New(vs *version.Store, bus *events.Broker, runtime zone.Runtime) *Controller {
	return &Controller{
		vs:       vs,
		bus:      bus,
		runtime:  runtime,
		probes:   map[resource.Key]*zone.ProbeStatus{},
		backoffs: map[resource.Key]*backoffState{},
	}
}

// backingOff reports whether key's next retry attempt is still in the
// future. Both the event loop and the sweep loops call this before doing
// any work for a key, so a key with a failing transient dependency is
// retried on an escalating schedule instead of every sweep tick or event.
func (c *Controller) backingOff(key resource.Key) bool {
	c.backoffMu.Lock()
	defer c.backoffMu.Unlock()
	st, ok := c.backoffs[key]
	return ok && time.Now().Before(st.until)
}

// recordTransientError schedules key's next retry, doubling the previous
// interval (or starting at backoffInitial) and capping it at backoffCap.
func (c *Controller) recordTransientError(key resource.Key) {
	c.backoffMu.Lock()
	defer c.backoffMu.Unlock()
	st, ok := c.backoffs[key]
	if !ok {
		st = &backoffState{interval: backoffInitial}
		c.backoffs[key] = st
	} else if st.interval < backoffCap {
		st.interval *= 2
		if st.interval > backoffCap {
			st.interval = backoffCap
		}
	}
	st.until = time.Now().Add(st.interval)
}

// clearBackoff resets key's retry schedule after a successful pass.
func (c *Controller) clearBackoff(key resource.Key) {
	c.backoffMu.Lock()
	delete(c.backoffs, key)
	c.backoffMu.Unlock()
}

// Start launches the event dispatcher and the two sweep loops. Safe to
// call once; call Stop to shut everything down.
func (c *Controller) Start() {
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wg.Add(3)
	go c.runEventLoop()
	go c.runPodSweepLoop()
	go c.runNodeSweepLoop()
}

// Stop cancels every loop and waits for them to return.
func (c *Controller) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) runEventLoop() {
	defer c.wg.Done()
	sub := c.bus.Subscribe()
	defer func() { c.bus.Unsubscribe(sub) }()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				if !sub.Overflowed() {
					return
				}
				log.WithComponent("controller").Warn().Msg("event bus overflowed, resubscribing; next sweep will catch up")
				sub = c.bus.Subscribe()
				continue
			}
			if ev.Key.GVK != podGVK {
				continue
			}
			c.handlePod(c.ctx, ev.Key)
		}
	}
}

func (c *Controller) runPodSweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(podSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.podSweep(c.ctx)
		}
	}
}

func (c *Controller) runNodeSweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(nodeSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.nodeHealthSweep(c.ctx)
		}
	}
}

func (c *Controller) podSweep(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	entries, err := c.vs.ListResourceEntries(podGVK, "")
	if err != nil {
		log.WithComponent("controller").Warn().Err(err).Msg("pod sweep: list")
		return
	}
	for _, entry := range entries {
		c.handlePod(ctx, entry.Key)
	}
}

// handlePod drives one Pod one step through its state machine. It is safe
// to call repeatedly for the same key — every branch either observes no
// change and returns, or writes a status update whose PrevCommitID is the
// head it just read, so a concurrent write loses the race cleanly via
// version.ConflictError rather than corrupting anything.
func (c *Controller) handlePod(ctx context.Context, key resource.Key) {
	if c.backingOff(key) {
		return
	}
	entry, err := c.vs.GetResourceEntry(key)
	if err != nil {
		if !apierrors.Is(err, apierrors.NotFound) {
			log.WithResource(key.GVK.String(), key.Namespace, key.Name).Warn().Err(err).Msg("get pod")
			c.recordTransientError(key)
		}
		return
	}
	var pod resource.Pod
	if err := json.Unmarshal(entry.Raw, &pod); err != nil {
		log.WithResource(key.GVK.String(), key.Namespace, key.Name).Error().Err(err).Msg("decode pod")
		c.recordTransientError(key)
		return
	}

	if pod.Metadata.IsDeleting() {
		c.handleTerminatingPod(ctx, key, &pod)
		return
	}
	c.handleActivePod(ctx, key, &pod)
}

func (c *Controller) handleActivePod(ctx context.Context, key resource.Key, pod *resource.Pod) {
	if pod.Spec.NodeName == "" {
		// Not yet scheduled; nothing for the controller to drive.
		return
	}
	if pod.Status.Phase == "" {
		// The zone-state table alone never produces Creating — Configured
		// and Installed both map to Pending — so the first pass after
		// scheduling marks it explicitly, before the runtime has reported
		// anything back. The next pass's zone-state mapping supersedes it.
		c.setPodPhase(key, resource.PodCreating)
		return
	}
	if err := c.runtime.EnsureZone(ctx, pod); err != nil {
		log.WithResource(key.GVK.String(), key.Namespace, key.Name).Warn().Err(err).Msg("ensure zone")
		c.recordTransientError(key)
		return
	}
	state, err := c.runtime.ZoneState(ctx, pod)
	if err != nil {
		log.WithResource(key.GVK.String(), key.Namespace, key.Name).Warn().Err(err).Msg("read zone state")
		c.recordTransientError(key)
		return
	}
	c.clearBackoff(key)
	phase := zone.PhaseFor(state)
	if phase == resource.PodRunning && pod.Spec.LivenessProbe != nil {
		if !c.probeHealthy(ctx, key, pod) {
			phase = resource.PodFailed
		}
	}
	if phase == pod.Status.Phase {
		return
	}
	c.setPodPhase(key, phase)
}

// probeHealthy runs key's liveness probe once and folds the result into
// its running tally, returning false only once FailureThreshold
// consecutive checks have failed.
func (c *Controller) probeHealthy(ctx context.Context, key resource.Key, pod *resource.Pod) bool {
	c.probeMu.Lock()
	status, ok := c.probes[key]
	if !ok {
		status = zone.NewProbeStatus()
		c.probes[key] = status
	}
	c.probeMu.Unlock()

	zone.CheckPod(ctx, pod, status)
	if !status.Healthy {
		log.WithResource(key.GVK.String(), key.Namespace, key.Name).Warn().
			Str("probe_message", status.LastResult.Message).Msg("liveness probe failed")
	}
	return status.Healthy
}

func (c *Controller) clearProbeStatus(key resource.Key) {
	c.probeMu.Lock()
	delete(c.probes, key)
	c.probeMu.Unlock()
}

func (c *Controller) handleTerminatingPod(ctx context.Context, key resource.Key, pod *resource.Pod) {
	if err := c.runtime.TerminateZone(ctx, pod, terminateTimeout); err != nil {
		log.WithResource(key.GVK.String(), key.Namespace, key.Name).Warn().Err(err).Msg("terminate zone")
		c.recordTransientError(key)
	}
	state, err := c.runtime.ZoneState(ctx, pod)
	if err != nil {
		log.WithResource(key.GVK.String(), key.Namespace, key.Name).Warn().Err(err).Msg("read zone state")
		c.recordTransientError(key)
		return
	}
	c.clearBackoff(key)
	if !zone.IsGone(state) {
		if pod.Status.Phase != resource.PodTerminating {
			c.setPodPhase(key, resource.PodTerminating)
		}
		return
	}
	if pod.Status.Phase != resource.PodTerminated {
		c.setPodPhase(key, resource.PodTerminated)
	}
	if pod.Metadata.HasFinalizers() {
		return
	}
	c.finalizePod(key)
}

func (c *Controller) setPodPhase(key resource.Key, phase resource.PodPhase) {
	timer := metrics.NewTimer()
	commit, err := c.vs.UpdateStatus(key, func(raw json.RawMessage) (json.RawMessage, error) {
		var status resource.PodStatus
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &status); err != nil {
				return nil, apierrors.Wrap(apierrors.Internal, err, "decode pod status")
			}
		}
		status.Phase = phase
		return json.Marshal(status)
	})
	timer.ObserveDuration(metrics.CommitApplyDuration)
	if err != nil {
		if apierrors.Is(err, apierrors.Conflict) {
			metrics.ConflictsTotal.WithLabelValues(key.GVK.Kind).Inc()
		}
		if !apierrors.Is(err, apierrors.Conflict) && !apierrors.Is(err, apierrors.NotFound) {
			log.WithResource(key.GVK.String(), key.Namespace, key.Name).Warn().Err(err).Msg("set pod phase")
			c.recordTransientError(key)
		}
		return
	}
	metrics.CommitsTotal.Inc()
	c.clearBackoff(key)
	c.publish(events.Modified, key, commit.ID)
}

func (c *Controller) finalizePod(key resource.Key) {
	head, exists, err := c.vs.Head(key)
	if err != nil || !exists {
		return
	}
	timer := metrics.NewTimer()
	commit, err := c.vs.ApplyChange([]version.Change{{Key: key, Op: version.OpDelete, PrevCommitID: head}}, "auto-finalize "+key.String())
	timer.ObserveDuration(metrics.CommitApplyDuration)
	if err != nil {
		if apierrors.Is(err, apierrors.Conflict) {
			metrics.ConflictsTotal.WithLabelValues(key.GVK.Kind).Inc()
		}
		if !apierrors.Is(err, apierrors.Conflict) && !apierrors.Is(err, apierrors.NotFound) {
			log.WithResource(key.GVK.String(), key.Namespace, key.Name).Warn().Err(err).Msg("finalize pod")
			c.recordTransientError(key)
		}
		return
	}
	metrics.CommitsTotal.Inc()
	c.clearProbeStatus(key)
	c.clearBackoff(key)
	c.publish(events.Deleted, key, commit.ID)
}

func (c *Controller) nodeHealthSweep(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	entries, err := c.vs.ListResourceEntries(nodeGVK, "")
	if err != nil {
		log.WithComponent("controller").Warn().Err(err).Msg("node health sweep: list")
		return
	}
	now := time.Now().UTC()
	for _, entry := range entries {
		var node resource.Node
		if err := json.Unmarshal(entry.Raw, &node); err != nil {
			log.WithComponent("controller").Error().Err(err).Msg("decode node")
			continue
		}
		if node.Status.LastHeartbeatTime == nil {
			continue
		}
		if now.Sub(node.Status.LastHeartbeatTime.Time) <= nodeStaleAfter {
			continue
		}
		if readyIsUnknown(&node) {
			continue
		}
		if c.backingOff(entry.Key) {
			continue
		}
		c.markNodeUnknown(entry.Key)
	}
}

func (c *Controller) markNodeUnknown(key resource.Key) {
	timer := metrics.NewTimer()
	commit, err := c.vs.UpdateStatus(key, func(raw json.RawMessage) (json.RawMessage, error) {
		var status resource.NodeStatus
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &status); err != nil {
				return nil, apierrors.Wrap(apierrors.Internal, err, "decode node status")
			}
		}
		setReadyUnknown(&status)
		return json.Marshal(status)
	})
	timer.ObserveDuration(metrics.CommitApplyDuration)
	if err != nil {
		if apierrors.Is(err, apierrors.Conflict) {
			metrics.ConflictsTotal.WithLabelValues(key.GVK.Kind).Inc()
		}
		if !apierrors.Is(err, apierrors.Conflict) && !apierrors.Is(err, apierrors.NotFound) {
			log.WithResource(key.GVK.String(), key.Namespace, key.Name).Warn().Err(err).Msg("mark node unready")
			c.recordTransientError(key)
		}
		return
	}
	metrics.CommitsTotal.Inc()
	c.clearBackoff(key)
	c.publish(events.Modified, key, commit.ID)
}

func (c *Controller) publish(kind events.Kind, key resource.Key, commitID string) {
	c.bus.Publish(&events.Event{Kind: kind, Key: key, CommitID: commitID})
}
