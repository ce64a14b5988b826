package zone

import (
	"context"
	"fmt"
	"time"

	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

// ProbeResult is the outcome of a single liveness check.
type ProbeResult struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// ProbeChecker performs one kind of liveness check against a running zone.
type ProbeChecker interface {
	Check(ctx context.Context) ProbeResult
}

// ProbeConfig controls how failures accumulate into an unhealthy verdict.
type ProbeConfig struct {
	Timeout          time.Duration
	FailureThreshold int
}

func probeConfigFor(p *resource.Probe) ProbeConfig {
	cfg := ProbeConfig{Timeout: 10 * time.Second, FailureThreshold: 3}
	if p.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(p.TimeoutSeconds) * time.Second
	}
	if p.FailureThreshold > 0 {
		cfg.FailureThreshold = int(p.FailureThreshold)
	}
	return cfg
}

// ProbeStatus tracks consecutive probe outcomes for one Pod across sweeps.
// The controller keeps one of these per Pod key in memory; it is rebuilt
// from scratch (optimistically healthy) if the controller restarts, which
// only delays a Failed transition by up to FailureThreshold cycles.
type ProbeStatus struct {
	ConsecutiveFailures int
	Healthy             bool
	LastResult          ProbeResult
}

// NewProbeStatus starts out healthy, same as a container that hasn't
// failed a check yet.
func NewProbeStatus() *ProbeStatus {
	return &ProbeStatus{Healthy: true}
}

// Update folds one check result into status, flipping Healthy to false
// only once FailureThreshold consecutive failures have been observed.
func (s *ProbeStatus) Update(result ProbeResult, cfg ProbeConfig) {
	s.LastResult = result
	if result.Healthy {
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}
	s.ConsecutiveFailures++
	if s.ConsecutiveFailures >= cfg.FailureThreshold {
		s.Healthy = false
	}
}

// CheckPod runs pod's configured liveness probe once, if it has one, and
// folds the result into status. It is a no-op if pod has no probe
// configured.
func CheckPod(ctx context.Context, pod *resource.Pod, status *ProbeStatus) {
	probe := pod.Spec.LivenessProbe
	if probe == nil {
		return
	}
	checker := checkerFor(probe)
	if checker == nil {
		return
	}
	timeout := probeConfigFor(probe).Timeout
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	status.Update(checker.Check(checkCtx), probeConfigFor(probe))
}

func checkerFor(p *resource.Probe) ProbeChecker {
	switch {
	case p.HTTPGet != nil:
		return &httpProbeChecker{action: p.HTTPGet}
	case p.TCPSocket != nil:
		return &tcpProbeChecker{action: p.TCPSocket}
	case p.Exec != nil:
		return &execProbeChecker{action: p.Exec}
	default:
		return nil
	}
}

func hostPort(host string, port int32) string {
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, port)
}
