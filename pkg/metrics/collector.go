package metrics

import (
	"encoding/json"
	"time"

	"github.com/reddwarf-sh/reddwarf/pkg/events"
	"github.com/reddwarf-sh/reddwarf/pkg/resource"
	"github.com/reddwarf-sh/reddwarf/pkg/version"
)

var (
	podGVK  = resource.FromAPIVersionKind("v1", "Pod")
	nodeGVK = resource.FromAPIVersionKind("v1", "Node")
)

// Collector periodically samples gauges that no single write path owns:
// the live subscriber count and the Pod/Node distributions, which only
// make sense as a snapshot across the whole version store.
type Collector struct {
	vs     *version.Store
	bus    *events.Broker
	stopCh chan struct{}
}

// NewCollector builds a Collector sampling vs and bus.
func NewCollector(vs *version.Store, bus *events.Broker) *Collector {
	return &Collector{vs: vs, bus: bus, stopCh: make(chan struct{})}
}

// Start begins sampling every 15 seconds, collecting once immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts sampling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	WatchSubscribersActive.Set(float64(c.bus.SubscriberCount()))
	c.collectPods()
	c.collectNodes()
}

func (c *Collector) collectPods() {
	entries, err := c.vs.ListResourceEntries(podGVK, "")
	if err != nil {
		return
	}
	counts := map[[2]string]int{}
	for _, entry := range entries {
		var pod resource.Pod
		if err := json.Unmarshal(entry.Raw, &pod); err != nil {
			continue
		}
		counts[[2]string{pod.Metadata.Namespace, string(pod.Status.Phase)}]++
	}
	PodsByPhase.Reset()
	for k, n := range counts {
		PodsByPhase.WithLabelValues(k[0], k[1]).Set(float64(n))
	}
}

func (c *Collector) collectNodes() {
	entries, err := c.vs.ListResourceEntries(nodeGVK, "")
	if err != nil {
		return
	}
	counts := map[string]int{}
	for _, entry := range entries {
		var node resource.Node
		if err := json.Unmarshal(entry.Raw, &node); err != nil {
			continue
		}
		counts[readyStatus(&node)]++
	}
	NodesReady.Reset()
	for status, n := range counts {
		NodesReady.WithLabelValues(status).Set(float64(n))
	}
}

func readyStatus(node *resource.Node) string {
	for _, cond := range node.Status.Conditions {
		if cond.Type == resource.ConditionReady {
			return string(cond.Status)
		}
	}
	return "Unknown"
}
