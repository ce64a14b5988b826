package resource

import metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

// TypeMeta carries the apiVersion/kind pair every resource envelope embeds.
type TypeMeta struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
}

// GVK derives this object's GroupVersionKind from its embedded TypeMeta.
func (t TypeMeta) GVK() GroupVersionKind {
	return FromAPIVersionKind(t.APIVersion, t.Kind)
}

// Object is implemented by every typed resource envelope (Pod, Service,
// Namespace, Node). It gives VS and API uniform access to identity and
// metadata without reflecting into the spec/status payload.
type Object interface {
	GVK() GroupVersionKind
	GetMetadata() *Metadata
}

// --- Pod -------------------------------------------------------------

// PodPhase is the coarse lifecycle state reported in Pod.status.phase.
type PodPhase string

const (
	PodPending     PodPhase = "Pending"
	PodCreating    PodPhase = "Creating"
	PodRunning     PodPhase = "Running"
	PodTerminating PodPhase = "Terminating"
	PodTerminated  PodPhase = "Terminated"
	PodFailed      PodPhase = "Failed"
)

// Container is the minimal container spec the core validates and stores;
// the node runtime interprets the rest.
type Container struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

type PodSpec struct {
	NodeName      string      `json:"nodeName,omitempty"`
	Containers    []Container `json:"containers"`
	LivenessProbe *Probe      `json:"livenessProbe,omitempty"`
}

// Probe describes how the controller checks a running Pod's liveness.
// Exactly one of HTTPGet, TCPSocket or Exec should be set; if more than
// one is, HTTPGet wins, then TCPSocket, then Exec.
type Probe struct {
	HTTPGet   *HTTPGetAction  `json:"httpGet,omitempty"`
	TCPSocket *TCPSocketAction `json:"tcpSocket,omitempty"`
	Exec      *ExecAction     `json:"exec,omitempty"`

	PeriodSeconds    int32 `json:"periodSeconds,omitempty"`
	TimeoutSeconds   int32 `json:"timeoutSeconds,omitempty"`
	FailureThreshold int32 `json:"failureThreshold,omitempty"`
}

type HTTPGetAction struct {
	Host string `json:"host,omitempty"`
	Port int32  `json:"port"`
	Path string `json:"path,omitempty"`
}

type TCPSocketAction struct {
	Host string `json:"host,omitempty"`
	Port int32  `json:"port"`
}

type ExecAction struct {
	Command []string `json:"command"`
}

type PodStatus struct {
	Phase      PodPhase           `json:"phase,omitempty"`
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// Pod is the namespaced workload kind.
type Pod struct {
	TypeMeta `json:",inline"`
	Metadata Metadata  `json:"metadata"`
	Spec     PodSpec   `json:"spec"`
	Status   PodStatus `json:"status,omitempty"`
}

func (p *Pod) GVK() GroupVersionKind    { return p.TypeMeta.GVK() }
func (p *Pod) GetMetadata() *Metadata   { return &p.Metadata }

// --- Service -----------------------------------------------------------

type ServicePort struct {
	Name       string `json:"name,omitempty"`
	Port       int32  `json:"port"`
	TargetPort int32  `json:"targetPort,omitempty"`
}

type ServiceSpec struct {
	Selector map[string]string `json:"selector,omitempty"`
	Ports    []ServicePort     `json:"ports,omitempty"`
}

type ServiceStatus struct{}

// Service is the namespaced load-balancing/selector kind.
type Service struct {
	TypeMeta `json:",inline"`
	Metadata Metadata      `json:"metadata"`
	Spec     ServiceSpec   `json:"spec"`
	Status   ServiceStatus `json:"status,omitempty"`
}

func (s *Service) GVK() GroupVersionKind  { return s.TypeMeta.GVK() }
func (s *Service) GetMetadata() *Metadata { return &s.Metadata }

// --- Namespace -----------------------------------------------------------

type NamespacePhase string

const (
	NamespaceActive      NamespacePhase = "Active"
	NamespaceTerminating NamespacePhase = "Terminating"
)

type NamespaceSpec struct{}

type NamespaceStatus struct {
	Phase NamespacePhase `json:"phase,omitempty"`
}

// Namespace is the cluster-scoped grouping kind; "default" bootstraps
// implicitly on first use of a namespaced resource.
type Namespace struct {
	TypeMeta `json:",inline"`
	Metadata Metadata        `json:"metadata"`
	Spec     NamespaceSpec   `json:"spec"`
	Status   NamespaceStatus `json:"status,omitempty"`
}

func (n *Namespace) GVK() GroupVersionKind  { return n.TypeMeta.GVK() }
func (n *Namespace) GetMetadata() *Metadata { return &n.Metadata }

// --- Node -----------------------------------------------------------

type NodeSpec struct {
	Unschedulable bool `json:"unschedulable,omitempty"`
}

type NodeStatus struct {
	Conditions        []metav1.Condition `json:"conditions,omitempty"`
	LastHeartbeatTime *metav1.Time       `json:"lastHeartbeatTime,omitempty"`
}

// Node is the cluster-scoped worker-registration kind. Node agents PATCH
// LastHeartbeatTime; the control plane itself only ever writes the Ready
// condition, and only to flip it to Unknown on staleness.
type Node struct {
	TypeMeta `json:",inline"`
	Metadata Metadata   `json:"metadata"`
	Spec     NodeSpec   `json:"spec"`
	Status   NodeStatus `json:"status,omitempty"`
}

func (n *Node) GVK() GroupVersionKind  { return n.TypeMeta.GVK() }
func (n *Node) GetMetadata() *Metadata { return &n.Metadata }

// ConditionReady is the well-known condition type the node-health sweep
// and the controller's Pod/Node handlers watch for.
const ConditionReady = "Ready"

// ReasonNodeStatusUnknown is set on the Ready condition by the node-health
// sweep when a node's heartbeat has gone stale.
const ReasonNodeStatusUnknown = "NodeStatusUnknown"
