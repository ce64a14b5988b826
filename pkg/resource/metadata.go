package resource

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

// Metadata is embedded in every resource object. ResourceVersion is always
// the id of the commit that most recently wrote this resource — the
// version store is the sole assigner, never the client.
type Metadata struct {
	Name              string            `json:"name"`
	Namespace         string            `json:"namespace,omitempty"`
	UID               types.UID         `json:"uid,omitempty"`
	ResourceVersion   string            `json:"resourceVersion,omitempty"`
	CreationTimestamp metav1.Time       `json:"creationTimestamp,omitempty"`
	DeletionTimestamp *metav1.Time      `json:"deletionTimestamp,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
	Finalizers        []string          `json:"finalizers,omitempty"`
}

// IsDeleting reports whether a soft-delete has been recorded.
func (m *Metadata) IsDeleting() bool { return m.DeletionTimestamp != nil }

// HasFinalizers reports whether any external finalizer is still registered.
func (m *Metadata) HasFinalizers() bool { return len(m.Finalizers) > 0 }
