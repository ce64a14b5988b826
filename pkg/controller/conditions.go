package controller

import (
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

// readyIsUnknown reports whether node's Ready condition is already
// Unknown, so the health sweep doesn't keep rewriting the same status.
func readyIsUnknown(node *resource.Node) bool {
	for _, cond := range node.Status.Conditions {
		if cond.Type == resource.ConditionReady {
			return cond.Status == metav1.ConditionUnknown
		}
	}
	return false
}

// setReadyUnknown flips status's Ready condition to Unknown, replacing any
// existing Ready condition or appending a fresh one.
func setReadyUnknown(status *resource.NodeStatus) {
	cond := metav1.Condition{
		Type:               resource.ConditionReady,
		Status:             metav1.ConditionUnknown,
		Reason:             resource.ReasonNodeStatusUnknown,
		Message:            "no heartbeat received within the staleness window",
		LastTransitionTime: metav1.NewTime(time.Now().UTC()),
	}
	for i := range status.Conditions {
		if status.Conditions[i].Type == resource.ConditionReady {
			status.Conditions[i] = cond
			return
		}
	}
	status.Conditions = append(status.Conditions, cond)
}
