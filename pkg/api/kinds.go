package api

import (
	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

// KindSpec tells the generic CRUD handlers how to construct and scope one
// kind. All four core kinds share the same handler code through this.
type KindSpec struct {
	GVK        resource.GroupVersionKind
	Namespaced bool
	New        func() resource.Object
}

// kindRegistry lists every kind this control plane serves. Registering a
// new kind means adding an entry here and a type in pkg/resource; no
// handler code changes.
var kindRegistry = []KindSpec{
	{
		GVK:        resource.FromAPIVersionKind("v1", "Pod"),
		Namespaced: true,
		New:        func() resource.Object { return &resource.Pod{} },
	},
	{
		GVK:        resource.FromAPIVersionKind("v1", "Service"),
		Namespaced: true,
		New:        func() resource.Object { return &resource.Service{} },
	},
	{
		GVK:        resource.FromAPIVersionKind("v1", "Namespace"),
		Namespaced: false,
		New:        func() resource.Object { return &resource.Namespace{} },
	},
	{
		GVK:        resource.FromAPIVersionKind("v1", "Node"),
		Namespaced: false,
		New:        func() resource.Object { return &resource.Node{} },
	},
}
