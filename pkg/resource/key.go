package resource

import "fmt"

// Key uniquely identifies one resource instance: its GVK plus a
// (namespace, name) pair. Namespace is "" for cluster-scoped kinds.
type Key struct {
	GVK       GroupVersionKind
	Namespace string
	Name      string
}

// NewKey builds a namespaced key.
func NewKey(gvk GroupVersionKind, namespace, name string) Key {
	return Key{GVK: gvk, Namespace: namespace, Name: name}
}

// ClusterScoped builds a key for a cluster-scoped resource.
func ClusterScoped(gvk GroupVersionKind, name string) Key {
	return Key{GVK: gvk, Name: name}
}

// IsNamespaced reports whether this key carries a namespace.
func (k Key) IsNamespaced() bool { return k.Namespace != "" }

// String renders a debug-friendly identifier; not used for storage.
func (k Key) String() string {
	if k.IsNamespaced() {
		return fmt.Sprintf("%s/%s/%s", k.GVK, k.Namespace, k.Name)
	}
	return fmt.Sprintf("%s/%s", k.GVK, k.Name)
}

// APIPath renders the singular REST path for this key.
func (k Key) APIPath() string {
	base := k.GVK.APIPath()
	res := k.GVK.ResourceName()
	if k.IsNamespaced() {
		return fmt.Sprintf("/%s/namespaces/%s/%s/%s", base, k.Namespace, res, k.Name)
	}
	return fmt.Sprintf("/%s/%s/%s", base, res, k.Name)
}

// CollectionPath renders the REST path for the collection this key belongs
// to, without the resource name.
func (k Key) CollectionPath() string {
	base := k.GVK.APIPath()
	res := k.GVK.ResourceName()
	if k.IsNamespaced() {
		return fmt.Sprintf("/%s/namespaces/%s/%s", base, k.Namespace, res)
	}
	return fmt.Sprintf("/%s/%s", base, res)
}
