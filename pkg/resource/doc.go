// Package resource defines the Kubernetes-shaped resource model: GVK,
// ResourceKey, metadata, the four core kinds (Pod, Service, Namespace,
// Node), and DNS-1123 name validation. It has no dependency on pkg/kv or
// pkg/version — VS stores resources as opaque serialized payloads keyed by
// the GVK/Key this package defines.
package resource
