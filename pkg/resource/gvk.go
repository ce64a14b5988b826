// Package resource defines the Kubernetes-compatible resource model shared
// by the version store and the API layer: GroupVersionKind, ResourceKey,
// object metadata, the four core kinds, and per-kind validation.
package resource

import (
	"fmt"
	"strings"
)

// GroupVersionKind identifies a resource type.
type GroupVersionKind struct {
	Group   string
	Version string
	Kind    string
}

// FromAPIVersionKind parses an apiVersion string ("v1" or "group/version")
// together with a kind into a GVK.
func FromAPIVersionKind(apiVersion, kind string) GroupVersionKind {
	group, version := "", apiVersion
	if idx := strings.Index(apiVersion, "/"); idx >= 0 {
		group, version = apiVersion[:idx], apiVersion[idx+1:]
	}
	return GroupVersionKind{Group: group, Version: version, Kind: kind}
}

// APIVersion renders the group/version string Kubernetes clients expect.
func (g GroupVersionKind) APIVersion() string {
	if g.Group == "" {
		return g.Version
	}
	return g.Group + "/" + g.Version
}

// APIPath renders the REST path prefix for this GVK's group.
func (g GroupVersionKind) APIPath() string {
	if g.Group == "" {
		return "api/" + g.Version
	}
	return fmt.Sprintf("apis/%s/%s", g.Group, g.Version)
}

// ResourceName pluralizes Kind the way the Kubernetes REST surface does
// for the small vocabulary of kinds this control plane serves.
func (g GroupVersionKind) ResourceName() string {
	lower := strings.ToLower(g.Kind)
	switch {
	case strings.HasSuffix(lower, "s"):
		return lower + "es"
	case strings.HasSuffix(lower, "y") && len(lower) > 1 && !strings.ContainsRune("aeiou", rune(lower[len(lower)-2])):
		return lower[:len(lower)-1] + "ies"
	default:
		return lower + "s"
	}
}

// String renders "apiVersion/Kind", e.g. "v1/Pod".
func (g GroupVersionKind) String() string {
	return g.APIVersion() + "/" + g.Kind
}

// StorageToken renders the compact token used as the gvk segment of KV keys.
// It must be collision-free across the kinds this control plane serves, so
// it includes the full apiVersion rather than just the kind.
func (g GroupVersionKind) StorageToken() string {
	return g.APIVersion() + "/" + g.Kind
}
