package version

import (
	"github.com/reddwarf-sh/reddwarf/pkg/apierrors"
	"github.com/reddwarf-sh/reddwarf/pkg/kv"
	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

// ResourceEntry pairs a resource's stored payload with the resourceVersion
// (head commit id) that produced it, read from a single consistent view so
// the two never disagree with each other.
type ResourceEntry struct {
	Key             resource.Key
	Raw             []byte
	ResourceVersion string
}

// GetResourceEntry reads key's current payload and head commit id together.
func (s *Store) GetResourceEntry(key resource.Key) (*ResourceEntry, error) {
	var entry *ResourceEntry
	err := s.kv.View(func(r kv.ReadView) error {
		raw, err := r.Get(resourceKey(key))
		if err != nil {
			return err
		}
		head, err := readHead(r, key)
		if err != nil {
			return err
		}
		entry = &ResourceEntry{Key: key, Raw: append([]byte(nil), raw...), ResourceVersion: head}
		return nil
	})
	return entry, err
}

// ListResourceEntries returns every resource of gvk (optionally scoped to
// namespace) together with each one's resourceVersion.
func (s *Store) ListResourceEntries(gvk resource.GroupVersionKind, namespace string) ([]*ResourceEntry, error) {
	var entries []*ResourceEntry
	err := s.kv.View(func(r kv.ReadView) error {
		var prefix []byte
		if namespace == "" {
			prefix = kv.ResourcePrefix(gvk.StorageToken())
		} else {
			prefix = kv.ResourcePrefix(gvk.StorageToken(), namespace)
		}
		it := r.Range(prefix)
		for it.Next() {
			parts, err := kv.DecodeKey(it.Key())
			if err != nil {
				return apierrors.Wrap(apierrors.Corruption, err, "decode resource key")
			}
			if len(parts) != 4 {
				continue
			}
			key := resource.Key{GVK: gvk, Namespace: parts[2], Name: parts[3]}
			head, err := readHead(r, key)
			if err != nil {
				return err
			}
			entries = append(entries, &ResourceEntry{Key: key, Raw: append([]byte(nil), it.Value()...), ResourceVersion: head})
		}
		return nil
	})
	return entries, err
}
