package api

import (
	"encoding/json"

	"github.com/reddwarf-sh/reddwarf/pkg/apierrors"
)

// withResourceVersion overlays metadata.resourceVersion onto a raw resource
// payload without decoding it into a typed struct. It exists because the
// authoritative resourceVersion for a read is the head commit id observed
// at read time. The stored bytes never carry it: they hold no
// resourceVersion (create) or whatever the writer sent (replace, patch),
// and a commit id, being a hash over those bytes, cannot appear inside them.
func withResourceVersion(raw []byte, version string) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, apierrors.Wrap(apierrors.Corruption, err, "decode resource envelope")
	}
	var md map[string]json.RawMessage
	if err := json.Unmarshal(obj["metadata"], &md); err != nil {
		return nil, apierrors.Wrap(apierrors.Corruption, err, "decode resource metadata")
	}
	encoded, err := json.Marshal(version)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "encode resourceVersion")
	}
	md["resourceVersion"] = encoded
	mdRaw, err := json.Marshal(md)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "encode metadata")
	}
	obj["metadata"] = mdRaw
	return json.Marshal(obj)
}
