package kv

import (
	"encoding/binary"
	"fmt"
)

// EncodeKey builds a length-prefixed tuple key from parts.
// Each part is stored as a 4-byte big-endian length followed by its bytes,
// so that encoding a leading subset of parts always yields a true byte
// prefix of every key sharing those same leading parts — this is what makes
// prefix scans on "res"|gvk or "res"|gvk|namespace exact, regardless of
// what characters appear inside namespace or name. The encoding does not
// preserve lexicographic order of the parts: among keys with equal leading
// parts, a shorter next part sorts first ("zeta" before "alpha"), and only
// parts of equal length sort by their bytes.
func EncodeKey(parts ...string) []byte {
	size := 0
	for _, p := range parts {
		size += 4 + len(p)
	}
	buf := make([]byte, 0, size)
	var lenBuf [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, p...)
	}
	return buf
}

// DecodeKey reverses EncodeKey. It returns an error if key is not a valid
// sequence of length-prefixed parts (e.g. truncated or corrupted).
func DecodeKey(key []byte) ([]string, error) {
	var parts []string
	for len(key) > 0 {
		if len(key) < 4 {
			return nil, fmt.Errorf("kv: truncated key, %d bytes left", len(key))
		}
		n := binary.BigEndian.Uint32(key[:4])
		key = key[4:]
		if uint64(len(key)) < uint64(n) {
			return nil, fmt.Errorf("kv: truncated key, expected %d bytes, have %d", n, len(key))
		}
		parts = append(parts, string(key[:n]))
		key = key[n:]
	}
	return parts, nil
}

// Key family prefixes, per spec §3's KV Key Layout.
const (
	FamilyResource = "res"
	FamilyCommit   = "commit"
	FamilyHead     = "head"
	FamilyTip      = "tip"
)

// ResourceKey encodes the payload key for a resource: "res"|gvk|namespace|name.
func ResourceKey(gvk, namespace, name string) []byte {
	return EncodeKey(FamilyResource, gvk, namespace, name)
}

// ResourcePrefix encodes a scan prefix over resources of one gvk, optionally
// narrowed to one namespace.
func ResourcePrefix(gvk string, namespace ...string) []byte {
	if len(namespace) == 0 {
		return EncodeKey(FamilyResource, gvk)
	}
	return EncodeKey(FamilyResource, gvk, namespace[0])
}

// CommitKey encodes the key for a stored commit: "commit"|commit_id.
func CommitKey(commitID string) []byte {
	return EncodeKey(FamilyCommit, commitID)
}

// HeadKey encodes the head pointer key for a resource: "head"|gvk|namespace|name.
func HeadKey(gvk, namespace, name string) []byte {
	return EncodeKey(FamilyHead, gvk, namespace, name)
}

// HeadPrefix encodes a scan prefix over head pointers of one gvk, optionally
// narrowed to one namespace.
func HeadPrefix(gvk string, namespace ...string) []byte {
	if len(namespace) == 0 {
		return EncodeKey(FamilyHead, gvk)
	}
	return EncodeKey(FamilyHead, gvk, namespace[0])
}

// TipKey encodes the singleton tip pointer key.
func TipKey() []byte {
	return EncodeKey(FamilyTip)
}
