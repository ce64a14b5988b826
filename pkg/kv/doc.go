// Package kv is the embedded ACID storage engine underneath the version
// store: single-writer/multi-reader transactions over ordered byte keys,
// with prefix and bounded-range scans. See pkg/version for the commit log
// built on top of it.
package kv
