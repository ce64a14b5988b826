// Package version is the Version Store: a commit DAG layered on pkg/kv.
// Every write is one commit, written atomically with the resource payload
// it carries; reads of current state go straight to pkg/kv, bypassing the
// DAG entirely. See store.go for the full operation set.
package version
